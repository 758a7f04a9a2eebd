package entity

import (
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/entity"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	MigrationPending  = "pending"
	MigrationMapped   = "mapped"
	MigrationImported = "imported"
)

type ImportedEvent struct {
	entity.BaseEntity
	IntegrationID       uuid.UUID      `db:"integration_id" json:"integration_id"`
	ExternalID          string         `db:"external_id" json:"external_id"`
	Provider            string         `db:"provider" json:"provider"`
	StudioID            uuid.UUID      `db:"studio_id" json:"studio_id"`
	Title               string         `db:"title" json:"title"`
	Description         *string        `db:"description" json:"description,omitempty"`
	StartTime           time.Time      `db:"start_time" json:"start_time"`
	EndTime             time.Time      `db:"end_time" json:"end_time"`
	AllDay              bool           `db:"all_day" json:"all_day"`
	InstructorName      *string        `db:"instructor_name" json:"instructor_name,omitempty"`
	InstructorEmail     *string        `db:"instructor_email" json:"instructor_email,omitempty"`
	Location            *string        `db:"location" json:"location,omitempty"`
	Room                *string        `db:"room" json:"room,omitempty"`
	Category            *string        `db:"category" json:"category,omitempty"`
	SkillLevel          *string        `db:"skill_level" json:"skill_level,omitempty"`
	MaxParticipants     *int           `db:"max_participants" json:"max_participants,omitempty"`
	CurrentParticipants int            `db:"current_participants" json:"current_participants"`
	PriceCents          *int64         `db:"price_cents" json:"price_cents,omitempty"`
	MaterialFeeCents    *int64         `db:"material_fee_cents" json:"material_fee_cents,omitempty"`
	MigrationStatus     string         `db:"migration_status" json:"migration_status"`
	ConfidenceScore     float64        `db:"confidence_score" json:"confidence_score"`
	MappingReasons      pq.StringArray `db:"mapping_reasons" json:"mapping_reasons"`
	MappedClassID       *uuid.UUID     `db:"mapped_class_id" json:"mapped_class_id,omitempty"`
	MappedScheduleID    *uuid.UUID     `db:"mapped_schedule_id" json:"mapped_schedule_id,omitempty"`
	RawData             entity.RawJSON `db:"raw_data" json:"raw_data,omitempty"`
}

func (e *ImportedEvent) DurationMinutes() int {
	return int((e.EndTime.Sub(e.StartTime) + 30*time.Second) / time.Minute)
}
