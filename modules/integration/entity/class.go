package entity

import (
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/entity"

	"github.com/google/uuid"
)

type Class struct {
	entity.BaseEntity
	StudioID        uuid.UUID  `db:"studio_id" json:"studio_id"`
	InstructorID    *uuid.UUID `db:"instructor_id" json:"instructor_id,omitempty"`
	Name            string     `db:"name" json:"name"`
	Slug            string     `db:"slug" json:"slug"`
	Description     *string    `db:"description" json:"description,omitempty"`
	Category        *string    `db:"category" json:"category,omitempty"`
	DifficultyLevel *string    `db:"difficulty_level" json:"difficulty_level,omitempty"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	MaxParticipants int        `db:"max_participants" json:"max_participants"`
	PriceCents      int64      `db:"price_cents" json:"price_cents"`
	IsActive        bool       `db:"is_active" json:"is_active"`
}

type ClassSchedule struct {
	entity.BaseEntity
	ClassID        uuid.UUID `db:"class_id" json:"class_id"`
	StartTime      time.Time `db:"start_time" json:"start_time"`
	EndTime        time.Time `db:"end_time" json:"end_time"`
	SpotsAvailable int       `db:"spots_available" json:"spots_available"`
	SpotsTotal     int       `db:"spots_total" json:"spots_total"`
}

// InstructorContact is the slice of an instructor row the mapper matches on.
type InstructorContact struct {
	ID    uuid.UUID `db:"id"`
	Email *string   `db:"email"`
}
