package entity

import (
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/entity"

	"github.com/google/uuid"
)

const (
	RecipientAdmin      = "admin"
	RecipientStudio     = "studio"
	RecipientInstructor = "instructor"

	TypePayoutSent             = "payout_sent"
	TypePayoutFailed           = "payout_failed"
	TypeReconciliationRequired = "payout_reconciliation_required"
	TypeEventsNeedReview       = "calendar_events_need_review"
	TypeSyncFailed             = "calendar_sync_failed"
)

type Notification struct {
	RecipientType string       `db:"recipient_type" json:"recipient_type"`
	RecipientID   *uuid.UUID   `db:"recipient_id" json:"recipient_id,omitempty"`
	Title         string       `db:"title" json:"title"`
	Message       string       `db:"message" json:"message"`
	Type          string       `db:"type" json:"type"`
	Data          entity.JSONB `db:"data" json:"data"`
	IsRead        bool         `db:"is_read" json:"is_read"`
	entity.BaseEntity
}

// Recipient identifies an inbox. Admin notifications share one inbox, so
// their ID is nil.
type Recipient struct {
	Type string
	ID   *uuid.UUID
}

type PaginatedNotificationEntity = entity.Pagination[Notification]
