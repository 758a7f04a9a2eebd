package entity

import (
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/entity"

	"github.com/google/uuid"
)

const (
	ProviderGoogle   = "google"
	ProviderCalendly = "calendly"
	ProviderSquare   = "square"
	ProviderOutlook  = "outlook"
	ProviderMindbody = "mindbody"
	ProviderAcuity   = "acuity"

	SyncActive  = "active"
	SyncError   = "error"
	SyncPaused  = "paused"
	SyncExpired = "expired"
)

// CalendarIntegration links a studio to one external calendar. AccessToken and
// RefreshToken hold ciphertext; only the service decrypts them.
type CalendarIntegration struct {
	entity.BaseEntity
	StudioID          uuid.UUID    `db:"studio_id" json:"studio_id"`
	Provider          string       `db:"provider" json:"provider"`
	ProviderAccountID *string      `db:"provider_account_id" json:"provider_account_id,omitempty"`
	AccessToken       string       `db:"access_token" json:"-"`
	RefreshToken      string       `db:"refresh_token" json:"-"`
	TokenExpiresAt    *time.Time   `db:"token_expires_at" json:"token_expires_at,omitempty"`
	SyncEnabled       bool         `db:"sync_enabled" json:"sync_enabled"`
	SyncStatus        string       `db:"sync_status" json:"sync_status"`
	ErrorMessage      *string      `db:"error_message" json:"error_message,omitempty"`
	LastSyncAt        *time.Time   `db:"last_sync_at" json:"last_sync_at,omitempty"`
	Settings          entity.JSONB `db:"settings" json:"settings"`
}
