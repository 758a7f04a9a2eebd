package dto

import (
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/entity"

	"github.com/google/uuid"
)

type CreateIntegrationRequest struct {
	StudioID          uuid.UUID      `json:"studio_id" validate:"required"`
	Provider          string         `json:"provider" validate:"required,oneof=google calendly square outlook mindbody acuity"`
	ProviderAccountID string         `json:"provider_account_id"`
	AccessToken       string         `json:"access_token"`
	RefreshToken      string         `json:"refresh_token"`
	TokenExpiresAt    *time.Time     `json:"token_expires_at"`
	Settings          map[string]any `json:"settings"`
}

type ImportRequest struct {
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

type ApproveRequest struct {
	ClassID    *uuid.UUID `json:"class_id"`
	ScheduleID *uuid.UUID `json:"schedule_id"`
	CreateNew  bool       `json:"create_new"`
}

type UpdateSyncStatusRequest struct {
	Status       string `json:"status" validate:"required,oneof=active error paused expired"`
	ErrorMessage string `json:"error_message"`
}

// EventMapping is the suggestion produced for one imported event.
type EventMapping struct {
	Event                *entity.ImportedEvent `json:"original_event"`
	SuggestedClassID     *uuid.UUID            `json:"suggested_class_id,omitempty"`
	SuggestedScheduleID  *uuid.UUID            `json:"suggested_schedule_id,omitempty"`
	ConfidenceScore      float64               `json:"confidence_score"`
	MappingReasons       []string              `json:"mapping_reasons"`
	RequiresManualReview bool                  `json:"requires_manual_review"`
}

type ImportResult struct {
	TotalEvents          int            `json:"total_events"`
	SuccessfullyImported int            `json:"successfully_imported"`
	FailedImports        int            `json:"failed_imports"`
	RequiresReview       int            `json:"requires_review"`
	DuplicateEvents      int            `json:"duplicate_events"`
	ErrorDetails         []string       `json:"error_details"`
	MappingSuggestions   []EventMapping `json:"mapping_suggestions"`
}

func NewImportResult() *ImportResult {
	return &ImportResult{ErrorDetails: []string{}, MappingSuggestions: []EventMapping{}}
}

type SyncStats struct {
	TotalIntegrations  int        `json:"total_integrations"`
	ActiveIntegrations int        `json:"active_integrations"`
	LastSyncAt         *time.Time `json:"last_sync"`
	PendingReviews     int64      `json:"pending_reviews"`
	TotalImported      int64      `json:"total_imported"`
}

type IntegrationResponse struct {
	*entity.CalendarIntegration
	Connected bool `json:"connected"`
}
