package dto

import "github.com/google/uuid"

const (
	MessageNoBookings = "No new bookings to payout"
	MessageCompleted  = "Payout process completed"
	MessageReconciled = "Payout reconciliation completed"

	ResultCompleted              = "completed"
	ResultFailed                 = "failed"
	ResultSkipped                = "skipped"
	ResultReconciliationRequired = "reconciliation_required"
	// ResultUnconfirmed means the processor never answered; the batch stays
	// claimed until reconciliation.
	ResultUnconfirmed = "unconfirmed"
)

type PayoutResult struct {
	InstructorID    uuid.UUID   `json:"instructor_id"`
	Status          string      `json:"status"`
	BatchID         string      `json:"batch_id,omitempty"`
	TransferID      string      `json:"transfer_id,omitempty"`
	Error           string      `json:"error,omitempty"`
	GrossCents      int64       `json:"gross_cents"`
	CommissionCents int64       `json:"commission_cents"`
	NetCents        int64       `json:"net_cents"`
	BookingIDs      []uuid.UUID `json:"booking_ids,omitempty"`
}

type RunPayoutResponse struct {
	Message string         `json:"message"`
	Results []PayoutResult `json:"results"`
}

type ReconcileResult struct {
	BatchID    string `json:"batch_id"`
	Status     string `json:"status"`
	TransferID string `json:"transfer_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

type ReconcileResponse struct {
	Message string            `json:"message"`
	Results []ReconcileResult `json:"results"`
}

type HistoryQuery struct {
	InstructorID string `query:"instructor_id"`
	Limit        int    `query:"limit" validate:"omitempty,min=1,max=500"`
}
