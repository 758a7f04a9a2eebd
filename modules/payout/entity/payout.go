package entity

import (
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/entity"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	HistoryProcessing             = "processing"
	HistoryCompleted              = "completed"
	HistoryFailed                 = "failed"
	HistoryReconciliationRequired = "reconciliation_required"
)

type Instructor struct {
	entity.BaseEntity
	StudioID        *uuid.UUID `db:"studio_id" json:"studio_id,omitempty"`
	DisplayName     string     `db:"display_name" json:"display_name"`
	Email           *string    `db:"email" json:"email,omitempty"`
	StripeAccountID *string    `db:"stripe_account_id" json:"-"`
}

func (i *Instructor) PayoutAccount() string {
	if i == nil || i.StripeAccountID == nil {
		return ""
	}
	return *i.StripeAccountID
}

// PayoutHistory is the audit row for one transfer attempt. It is written as
// processing before the processor is called and settled afterwards.
type PayoutHistory struct {
	entity.BaseEntity
	BatchID          string         `db:"batch_id" json:"batch_id"`
	InstructorID     uuid.UUID      `db:"instructor_id" json:"instructor_id"`
	AmountCents      int64          `db:"amount_cents" json:"amount_cents"`
	CommissionCents  int64          `db:"commission_cents" json:"commission_cents"`
	NetAmountCents   int64          `db:"net_amount_cents" json:"net_amount_cents"`
	Currency         string         `db:"currency" json:"currency"`
	StripeTransferID *string        `db:"stripe_transfer_id" json:"stripe_transfer_id,omitempty"`
	TransferGroup    string         `db:"transfer_group" json:"transfer_group"`
	IdempotencyKey   string         `db:"idempotency_key" json:"-"`
	Status           string         `db:"status" json:"status"`
	ErrorMessage     *string        `db:"error_message" json:"error_message,omitempty"`
	BookingIDs       pq.StringArray `db:"booking_ids" json:"booking_ids"`
	PayoutDate       *time.Time     `db:"payout_date" json:"payout_date,omitempty"`
}
