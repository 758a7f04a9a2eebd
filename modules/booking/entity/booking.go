package entity

import (
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/entity"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
	StatusRefunded  = "refunded"

	PayoutPending    = "pending"
	PayoutProcessing = "processing"
	PayoutPaid       = "paid"

	PaymentMethodCard    = "card"
	PaymentMethodCredits = "credits"

	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

type Booking struct {
	entity.BaseEntity
	ClassID               *uuid.UUID `db:"class_id" json:"class_id,omitempty"`
	ScheduleID            *uuid.UUID `db:"schedule_id" json:"schedule_id,omitempty"`
	InstructorID          *uuid.UUID `db:"instructor_id" json:"instructor_id,omitempty"`
	UserID                *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	AmountCents           int64      `db:"amount_cents" json:"amount_cents"`
	CreditValueCents      int64      `db:"credit_value_cents" json:"credit_value_cents"`
	CommissionCents       *int64     `db:"commission_cents" json:"commission_cents,omitempty"`
	InstructorPayoutCents *int64     `db:"instructor_payout_cents" json:"instructor_payout_cents,omitempty"`
	PaymentMethod         string     `db:"payment_method" json:"payment_method"`
	PaymentStatus         string     `db:"payment_status" json:"payment_status"`
	Status                string     `db:"status" json:"status"`
	PayoutStatus          string     `db:"payout_status" json:"payout_status"`
	PayoutBatchID         *string    `db:"payout_batch_id" json:"payout_batch_id,omitempty"`
	StripePaymentIntentID *string    `db:"stripe_payment_intent_id" json:"stripe_payment_intent_id,omitempty"`
}

// BaseAmount is what the booking contributes to a payout: the credit value
// for credit bookings, the charged amount otherwise.
func (b *Booking) BaseAmount() int64 {
	if b.PaymentMethod == PaymentMethodCredits {
		return b.CreditValueCents
	}
	return b.AmountCents
}
