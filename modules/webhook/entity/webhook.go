package entity

import (
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/entity"

	"github.com/google/uuid"
)

const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
	PaymentDisputed  = "disputed"
)

// Payment mirrors one Stripe charge attempt for a booking.
type Payment struct {
	entity.BaseEntity
	BookingID             *uuid.UUID `db:"booking_id" json:"booking_id,omitempty"`
	StripePaymentIntentID *string    `db:"stripe_payment_intent_id" json:"stripe_payment_intent_id,omitempty"`
	StripeChargeID        *string    `db:"stripe_charge_id" json:"stripe_charge_id,omitempty"`
	AmountCents           int64      `db:"amount_cents" json:"amount_cents"`
	Currency              string     `db:"currency" json:"currency"`
	Status                string     `db:"status" json:"status"`
}

// WebhookEvent is the delivery log keyed by the Stripe event id.
type WebhookEvent struct {
	ID          string         `db:"id" json:"id"`
	Type        string         `db:"type" json:"type"`
	Processed   bool           `db:"processed" json:"processed"`
	ProcessedAt *time.Time     `db:"processed_at" json:"processed_at,omitempty"`
	Error       *string        `db:"error" json:"error,omitempty"`
	Payload     entity.RawJSON `db:"payload" json:"payload"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}
