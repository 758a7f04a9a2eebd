package dto

import "github.com/google/uuid"

type BookingResponse struct {
	ID                    uuid.UUID `json:"id"`
	Status                string    `json:"status"`
	PaymentStatus         string    `json:"payment_status"`
	PaymentMethod         string    `json:"payment_method"`
	AmountCents           int64     `json:"amount_cents"`
	CommissionCents       *int64    `json:"commission_cents,omitempty"`
	InstructorPayoutCents *int64    `json:"instructor_payout_cents,omitempty"`
	PayoutStatus          string    `json:"payout_status"`
}
