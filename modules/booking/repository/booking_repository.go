package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/database"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/booking/entity"

	"github.com/google/uuid"
)

const table = "bookings"

type BookingRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	// Confirm stores the commission split and moves a pending booking to
	// confirmed. It never overwrites a split that is already set.
	Confirm(ctx context.Context, id uuid.UUID, commission, payout int64, paymentIntentID string) (bool, error)
	// Transition moves a booking between statuses; it reports false when the
	// booking was not in one of the from statuses.
	Transition(ctx context.Context, id uuid.UUID, from []string, to string, paymentStatus string) (bool, error)
}

type bookingRepository struct {
	store *database.Store
}

func NewBookingRepository(store *database.Store) BookingRepository {
	return &bookingRepository{store: store}
}

func (r *bookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	var b entity.Booking
	if err := r.store.Get(ctx, &b, table, database.Filter{database.Eq("id", id)}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		logger.Error("BookingRepository:GetByID:Error", "id", id, "error", err)
		return nil, err
	}
	return &b, nil
}

func (r *bookingRepository) Confirm(ctx context.Context, id uuid.UUID, commission, payout int64, paymentIntentID string) (bool, error) {
	n, err := r.store.Update(ctx, table,
		database.Filter{
			database.Eq("id", id),
			database.Eq("status", entity.StatusPending),
			database.Eq("commission_cents", nil),
		},
		database.Row{
			"status":                   entity.StatusConfirmed,
			"payment_status":           entity.PaymentStatusSucceeded,
			"commission_cents":         commission,
			"instructor_payout_cents":  payout,
			"stripe_payment_intent_id": paymentIntentID,
			"updated_at":               time.Now(),
		},
	)
	if err != nil {
		logger.Error("BookingRepository:Confirm:Error", "id", id, "error", err)
		return false, err
	}
	return n == 1, nil
}

func (r *bookingRepository) Transition(ctx context.Context, id uuid.UUID, from []string, to string, paymentStatus string) (bool, error) {
	patch := database.Row{
		"status":     to,
		"updated_at": time.Now(),
	}
	if paymentStatus != "" {
		patch["payment_status"] = paymentStatus
	}
	n, err := r.store.Update(ctx, table,
		database.Filter{database.Eq("id", id), database.In("status", from)},
		patch,
	)
	if err != nil {
		logger.Error("BookingRepository:Transition:Error", "id", id, "to", to, "error", err)
		return false, err
	}
	return n == 1, nil
}
