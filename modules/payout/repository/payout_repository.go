package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/database"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	bookingEntity "github.com/Chromeox/hobbyist-web-partner-sub014/modules/booking/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/entity"

	"github.com/google/uuid"
)

const (
	bookingsTable    = "bookings"
	instructorsTable = "instructors"
	historyTable     = "payout_history"
)

// ErrBatchDrift means a settle touched fewer bookings than the batch claimed.
// The whole settle is rolled back when it is returned.
var ErrBatchDrift = errors.New("payout: batch bookings changed while in flight")

type PayoutRepository interface {
	// ListEligibleBookings returns completed bookings not yet paid out.
	ListEligibleBookings(ctx context.Context) ([]bookingEntity.Booking, error)
	ListInstructors(ctx context.Context, ids []uuid.UUID) ([]entity.Instructor, error)

	// ClaimBookings moves pending bookings to processing under batchID and
	// returns how many rows it won.
	ClaimBookings(ctx context.Context, ids []uuid.UUID, batchID string) (int64, error)
	ListBatchBookings(ctx context.Context, batchID string) ([]bookingEntity.Booking, error)
	// ReleaseBookings puts batch bookings back to pending. A nil ids slice
	// releases the whole batch.
	ReleaseBookings(ctx context.Context, batchID string, ids []uuid.UUID) error

	CreateHistory(ctx context.Context, h *entity.PayoutHistory) error
	MarkHistoryFailed(ctx context.Context, batchID, reason string) error
	// NoteTransferError records an unanswered transfer on a processing batch
	// without settling it.
	NoteTransferError(ctx context.Context, batchID, reason string) error
	MarkReconciliationRequired(ctx context.Context, batchID, transferID, reason string) error
	// CompleteBatch records the transfer and marks every batch booking paid
	// in one transaction.
	CompleteBatch(ctx context.Context, batchID, transferID string, bookingIDs []uuid.UUID) error

	ListHistory(ctx context.Context, instructorID *uuid.UUID, limit int) ([]entity.PayoutHistory, error)
	// ListUnsettled returns batches flagged for reconciliation plus batches
	// stuck in processing since before staleBefore.
	ListUnsettled(ctx context.Context, staleBefore time.Time) ([]entity.PayoutHistory, error)
}

type payoutRepository struct {
	store *database.Store
}

func NewPayoutRepository(store *database.Store) PayoutRepository {
	return &payoutRepository{store: store}
}

func (r *payoutRepository) ListEligibleBookings(ctx context.Context) ([]bookingEntity.Booking, error) {
	var rows []bookingEntity.Booking
	err := r.store.Select(ctx, &rows, bookingsTable,
		database.Filter{
			database.Eq("status", bookingEntity.StatusCompleted),
			database.Eq("payout_status", bookingEntity.PayoutPending),
		},
		database.OrderBy("created_at", false),
	)
	if err != nil {
		logger.Error("PayoutRepository:ListEligibleBookings:Error", err)
		return nil, err
	}
	return rows, nil
}

func (r *payoutRepository) ListInstructors(ctx context.Context, ids []uuid.UUID) ([]entity.Instructor, error) {
	var rows []entity.Instructor
	if err := r.store.Select(ctx, &rows, instructorsTable, database.Filter{database.In("id", ids)}); err != nil {
		logger.Error("PayoutRepository:ListInstructors:Error", err)
		return nil, err
	}
	return rows, nil
}

func (r *payoutRepository) ClaimBookings(ctx context.Context, ids []uuid.UUID, batchID string) (int64, error) {
	n, err := r.store.Update(ctx, bookingsTable,
		database.Filter{
			database.In("id", ids),
			database.Eq("status", bookingEntity.StatusCompleted),
			database.Eq("payout_status", bookingEntity.PayoutPending),
		},
		database.Row{
			"payout_status":   bookingEntity.PayoutProcessing,
			"payout_batch_id": batchID,
			"updated_at":      time.Now(),
		},
	)
	if err != nil {
		logger.Error("PayoutRepository:ClaimBookings:Error", "batch_id", batchID, "error", err)
		return 0, err
	}
	return n, nil
}

func (r *payoutRepository) ListBatchBookings(ctx context.Context, batchID string) ([]bookingEntity.Booking, error) {
	var rows []bookingEntity.Booking
	if err := r.store.Select(ctx, &rows, bookingsTable, database.Filter{database.Eq("payout_batch_id", batchID)}); err != nil {
		logger.Error("PayoutRepository:ListBatchBookings:Error", "batch_id", batchID, "error", err)
		return nil, err
	}
	return rows, nil
}

func (r *payoutRepository) ReleaseBookings(ctx context.Context, batchID string, ids []uuid.UUID) error {
	filter := database.Filter{
		database.Eq("payout_batch_id", batchID),
		database.Eq("payout_status", bookingEntity.PayoutProcessing),
	}
	if ids != nil {
		filter = append(filter, database.In("id", ids))
	}
	_, err := r.store.Update(ctx, bookingsTable, filter, database.Row{
		"payout_status":   bookingEntity.PayoutPending,
		"payout_batch_id": nil,
		"updated_at":      time.Now(),
	})
	if err != nil {
		logger.Error("PayoutRepository:ReleaseBookings:Error", "batch_id", batchID, "error", err)
	}
	return err
}

func (r *payoutRepository) CreateHistory(ctx context.Context, h *entity.PayoutHistory) error {
	row := database.Row{
		"batch_id":         h.BatchID,
		"instructor_id":    h.InstructorID,
		"amount_cents":     h.AmountCents,
		"commission_cents": h.CommissionCents,
		"net_amount_cents": h.NetAmountCents,
		"currency":         h.Currency,
		"transfer_group":   h.TransferGroup,
		"idempotency_key":  h.IdempotencyKey,
		"status":           h.Status,
		"booking_ids":      h.BookingIDs,
	}
	if err := r.store.Insert(ctx, historyTable, row, h); err != nil {
		logger.Error("PayoutRepository:CreateHistory:Error", "batch_id", h.BatchID, "error", err)
		return err
	}
	return nil
}

func (r *payoutRepository) MarkHistoryFailed(ctx context.Context, batchID, reason string) error {
	_, err := r.store.Update(ctx, historyTable,
		database.Filter{database.Eq("batch_id", batchID)},
		database.Row{
			"status":        entity.HistoryFailed,
			"error_message": reason,
			"updated_at":    time.Now(),
		},
	)
	if err != nil {
		logger.Error("PayoutRepository:MarkHistoryFailed:Error", "batch_id", batchID, "error", err)
	}
	return err
}

func (r *payoutRepository) NoteTransferError(ctx context.Context, batchID, reason string) error {
	_, err := r.store.Update(ctx, historyTable,
		database.Filter{
			database.Eq("batch_id", batchID),
			database.Eq("status", entity.HistoryProcessing),
		},
		database.Row{
			"error_message": reason,
			"updated_at":    time.Now(),
		},
	)
	if err != nil {
		logger.Error("PayoutRepository:NoteTransferError:Error", "batch_id", batchID, "error", err)
	}
	return err
}

func (r *payoutRepository) MarkReconciliationRequired(ctx context.Context, batchID, transferID, reason string) error {
	_, err := r.store.Update(ctx, historyTable,
		database.Filter{database.Eq("batch_id", batchID)},
		database.Row{
			"status":             entity.HistoryReconciliationRequired,
			"stripe_transfer_id": transferID,
			"error_message":      reason,
			"updated_at":         time.Now(),
		},
	)
	if err != nil {
		logger.Error("PayoutRepository:MarkReconciliationRequired:Error", "batch_id", batchID, "error", err)
	}
	return err
}

func (r *payoutRepository) CompleteBatch(ctx context.Context, batchID, transferID string, bookingIDs []uuid.UUID) error {
	now := time.Now()
	return r.store.WithTx(ctx, func(tx *database.Store) error {
		n, err := tx.Update(ctx, bookingsTable,
			database.Filter{
				database.Eq("payout_batch_id", batchID),
				database.Eq("payout_status", bookingEntity.PayoutProcessing),
				database.In("id", bookingIDs),
			},
			database.Row{
				"payout_status": bookingEntity.PayoutPaid,
				"updated_at":    now,
			},
		)
		if err != nil {
			return err
		}
		if n != int64(len(bookingIDs)) {
			return fmt.Errorf("%w: marked %d of %d", ErrBatchDrift, n, len(bookingIDs))
		}

		_, err = tx.Update(ctx, historyTable,
			database.Filter{database.Eq("batch_id", batchID)},
			database.Row{
				"status":             entity.HistoryCompleted,
				"stripe_transfer_id": transferID,
				"error_message":      nil,
				"payout_date":        now,
				"updated_at":         now,
			},
		)
		return err
	})
}

func (r *payoutRepository) ListHistory(ctx context.Context, instructorID *uuid.UUID, limit int) ([]entity.PayoutHistory, error) {
	var filter database.Filter
	if instructorID != nil {
		filter = append(filter, database.Eq("instructor_id", *instructorID))
	}
	var rows []entity.PayoutHistory
	if err := r.store.Select(ctx, &rows, historyTable, filter, database.OrderBy("created_at", true), database.Limit(limit)); err != nil {
		logger.Error("PayoutRepository:ListHistory:Error", err)
		return nil, err
	}
	return rows, nil
}

func (r *payoutRepository) ListUnsettled(ctx context.Context, staleBefore time.Time) ([]entity.PayoutHistory, error) {
	var flagged, stale []entity.PayoutHistory
	if err := r.store.Select(ctx, &flagged, historyTable,
		database.Filter{database.Eq("status", entity.HistoryReconciliationRequired)},
		database.OrderBy("created_at", false),
	); err != nil {
		logger.Error("PayoutRepository:ListUnsettled:Error", err)
		return nil, err
	}
	if err := r.store.Select(ctx, &stale, historyTable,
		database.Filter{
			database.Eq("status", entity.HistoryProcessing),
			database.Lt("updated_at", staleBefore),
		},
		database.OrderBy("created_at", false),
	); err != nil {
		logger.Error("PayoutRepository:ListUnsettled:Error", err)
		return nil, err
	}
	return append(flagged, stale...), nil
}
