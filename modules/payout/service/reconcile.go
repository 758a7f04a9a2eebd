package service

import (
	"context"
	"fmt"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/errors"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	notificationEntity "github.com/Chromeox/hobbyist-web-partner-sub014/modules/notification/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/dto"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/entity"

	"github.com/google/uuid"
)

// Reconcile settles batches whose bookkeeping did not finish: batches flagged
// after a post-transfer failure, and batches left in processing by a crash or
// by a transfer the processor never answered. The processor is the source of
// truth for whether money moved.
func (s *PayoutService) Reconcile(ctx context.Context) (*dto.ReconcileResponse, error) {
	rows, err := s.repo.ListUnsettled(ctx, s.now().Add(-s.cfg.StaleAfter))
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load unsettled payouts", err)
	}

	results := make([]dto.ReconcileResult, 0, len(rows))
	for _, h := range rows {
		results = append(results, s.reconcileOne(ctx, h))
	}
	logger.Info("PayoutService:Reconcile:Done", "batches", len(results))
	return &dto.ReconcileResponse{Message: dto.MessageReconciled, Results: results}, nil
}

func (s *PayoutService) reconcileOne(ctx context.Context, h entity.PayoutHistory) dto.ReconcileResult {
	res := dto.ReconcileResult{BatchID: h.BatchID}

	transferID := ""
	if h.StripeTransferID != nil {
		transferID = *h.StripeTransferID
	}
	if transferID == "" {
		t, err := s.processor.FindTransferByGroup(ctx, h.TransferGroup)
		if err != nil {
			logger.Error("PayoutService:Reconcile:LookupFailed", "batch_id", h.BatchID, "error", err)
			res.Status = h.Status
			res.Error = err.Error()
			return res
		}
		if t != nil {
			transferID = t.ID
		}
	}

	if transferID == "" {
		// No money moved. Give the bookings back to the next run.
		if err := s.repo.MarkHistoryFailed(ctx, h.BatchID, "no transfer found during reconciliation"); err != nil {
			res.Status = h.Status
			res.Error = err.Error()
			return res
		}
		if err := s.repo.ReleaseBookings(ctx, h.BatchID, nil); err != nil {
			res.Status = entity.HistoryFailed
			res.Error = err.Error()
			return res
		}
		logger.Warn("PayoutService:Reconcile:Released", "batch_id", h.BatchID)
		res.Status = entity.HistoryFailed
		return res
	}

	ids := make([]uuid.UUID, 0, len(h.BookingIDs))
	for _, raw := range h.BookingIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	res.TransferID = transferID
	if err := s.repo.CompleteBatch(ctx, h.BatchID, transferID, ids); err != nil {
		logger.Critical("PayoutService:Reconcile:SettleFailed", "batch_id", h.BatchID, "transfer_id", transferID, "error", err)
		if h.Status != entity.HistoryReconciliationRequired {
			_ = s.repo.MarkReconciliationRequired(ctx, h.BatchID, transferID, err.Error())
			s.notifier.NotifyAdmins(ctx, notificationEntity.TypeReconciliationRequired,
				"Payout needs reconciliation",
				fmt.Sprintf("Transfer %s exists but batch %s could not be settled.", transferID, h.BatchID),
				map[string]any{"batch_id": h.BatchID, "transfer_id": transferID},
			)
		}
		res.Status = entity.HistoryReconciliationRequired
		res.Error = err.Error()
		return res
	}

	logger.Info("PayoutService:Reconcile:Settled", "batch_id", h.BatchID, "transfer_id", transferID)
	res.Status = entity.HistoryCompleted
	return res
}
