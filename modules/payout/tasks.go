package payout

import (
	"context"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/queue"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/dto"

	"github.com/hibiken/asynq"
)

// RegisterTasks mounts the payout handlers on the worker mux.
func (m *Module) RegisterTasks(mux *asynq.ServeMux) {
	mux.HandleFunc(queue.TypePayoutRun, m.handleRun)
	mux.HandleFunc(queue.TypePayoutReconcile, m.handleReconcile)
}

func (m *Module) handleRun(ctx context.Context, _ *asynq.Task) error {
	resp, err := m.Service.RunPayout(ctx)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range resp.Results {
		if r.Status != dto.ResultCompleted && r.Status != dto.ResultSkipped {
			failed++
		}
	}
	logger.Info("PayoutTask:Run:Done", "message", resp.Message, "instructors", len(resp.Results), "failed", failed)
	return nil
}

func (m *Module) handleReconcile(ctx context.Context, _ *asynq.Task) error {
	resp, err := m.Service.Reconcile(ctx)
	if err != nil {
		return err
	}
	logger.Info("PayoutTask:Reconcile:Done", "batches", len(resp.Results))
	return nil
}
