package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/queue"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Enqueuer is the part of *asynq.Client the fan-out task needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RegisterTasks mounts the calendar sync handlers. sync_all fans out one
// sync_studio task per studio through client.
func (m *Module) RegisterTasks(mux *asynq.ServeMux, client Enqueuer) {
	m.enqueuer = client
	mux.HandleFunc(queue.TypeCalendarSyncAll, m.handleSyncAll)
	mux.HandleFunc(queue.TypeCalendarSyncStudio, m.handleSyncStudio)
}

func (m *Module) handleSyncAll(ctx context.Context, _ *asynq.Task) error {
	studios, err := m.Service.StudiosToSync(ctx)
	if err != nil {
		return err
	}

	queued := 0
	for _, id := range studios {
		task, opts, err := queue.NewStudioSyncTask(id.String())
		if err != nil {
			return err
		}
		if _, err := m.enqueuer.EnqueueContext(ctx, task, opts...); err != nil {
			if errors.Is(err, asynq.ErrTaskIDConflict) {
				logger.Debug("CalendarTask:SyncAll:AlreadyQueued", "studio_id", id)
				continue
			}
			return fmt.Errorf("enqueue sync for studio %s: %w", id, err)
		}
		queued++
	}
	logger.Info("CalendarTask:SyncAll:Done", "studios", len(studios), "queued", queued)
	return nil
}

func (m *Module) handleSyncStudio(ctx context.Context, task *asynq.Task) error {
	p, err := queue.ParseStudioSync(task)
	if err != nil {
		return err
	}
	studioID, err := uuid.Parse(p.StudioID)
	if err != nil {
		return fmt.Errorf("%w: invalid studio id %q", asynq.SkipRetry, p.StudioID)
	}

	results, err := m.Service.SyncAllIntegrations(ctx, studioID)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if r.FailedImports > 0 && r.TotalEvents == 0 {
			failed++
		}
	}
	logger.Info("CalendarTask:SyncStudio:Done", "studio_id", studioID, "integrations", len(results), "failed", failed)
	return nil
}
