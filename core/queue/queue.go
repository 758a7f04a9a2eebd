package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/config"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
)

const (
	TypePayoutRun          = "payout:run"
	TypePayoutReconcile    = "payout:reconcile"
	TypeCalendarSyncAll    = "calendar:sync_all"
	TypeCalendarSyncStudio = "calendar:sync_studio"

	QueueCritical = "critical"
	QueueDefault  = "default"
)

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewClient(cfg config.RedisConfig) *asynq.Client {
	return asynq.NewClient(RedisOpt(cfg))
}

// NewServer builds the worker. Payout tasks run on the critical queue so a
// backlog of calendar syncs never delays them.
func NewServer(cfg *config.Config) *asynq.Server {
	return asynq.NewServer(RedisOpt(cfg.Redis), asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues: map[string]int{
			QueueCritical: 6,
			QueueDefault:  3,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("Worker:TaskFailed", "type", task.Type(), "error", err)
		}),
	})
}

type Periodic struct {
	Spec  string
	Task  *asynq.Task
	Queue string
}

// NewScheduler registers every periodic task after validating its cron spec.
func NewScheduler(cfg *config.Config, jobs []Periodic) (*asynq.Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Worker.Timezone)
	if err != nil {
		return nil, fmt.Errorf("worker.timezone: %w", err)
	}

	scheduler := asynq.NewScheduler(RedisOpt(cfg.Redis), &asynq.SchedulerOpts{Location: loc})
	for _, job := range jobs {
		if job.Spec == "" {
			logger.Info("Scheduler:Disabled", "type", job.Task.Type())
			continue
		}
		if _, err := cron.ParseStandard(job.Spec); err != nil {
			return nil, fmt.Errorf("schedule for %s: %w", job.Task.Type(), err)
		}
		entryID, err := scheduler.Register(job.Spec, job.Task, asynq.Queue(job.Queue), asynq.MaxRetry(0))
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", job.Task.Type(), err)
		}
		logger.Info("Scheduler:Registered", "type", job.Task.Type(), "spec", job.Spec, "entry_id", entryID)
	}
	return scheduler, nil
}

type StudioSyncPayload struct {
	StudioID string `json:"studio_id"`
}

// NewStudioSyncTask builds a per-studio calendar sync. The task id makes a
// second enqueue for the same studio a no-op while one is still pending.
func NewStudioSyncTask(studioID string) (*asynq.Task, []asynq.Option, error) {
	payload, err := json.Marshal(StudioSyncPayload{StudioID: studioID})
	if err != nil {
		return nil, nil, err
	}
	opts := []asynq.Option{
		asynq.Queue(QueueDefault),
		asynq.TaskID(TypeCalendarSyncStudio + ":" + studioID),
		asynq.MaxRetry(2),
	}
	return asynq.NewTask(TypeCalendarSyncStudio, payload), opts, nil
}

func ParseStudioSync(task *asynq.Task) (StudioSyncPayload, error) {
	var p StudioSyncPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return p, nil
}
