package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/cache"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/config"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/constants"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/database"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/middleware"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/queue"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/security"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/storage"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/utils"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/validator"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/booking"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/provider"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/notification"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/processor"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/webhook"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
)

// App holds the wired modules shared by every command.
type App struct {
	cfg   *config.Config
	db    *database.Database
	redis *redis.Client

	Notification *notification.Module
	Booking      *booking.Module
	Payout       *payout.Module
	Integration  *integration.Module
	Webhook      *webhook.Module
}

func NewApp(cfg *config.Config) (*App, error) {
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	rdb, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	cipher, err := security.NewTokenCipher(cfg.Crypto.TokenKey)
	if err != nil {
		_ = db.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("crypto.token_key: %w", err)
	}

	store := database.NewStore(db.SQLx())
	notifications := notification.Init(store)
	bookings := booking.Init(store, cfg.Payout.CommissionBps)

	return &App{
		cfg:          cfg,
		db:           db,
		redis:        rdb,
		Notification: notifications,
		Booking:      bookings,
		Payout: payout.Init(store,
			processor.NewStripeProcessor(cfg.Stripe.SecretKey),
			cache.NewRedisLocker(rdb, ""),
			notifications.Service,
			cfg.Payout,
		),
		Integration: integration.Init(store,
			provider.NewFactory(cfg),
			cipher,
			storage.NewArchiver(cfg.S3),
			notifications.Service,
			cfg.Sync,
		),
		Webhook: webhook.Init(store, bookings.Service, cfg.Stripe.WebhookSecret),
	}, nil
}

func (a *App) Close() {
	if err := a.redis.Close(); err != nil {
		logger.Warn("App:Close:Redis", "error", err)
	}
	if err := a.db.Close(); err != nil {
		logger.Warn("App:Close:Database", "error", err)
	}
}

// Handler builds the echo instance with every module mounted. Public routes
// live under /api/v1, authenticated ones under /api/v1/private.
func (a *App) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestIDWithConfig(echoMiddleware.RequestIDConfig{Generator: utils.GenerateID}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	mw := middleware.NewMiddleware(a.cfg.JWT.Secret)
	api := e.Group("/api/v1")
	private := api.Group("/private")

	a.Webhook.Register(api, mw)
	a.Notification.Register(private, mw)
	a.Booking.Register(private, mw)
	a.Payout.Register(private, mw)
	a.Integration.Register(private, mw)
	return e
}

// Serve runs the HTTP API until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	e := a.Handler()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server:Start", "address", a.cfg.Server.Address())
		if err := e.Start(a.cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Server:Shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownGracePeriod)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// Work runs the asynq worker and the periodic scheduler until ctx is
// cancelled.
func (a *App) Work(ctx context.Context) error {
	client := queue.NewClient(a.cfg.Redis)
	defer client.Close()

	mux := asynq.NewServeMux()
	a.Payout.RegisterTasks(mux)
	a.Integration.RegisterTasks(mux, client)

	scheduler, err := queue.NewScheduler(a.cfg, []queue.Periodic{
		{Spec: a.cfg.Payout.Schedule, Task: asynq.NewTask(queue.TypePayoutRun, nil), Queue: queue.QueueCritical},
		{Spec: a.cfg.Payout.ReconcileSchedule, Task: asynq.NewTask(queue.TypePayoutReconcile, nil), Queue: queue.QueueCritical},
		{Spec: a.cfg.Sync.Schedule, Task: asynq.NewTask(queue.TypeCalendarSyncAll, nil), Queue: queue.QueueDefault},
	})
	if err != nil {
		return err
	}

	srv := queue.NewServer(a.cfg)
	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		return fmt.Errorf("start scheduler: %w", err)
	}
	logger.Info("Worker:Started", "concurrency", a.cfg.Worker.Concurrency)

	<-ctx.Done()
	logger.Info("Worker:Shutdown")
	scheduler.Shutdown()
	srv.Shutdown()
	return nil
}

// RunPayoutOnce runs a single payout pass in-process.
func (a *App) RunPayoutOnce(ctx context.Context) error {
	resp, err := a.Payout.Service.RunPayout(ctx)
	if err != nil {
		return err
	}
	for _, r := range resp.Results {
		logger.Info("Payout:Result", "instructor_id", r.InstructorID, "status", r.Status, "net_cents", r.NetCents, "error", r.Error)
	}
	logger.Info("Payout:Done", "message", resp.Message, "instructors", len(resp.Results))
	return nil
}

// SyncOnce imports every syncable integration of one studio in-process.
func (a *App) SyncOnce(ctx context.Context, studioID uuid.UUID) error {
	results, err := a.Integration.Service.SyncAllIntegrations(ctx, studioID)
	if err != nil {
		return err
	}
	for name, r := range results {
		logger.Info("Sync:Result",
			"provider", name,
			"total", r.TotalEvents,
			"imported", r.SuccessfullyImported,
			"review", r.RequiresReview,
			"duplicates", r.DuplicateEvents,
			"failed", r.FailedImports,
		)
	}
	return nil
}
