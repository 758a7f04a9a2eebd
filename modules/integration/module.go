package integration

import (
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/config"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/database"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/middleware"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/storage"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/controller"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/repository"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/router"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/service"

	"github.com/labstack/echo/v4"
)

type Module struct {
	Service  *service.IntegrationService
	router   *router.IntegrationRouter
	enqueuer Enqueuer
}

func Init(store *database.Store, factory service.ProviderFactory, sealer service.TokenSealer, archiver storage.Archiver, notifier service.Notifier, cfg config.SyncConfig) *Module {
	repo := repository.NewIntegrationRepository(store)
	svc := service.NewIntegrationService(repo, factory, sealer, archiver, notifier, service.Config{
		PastDays:    cfg.PastDays,
		FutureDays:  cfg.FutureDays,
		Concurrency: cfg.Concurrency,
		Timeout:     cfg.Timeout,
	})
	ctrl := controller.NewIntegrationController(svc)

	return &Module{
		Service: svc,
		router:  router.NewIntegrationRouter(ctrl),
	}
}

func (m *Module) Register(g *echo.Group, mw *middleware.Middleware) {
	m.router.Register(g, mw)
}
