package payout

import (
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/cache"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/config"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/database"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/middleware"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/controller"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/processor"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/repository"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/router"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/service"

	"github.com/labstack/echo/v4"
)

type Module struct {
	Service *service.PayoutService
	router  *router.PayoutRouter
}

func Init(store *database.Store, proc processor.Processor, locker cache.Locker, notifier service.Notifier, cfg config.PayoutConfig) *Module {
	repo := repository.NewPayoutRepository(store)
	svc := service.NewPayoutService(repo, proc, locker, notifier, service.Config{
		CommissionBps: cfg.CommissionBps,
		Currency:      cfg.Currency,
		Concurrency:   cfg.Concurrency,
		LockTTL:       cfg.LockTTL,
		StaleAfter:    cfg.StaleAfter,
	})
	ctrl := controller.NewPayoutController(svc)

	return &Module{
		Service: svc,
		router:  router.NewPayoutRouter(ctrl),
	}
}

func (m *Module) Register(g *echo.Group, mw *middleware.Middleware) {
	m.router.Register(g, mw)
}
