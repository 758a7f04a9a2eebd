package webhook

import (
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/database"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/middleware"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/webhook/controller"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/webhook/repository"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/webhook/router"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/webhook/service"

	"github.com/labstack/echo/v4"
)

type Module struct {
	Service *service.WebhookService
	router  *router.WebhookRouter
}

func Init(store *database.Store, bookings service.BookingUpdater, webhookSecret string) *Module {
	repo := repository.NewWebhookRepository(store)
	svc := service.NewWebhookService(repo, bookings, webhookSecret)
	ctrl := controller.NewWebhookController(svc)

	return &Module{
		Service: svc,
		router:  router.NewWebhookRouter(ctrl),
	}
}

func (m *Module) Register(g *echo.Group, mw *middleware.Middleware) {
	m.router.Register(g, mw)
}
