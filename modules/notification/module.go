package notification

import (
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/database"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/middleware"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/notification/controller"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/notification/repository"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/notification/router"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/notification/service"

	"github.com/labstack/echo/v4"
)

type Module struct {
	Service *service.NotificationService
	router  *router.NotificationRouter
}

func Init(store *database.Store) *Module {
	repo := repository.NewNotificationRepository(store)
	svc := service.NewNotificationService(repo)
	ctrl := controller.NewNotificationController(svc)

	return &Module{
		Service: svc,
		router:  router.NewNotificationRouter(ctrl),
	}
}

func (m *Module) Register(g *echo.Group, mw *middleware.Middleware) {
	m.router.Register(g, mw)
}
