package booking

import (
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/database"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/middleware"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/booking/controller"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/booking/repository"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/booking/router"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/booking/service"

	"github.com/labstack/echo/v4"
)

type Module struct {
	Service service.BookingService
	router  *router.BookingRouter
}

func Init(store *database.Store, commissionBps int64) *Module {
	repo := repository.NewBookingRepository(store)
	svc := service.NewBookingService(repo, commissionBps)
	ctrl := controller.NewBookingController(svc)

	return &Module{
		Service: svc,
		router:  router.NewBookingRouter(ctrl),
	}
}

func (m *Module) Register(g *echo.Group, mw *middleware.Middleware) {
	m.router.Register(g, mw)
}
