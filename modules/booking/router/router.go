package router

import (
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/constants"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/middleware"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/booking/controller"

	"github.com/labstack/echo/v4"
)

type BookingRouter struct {
	Controller *controller.BookingController
}

func NewBookingRouter(ctrl *controller.BookingController) *BookingRouter {
	return &BookingRouter{Controller: ctrl}
}

func (r *BookingRouter) Register(g *echo.Group, mw *middleware.Middleware) {
	bookings := g.Group("/bookings", mw.AuthMiddleware())
	bookings.GET("/:id", r.Controller.GetBooking)
	bookings.POST("/:id/complete", r.Controller.CompleteBooking,
		mw.RequireRole(constants.RoleAdmin, constants.RoleStudio, constants.RoleInstructor))
}
