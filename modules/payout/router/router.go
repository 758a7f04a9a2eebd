package router

import (
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/constants"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/middleware"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/controller"

	"github.com/labstack/echo/v4"
)

type PayoutRouter struct {
	controller *controller.PayoutController
}

func NewPayoutRouter(controller *controller.PayoutController) *PayoutRouter {
	return &PayoutRouter{controller: controller}
}

func (r *PayoutRouter) Register(e *echo.Group, mw *middleware.Middleware) {
	group := e.Group("/payouts", mw.AuthMiddleware(), mw.RequireRole(constants.RoleAdmin))
	group.POST("/run", r.controller.RunPayout)
	group.POST("/reconcile", r.controller.Reconcile)
	group.GET("/history", r.controller.ListHistory)
}
