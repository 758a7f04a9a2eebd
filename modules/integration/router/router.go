package router

import (
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/constants"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/middleware"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/controller"

	"github.com/labstack/echo/v4"
)

type IntegrationRouter struct {
	controller *controller.IntegrationController
}

func NewIntegrationRouter(controller *controller.IntegrationController) *IntegrationRouter {
	return &IntegrationRouter{controller: controller}
}

func (r *IntegrationRouter) Register(e *echo.Group, mw *middleware.Middleware) {
	staff := []echo.MiddlewareFunc{mw.AuthMiddleware(), mw.RequireRole(constants.RoleAdmin, constants.RoleStudio)}

	studios := e.Group("/studios/:studio_id", staff...)
	studios.GET("/integrations", r.controller.GetStudioIntegrations)
	studios.GET("/integrations/stats", r.controller.GetSyncStats)
	studios.POST("/integrations/sync", r.controller.SyncStudio)
	studios.GET("/imported-events/review", r.controller.GetEventsNeedingReview)

	integrations := e.Group("/integrations", staff...)
	integrations.POST("", r.controller.CreateIntegration)
	integrations.GET("/:id", r.controller.GetIntegration)
	integrations.POST("/:id/import", r.controller.ImportEvents)
	integrations.PATCH("/:id/status", r.controller.UpdateSyncStatus)
	integrations.DELETE("/:id", r.controller.DeleteIntegration)

	events := e.Group("/imported-events", staff...)
	events.POST("/:id/approve", r.controller.ApproveEventMapping)
}
