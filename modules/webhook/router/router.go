package router

import (
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/middleware"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/webhook/controller"

	"github.com/labstack/echo/v4"
)

type WebhookRouter struct {
	controller *controller.WebhookController
}

func NewWebhookRouter(controller *controller.WebhookController) *WebhookRouter {
	return &WebhookRouter{controller: controller}
}

// Register mounts the receiver on the public group; Stripe authenticates
// with the signature header instead of a bearer token.
func (r *WebhookRouter) Register(e *echo.Group, _ *middleware.Middleware) {
	e.POST("/webhooks/stripe", r.controller.HandleStripe)
}
