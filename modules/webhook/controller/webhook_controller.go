package controller

import (
	"io"
	"net/http"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/constants"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/controller"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/errors"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/webhook/service"

	"github.com/labstack/echo/v4"
)

type WebhookController struct {
	service *service.WebhookService
	controller.BaseController
}

func NewWebhookController(svc *service.WebhookService) *WebhookController {
	return &WebhookController{
		service:        svc,
		BaseController: controller.NewBaseController(),
	}
}

func (w *WebhookController) HandleStripe(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, constants.WebhookMaxBodyBytes))
	if err != nil {
		return c.String(http.StatusBadRequest, "Webhook Error: "+err.Error())
	}

	err = w.service.HandleStripe(c.Request().Context(), payload, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		var ae *errors.AppError
		if errors.As(err, &ae) && ae.Code == errors.ErrInvalidSignature {
			return c.String(http.StatusBadRequest, "Webhook Error: "+ae.Message)
		}
		return w.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}
