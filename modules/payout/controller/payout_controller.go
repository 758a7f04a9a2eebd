package controller

import (
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/controller"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/errors"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/validator"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/dto"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type PayoutController struct {
	service *service.PayoutService
	controller.BaseController
}

func NewPayoutController(svc *service.PayoutService) *PayoutController {
	return &PayoutController{
		service:        svc,
		BaseController: controller.NewBaseController(),
	}
}

// RunPayout triggers a payout run synchronously and returns per-instructor
// results.
func (p *PayoutController) RunPayout(c echo.Context) error {
	resp, err := p.service.RunPayout(c.Request().Context())
	if err != nil {
		return p.ErrorResponse(c, err)
	}
	return p.SuccessResponse(c, resp.Results, resp.Message)
}

func (p *PayoutController) Reconcile(c echo.Context) error {
	resp, err := p.service.Reconcile(c.Request().Context())
	if err != nil {
		return p.ErrorResponse(c, err)
	}
	return p.SuccessResponse(c, resp.Results, resp.Message)
}

func (p *PayoutController) ListHistory(c echo.Context) error {
	q := new(dto.HistoryQuery)
	if err := c.Bind(q); err != nil {
		return p.BadRequest(errors.ErrInvalidRequestData, "Invalid query parameters")
	}
	if err := c.Validate(q); err != nil {
		return p.BadRequest(errors.ErrInvalidRequestData, "Invalid query parameters", validator.Details(err))
	}

	var instructorID *uuid.UUID
	if q.InstructorID != "" {
		id, err := uuid.Parse(q.InstructorID)
		if err != nil {
			return p.BadRequest(errors.ErrInvalidInput, "Invalid instructor id")
		}
		instructorID = &id
	}

	rows, err := p.service.ListHistory(c.Request().Context(), instructorID, q.Limit)
	if err != nil {
		return p.ErrorResponse(c, err)
	}
	return p.SuccessResponse(c, rows, "Payout history retrieved successfully")
}
