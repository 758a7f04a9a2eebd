package controller

import (
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/controller"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/errors"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/booking/dto"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/booking/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/booking/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type BookingController struct {
	service service.BookingService
	controller.BaseController
}

func NewBookingController(svc service.BookingService) *BookingController {
	return &BookingController{
		service:        svc,
		BaseController: controller.NewBaseController(),
	}
}

func (b *BookingController) GetBooking(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return b.BadRequest(errors.ErrInvalidInput, "Invalid booking id")
	}
	booking, appErr := b.service.GetBooking(c.Request().Context(), id)
	if appErr != nil {
		return b.ErrorResponse(c, appErr)
	}
	return b.SuccessResponse(c, toResponse(booking), "Booking retrieved successfully")
}

// CompleteBooking marks an attended booking completed, which makes it
// eligible for the next payout run.
func (b *BookingController) CompleteBooking(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return b.BadRequest(errors.ErrInvalidInput, "Invalid booking id")
	}
	booking, appErr := b.service.CompleteBooking(c.Request().Context(), id)
	if appErr != nil {
		return b.ErrorResponse(c, appErr)
	}
	return b.SuccessResponse(c, toResponse(booking), "Booking completed")
}

func toResponse(b *entity.Booking) dto.BookingResponse {
	return dto.BookingResponse{
		ID:                    b.ID,
		Status:                b.Status,
		PaymentStatus:         b.PaymentStatus,
		PaymentMethod:         b.PaymentMethod,
		AmountCents:           b.AmountCents,
		CommissionCents:       b.CommissionCents,
		InstructorPayoutCents: b.InstructorPayoutCents,
		PayoutStatus:          b.PayoutStatus,
	}
}
