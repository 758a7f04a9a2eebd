package controller

import (
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/constants"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/controller"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/errors"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/middleware"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/params"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/validator"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/notification/dto"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/notification/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/notification/service"

	"github.com/labstack/echo/v4"
)

type NotificationController struct {
	service *service.NotificationService
	controller.BaseController
}

func NewNotificationController(service *service.NotificationService) *NotificationController {
	return &NotificationController{
		service:        service,
		BaseController: controller.NewBaseController(),
	}
}

// GetMyNotifications lists the caller's inbox, newest first.
func (c *NotificationController) GetMyNotifications(ctx echo.Context) error {
	rcpt, ok := recipientFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	queryParams := params.NewQueryParams(ctx)
	result, err := c.service.GetMyNotifications(ctx.Request().Context(), rcpt, *queryParams)
	if err != nil {
		return c.InternalServerError(errors.ErrInternalServer, "Failed to get notifications")
	}

	return c.SuccessResponse(ctx, result, "Notifications retrieved successfully")
}

func (c *NotificationController) MarkAsRead(ctx echo.Context) error {
	rcpt, ok := recipientFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	req := new(dto.MarkAsReadRequest)
	if err := ctx.Bind(req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}
	if err := ctx.Validate(req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid request body", validator.Details(err))
	}

	if err := c.service.MarkAsRead(ctx.Request().Context(), rcpt, req.IDs); err != nil {
		return c.InternalServerError(errors.ErrInternalServer, "Failed to mark as read")
	}

	return c.SuccessResponse(ctx, nil, "Marked as read successfully")
}

func (c *NotificationController) MarkAllAsRead(ctx echo.Context) error {
	rcpt, ok := recipientFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	if err := c.service.MarkAllAsRead(ctx.Request().Context(), rcpt); err != nil {
		return c.InternalServerError(errors.ErrInternalServer, "Failed to mark all as read")
	}

	return c.SuccessResponse(ctx, nil, "Marked all as read successfully")
}

func (c *NotificationController) CountUnread(ctx echo.Context) error {
	rcpt, ok := recipientFromContext(ctx)
	if !ok {
		return c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	count, err := c.service.CountUnread(ctx.Request().Context(), rcpt)
	if err != nil {
		return c.InternalServerError(errors.ErrInternalServer, "Failed to count unread")
	}

	return c.SuccessResponse(ctx, map[string]int{"count": count}, "Unread count retrieved")
}

// recipientFromContext maps the caller's role onto an inbox. Instructor
// tokens carry the instructor id as their user id.
func recipientFromContext(ctx echo.Context) (entity.Recipient, bool) {
	data, ok := middleware.TokenFromContext(ctx)
	if !ok {
		return entity.Recipient{}, false
	}
	switch data.Role {
	case constants.RoleAdmin:
		return entity.Recipient{Type: entity.RecipientAdmin}, true
	case constants.RoleStudio:
		if data.StudioID == nil {
			return entity.Recipient{}, false
		}
		return entity.Recipient{Type: entity.RecipientStudio, ID: data.StudioID}, true
	case constants.RoleInstructor:
		id := data.UserID
		return entity.Recipient{Type: entity.RecipientInstructor, ID: &id}, true
	}
	return entity.Recipient{}, false
}
