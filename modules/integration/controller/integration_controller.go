package controller

import (
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/controller"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/errors"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/middleware"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/validator"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/dto"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type IntegrationController struct {
	service *service.IntegrationService
	controller.BaseController
}

func NewIntegrationController(svc *service.IntegrationService) *IntegrationController {
	return &IntegrationController{
		service:        svc,
		BaseController: controller.NewBaseController(),
	}
}

func (i *IntegrationController) CreateIntegration(c echo.Context) error {
	req := new(dto.CreateIntegrationRequest)
	if err := c.Bind(req); err != nil {
		return i.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return i.BadRequest(errors.ErrInvalidRequestData, "Invalid request body", validator.Details(err))
	}
	if !middleware.CanAccessStudio(c, req.StudioID) {
		return i.Forbidden(errors.ErrForbidden, "No access to this studio")
	}

	in, err := i.service.CreateIntegration(c.Request().Context(), req)
	if err != nil {
		return i.ErrorResponse(c, err)
	}
	return i.SuccessResponse(c, toResponse(in), "Integration created successfully")
}

func (i *IntegrationController) GetStudioIntegrations(c echo.Context) error {
	studioID, herr := i.studioParam(c)
	if herr != nil {
		return herr
	}
	rows, err := i.service.GetStudioIntegrations(c.Request().Context(), studioID)
	if err != nil {
		return i.ErrorResponse(c, err)
	}
	out := make([]dto.IntegrationResponse, 0, len(rows))
	for k := range rows {
		out = append(out, toResponse(&rows[k]))
	}
	return i.SuccessResponse(c, out, "Integrations retrieved successfully")
}

func (i *IntegrationController) GetSyncStats(c echo.Context) error {
	studioID, herr := i.studioParam(c)
	if herr != nil {
		return herr
	}
	stats, err := i.service.GetSyncStats(c.Request().Context(), studioID)
	if err != nil {
		return i.ErrorResponse(c, err)
	}
	return i.SuccessResponse(c, stats, "Sync stats retrieved successfully")
}

func (i *IntegrationController) GetEventsNeedingReview(c echo.Context) error {
	studioID, herr := i.studioParam(c)
	if herr != nil {
		return herr
	}
	rows, err := i.service.GetEventsNeedingReview(c.Request().Context(), studioID)
	if err != nil {
		return i.ErrorResponse(c, err)
	}
	return i.SuccessResponse(c, rows, "Events retrieved successfully")
}

// SyncStudio imports every syncable integration of the studio synchronously.
func (i *IntegrationController) SyncStudio(c echo.Context) error {
	studioID, herr := i.studioParam(c)
	if herr != nil {
		return herr
	}
	results, err := i.service.SyncAllIntegrations(c.Request().Context(), studioID)
	if err != nil {
		return i.ErrorResponse(c, err)
	}
	return i.SuccessResponse(c, results, "Sync completed")
}

func (i *IntegrationController) GetIntegration(c echo.Context) error {
	in, err := i.loadIntegration(c)
	if err != nil {
		return i.fail(c, err)
	}
	return i.SuccessResponse(c, toResponse(in), "Integration retrieved successfully")
}

func (i *IntegrationController) ImportEvents(c echo.Context) error {
	in, err := i.loadIntegration(c)
	if err != nil {
		return i.fail(c, err)
	}
	req := new(dto.ImportRequest)
	if err := c.Bind(req); err != nil {
		return i.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return i.BadRequest(errors.ErrInvalidRequestData, "Invalid request body", validator.Details(err))
	}

	result, err := i.service.ImportEvents(c.Request().Context(), in.ID, req.StartDate, req.EndDate)
	if err != nil {
		return i.ErrorResponse(c, err)
	}
	return i.SuccessResponse(c, result, "Events imported")
}

func (i *IntegrationController) UpdateSyncStatus(c echo.Context) error {
	in, err := i.loadIntegration(c)
	if err != nil {
		return i.fail(c, err)
	}
	req := new(dto.UpdateSyncStatusRequest)
	if err := c.Bind(req); err != nil {
		return i.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return i.BadRequest(errors.ErrInvalidRequestData, "Invalid request body", validator.Details(err))
	}
	if err := i.service.UpdateSyncStatus(c.Request().Context(), in.ID, req.Status, req.ErrorMessage); err != nil {
		return i.ErrorResponse(c, err)
	}
	return i.SuccessResponse(c, nil, "Sync status updated")
}

func (i *IntegrationController) DeleteIntegration(c echo.Context) error {
	in, err := i.loadIntegration(c)
	if err != nil {
		return i.fail(c, err)
	}
	if err := i.service.DeleteIntegration(c.Request().Context(), in.ID); err != nil {
		return i.ErrorResponse(c, err)
	}
	return i.SuccessResponse(c, nil, "Integration deleted")
}

func (i *IntegrationController) ApproveEventMapping(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return i.BadRequest(errors.ErrInvalidInput, "Invalid event id")
	}
	req := new(dto.ApproveRequest)
	if err := c.Bind(req); err != nil {
		return i.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}

	ctx := c.Request().Context()
	ev, err := i.service.GetImportedEvent(ctx, id)
	if err != nil {
		return i.ErrorResponse(c, err)
	}
	if !middleware.CanAccessStudio(c, ev.StudioID) {
		return i.Forbidden(errors.ErrForbidden, "No access to this studio")
	}

	ev, err = i.service.ApproveEventMapping(ctx, id, req.ClassID, req.ScheduleID, req.CreateNew)
	if err != nil {
		return i.ErrorResponse(c, err)
	}
	return i.SuccessResponse(c, ev, "Event mapping approved")
}

func (i *IntegrationController) studioParam(c echo.Context) (uuid.UUID, error) {
	studioID, err := uuid.Parse(c.Param("studio_id"))
	if err != nil {
		return uuid.Nil, i.BadRequest(errors.ErrInvalidInput, "Invalid studio id")
	}
	if !middleware.CanAccessStudio(c, studioID) {
		return uuid.Nil, i.Forbidden(errors.ErrForbidden, "No access to this studio")
	}
	return studioID, nil
}

// loadIntegration resolves :id and checks the caller may act on its studio.
func (i *IntegrationController) loadIntegration(c echo.Context) (*entity.CalendarIntegration, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, i.BadRequest(errors.ErrInvalidInput, "Invalid integration id")
	}
	in, err := i.service.GetIntegration(c.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	if !middleware.CanAccessStudio(c, in.StudioID) {
		return nil, i.Forbidden(errors.ErrForbidden, "No access to this studio")
	}
	return in, nil
}

// fail passes prebuilt HTTP errors through and renders service errors.
func (i *IntegrationController) fail(c echo.Context, err error) error {
	if he, ok := err.(*echo.HTTPError); ok {
		return he
	}
	return i.ErrorResponse(c, err)
}

func toResponse(in *entity.CalendarIntegration) dto.IntegrationResponse {
	return dto.IntegrationResponse{CalendarIntegration: in, Connected: in.AccessToken != ""}
}
