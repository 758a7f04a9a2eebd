package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/constants"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/errors"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/utils"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/validator"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/repository"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// stubRepo serves lookups only; anything else panics through the nil
// embedded interface.
type stubRepo struct {
	repository.IntegrationRepository
	integrations map[uuid.UUID]*entity.CalendarIntegration
}

func (r *stubRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.CalendarIntegration, error) {
	return r.integrations[id], nil
}

func (r *stubRepo) GetEvent(context.Context, uuid.UUID) (*entity.ImportedEvent, error) {
	return nil, nil
}

func newServer(repo *stubRepo, claims *utils.TokenData) *echo.Echo {
	svc := service.NewIntegrationService(repo, nil, nil, nil, nil, service.Config{})
	ctrl := NewIntegrationController(svc)

	e := echo.New()
	e.Validator = validator.New()
	setClaims := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(constants.ContextClaimsKey, claims)
			return next(c)
		}
	}
	e.GET("/integrations/:id", ctrl.GetIntegration, setClaims)
	e.POST("/integrations/:id/import", ctrl.ImportEvents, setClaims)
	e.POST("/imported-events/:id/approve", ctrl.ApproveEventMapping, setClaims)
	return e
}

func do(t *testing.T, e *echo.Echo, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return rec.Code, out
}

func seeded(status string) (*stubRepo, *entity.CalendarIntegration) {
	in := &entity.CalendarIntegration{StudioID: uuid.New(), Provider: entity.ProviderGoogle, SyncStatus: status, AccessToken: "v1:sealed"}
	in.ID = uuid.New()
	return &stubRepo{integrations: map[uuid.UUID]*entity.CalendarIntegration{in.ID: in}}, in
}

const window = `{"start_date":"2025-03-01T00:00:00Z","end_date":"2025-03-31T00:00:00Z"}`

func TestImportExpiredIntegrationIsConflict(t *testing.T) {
	repo, in := seeded(entity.SyncExpired)
	e := newServer(repo, &utils.TokenData{UserID: uuid.New(), Role: constants.RoleAdmin})

	code, body := do(t, e, http.MethodPost, "/integrations/"+in.ID.String()+"/import", window)
	if code != http.StatusConflict {
		t.Errorf("status = %d, want 409", code)
	}
	if body["code"] != string(errors.ErrIntegrationExpired) {
		t.Errorf("code = %v", body["code"])
	}
}

func TestImportInvertedWindowIsBadRequest(t *testing.T) {
	repo, in := seeded(entity.SyncActive)
	e := newServer(repo, &utils.TokenData{UserID: uuid.New(), Role: constants.RoleAdmin})

	code, body := do(t, e, http.MethodPost, "/integrations/"+in.ID.String()+"/import",
		`{"start_date":"2025-03-31T00:00:00Z","end_date":"2025-03-01T00:00:00Z"}`)
	if code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
	if body["code"] != string(errors.ErrInvalidInput) {
		t.Errorf("code = %v", body["code"])
	}
}

func TestStudioStaffLimitedToOwnStudio(t *testing.T) {
	repo, in := seeded(entity.SyncActive)

	other := uuid.New()
	e := newServer(repo, &utils.TokenData{UserID: uuid.New(), Role: constants.RoleStudio, StudioID: &other})
	if code, _ := do(t, e, http.MethodGet, "/integrations/"+in.ID.String(), ""); code != http.StatusForbidden {
		t.Errorf("other studio status = %d, want 403", code)
	}

	own := in.StudioID
	e = newServer(repo, &utils.TokenData{UserID: uuid.New(), Role: constants.RoleStudio, StudioID: &own})
	code, body := do(t, e, http.MethodGet, "/integrations/"+in.ID.String(), "")
	if code != http.StatusOK {
		t.Fatalf("own studio status = %d, want 200", code)
	}
	data, _ := body["data"].(map[string]any)
	if data["connected"] != true {
		t.Errorf("connected = %v", data["connected"])
	}
	if _, leaked := data["access_token"]; leaked {
		t.Error("access token must not be serialized")
	}
}

func TestUnknownIntegrationIsNotFound(t *testing.T) {
	repo, _ := seeded(entity.SyncActive)
	e := newServer(repo, &utils.TokenData{UserID: uuid.New(), Role: constants.RoleAdmin})

	if code, _ := do(t, e, http.MethodGet, "/integrations/"+uuid.NewString(), ""); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
	if code, _ := do(t, e, http.MethodGet, "/integrations/not-a-uuid", ""); code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", code)
	}
}

func TestApproveUnknownEventIsNotFound(t *testing.T) {
	repo, _ := seeded(entity.SyncActive)
	e := newServer(repo, &utils.TokenData{UserID: uuid.New(), Role: constants.RoleAdmin})

	code, body := do(t, e, http.MethodPost, "/imported-events/"+uuid.NewString()+"/approve", `{"create_new":true}`)
	if code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
	if body["message"] != "Event not found" {
		t.Errorf("message = %v", body["message"])
	}
}
