package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/errors"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/validator"
	bookingEntity "github.com/Chromeox/hobbyist-web-partner-sub014/modules/booking/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/repository"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/service"

	"github.com/labstack/echo/v4"
)

// stubRepo answers only the calls a run with no work makes; anything else
// panics through the nil embedded interface.
type stubRepo struct {
	repository.PayoutRepository
	bookings []bookingEntity.Booking
	err      error
}

func (r *stubRepo) ListEligibleBookings(context.Context) ([]bookingEntity.Booking, error) {
	return r.bookings, r.err
}

func runPayout(t *testing.T, repo repository.PayoutRepository) (int, map[string]any) {
	t.Helper()
	svc := service.NewPayoutService(repo, nil, nil, nil, service.Config{CommissionBps: 1500})
	ctrl := NewPayoutController(svc)

	e := echo.New()
	e.Validator = validator.New()
	e.POST("/payouts/run", ctrl.RunPayout)

	req := httptest.NewRequest(http.MethodPost, "/payouts/run", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return rec.Code, body
}

func TestRunPayoutFetchFailureIs500(t *testing.T) {
	code, body := runPayout(t, &stubRepo{err: errors.New("connection reset")})

	if code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", code)
	}
	if body["message"] != "Failed to fetch bookings for payout" {
		t.Errorf("message = %v", body["message"])
	}
	if body["code"] != string(errors.ErrFetchBookings) {
		t.Errorf("code = %v", body["code"])
	}
}

func TestRunPayoutNothingToPay(t *testing.T) {
	code, body := runPayout(t, &stubRepo{})

	if code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
	if body["message"] != "No new bookings to payout" {
		t.Errorf("message = %v", body["message"])
	}
}
