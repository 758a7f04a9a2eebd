package controller

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/webhook/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/webhook/repository"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/webhook/service"

	"github.com/labstack/echo/v4"
)

const secret = "whsec_test"

// stubRepo records events only; payment updates panic through the nil
// embedded interface.
type stubRepo struct {
	repository.WebhookRepository
	recorded []string
}

func (r *stubRepo) RecordEvent(_ context.Context, ev *entity.WebhookEvent) (*entity.WebhookEvent, error) {
	r.recorded = append(r.recorded, ev.ID)
	return ev, nil
}

func (r *stubRepo) MarkProcessed(context.Context, string, error) error { return nil }

func post(t *testing.T, repo *stubRepo, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	ctrl := NewWebhookController(service.NewWebhookService(repo, nil, secret))
	e := echo.New()
	e.POST("/webhooks/stripe", ctrl.HandleStripe)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func sign(payload string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

const body = `{"id":"evt_1","object":"event","api_version":"2020-08-27","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`

func TestBadSignatureIs400WithReason(t *testing.T) {
	repo := &stubRepo{}
	rec := post(t, repo, body, "t=1,v1=deadbeef")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), "Webhook Error: ") || len(rec.Body.String()) <= len("Webhook Error: ") {
		t.Errorf("body = %q, want Webhook Error with reason", rec.Body.String())
	}
	if len(repo.recorded) != 0 {
		t.Error("nothing should be recorded")
	}
}

func TestSignedDeliveryIsAcknowledged(t *testing.T) {
	repo := &stubRepo{}
	rec := post(t, repo, body, sign(body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if strings.TrimSpace(rec.Body.String()) != `{"received":true}` {
		t.Errorf("body = %s", rec.Body.String())
	}
	if len(repo.recorded) != 1 || repo.recorded[0] != "evt_1" {
		t.Errorf("recorded = %v", repo.recorded)
	}
}
