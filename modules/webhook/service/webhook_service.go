package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/database"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/errors"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	bookingEntity "github.com/Chromeox/hobbyist-web-partner-sub014/modules/booking/entity"
	webhookEntity "github.com/Chromeox/hobbyist-web-partner-sub014/modules/webhook/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/webhook/repository"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	eventPaymentSucceeded = "payment_intent.succeeded"
	eventPaymentFailed    = "payment_intent.payment_failed"
	eventChargeRefunded   = "charge.refunded"
	eventDisputeCreated   = "charge.dispute.created"
)

// BookingUpdater is the slice of the booking service driven by payment events.
type BookingUpdater interface {
	ConfirmBooking(ctx context.Context, id uuid.UUID, paymentIntentID string) (*bookingEntity.Booking, *errors.AppError)
	CancelBooking(ctx context.Context, id uuid.UUID) *errors.AppError
	MarkRefunded(ctx context.Context, id uuid.UUID) *errors.AppError
}

type WebhookService struct {
	repo     repository.WebhookRepository
	bookings BookingUpdater
	secret   string
}

func NewWebhookService(repo repository.WebhookRepository, bookings BookingUpdater, secret string) *WebhookService {
	return &WebhookService{repo: repo, bookings: bookings, secret: secret}
}

// HandleStripe verifies and applies one delivery. A bad signature yields
// ErrInvalidSignature whose message is the verification failure. Deliveries
// already processed are acknowledged without side effects.
func (s *WebhookService) HandleStripe(ctx context.Context, payload []byte, signature string) error {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, s.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		logger.Warn("WebhookService:HandleStripe:InvalidSignature", "error", err)
		return errors.NewAppError(errors.ErrInvalidSignature, err.Error(), err)
	}

	stored, err := s.repo.RecordEvent(ctx, &webhookEntity.WebhookEvent{
		ID:      evt.ID,
		Type:    string(evt.Type),
		Payload: entity.RawJSON(payload),
	})
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "Failed to record webhook event", err)
	}
	if stored.Processed {
		logger.Info("WebhookService:HandleStripe:AlreadyProcessed", "event_id", evt.ID, "type", evt.Type)
		return nil
	}

	procErr := s.dispatch(ctx, &evt)
	if err := s.repo.MarkProcessed(context.WithoutCancel(ctx), evt.ID, procErr); err != nil {
		logger.Error("WebhookService:HandleStripe:MarkFailed", "event_id", evt.ID, "error", err)
	}
	if procErr != nil {
		logger.Error("WebhookService:HandleStripe:ProcessingFailed", "event_id", evt.ID, "type", evt.Type, "error", procErr)
		return errors.NewAppError(errors.ErrInternalServer, "Failed to process webhook event", procErr)
	}
	logger.Info("WebhookService:HandleStripe:Processed", "event_id", evt.ID, "type", evt.Type)
	return nil
}

func (s *WebhookService) dispatch(ctx context.Context, evt *stripe.Event) error {
	switch string(evt.Type) {
	case eventPaymentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return fmt.Errorf("decode payment intent: %w", err)
		}
		return s.paymentSucceeded(ctx, &pi)
	case eventPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return fmt.Errorf("decode payment intent: %w", err)
		}
		return s.paymentFailed(ctx, &pi)
	case eventChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &ch); err != nil {
			return fmt.Errorf("decode charge: %w", err)
		}
		return s.chargeRefunded(ctx, &ch)
	case eventDisputeCreated:
		var d stripe.Dispute
		if err := json.Unmarshal(evt.Data.Raw, &d); err != nil {
			return fmt.Errorf("decode dispute: %w", err)
		}
		if d.Charge == nil || d.Charge.ID == "" {
			logger.Warn("WebhookService:Dispute:NoCharge", "dispute_id", d.ID)
			return nil
		}
		_, err := s.repo.UpdatePaymentsByCharge(ctx, d.Charge.ID, database.Row{"status": webhookEntity.PaymentDisputed})
		return err
	default:
		logger.Debug("WebhookService:Dispatch:Ignored", "type", evt.Type)
		return nil
	}
}

func (s *WebhookService) paymentSucceeded(ctx context.Context, pi *stripe.PaymentIntent) error {
	patch := database.Row{"status": webhookEntity.PaymentSucceeded}
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		patch["stripe_charge_id"] = pi.LatestCharge.ID
	}
	payments, err := s.repo.UpdatePaymentsByIntent(ctx, pi.ID, patch)
	if err != nil {
		return err
	}
	for _, id := range bookingIDs(pi.Metadata, payments) {
		_, appErr := s.bookings.ConfirmBooking(ctx, id, pi.ID)
		if err := bookingResult("ConfirmBooking", id, appErr); err != nil {
			return err
		}
	}
	return nil
}

func (s *WebhookService) paymentFailed(ctx context.Context, pi *stripe.PaymentIntent) error {
	payments, err := s.repo.UpdatePaymentsByIntent(ctx, pi.ID, database.Row{"status": webhookEntity.PaymentFailed})
	if err != nil {
		return err
	}
	for _, id := range bookingIDs(pi.Metadata, payments) {
		if err := bookingResult("CancelBooking", id, s.bookings.CancelBooking(ctx, id)); err != nil {
			return err
		}
	}
	return nil
}

// chargeRefunded takes the refunded bookings out of payout eligibility.
func (s *WebhookService) chargeRefunded(ctx context.Context, ch *stripe.Charge) error {
	patch := database.Row{"status": webhookEntity.PaymentRefunded}
	payments, err := s.repo.UpdatePaymentsByCharge(ctx, ch.ID, patch)
	if err != nil {
		return err
	}
	if len(payments) == 0 && ch.PaymentIntent != nil && ch.PaymentIntent.ID != "" {
		patch["stripe_charge_id"] = ch.ID
		if payments, err = s.repo.UpdatePaymentsByIntent(ctx, ch.PaymentIntent.ID, patch); err != nil {
			return err
		}
	}
	ids := bookingIDs(ch.Metadata, payments)
	if len(ids) == 0 {
		logger.Warn("WebhookService:ChargeRefunded:NoBooking", "charge_id", ch.ID)
	}
	for _, id := range ids {
		if err := bookingResult("MarkRefunded", id, s.bookings.MarkRefunded(ctx, id)); err != nil {
			return err
		}
	}
	return nil
}

// bookingIDs collects the bookings a payment event touches: the metadata
// booking_id first, then any linked payment rows.
func bookingIDs(metadata map[string]string, payments []webhookEntity.Payment) []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	if raw := metadata["booking_id"]; raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			seen[id] = true
			out = append(out, id)
		} else {
			logger.Warn("WebhookService:BookingIDs:InvalidMetadata", "booking_id", raw)
		}
	}
	for _, p := range payments {
		if p.BookingID != nil && !seen[*p.BookingID] {
			seen[*p.BookingID] = true
			out = append(out, *p.BookingID)
		}
	}
	return out
}

// bookingResult drops booking errors a redelivery cannot fix, so Stripe stops
// retrying the event.
func bookingResult(op string, id uuid.UUID, appErr *errors.AppError) error {
	if appErr == nil {
		return nil
	}
	if appErr.Code == errors.ErrNotFound || appErr.Code == errors.ErrInvalidInput {
		logger.Warn("WebhookService:"+op+":Skipped", "booking_id", id, "reason", appErr.Message)
		return nil
	}
	return appErr
}
