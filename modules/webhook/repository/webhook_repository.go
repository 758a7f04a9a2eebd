package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/database"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/webhook/entity"
)

const (
	eventsTable   = "webhook_events"
	paymentsTable = "payments"
)

type WebhookRepository interface {
	// RecordEvent stores the delivery unless it was seen before and returns
	// the stored row either way.
	RecordEvent(ctx context.Context, ev *entity.WebhookEvent) (*entity.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id string, procErr error) error
	// UpdatePaymentsByIntent and UpdatePaymentsByCharge return the rows they
	// changed.
	UpdatePaymentsByIntent(ctx context.Context, intentID string, patch database.Row) ([]entity.Payment, error)
	UpdatePaymentsByCharge(ctx context.Context, chargeID string, patch database.Row) ([]entity.Payment, error)
}

type webhookRepository struct {
	store *database.Store
}

func NewWebhookRepository(store *database.Store) WebhookRepository {
	return &webhookRepository{store: store}
}

func (r *webhookRepository) RecordEvent(ctx context.Context, ev *entity.WebhookEvent) (*entity.WebhookEvent, error) {
	row := database.Row{
		"id":         ev.ID,
		"type":       ev.Type,
		"processed":  false,
		"payload":    ev.Payload,
		"created_at": time.Now(),
	}
	if _, err := r.store.Upsert(ctx, eventsTable, []database.Row{row}, []string{"id"}, database.DoNothing()); err != nil {
		logger.Error("WebhookRepository:RecordEvent:Error", "id", ev.ID, "error", err)
		return nil, err
	}

	var stored entity.WebhookEvent
	if err := r.store.Get(ctx, &stored, eventsTable, database.Filter{database.Eq("id", ev.ID)}); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *webhookRepository) MarkProcessed(ctx context.Context, id string, procErr error) error {
	now := time.Now()
	patch := database.Row{"processed": procErr == nil, "processed_at": &now}
	if procErr != nil {
		msg := procErr.Error()
		patch["error"] = &msg
	} else {
		patch["error"] = (*string)(nil)
	}
	_, err := r.store.Update(ctx, eventsTable, database.Filter{database.Eq("id", id)}, patch)
	return err
}

func (r *webhookRepository) UpdatePaymentsByIntent(ctx context.Context, intentID string, patch database.Row) ([]entity.Payment, error) {
	return r.updatePayments(ctx, database.Filter{database.Eq("stripe_payment_intent_id", intentID)}, patch)
}

func (r *webhookRepository) UpdatePaymentsByCharge(ctx context.Context, chargeID string, patch database.Row) ([]entity.Payment, error) {
	return r.updatePayments(ctx, database.Filter{database.Eq("stripe_charge_id", chargeID)}, patch)
}

func (r *webhookRepository) updatePayments(ctx context.Context, filter database.Filter, patch database.Row) ([]entity.Payment, error) {
	patch["updated_at"] = time.Now()

	var out []entity.Payment
	err := r.store.WithTx(ctx, func(tx *database.Store) error {
		if _, err := tx.Update(ctx, paymentsTable, filter, patch); err != nil {
			return err
		}
		err := tx.Select(ctx, &out, paymentsTable, filter)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		logger.Error("WebhookRepository:UpdatePayments:Error", "error", err)
		return nil, err
	}
	return out, nil
}
