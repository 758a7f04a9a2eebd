package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type StripeProcessor struct {
	sc *client.API
}

func NewStripeProcessor(secretKey string) *StripeProcessor {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeProcessor{sc: sc}
}

func (p *StripeProcessor) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(req.Currency),
		Destination:   stripe.String(req.Destination),
		TransferGroup: stripe.String(req.TransferGroup),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	t, err := p.sc.Transfers.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return &Transfer{ID: t.ID, AmountCents: t.Amount, TransferGroup: t.TransferGroup}, nil
}

func (p *StripeProcessor) FindTransferByGroup(ctx context.Context, group string) (*Transfer, error) {
	params := &stripe.TransferListParams{TransferGroup: stripe.String(group)}
	params.Context = ctx

	it := p.sc.Transfers.List(params)
	for it.Next() {
		t := it.Transfer()
		return &Transfer{ID: t.ID, AmountCents: t.Amount, TransferGroup: t.TransferGroup}, nil
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}

// classify marks 4xx answers as declines. A conflict or an idempotency error
// means another request with the same key may have moved money, and network
// failures or 5xx answers say nothing about the outcome.
func classify(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return err
	}
	if se.HTTPStatusCode < http.StatusBadRequest || se.HTTPStatusCode >= http.StatusInternalServerError {
		return err
	}
	if se.HTTPStatusCode == http.StatusConflict || se.Type == stripe.ErrorTypeIdempotency {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDeclined, err)
}
