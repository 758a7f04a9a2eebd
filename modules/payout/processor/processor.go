package processor

import (
	"context"
	"errors"
)

// ErrDeclined wraps failures where the processor refused the transfer
// outright, so no money moved. Any other error leaves the outcome unknown.
var ErrDeclined = errors.New("transfer declined")

type TransferRequest struct {
	AmountCents    int64
	Currency       string
	Destination    string
	TransferGroup  string
	IdempotencyKey string
	Metadata       map[string]string
}

type Transfer struct {
	ID            string
	AmountCents   int64
	TransferGroup string
}

// Processor moves money to an instructor's connected account.
type Processor interface {
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	// FindTransferByGroup returns nil, nil when no transfer carries the group.
	FindTransferByGroup(ctx context.Context, group string) (*Transfer, error)
}
