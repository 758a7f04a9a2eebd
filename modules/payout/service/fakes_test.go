package service

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/cache"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/errors"
	bookingEntity "github.com/Chromeox/hobbyist-web-partner-sub014/modules/booking/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/processor"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/repository"

	"github.com/google/uuid"
)

type memRepo struct {
	mu          sync.Mutex
	bookings    map[uuid.UUID]*bookingEntity.Booking
	instructors map[uuid.UUID]entity.Instructor
	history     map[string]*entity.PayoutHistory

	listErr     error
	completeErr error
	// afterClaim runs once bookings are claimed, before they are re-read.
	afterClaim func()
}

func newMemRepo() *memRepo {
	return &memRepo{
		bookings:    map[uuid.UUID]*bookingEntity.Booking{},
		instructors: map[uuid.UUID]entity.Instructor{},
		history:     map[string]*entity.PayoutHistory{},
	}
}

func (r *memRepo) addInstructor(account string) uuid.UUID {
	in := entity.Instructor{DisplayName: "Instructor"}
	in.ID = uuid.New()
	if account != "" {
		in.StripeAccountID = &account
	}
	r.instructors[in.ID] = in
	return in.ID
}

func (r *memRepo) addBooking(instructorID uuid.UUID, amount int64) *bookingEntity.Booking {
	b := &bookingEntity.Booking{
		InstructorID:  &instructorID,
		AmountCents:   amount,
		PaymentMethod: bookingEntity.PaymentMethodCard,
		Status:        bookingEntity.StatusCompleted,
		PayoutStatus:  bookingEntity.PayoutPending,
	}
	b.ID = uuid.New()
	r.bookings[b.ID] = b
	return b
}

func (r *memRepo) ListEligibleBookings(context.Context) ([]bookingEntity.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []bookingEntity.Booking
	for _, b := range r.bookings {
		if b.Status == bookingEntity.StatusCompleted && b.PayoutStatus == bookingEntity.PayoutPending {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memRepo) ListInstructors(_ context.Context, ids []uuid.UUID) ([]entity.Instructor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Instructor
	for _, id := range ids {
		if in, ok := r.instructors[id]; ok {
			out = append(out, in)
		}
	}
	return out, nil
}

func (r *memRepo) ClaimBookings(_ context.Context, ids []uuid.UUID, batchID string) (int64, error) {
	r.mu.Lock()
	var n int64
	for _, id := range ids {
		b, ok := r.bookings[id]
		if !ok || b.Status != bookingEntity.StatusCompleted || b.PayoutStatus != bookingEntity.PayoutPending {
			continue
		}
		b.PayoutStatus = bookingEntity.PayoutProcessing
		batch := batchID
		b.PayoutBatchID = &batch
		n++
	}
	hook := r.afterClaim
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return n, nil
}

func (r *memRepo) ListBatchBookings(_ context.Context, batchID string) ([]bookingEntity.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bookingEntity.Booking
	for _, b := range r.bookings {
		if b.PayoutBatchID != nil && *b.PayoutBatchID == batchID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memRepo) ReleaseBookings(_ context.Context, batchID string, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	only := map[uuid.UUID]bool{}
	for _, id := range ids {
		only[id] = true
	}
	for _, b := range r.bookings {
		if b.PayoutBatchID == nil || *b.PayoutBatchID != batchID || b.PayoutStatus != bookingEntity.PayoutProcessing {
			continue
		}
		if ids != nil && !only[b.ID] {
			continue
		}
		b.PayoutStatus = bookingEntity.PayoutPending
		b.PayoutBatchID = nil
	}
	return nil
}

func (r *memRepo) CreateHistory(_ context.Context, h *entity.PayoutHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h.ID = uuid.New()
	h.CreatedAt = time.Now()
	h.UpdatedAt = h.CreatedAt
	cp := *h
	r.history[h.BatchID] = &cp
	return nil
}

func (r *memRepo) MarkHistoryFailed(_ context.Context, batchID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.history[batchID]; ok {
		h.Status = entity.HistoryFailed
		h.ErrorMessage = &reason
	}
	return nil
}

func (r *memRepo) NoteTransferError(_ context.Context, batchID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.history[batchID]; ok && h.Status == entity.HistoryProcessing {
		h.ErrorMessage = &reason
		h.UpdatedAt = time.Now()
	}
	return nil
}

func (r *memRepo) MarkReconciliationRequired(_ context.Context, batchID, transferID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.history[batchID]; ok {
		h.Status = entity.HistoryReconciliationRequired
		h.StripeTransferID = &transferID
		h.ErrorMessage = &reason
	}
	return nil
}

func (r *memRepo) CompleteBatch(_ context.Context, batchID, transferID string, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completeErr != nil {
		return r.completeErr
	}
	for _, id := range ids {
		b, ok := r.bookings[id]
		if !ok || b.PayoutBatchID == nil || *b.PayoutBatchID != batchID || b.PayoutStatus != bookingEntity.PayoutProcessing {
			return fmt.Errorf("%w: booking %s", repository.ErrBatchDrift, id)
		}
	}
	for _, id := range ids {
		r.bookings[id].PayoutStatus = bookingEntity.PayoutPaid
	}
	h := r.history[batchID]
	h.Status = entity.HistoryCompleted
	h.StripeTransferID = &transferID
	return nil
}

func (r *memRepo) ListHistory(_ context.Context, instructorID *uuid.UUID, limit int) ([]entity.PayoutHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.PayoutHistory
	for _, h := range r.history {
		if instructorID != nil && h.InstructorID != *instructorID {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, *h)
	}
	return out, nil
}

func (r *memRepo) ListUnsettled(_ context.Context, staleBefore time.Time) ([]entity.PayoutHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.PayoutHistory
	for _, h := range r.history {
		if h.Status == entity.HistoryReconciliationRequired ||
			(h.Status == entity.HistoryProcessing && h.UpdatedAt.Before(staleBefore)) {
			out = append(out, *h)
		}
	}
	return out, nil
}

// fakeProcessor follows Stripe's idempotency contract: a reused key with the
// same parameters replays the stored transfer, with different parameters it
// is rejected.
type fakeProcessor struct {
	mu        sync.Mutex
	transfers []processor.TransferRequest
	calls     []processor.TransferRequest
	byGroup   map[string]string
	byKey     map[string]keyedTransfer
	failFor   map[string]bool

	// dropReplies loses the answer of that many created transfers.
	dropReplies int
	unreachable bool
}

type keyedTransfer struct {
	req      processor.TransferRequest
	transfer *processor.Transfer
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		byGroup: map[string]string{},
		byKey:   map[string]keyedTransfer{},
		failFor: map[string]bool{},
	}
}

func (p *fakeProcessor) CreateTransfer(_ context.Context, req processor.TransferRequest) (*processor.Transfer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.unreachable {
		return nil, errors.New("dial tcp: i/o timeout")
	}
	if prev, ok := p.byKey[req.IdempotencyKey]; ok {
		if !reflect.DeepEqual(prev.req, req) {
			return nil, errors.New("idempotency_error: keys for idempotent requests can only be used with the same parameters")
		}
		return prev.transfer, nil
	}
	if p.failFor[req.Destination] {
		return nil, fmt.Errorf("%w: insufficient platform balance", processor.ErrDeclined)
	}
	p.transfers = append(p.transfers, req)
	t := &processor.Transfer{ID: fmt.Sprintf("tr_%d", len(p.transfers)), AmountCents: req.AmountCents, TransferGroup: req.TransferGroup}
	p.byGroup[req.TransferGroup] = t.ID
	p.byKey[req.IdempotencyKey] = keyedTransfer{req: req, transfer: t}
	if p.dropReplies > 0 {
		p.dropReplies--
		return nil, errors.New("read tcp: connection reset by peer")
	}
	return t, nil
}

func (p *fakeProcessor) FindTransferByGroup(_ context.Context, group string) (*processor.Transfer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byGroup[group]
	if !ok {
		return nil, nil
	}
	return &processor.Transfer{ID: id, TransferGroup: group}, nil
}

func (p *fakeProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transfers)
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker { return &memLocker{held: map[string]bool{}} }

func (l *memLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return "", cache.ErrLockNotAcquired
	}
	l.held[key] = true
	return key, nil
}

func (l *memLocker) Unlock(_ context.Context, key, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

type recordingNotifier struct {
	mu          sync.Mutex
	admin       []string
	instructors []string
}

func (n *recordingNotifier) NotifyAdmins(_ context.Context, typ, _, _ string, _ map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admin = append(n.admin, typ)
}

func (n *recordingNotifier) NotifyInstructor(_ context.Context, _ uuid.UUID, typ, _, _ string, _ map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.instructors = append(n.instructors, typ)
}
