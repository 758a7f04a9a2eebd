package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/cache"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/errors"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/utils"
	bookingEntity "github.com/Chromeox/hobbyist-web-partner-sub014/modules/booking/entity"
	notificationEntity "github.com/Chromeox/hobbyist-web-partner-sub014/modules/notification/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/dto"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/processor"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/payout/repository"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

const (
	defaultHistoryLimit = 50
	maxMetadataValue    = 500
	transferAttempts    = 2
)

type Config struct {
	CommissionBps int64
	Currency      string
	Concurrency   int
	LockTTL       time.Duration
	StaleAfter    time.Duration
}

type Notifier interface {
	NotifyAdmins(ctx context.Context, typ, title, message string, data map[string]any)
	NotifyInstructor(ctx context.Context, instructorID uuid.UUID, typ, title, message string, data map[string]any)
}

type PayoutService struct {
	repo      repository.PayoutRepository
	processor processor.Processor
	locker    cache.Locker
	notifier  Notifier
	cfg       Config
	now       func() time.Time
}

func NewPayoutService(repo repository.PayoutRepository, proc processor.Processor, locker cache.Locker, notifier Notifier, cfg Config) *PayoutService {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Hour
	}
	return &PayoutService{
		repo:      repo,
		processor: proc,
		locker:    locker,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
	}
}

type instructorGroup struct {
	instructor entity.Instructor
	bookings   []bookingEntity.Booking
}

// RunPayout pays every instructor for their completed, unpaid bookings. Each
// instructor is an isolated unit: one failing transfer never blocks another.
func (s *PayoutService) RunPayout(ctx context.Context) (*dto.RunPayoutResponse, error) {
	logger.Info("PayoutService:RunPayout:Start")

	bookings, err := s.repo.ListEligibleBookings(ctx)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrFetchBookings, "Failed to fetch bookings for payout", err)
	}
	if len(bookings) == 0 {
		logger.Info("PayoutService:RunPayout:NothingToPay")
		return &dto.RunPayoutResponse{Message: dto.MessageNoBookings, Results: []dto.PayoutResult{}}, nil
	}

	groups, skipped, err := s.groupByInstructor(ctx, bookings)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrFetchBookings, "Failed to fetch bookings for payout", err)
	}

	results := make([]dto.PayoutResult, 0, len(groups)+len(skipped))
	results = append(results, skipped...)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, grp := range groups {
		g.Go(func() error {
			res := s.processGroup(gctx, grp)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].InstructorID.String() < results[j].InstructorID.String()
	})

	logger.Info("PayoutService:RunPayout:Done", "instructors", len(results))
	return &dto.RunPayoutResponse{Message: dto.MessageCompleted, Results: results}, nil
}

func (s *PayoutService) groupByInstructor(ctx context.Context, bookings []bookingEntity.Booking) ([]instructorGroup, []dto.PayoutResult, error) {
	byInstructor := make(map[uuid.UUID][]bookingEntity.Booking)
	var order []uuid.UUID
	for _, b := range bookings {
		if b.InstructorID == nil {
			logger.Warn("PayoutService:RunPayout:BookingWithoutInstructor", "booking_id", b.ID)
			continue
		}
		id := *b.InstructorID
		if _, seen := byInstructor[id]; !seen {
			order = append(order, id)
		}
		byInstructor[id] = append(byInstructor[id], b)
	}
	if len(order) == 0 {
		return nil, nil, nil
	}

	instructors, err := s.repo.ListInstructors(ctx, order)
	if err != nil {
		return nil, nil, err
	}
	known := make(map[uuid.UUID]entity.Instructor, len(instructors))
	for _, in := range instructors {
		known[in.ID] = in
	}

	var groups []instructorGroup
	var skipped []dto.PayoutResult
	for _, id := range order {
		in, ok := known[id]
		if !ok || in.PayoutAccount() == "" {
			logger.Warn("PayoutService:RunPayout:NoPayoutAccount", "instructor_id", id)
			skipped = append(skipped, dto.PayoutResult{
				InstructorID: id,
				Status:       dto.ResultSkipped,
				Error:        "instructor has no payout account",
			})
			continue
		}
		groups = append(groups, instructorGroup{instructor: in, bookings: byInstructor[id]})
	}
	return groups, skipped, nil
}

func (s *PayoutService) processGroup(ctx context.Context, grp instructorGroup) dto.PayoutResult {
	instructorID := grp.instructor.ID
	res := dto.PayoutResult{InstructorID: instructorID}

	lockKey := "payout:lock:" + instructorID.String()
	token, err := s.locker.TryLock(ctx, lockKey, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockNotAcquired) {
			logger.Info("PayoutService:ProcessGroup:Locked", "instructor_id", instructorID)
			res.Status = dto.ResultSkipped
			res.Error = "payout already in progress"
			return res
		}
		logger.Error("PayoutService:ProcessGroup:LockError", "instructor_id", instructorID, "error", err)
		res.Status = dto.ResultFailed
		res.Error = err.Error()
		return res
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), lockKey, token); err != nil {
			logger.Warn("PayoutService:ProcessGroup:UnlockError", "instructor_id", instructorID, "error", err)
		}
	}()

	batchID := uuid.NewString()
	res.BatchID = batchID

	claimed, err := s.claim(ctx, batchID, grp.bookings)
	if err != nil {
		res.Status = dto.ResultFailed
		res.Error = err.Error()
		return res
	}
	if len(claimed) == 0 {
		res.Status = dto.ResultSkipped
		res.Error = "no bookings left to pay"
		return res
	}

	var gross int64
	ids := make([]uuid.UUID, 0, len(claimed))
	for _, b := range claimed {
		gross += b.BaseAmount()
		ids = append(ids, b.ID)
	}
	commission, net := utils.SplitCommission(gross, s.cfg.CommissionBps)
	res.GrossCents, res.CommissionCents, res.NetCents = gross, commission, net
	res.BookingIDs = ids

	if net <= 0 {
		logger.Warn("PayoutService:ProcessGroup:NothingOwed", "instructor_id", instructorID, "gross", gross)
		s.release(ctx, batchID)
		res.Status = dto.ResultSkipped
		res.Error = "net payout is zero"
		return res
	}

	history := &entity.PayoutHistory{
		BatchID:         batchID,
		InstructorID:    instructorID,
		AmountCents:     gross,
		CommissionCents: commission,
		NetAmountCents:  net,
		Currency:        s.cfg.Currency,
		TransferGroup:   "payout_" + batchID,
		IdempotencyKey:  idempotencyKey(instructorID, batchID, ids),
		Status:          entity.HistoryProcessing,
		BookingIDs:      toStringArray(ids),
	}
	if err := s.repo.CreateHistory(ctx, history); err != nil {
		s.release(ctx, batchID)
		res.Status = dto.ResultFailed
		res.Error = err.Error()
		return res
	}

	metadata := bookingMetadata(ids)
	metadata["instructor_id"] = instructorID.String()
	metadata["batch_id"] = batchID

	transfer, err := s.transfer(ctx, processor.TransferRequest{
		AmountCents:    net,
		Currency:       s.cfg.Currency,
		Destination:    grp.instructor.PayoutAccount(),
		TransferGroup:  history.TransferGroup,
		IdempotencyKey: history.IdempotencyKey,
		Metadata:       metadata,
	})
	if err != nil && !errors.Is(err, processor.ErrDeclined) {
		// The transfer may exist. Keep the bookings claimed so no later run
		// can pay them again; Reconcile settles the batch from the processor.
		logger.Warn("PayoutService:ProcessGroup:TransferUnconfirmed", "instructor_id", instructorID, "batch_id", batchID, "error", err)
		if noteErr := s.repo.NoteTransferError(context.WithoutCancel(ctx), batchID, err.Error()); noteErr != nil {
			logger.Error("PayoutService:ProcessGroup:NoteFailed", "batch_id", batchID, "error", noteErr)
		}
		res.Status = dto.ResultUnconfirmed
		res.Error = err.Error()
		return res
	}
	if err != nil {
		logger.Error("PayoutService:ProcessGroup:TransferFailed", "instructor_id", instructorID, "batch_id", batchID, "error", err)
		bg := context.WithoutCancel(ctx)
		_ = s.repo.MarkHistoryFailed(bg, batchID, err.Error())
		s.release(bg, batchID)
		s.notifier.NotifyInstructor(bg, instructorID, notificationEntity.TypePayoutFailed,
			"Payout failed",
			"We could not send your payout. It will be retried on the next run.",
			map[string]any{"batch_id": batchID, "amount_cents": net},
		)
		res.Status = dto.ResultFailed
		res.Error = err.Error()
		return res
	}
	res.TransferID = transfer.ID

	// Money has moved. From here on a failure must not release the bookings.
	bg := context.WithoutCancel(ctx)
	if err := s.repo.CompleteBatch(bg, batchID, transfer.ID, ids); err != nil {
		logger.Critical("PayoutService:ProcessGroup:SettleFailed",
			"instructor_id", instructorID,
			"batch_id", batchID,
			"transfer_id", transfer.ID,
			"net_cents", net,
			"error", err,
		)
		if markErr := s.repo.MarkReconciliationRequired(bg, batchID, transfer.ID, err.Error()); markErr != nil {
			logger.Critical("PayoutService:ProcessGroup:FlagFailed", "batch_id", batchID, "transfer_id", transfer.ID, "error", markErr)
		}
		s.notifier.NotifyAdmins(bg, notificationEntity.TypeReconciliationRequired,
			"Payout needs reconciliation",
			fmt.Sprintf("Transfer %s succeeded but the payout records for batch %s could not be updated.", transfer.ID, batchID),
			map[string]any{"batch_id": batchID, "transfer_id": transfer.ID, "instructor_id": instructorID.String()},
		)
		res.Status = dto.ResultReconciliationRequired
		res.Error = err.Error()
		return res
	}

	s.notifier.NotifyInstructor(bg, instructorID, notificationEntity.TypePayoutSent,
		"Payout sent",
		fmt.Sprintf("A payout of %s %s is on its way.", formatCents(net), strings.ToUpper(s.cfg.Currency)),
		map[string]any{"batch_id": batchID, "transfer_id": transfer.ID, "amount_cents": net},
	)
	logger.Info("PayoutService:ProcessGroup:Paid",
		"instructor_id", instructorID,
		"batch_id", batchID,
		"transfer_id", transfer.ID,
		"bookings", len(ids),
		"net_cents", net,
	)
	res.Status = dto.ResultCompleted
	return res
}

// transfer repeats an unanswered request with identical parameters, which the
// idempotency key turns into a replay of the first outcome.
func (s *PayoutService) transfer(ctx context.Context, req processor.TransferRequest) (*processor.Transfer, error) {
	var err error
	for attempt := 1; attempt <= transferAttempts; attempt++ {
		var t *processor.Transfer
		t, err = s.processor.CreateTransfer(ctx, req)
		if err == nil {
			return t, nil
		}
		if errors.Is(err, processor.ErrDeclined) || ctx.Err() != nil {
			return nil, err
		}
		logger.Warn("PayoutService:Transfer:Retry", "idempotency_key", req.IdempotencyKey, "attempt", attempt, "error", err)
	}
	return nil, err
}

// claim wins the bookings for batchID and then drops any row that stopped
// being payable between the read and the claim, such as a refund.
func (s *PayoutService) claim(ctx context.Context, batchID string, bookings []bookingEntity.Booking) ([]bookingEntity.Booking, error) {
	ids := make([]uuid.UUID, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.ID)
	}
	if _, err := s.repo.ClaimBookings(ctx, ids, batchID); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListBatchBookings(ctx, batchID)
	if err != nil {
		s.release(ctx, batchID)
		return nil, err
	}

	var kept []bookingEntity.Booking
	var dropped []uuid.UUID
	for _, b := range rows {
		if b.Status == bookingEntity.StatusCompleted {
			kept = append(kept, b)
		} else {
			dropped = append(dropped, b.ID)
		}
	}
	if len(dropped) > 0 {
		logger.Warn("PayoutService:Claim:DroppedIneligible", "batch_id", batchID, "booking_ids", dropped)
		if err := s.repo.ReleaseBookings(ctx, batchID, dropped); err != nil {
			s.release(ctx, batchID)
			return nil, err
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].ID.String() < kept[j].ID.String() })
	return kept, nil
}

func (s *PayoutService) release(ctx context.Context, batchID string) {
	if err := s.repo.ReleaseBookings(context.WithoutCancel(ctx), batchID, nil); err != nil {
		logger.Error("PayoutService:Release:Error", "batch_id", batchID, "error", err)
	}
}

func (s *PayoutService) ListHistory(ctx context.Context, instructorID *uuid.UUID, limit int) ([]entity.PayoutHistory, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := s.repo.ListHistory(ctx, instructorID, limit)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load payout history", err)
	}
	return rows, nil
}

// idempotencyKey covers one batch. Every parameter sent under it is fixed
// when the batch is created, so retries inside the batch replay the first
// answer. A new batch only exists once the processor declined the old one or
// reconciliation found no transfer for it.
func idempotencyKey(instructorID uuid.UUID, batchID string, ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(instructorID.String() + ":" + batchID + ":" + strings.Join(parts, ",")))
	return "payout_" + hex.EncodeToString(sum[:])
}

// bookingMetadata spreads the booking ids over as many metadata keys as the
// processor's per-value limit requires.
func bookingMetadata(ids []uuid.UUID) map[string]string {
	md := map[string]string{"booking_count": fmt.Sprint(len(ids))}
	key := "booking_ids"
	var cur strings.Builder
	n := 1
	for _, id := range ids {
		s := id.String()
		if cur.Len() > 0 && cur.Len()+1+len(s) > maxMetadataValue {
			md[key] = cur.String()
			n++
			key = fmt.Sprintf("booking_ids_%d", n)
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(',')
		}
		cur.WriteString(s)
	}
	if cur.Len() > 0 {
		md[key] = cur.String()
	}
	return md
}

func toStringArray(ids []uuid.UUID) pq.StringArray {
	out := make(pq.StringArray, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func formatCents(c int64) string {
	return fmt.Sprintf("%d.%02d", c/100, c%100)
}
