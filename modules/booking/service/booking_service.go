package service

import (
	"context"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/errors"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/utils"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/booking/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/booking/repository"

	"github.com/google/uuid"
)

type BookingService interface {
	GetBooking(ctx context.Context, id uuid.UUID) (*entity.Booking, *errors.AppError)
	ConfirmBooking(ctx context.Context, id uuid.UUID, paymentIntentID string) (*entity.Booking, *errors.AppError)
	CompleteBooking(ctx context.Context, id uuid.UUID) (*entity.Booking, *errors.AppError)
	CancelBooking(ctx context.Context, id uuid.UUID) *errors.AppError
	MarkRefunded(ctx context.Context, id uuid.UUID) *errors.AppError
}

type bookingService struct {
	repo          repository.BookingRepository
	commissionBps int64
}

func NewBookingService(repo repository.BookingRepository, commissionBps int64) BookingService {
	return &bookingService{repo: repo, commissionBps: commissionBps}
}

func (s *bookingService) GetBooking(ctx context.Context, id uuid.UUID) (*entity.Booking, *errors.AppError) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load booking", err)
	}
	if b == nil {
		return nil, errors.NewAppError(errors.ErrNotFound, "Booking not found", nil)
	}
	return b, nil
}

// ConfirmBooking computes the commission split exactly once. Replayed
// payment events for an already confirmed booking return it unchanged.
func (s *bookingService) ConfirmBooking(ctx context.Context, id uuid.UUID, paymentIntentID string) (*entity.Booking, *errors.AppError) {
	b, appErr := s.GetBooking(ctx, id)
	if appErr != nil {
		return nil, appErr
	}
	if b.CommissionCents != nil {
		logger.Info("BookingService:ConfirmBooking:AlreadyConfirmed", "booking_id", id, "status", b.Status)
		return b, nil
	}
	if b.Status != entity.StatusPending {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "Booking is not awaiting confirmation", nil)
	}

	commission, payout := utils.SplitCommission(b.BaseAmount(), s.commissionBps)
	ok, err := s.repo.Confirm(ctx, id, commission, payout, paymentIntentID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to confirm booking", err)
	}
	if !ok {
		// lost a race with another confirmation; report whatever won
		return s.GetBooking(ctx, id)
	}

	logger.Info("BookingService:ConfirmBooking:Success",
		"booking_id", id,
		"gross", b.BaseAmount(),
		"commission", commission,
		"instructor_payout", payout,
	)
	return s.GetBooking(ctx, id)
}

func (s *bookingService) CompleteBooking(ctx context.Context, id uuid.UUID) (*entity.Booking, *errors.AppError) {
	ok, err := s.repo.Transition(ctx, id, []string{entity.StatusConfirmed}, entity.StatusCompleted, "")
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to complete booking", err)
	}
	if !ok {
		b, appErr := s.GetBooking(ctx, id)
		if appErr != nil {
			return nil, appErr
		}
		if b.Status == entity.StatusCompleted {
			return b, nil
		}
		return nil, errors.NewAppError(errors.ErrInvalidInput, "Only confirmed bookings can be completed", nil)
	}
	return s.GetBooking(ctx, id)
}

func (s *bookingService) CancelBooking(ctx context.Context, id uuid.UUID) *errors.AppError {
	ok, err := s.repo.Transition(ctx, id, []string{entity.StatusPending}, entity.StatusCancelled, entity.PaymentStatusFailed)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "Failed to cancel booking", err)
	}
	if !ok {
		logger.Warn("BookingService:CancelBooking:NotPending", "booking_id", id)
	}
	return nil
}

// MarkRefunded takes a booking out of payout eligibility. The stored split
// is left as it was.
func (s *bookingService) MarkRefunded(ctx context.Context, id uuid.UUID) *errors.AppError {
	b, appErr := s.GetBooking(ctx, id)
	if appErr != nil {
		return appErr
	}
	if b.Status == entity.StatusRefunded {
		return nil
	}

	switch b.PayoutStatus {
	case entity.PayoutProcessing:
		logger.Warn("BookingService:MarkRefunded:PayoutInFlight", "booking_id", id, "batch_id", b.PayoutBatchID)
	case entity.PayoutPaid:
		logger.Warn("BookingService:MarkRefunded:AlreadyPaidOut", "booking_id", id, "batch_id", b.PayoutBatchID)
	}

	from := []string{entity.StatusPending, entity.StatusConfirmed, entity.StatusCompleted, entity.StatusNoShow}
	if _, err := s.repo.Transition(ctx, id, from, entity.StatusRefunded, entity.PaymentStatusRefunded); err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "Failed to mark booking refunded", err)
	}
	return nil
}
