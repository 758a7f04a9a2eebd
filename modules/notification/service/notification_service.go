package service

import (
	"context"

	coreEntity "github.com/Chromeox/hobbyist-web-partner-sub014/core/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/params"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/notification/dto"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/notification/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/notification/repository"

	"github.com/google/uuid"
)

type NotificationService struct {
	repo *repository.NotificationRepository
}

func NewNotificationService(repo *repository.NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

func (s *NotificationService) Create(ctx context.Context, req *dto.CreateNotificationRequest) error {
	notif := &entity.Notification{
		RecipientType: req.RecipientType,
		RecipientID:   req.RecipientID,
		Title:         req.Title,
		Message:       req.Message,
		Type:          req.Type,
		Data:          coreEntity.JSONB(req.Data),
		IsRead:        false,
	}
	return s.repo.Create(ctx, notif)
}

// NotifyAdmins, NotifyStudio and NotifyInstructor are fire-and-forget: a
// failed insert is logged and never fails the caller's operation.
func (s *NotificationService) NotifyAdmins(ctx context.Context, typ, title, message string, data map[string]any) {
	s.notify(ctx, &dto.CreateNotificationRequest{
		RecipientType: entity.RecipientAdmin,
		Title:         title,
		Message:       message,
		Type:          typ,
		Data:          data,
	})
}

func (s *NotificationService) NotifyStudio(ctx context.Context, studioID uuid.UUID, typ, title, message string, data map[string]any) {
	s.notify(ctx, &dto.CreateNotificationRequest{
		RecipientType: entity.RecipientStudio,
		RecipientID:   &studioID,
		Title:         title,
		Message:       message,
		Type:          typ,
		Data:          data,
	})
}

func (s *NotificationService) NotifyInstructor(ctx context.Context, instructorID uuid.UUID, typ, title, message string, data map[string]any) {
	s.notify(ctx, &dto.CreateNotificationRequest{
		RecipientType: entity.RecipientInstructor,
		RecipientID:   &instructorID,
		Title:         title,
		Message:       message,
		Type:          typ,
		Data:          data,
	})
}

func (s *NotificationService) notify(ctx context.Context, req *dto.CreateNotificationRequest) {
	if err := s.Create(context.WithoutCancel(ctx), req); err != nil {
		logger.Error("NotificationService:Notify:Error",
			"recipient_type", req.RecipientType,
			"type", req.Type,
			"error", err,
		)
	}
}

func (s *NotificationService) GetMyNotifications(ctx context.Context, rcpt entity.Recipient, queryParams params.QueryParams) (*entity.PaginatedNotificationEntity, error) {
	return s.repo.GetByRecipient(ctx, rcpt, queryParams)
}

func (s *NotificationService) MarkAsRead(ctx context.Context, rcpt entity.Recipient, ids []uuid.UUID) error {
	return s.repo.MarkAsRead(ctx, rcpt, ids)
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, rcpt entity.Recipient) error {
	return s.repo.MarkAllAsRead(ctx, rcpt)
}

func (s *NotificationService) CountUnread(ctx context.Context, rcpt entity.Recipient) (int, error) {
	return s.repo.CountUnread(ctx, rcpt)
}
