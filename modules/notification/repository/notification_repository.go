package repository

import (
	"context"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/database"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/params"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/notification/entity"

	"github.com/google/uuid"
)

const table = "notifications"

type NotificationRepository struct {
	store *database.Store
}

func NewNotificationRepository(store *database.Store) *NotificationRepository {
	return &NotificationRepository{store: store}
}

func inbox(r entity.Recipient) database.Filter {
	return database.Filter{
		database.Eq("recipient_type", r.Type),
		database.Eq("recipient_id", r.ID),
	}
}

func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	row := database.Row{
		"recipient_type": n.RecipientType,
		"recipient_id":   n.RecipientID,
		"title":          n.Title,
		"message":        n.Message,
		"type":           n.Type,
		"data":           n.Data,
		"is_read":        n.IsRead,
	}
	if err := r.store.Insert(ctx, table, row, n); err != nil {
		logger.Error("NotificationRepository:Create:Error", "error", err)
		return err
	}
	return nil
}

func (r *NotificationRepository) GetByRecipient(ctx context.Context, rcpt entity.Recipient, params params.QueryParams) (*entity.PaginatedNotificationEntity, error) {
	totalItems, err := r.store.Count(ctx, table, inbox(rcpt))
	if err != nil {
		logger.Error("NotificationRepository:GetByRecipient:Count:Error", "error", err)
		return nil, err
	}

	notifications := []entity.Notification{}
	err = r.store.Select(ctx, &notifications, table, inbox(rcpt),
		database.OrderBy("created_at", true),
		database.Limit(params.PageSize),
		database.Offset(params.Offset()),
	)
	if err != nil {
		logger.Error("NotificationRepository:GetByRecipient:Select:Error", "error", err)
		return nil, err
	}

	return &entity.PaginatedNotificationEntity{
		Items:      notifications,
		TotalItems: totalItems,
		PageNumber: params.PageNumber,
		PageSize:   params.PageSize,
	}, nil
}

func (r *NotificationRepository) MarkAsRead(ctx context.Context, rcpt entity.Recipient, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	filter := append(inbox(rcpt), database.In("id", ids))
	if _, err := r.store.Update(ctx, table, filter, database.Row{"is_read": true, "updated_at": time.Now()}); err != nil {
		logger.Error("NotificationRepository:MarkAsRead:Error", "error", err)
		return err
	}
	return nil
}

func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, rcpt entity.Recipient) error {
	filter := append(inbox(rcpt), database.Eq("is_read", false))
	if _, err := r.store.Update(ctx, table, filter, database.Row{"is_read": true, "updated_at": time.Now()}); err != nil {
		logger.Error("NotificationRepository:MarkAllAsRead:Error", "error", err)
		return err
	}
	return nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, rcpt entity.Recipient) (int, error) {
	count, err := r.store.Count(ctx, table, append(inbox(rcpt), database.Eq("is_read", false)))
	if err != nil {
		logger.Error("NotificationRepository:CountUnread:Error", "error", err)
		return 0, err
	}
	return count, nil
}
