package dto

import (
	"github.com/google/uuid"
)

type MarkAsReadRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1"`
}

type CreateNotificationRequest struct {
	RecipientType string         `json:"recipient_type"`
	RecipientID   *uuid.UUID     `json:"recipient_id"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Type          string         `json:"type"`
	Data          map[string]any `json:"data"`
}
