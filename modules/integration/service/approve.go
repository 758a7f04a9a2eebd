package service

import (
	"context"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/constants"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/errors"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/utils"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/repository"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// ApproveEventMapping resolves a reviewed event. With createNew it builds a
// class and a session from the event; otherwise it links the event to
// classID, which must belong to the same studio, and to scheduleID when it is
// one of that class's sessions. Only one approval of an event wins.
func (s *IntegrationService) ApproveEventMapping(ctx context.Context, eventID uuid.UUID, classID, scheduleID *uuid.UUID, createNew bool) (*entity.ImportedEvent, error) {
	ev, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load event", err)
	}
	if ev == nil {
		return nil, errors.NewAppError(errors.ErrNotFound, "Event not found", nil)
	}
	if ev.MigrationStatus == entity.MigrationImported {
		return nil, alreadyImported()
	}

	if createNew {
		class := classFromEvent(ev)
		schedule, err := s.repo.CreateClassFromEvent(ctx, ev, class)
		if errors.Is(err, repository.ErrEventAlreadyImported) {
			return nil, alreadyImported()
		}
		if err != nil {
			return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to create class from event", err)
		}
		ev.MappedClassID = &class.ID
		ev.MappedScheduleID = &schedule.ID
		ev.MigrationStatus = entity.MigrationImported
		logger.Info("IntegrationService:ApproveEventMapping:ClassCreated", "event_id", ev.ID, "class_id", class.ID)
		return ev, nil
	}

	if classID == nil {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "class_id is required unless create_new is set", nil)
	}
	class, err := s.repo.GetClass(ctx, *classID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load class", err)
	}
	if class == nil || class.StudioID != ev.StudioID {
		return nil, errors.NewAppError(errors.ErrNotFound, "Class not found", nil)
	}
	if scheduleID != nil {
		schedule, err := s.repo.GetSchedule(ctx, *scheduleID)
		if err != nil {
			return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load schedule", err)
		}
		if schedule == nil || schedule.ClassID != class.ID {
			return nil, errors.NewAppError(errors.ErrNotFound, "Schedule not found", nil)
		}
	}
	err = s.repo.ApproveMapping(ctx, ev.ID, class.ID, scheduleID)
	if errors.Is(err, repository.ErrEventAlreadyImported) {
		return nil, alreadyImported()
	}
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to approve mapping", err)
	}
	ev.MappedClassID = &class.ID
	ev.MappedScheduleID = scheduleID
	ev.MigrationStatus = entity.MigrationImported
	logger.Info("IntegrationService:ApproveEventMapping:Linked", "event_id", ev.ID, "class_id", class.ID)
	return ev, nil
}

func alreadyImported() error {
	return errors.NewAppError(errors.ErrAlreadyExists, "Event already imported", nil)
}

func classFromEvent(ev *entity.ImportedEvent) *entity.Class {
	capacity := constants.DefaultClassCapacity
	if ev.MaxParticipants != nil && *ev.MaxParticipants > 0 {
		capacity = *ev.MaxParticipants
	}
	var price int64
	if ev.PriceCents != nil {
		price = *ev.PriceCents
	}
	return &entity.Class{
		StudioID:        ev.StudioID,
		Name:            ev.Title,
		Slug:            slug.Make(ev.Title + " " + utils.GenerateID()),
		Description:     ev.Description,
		Category:        ev.Category,
		DifficultyLevel: ev.SkillLevel,
		DurationMinutes: ev.DurationMinutes(),
		MaxParticipants: capacity,
		PriceCents:      price,
		IsActive:        true,
	}
}
