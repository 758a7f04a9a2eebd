package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/database"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/entity"

	"github.com/google/uuid"
)

const (
	integrationsTable = "calendar_integrations"
	eventsTable       = "imported_events"
	classesTable      = "classes"
	schedulesTable    = "class_schedules"
	instructorsTable  = "instructors"

	upsertChunk = 200
)

// ErrEventAlreadyImported is returned when an approval finds the event
// already resolved by another writer.
var ErrEventAlreadyImported = errors.New("imported event already resolved")

type IntegrationRepository interface {
	Create(ctx context.Context, in *entity.CalendarIntegration) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarIntegration, error)
	// ListByStudio returns a studio's integrations. With syncableOnly it
	// skips disabled and paused ones.
	ListByStudio(ctx context.Context, studioID uuid.UUID, syncableOnly bool) ([]entity.CalendarIntegration, error)
	ListSyncableStudioIDs(ctx context.Context) ([]uuid.UUID, error)
	UpdateSyncStatus(ctx context.Context, id uuid.UUID, status string, message *string, syncedAt *time.Time) error
	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time) error
	// Delete removes the integration and its imported events in one
	// transaction, events first.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	ListEventsByExternalIDs(ctx context.Context, integrationID uuid.UUID, externalIDs []string) ([]entity.ImportedEvent, error)
	UpsertEvents(ctx context.Context, events []entity.ImportedEvent) error
	GetEvent(ctx context.Context, id uuid.UUID) (*entity.ImportedEvent, error)
	ListEventsNeedingReview(ctx context.Context, studioID uuid.UUID) ([]entity.ImportedEvent, error)
	CountEvents(ctx context.Context, studioID uuid.UUID, status string) (int, error)
	// ApproveMapping links the event to an existing class and marks it
	// imported. It fails with ErrEventAlreadyImported if the event already is.
	ApproveMapping(ctx context.Context, eventID, classID uuid.UUID, scheduleID *uuid.UUID) error
	// CreateClassFromEvent creates a class and one schedule row from the
	// event and links both to it in one transaction. Nothing is kept when the
	// event turns out to be imported already.
	CreateClassFromEvent(ctx context.Context, event *entity.ImportedEvent, class *entity.Class) (*entity.ClassSchedule, error)

	GetClass(ctx context.Context, id uuid.UUID) (*entity.Class, error)
	GetSchedule(ctx context.Context, id uuid.UUID) (*entity.ClassSchedule, error)
	ListClasses(ctx context.Context, studioID uuid.UUID) ([]entity.Class, error)
	ListSchedules(ctx context.Context, classIDs []uuid.UUID, from, to time.Time) ([]entity.ClassSchedule, error)
	ListInstructorContacts(ctx context.Context, ids []uuid.UUID) ([]entity.InstructorContact, error)
}

type integrationRepository struct {
	store *database.Store
}

func NewIntegrationRepository(store *database.Store) IntegrationRepository {
	return &integrationRepository{store: store}
}

func (r *integrationRepository) Create(ctx context.Context, in *entity.CalendarIntegration) error {
	row := database.Row{
		"studio_id":           in.StudioID,
		"provider":            in.Provider,
		"provider_account_id": in.ProviderAccountID,
		"access_token":        in.AccessToken,
		"refresh_token":       in.RefreshToken,
		"token_expires_at":    in.TokenExpiresAt,
		"sync_enabled":        in.SyncEnabled,
		"sync_status":         in.SyncStatus,
		"settings":            in.Settings,
	}
	if err := r.store.Insert(ctx, integrationsTable, row, in); err != nil {
		logger.Error("IntegrationRepository:Create:Error", "studio_id", in.StudioID, "provider", in.Provider, "error", err)
		return err
	}
	return nil
}

func (r *integrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarIntegration, error) {
	var in entity.CalendarIntegration
	if err := r.store.Get(ctx, &in, integrationsTable, database.Filter{database.Eq("id", id)}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		logger.Error("IntegrationRepository:GetByID:Error", "id", id, "error", err)
		return nil, err
	}
	return &in, nil
}

func (r *integrationRepository) ListByStudio(ctx context.Context, studioID uuid.UUID, syncableOnly bool) ([]entity.CalendarIntegration, error) {
	filter := database.Filter{database.Eq("studio_id", studioID)}
	if syncableOnly {
		filter = append(filter,
			database.Eq("sync_enabled", true),
			database.Ne("sync_status", entity.SyncPaused),
		)
	}
	var rows []entity.CalendarIntegration
	if err := r.store.Select(ctx, &rows, integrationsTable, filter, database.OrderBy("created_at", false)); err != nil {
		logger.Error("IntegrationRepository:ListByStudio:Error", "studio_id", studioID, "error", err)
		return nil, err
	}
	return rows, nil
}

func (r *integrationRepository) ListSyncableStudioIDs(ctx context.Context) ([]uuid.UUID, error) {
	var rows []struct {
		StudioID uuid.UUID `db:"studio_id"`
	}
	err := r.store.Select(ctx, &rows, integrationsTable,
		database.Filter{
			database.Eq("sync_enabled", true),
			database.NotIn("sync_status", []string{entity.SyncPaused, entity.SyncExpired}),
		},
		database.Columns("studio_id"),
		database.OrderBy("studio_id", false),
	)
	if err != nil {
		logger.Error("IntegrationRepository:ListSyncableStudioIDs:Error", err)
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, len(rows))
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		if !seen[row.StudioID] {
			seen[row.StudioID] = true
			ids = append(ids, row.StudioID)
		}
	}
	return ids, nil
}

func (r *integrationRepository) UpdateSyncStatus(ctx context.Context, id uuid.UUID, status string, message *string, syncedAt *time.Time) error {
	patch := database.Row{
		"sync_status":   status,
		"error_message": message,
		"updated_at":    time.Now(),
	}
	if syncedAt != nil {
		patch["last_sync_at"] = *syncedAt
	}
	if _, err := r.store.Update(ctx, integrationsTable, database.Filter{database.Eq("id", id)}, patch); err != nil {
		logger.Error("IntegrationRepository:UpdateSyncStatus:Error", "id", id, "status", status, "error", err)
		return err
	}
	return nil
}

func (r *integrationRepository) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time) error {
	_, err := r.store.Update(ctx, integrationsTable, database.Filter{database.Eq("id", id)}, database.Row{
		"access_token":     accessToken,
		"refresh_token":    refreshToken,
		"token_expires_at": expiresAt,
		"updated_at":       time.Now(),
	})
	if err != nil {
		logger.Error("IntegrationRepository:UpdateTokens:Error", "id", id, "error", err)
	}
	return err
}

func (r *integrationRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	var deleted int64
	err := r.store.WithTx(ctx, func(tx *database.Store) error {
		if _, err := tx.Delete(ctx, eventsTable, database.Filter{database.Eq("integration_id", id)}); err != nil {
			return err
		}
		n, err := tx.Delete(ctx, integrationsTable, database.Filter{database.Eq("id", id)})
		deleted = n
		return err
	})
	if err != nil {
		logger.Error("IntegrationRepository:Delete:Error", "id", id, "error", err)
		return false, err
	}
	return deleted > 0, nil
}

func (r *integrationRepository) ListEventsByExternalIDs(ctx context.Context, integrationID uuid.UUID, externalIDs []string) ([]entity.ImportedEvent, error) {
	var rows []entity.ImportedEvent
	err := r.store.Select(ctx, &rows, eventsTable, database.Filter{
		database.Eq("integration_id", integrationID),
		database.In("external_id", externalIDs),
	})
	if err != nil {
		logger.Error("IntegrationRepository:ListEventsByExternalIDs:Error", "integration_id", integrationID, "error", err)
		return nil, err
	}
	return rows, nil
}

// UpsertEvents writes events keyed on (integration_id, external_id). A stored
// row that is imported or pending keeps its status and mapped ids, whatever
// the caller read before, so an approval racing a re-import survives it.
func (r *integrationRepository) UpsertEvents(ctx context.Context, events []entity.ImportedEvent) error {
	if len(events) == 0 {
		return nil
	}
	now := time.Now()
	return r.store.WithTx(ctx, func(tx *database.Store) error {
		for start := 0; start < len(events); start += upsertChunk {
			end := min(start+upsertChunk, len(events))
			rows := make([]database.Row, 0, end-start)
			for i := start; i < end; i++ {
				rows = append(rows, eventRow(&events[i], now))
			}
			if _, err := tx.Upsert(ctx, eventsTable, rows, []string{"integration_id", "external_id"}, keepResolved); err != nil {
				logger.Error("IntegrationRepository:UpsertEvents:Error", "count", len(rows), "error", err)
				return err
			}
		}
		return nil
	})
}

var keepResolved = database.KeepWhen("migration_status",
	[]any{entity.MigrationImported, entity.MigrationPending},
	"migration_status", "mapped_class_id", "mapped_schedule_id",
)

func eventRow(e *entity.ImportedEvent, now time.Time) database.Row {
	return database.Row{
		"integration_id":       e.IntegrationID,
		"external_id":          e.ExternalID,
		"provider":             e.Provider,
		"studio_id":            e.StudioID,
		"title":                e.Title,
		"description":          e.Description,
		"start_time":           e.StartTime,
		"end_time":             e.EndTime,
		"all_day":              e.AllDay,
		"instructor_name":      e.InstructorName,
		"instructor_email":     e.InstructorEmail,
		"location":             e.Location,
		"room":                 e.Room,
		"category":             e.Category,
		"skill_level":          e.SkillLevel,
		"max_participants":     e.MaxParticipants,
		"current_participants": e.CurrentParticipants,
		"price_cents":          e.PriceCents,
		"material_fee_cents":   e.MaterialFeeCents,
		"migration_status":     e.MigrationStatus,
		"confidence_score":     e.ConfidenceScore,
		"mapping_reasons":      e.MappingReasons,
		"mapped_class_id":      e.MappedClassID,
		"mapped_schedule_id":   e.MappedScheduleID,
		"raw_data":             e.RawData,
		"updated_at":           now,
	}
}

func (r *integrationRepository) GetEvent(ctx context.Context, id uuid.UUID) (*entity.ImportedEvent, error) {
	var ev entity.ImportedEvent
	if err := r.store.Get(ctx, &ev, eventsTable, database.Filter{database.Eq("id", id)}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		logger.Error("IntegrationRepository:GetEvent:Error", "id", id, "error", err)
		return nil, err
	}
	return &ev, nil
}

func (r *integrationRepository) ListEventsNeedingReview(ctx context.Context, studioID uuid.UUID) ([]entity.ImportedEvent, error) {
	var rows []entity.ImportedEvent
	err := r.store.Select(ctx, &rows, eventsTable,
		database.Filter{
			database.Eq("studio_id", studioID),
			database.Eq("migration_status", entity.MigrationPending),
		},
		database.OrderBy("start_time", false),
	)
	if err != nil {
		logger.Error("IntegrationRepository:ListEventsNeedingReview:Error", "studio_id", studioID, "error", err)
		return nil, err
	}
	return rows, nil
}

func (r *integrationRepository) CountEvents(ctx context.Context, studioID uuid.UUID, status string) (int, error) {
	n, err := r.store.Count(ctx, eventsTable, database.Filter{
		database.Eq("studio_id", studioID),
		database.Eq("migration_status", status),
	})
	if err != nil {
		logger.Error("IntegrationRepository:CountEvents:Error", "studio_id", studioID, "error", err)
	}
	return n, err
}

func (r *integrationRepository) ApproveMapping(ctx context.Context, eventID, classID uuid.UUID, scheduleID *uuid.UUID) error {
	n, err := r.store.Update(ctx, eventsTable, unresolvedEvent(eventID), database.Row{
		"mapped_class_id":    classID,
		"mapped_schedule_id": scheduleID,
		"migration_status":   entity.MigrationImported,
		"updated_at":         time.Now(),
	})
	if err != nil {
		logger.Error("IntegrationRepository:ApproveMapping:Error", "event_id", eventID, "error", err)
		return err
	}
	if n == 0 {
		return ErrEventAlreadyImported
	}
	return nil
}

func unresolvedEvent(id uuid.UUID) database.Filter {
	return database.Filter{
		database.Eq("id", id),
		database.Ne("migration_status", entity.MigrationImported),
	}
}

func (r *integrationRepository) CreateClassFromEvent(ctx context.Context, event *entity.ImportedEvent, class *entity.Class) (*entity.ClassSchedule, error) {
	var schedule entity.ClassSchedule
	err := r.store.WithTx(ctx, func(tx *database.Store) error {
		err := tx.Insert(ctx, classesTable, database.Row{
			"studio_id":        class.StudioID,
			"instructor_id":    class.InstructorID,
			"name":             class.Name,
			"slug":             class.Slug,
			"description":      class.Description,
			"category":         class.Category,
			"difficulty_level": class.DifficultyLevel,
			"duration_minutes": class.DurationMinutes,
			"max_participants": class.MaxParticipants,
			"price_cents":      class.PriceCents,
			"is_active":        class.IsActive,
		}, class)
		if err != nil {
			return err
		}

		err = tx.Insert(ctx, schedulesTable, database.Row{
			"class_id":        class.ID,
			"start_time":      event.StartTime,
			"end_time":        event.EndTime,
			"spots_available": class.MaxParticipants,
			"spots_total":     class.MaxParticipants,
		}, &schedule)
		if err != nil {
			return err
		}

		n, err := tx.Update(ctx, eventsTable, unresolvedEvent(event.ID), database.Row{
			"mapped_class_id":    class.ID,
			"mapped_schedule_id": schedule.ID,
			"migration_status":   entity.MigrationImported,
			"updated_at":         time.Now(),
		})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrEventAlreadyImported
		}
		return nil
	})
	if errors.Is(err, ErrEventAlreadyImported) {
		return nil, err
	}
	if err != nil {
		logger.Error("IntegrationRepository:CreateClassFromEvent:Error", "event_id", event.ID, "error", err)
		return nil, err
	}
	return &schedule, nil
}

func (r *integrationRepository) GetClass(ctx context.Context, id uuid.UUID) (*entity.Class, error) {
	var c entity.Class
	if err := r.store.Get(ctx, &c, classesTable, database.Filter{database.Eq("id", id)}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		logger.Error("IntegrationRepository:GetClass:Error", "id", id, "error", err)
		return nil, err
	}
	return &c, nil
}

func (r *integrationRepository) GetSchedule(ctx context.Context, id uuid.UUID) (*entity.ClassSchedule, error) {
	var sc entity.ClassSchedule
	if err := r.store.Get(ctx, &sc, schedulesTable, database.Filter{database.Eq("id", id)}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		logger.Error("IntegrationRepository:GetSchedule:Error", "id", id, "error", err)
		return nil, err
	}
	return &sc, nil
}

func (r *integrationRepository) ListClasses(ctx context.Context, studioID uuid.UUID) ([]entity.Class, error) {
	var rows []entity.Class
	err := r.store.Select(ctx, &rows, classesTable, database.Filter{
		database.Eq("studio_id", studioID),
		database.Eq("is_active", true),
	})
	if err != nil {
		logger.Error("IntegrationRepository:ListClasses:Error", "studio_id", studioID, "error", err)
		return nil, err
	}
	return rows, nil
}

func (r *integrationRepository) ListSchedules(ctx context.Context, classIDs []uuid.UUID, from, to time.Time) ([]entity.ClassSchedule, error) {
	var rows []entity.ClassSchedule
	err := r.store.Select(ctx, &rows, schedulesTable,
		database.Filter{
			database.In("class_id", classIDs),
			database.Lt("start_time", to),
			database.Gt("end_time", from),
		},
		database.OrderBy("start_time", false),
	)
	if err != nil {
		logger.Error("IntegrationRepository:ListSchedules:Error", err)
		return nil, err
	}
	return rows, nil
}

func (r *integrationRepository) ListInstructorContacts(ctx context.Context, ids []uuid.UUID) ([]entity.InstructorContact, error) {
	var rows []entity.InstructorContact
	err := r.store.Select(ctx, &rows, instructorsTable,
		database.Filter{database.In("id", ids)},
		database.Columns("id", "email"),
	)
	if err != nil {
		logger.Error("IntegrationRepository:ListInstructorContacts:Error", err)
		return nil, err
	}
	return rows, nil
}
