package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	coreEntity "github.com/Chromeox/hobbyist-web-partner-sub014/core/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/errors"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/utils"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/dto"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/mapper"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/provider"
	notificationEntity "github.com/Chromeox/hobbyist-web-partner-sub014/modules/notification/entity"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

// candidateSlack widens the schedule lookup so weekly sessions just outside
// the import window still count as same-slot matches.
const candidateSlack = 7 * 24 * time.Hour

// ImportEvents pulls the integration's events for [start, end], suggests a
// class for each and stores them. A provider failure writes nothing and
// leaves the integration in the error state.
func (s *IntegrationService) ImportEvents(ctx context.Context, integrationID uuid.UUID, start, end time.Time) (*dto.ImportResult, error) {
	if end.Before(start) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "start_date must not be after end_date", nil)
	}
	in, err := s.GetIntegration(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if in.SyncStatus == entity.SyncExpired {
		return nil, errors.NewAppError(errors.ErrIntegrationExpired, "Integration credentials expired, reconnect the calendar", nil)
	}

	logger.Info("IntegrationService:ImportEvents:Start", "integration_id", in.ID, "provider", in.Provider, "start", start, "end", end)

	events, err := s.fetch(ctx, in, provider.Window{Start: start, End: end})
	if err != nil {
		return nil, s.failSync(ctx, in, err)
	}

	candidates, err := s.candidates(ctx, in.StudioID, start.Add(-candidateSlack), end.Add(candidateSlack))
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load classes for mapping", err)
	}

	result := dto.NewImportResult()
	result.TotalEvents = len(events)

	valid := make([]provider.Event, 0, len(events))
	seen := make(map[string]bool, len(events))
	for i, ev := range events {
		switch {
		case ev.ExternalID == "":
			result.FailedImports++
			result.ErrorDetails = append(result.ErrorDetails, fmt.Sprintf("event %d (%q): missing external id", i, ev.Title))
		case ev.Start.IsZero() || ev.End.IsZero() || ev.End.Before(ev.Start):
			result.FailedImports++
			result.ErrorDetails = append(result.ErrorDetails, fmt.Sprintf("event %s: missing or invalid start/end time", ev.ExternalID))
		case seen[ev.ExternalID]:
			result.DuplicateEvents++
		default:
			seen[ev.ExternalID] = true
			valid = append(valid, ev)
		}
	}

	ids := make([]string, 0, len(valid))
	for _, ev := range valid {
		ids = append(ids, ev.ExternalID)
	}
	existing := map[string]*entity.ImportedEvent{}
	if len(ids) > 0 {
		rows, err := s.repo.ListEventsByExternalIDs(ctx, in.ID, ids)
		if err != nil {
			return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load previously imported events", err)
		}
		for i := range rows {
			existing[rows[i].ExternalID] = &rows[i]
		}
	}

	rows := make([]entity.ImportedEvent, 0, len(valid))
	suggestions := make([]mapper.Suggestion, 0, len(valid))
	for _, ev := range valid {
		row := s.normalize(in, ev)
		var sug mapper.Suggestion

		if prev, ok := existing[ev.ExternalID]; ok && prev.MigrationStatus != entity.MigrationPending {
			carryMapping(&row, prev)
			sug = mapper.Suggestion{ClassID: prev.MappedClassID, ScheduleID: prev.MappedScheduleID, Score: prev.ConfidenceScore, Reasons: prev.MappingReasons}
			if prev.MigrationStatus == entity.MigrationImported {
				result.DuplicateEvents++
			} else {
				result.SuccessfullyImported++
			}
		} else {
			sug = mapper.Suggest(subject(&row), candidates, s.cfg.Thresholds)
			row.ConfidenceScore = sug.Score
			row.MappingReasons = pq.StringArray(sug.Reasons)
			// a pending event is never resolved by a later import
			if ok || sug.RequiresReview {
				row.MigrationStatus = entity.MigrationPending
				sug.ClassID, sug.ScheduleID, sug.RequiresReview = nil, nil, true
				result.RequiresReview++
			} else {
				row.MigrationStatus = entity.MigrationMapped
				row.MappedClassID = sug.ClassID
				row.MappedScheduleID = sug.ScheduleID
				result.SuccessfullyImported++
			}
		}
		rows = append(rows, row)
		suggestions = append(suggestions, sug)
	}

	if err := s.repo.UpsertEvents(ctx, rows); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to store imported events", err)
	}

	for i := range rows {
		result.MappingSuggestions = append(result.MappingSuggestions, dto.EventMapping{
			Event:                &rows[i],
			SuggestedClassID:     suggestions[i].ClassID,
			SuggestedScheduleID:  suggestions[i].ScheduleID,
			ConfidenceScore:      suggestions[i].Score,
			MappingReasons:       suggestions[i].Reasons,
			RequiresManualReview: rows[i].MigrationStatus == entity.MigrationPending,
		})
	}

	s.archive(ctx, in, events)

	now := s.now()
	if err := s.repo.UpdateSyncStatus(ctx, in.ID, entity.SyncActive, nil, &now); err != nil {
		logger.Error("IntegrationService:ImportEvents:StatusUpdateFailed", "integration_id", in.ID, "error", err)
	}
	if result.RequiresReview > 0 && s.notifier != nil {
		s.notifier.NotifyStudio(ctx, in.StudioID, notificationEntity.TypeEventsNeedReview,
			"Imported events need review",
			fmt.Sprintf("%d events from %s could not be matched to a class automatically", result.RequiresReview, in.Provider),
			map[string]any{"integration_id": in.ID.String(), "count": result.RequiresReview},
		)
	}

	logger.Info("IntegrationService:ImportEvents:Done",
		"integration_id", in.ID,
		"total", result.TotalEvents,
		"imported", result.SuccessfullyImported,
		"review", result.RequiresReview,
		"duplicates", result.DuplicateEvents,
		"failed", result.FailedImports,
	)
	return result, nil
}

func (s *IntegrationService) fetch(ctx context.Context, in *entity.CalendarIntegration, w provider.Window) ([]provider.Event, error) {
	sess, err := s.session(in)
	if err != nil {
		return nil, &provider.Error{Provider: in.Provider, Kind: provider.KindConfig, Err: fmt.Errorf("stored credentials unreadable: %w", err)}
	}
	p, err := s.factory.Build(in.Provider, sess)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return p.ListEvents(ctx, w)
}

// failSync records a provider failure on the integration and returns it as
// an AppError wrapping the typed provider error.
func (s *IntegrationService) failSync(ctx context.Context, in *entity.CalendarIntegration, err error) error {
	pe := provider.Wrap(in.Provider, err)
	pe.IntegrationID = in.ID.String()
	msg := pe.Error()

	logger.Error("IntegrationService:ImportEvents:ProviderFailed", "integration_id", in.ID, "provider", in.Provider, "kind", pe.Kind, "error", err)

	if uerr := s.repo.UpdateSyncStatus(context.WithoutCancel(ctx), in.ID, entity.SyncError, &msg, nil); uerr != nil {
		logger.Error("IntegrationService:ImportEvents:StatusUpdateFailed", "integration_id", in.ID, "error", uerr)
	}
	if s.notifier != nil {
		s.notifier.NotifyStudio(ctx, in.StudioID, notificationEntity.TypeSyncFailed,
			"Calendar sync failed",
			fmt.Sprintf("Syncing %s failed: %s", in.Provider, pe.Kind),
			map[string]any{"integration_id": in.ID.String(), "kind": string(pe.Kind)},
		)
	}
	return errors.NewAppError(errors.ErrProviderFailure, "Calendar provider request failed", pe)
}

func (s *IntegrationService) normalize(in *entity.CalendarIntegration, ev provider.Event) entity.ImportedEvent {
	details := mapper.Extract(ev.Title, ev.Description)
	row := entity.ImportedEvent{
		IntegrationID:   in.ID,
		ExternalID:      ev.ExternalID,
		Provider:        in.Provider,
		StudioID:        in.StudioID,
		Title:           ev.Title,
		Description:     strPtr(ev.Description),
		StartTime:       ev.Start.UTC(),
		EndTime:         ev.End.UTC(),
		AllDay:          ev.AllDay,
		InstructorName:  strPtr(ev.InstructorName),
		InstructorEmail: strPtr(ev.InstructorEmail),
		Location:        strPtr(ev.Location),
		Room:            strPtr(ev.Room),
		Category:        strPtr(details.Category),
		SkillLevel:      strPtr(details.SkillLevel),
		MaxParticipants: ev.MaxParticipants,
		PriceCents:      ev.PriceCents,
		MappingReasons:  pq.StringArray{},
		RawData:         coreEntity.RawJSON(ev.Raw),
	}
	if row.Title == "" {
		row.Title = "Untitled event"
	}
	if row.MaxParticipants == nil {
		row.MaxParticipants = details.MaxParticipants
	}
	if row.PriceCents == nil {
		row.PriceCents = details.PriceCents
	}
	if ev.CurrentParticipants != nil {
		row.CurrentParticipants = *ev.CurrentParticipants
	}
	return row
}

// carryMapping keeps the review outcome of an event imported earlier.
func carryMapping(row, prev *entity.ImportedEvent) {
	row.MigrationStatus = prev.MigrationStatus
	row.MappedClassID = prev.MappedClassID
	row.MappedScheduleID = prev.MappedScheduleID
	row.ConfidenceScore = prev.ConfidenceScore
	row.MappingReasons = prev.MappingReasons
	if row.MappingReasons == nil {
		row.MappingReasons = pq.StringArray{}
	}
}

func subject(row *entity.ImportedEvent) mapper.Subject {
	s := mapper.Subject{Title: row.Title, Start: row.StartTime, End: row.EndTime}
	if row.Category != nil {
		s.Category = *row.Category
	}
	if row.InstructorEmail != nil {
		s.InstructorEmail = *row.InstructorEmail
	}
	return s
}

func (s *IntegrationService) candidates(ctx context.Context, studioID uuid.UUID, from, to time.Time) ([]mapper.Candidate, error) {
	classes, err := s.repo.ListClasses(ctx, studioID)
	if err != nil || len(classes) == 0 {
		return nil, err
	}

	classIDs := make([]uuid.UUID, 0, len(classes))
	var instructorIDs []uuid.UUID
	for _, c := range classes {
		classIDs = append(classIDs, c.ID)
		if c.InstructorID != nil {
			instructorIDs = append(instructorIDs, *c.InstructorID)
		}
	}

	schedules, err := s.repo.ListSchedules(ctx, classIDs, from, to)
	if err != nil {
		return nil, err
	}
	slots := make(map[uuid.UUID][]mapper.Slot, len(classes))
	for _, sc := range schedules {
		slots[sc.ClassID] = append(slots[sc.ClassID], mapper.Slot{ScheduleID: sc.ID, Start: sc.StartTime, End: sc.EndTime})
	}

	emails := map[uuid.UUID]string{}
	if len(instructorIDs) > 0 {
		contacts, err := s.repo.ListInstructorContacts(ctx, instructorIDs)
		if err != nil {
			return nil, err
		}
		for _, c := range contacts {
			if c.Email != nil {
				emails[c.ID] = *c.Email
			}
		}
	}

	out := make([]mapper.Candidate, 0, len(classes))
	for _, c := range classes {
		cand := mapper.Candidate{ClassID: c.ID, Name: c.Name, Slots: slots[c.ID]}
		if c.Category != nil {
			cand.Category = *c.Category
		}
		if c.InstructorID != nil {
			cand.InstructorEmail = emails[*c.InstructorID]
		}
		out = append(out, cand)
	}
	return out, nil
}

// archive keeps the raw provider payloads of a run. Failures are logged only.
func (s *IntegrationService) archive(ctx context.Context, in *entity.CalendarIntegration, events []provider.Event) {
	raws := make([]json.RawMessage, 0, len(events))
	for _, ev := range events {
		if len(ev.Raw) > 0 {
			raws = append(raws, ev.Raw)
		}
	}
	if len(raws) == 0 {
		return
	}
	body, err := json.Marshal(raws)
	if err != nil {
		logger.Warn("IntegrationService:Archive:EncodeFailed", "integration_id", in.ID, "error", err)
		return
	}
	runID := s.now().UTC().Format("20060102T150405Z") + "-" + utils.GenerateID()
	key := fmt.Sprintf("%s/%s/%s.json", in.StudioID, in.ID, runID)
	if err := s.archiver.Archive(ctx, key, body); err != nil {
		logger.Warn("IntegrationService:Archive:Failed", "integration_id", in.ID, "key", key, "error", err)
	}
}

// SyncAllIntegrations imports every syncable integration of a studio over
// the configured window. Integrations are isolated: a failing one yields a
// result carrying its error.
func (s *IntegrationService) SyncAllIntegrations(ctx context.Context, studioID uuid.UUID) (map[string]*dto.ImportResult, error) {
	integrations, err := s.repo.ListByStudio(ctx, studioID, true)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load integrations", err)
	}

	now := s.now()
	start := now.AddDate(0, 0, -s.cfg.PastDays)
	end := now.AddDate(0, 0, s.cfg.FutureDays)

	results := make(map[string]*dto.ImportResult, len(integrations))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, in := range integrations {
		g.Go(func() error {
			res, err := s.ImportEvents(ctx, in.ID, start, end)
			if err != nil {
				res = dto.NewImportResult()
				res.FailedImports = 1
				res.ErrorDetails = append(res.ErrorDetails, err.Error())
			}
			mu.Lock()
			results[in.Provider] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	providers := make([]string, 0, len(results))
	for p := range results {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	logger.Info("IntegrationService:SyncAllIntegrations:Done", "studio_id", studioID, "providers", providers)
	return results, nil
}
