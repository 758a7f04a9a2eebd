package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/errors"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/dto"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/provider"
	notificationEntity "github.com/Chromeox/hobbyist-web-partner-sub014/modules/notification/entity"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

var (
	monday     = time.Date(2025, 3, 3, 18, 0, 0, 0, time.UTC)
	windowFrom = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	windowTo   = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	repo     *memRepo
	factory  *fakeFactory
	notifier *recordingNotifier
	archiver *memArchiver
	svc      *IntegrationService
	studioID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemRepo(),
		factory:  newFakeFactory(),
		notifier: &recordingNotifier{},
		archiver: &memArchiver{},
		studioID: uuid.New(),
	}
	f.svc = NewIntegrationService(f.repo, f.factory, testCipher(t), f.archiver, f.notifier, Config{Concurrency: 2})
	f.svc.now = func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) }
	return f
}

func studioEvents() []provider.Event {
	return []provider.Event{
		{
			ExternalID: "e1", Title: "Wheel Throwing Basics", InstructorEmail: "mira@example.com",
			Start: monday, End: monday.Add(2 * time.Hour), Raw: []byte(`{"id":"e1"}`),
		},
		{
			ExternalID: "e2", Title: "Candle Making Night", Description: "10 people max, $35",
			Start: monday.Add(48 * time.Hour), End: monday.Add(50 * time.Hour),
		},
		{Title: "No id"},
		{ExternalID: "bad", Title: "No times"},
		{ExternalID: "e1", Title: "Wheel Throwing Basics", Start: monday, End: monday.Add(2 * time.Hour)},
	}
}

func (f *fixture) seedStudio() *entity.CalendarIntegration {
	f.repo.addClass(f.studioID, "Wheel Throwing Basics", "pottery", "mira@example.com", monday)
	f.repo.addClass(f.studioID, "Glaze Chemistry", "pottery", "")
	f.factory.providers[entity.ProviderGoogle] = &fakeProvider{name: entity.ProviderGoogle, events: studioEvents()}
	return f.repo.addIntegration(f.studioID, entity.ProviderGoogle, entity.SyncActive)
}

func TestImportEventsRejectsInvertedWindow(t *testing.T) {
	f := newFixture(t)
	in := f.seedStudio()
	_, err := f.svc.ImportEvents(context.Background(), in.ID, windowTo, windowFrom)
	if !errors.HasCode(err, errors.ErrInvalidInput) {
		t.Fatalf("err = %v, want invalid input", err)
	}
	if f.factory.builds != 0 {
		t.Error("provider should not be called")
	}
}

func TestImportEventsUnknownIntegration(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ImportEvents(context.Background(), uuid.New(), windowFrom, windowTo)
	if !errors.HasCode(err, errors.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestImportEventsExpiredIntegration(t *testing.T) {
	f := newFixture(t)
	f.seedStudio()
	in := f.repo.addIntegration(f.studioID, entity.ProviderCalendly, entity.SyncExpired)

	_, err := f.svc.ImportEvents(context.Background(), in.ID, windowFrom, windowTo)
	if !errors.HasCode(err, errors.ErrIntegrationExpired) {
		t.Fatalf("err = %v, want integration expired", err)
	}
	if f.factory.builds != 0 {
		t.Error("provider should not be called for an expired integration")
	}
}

func TestImportEventsMapsAndCounts(t *testing.T) {
	f := newFixture(t)
	in := f.seedStudio()

	res, err := f.svc.ImportEvents(context.Background(), in.ID, windowFrom, windowTo)
	if err != nil {
		t.Fatalf("ImportEvents: %v", err)
	}

	want := dto.ImportResult{TotalEvents: 5, SuccessfullyImported: 1, FailedImports: 2, RequiresReview: 1, DuplicateEvents: 1}
	if res.TotalEvents != want.TotalEvents || res.SuccessfullyImported != want.SuccessfullyImported ||
		res.FailedImports != want.FailedImports || res.RequiresReview != want.RequiresReview ||
		res.DuplicateEvents != want.DuplicateEvents {
		t.Fatalf("result = %+v, want counts %+v", res, want)
	}
	if len(res.ErrorDetails) != 2 {
		t.Errorf("error details = %v", res.ErrorDetails)
	}
	if len(res.MappingSuggestions) != 2 {
		t.Fatalf("suggestions = %d, want 2", len(res.MappingSuggestions))
	}

	mapped := f.repo.event(in.ID, "e1")
	if mapped.MigrationStatus != entity.MigrationMapped || mapped.MappedClassID == nil || mapped.MappedScheduleID == nil {
		t.Errorf("e1 = %+v, want mapped with class and schedule", mapped)
	}
	if mapped.Category == nil || *mapped.Category != "pottery" {
		t.Errorf("e1 category = %v", mapped.Category)
	}

	pending := f.repo.event(in.ID, "e2")
	if pending.MigrationStatus != entity.MigrationPending || pending.MappedClassID != nil {
		t.Errorf("e2 = %+v, want pending without class", pending)
	}
	if pending.MaxParticipants == nil || *pending.MaxParticipants != 10 {
		t.Errorf("e2 max participants = %v, want 10 from description", pending.MaxParticipants)
	}
	if pending.PriceCents == nil || *pending.PriceCents != 3500 {
		t.Errorf("e2 price = %v, want 3500 from description", pending.PriceCents)
	}

	if n := len(f.repo.eventsFor(in.ID)); n != 2 {
		t.Errorf("stored events = %d, want 2", n)
	}

	stored, _ := f.repo.GetByID(context.Background(), in.ID)
	if stored.SyncStatus != entity.SyncActive || stored.LastSyncAt == nil || stored.ErrorMessage != nil {
		t.Errorf("integration = %+v, want active with last sync", stored)
	}
	if f.notifier.count(notificationEntity.TypeEventsNeedReview) != 1 {
		t.Error("expected a review notification")
	}
	if len(f.archiver.keys) != 1 || !strings.HasPrefix(f.archiver.keys[0], f.studioID.String()+"/"+in.ID.String()+"/") {
		t.Errorf("archive keys = %v", f.archiver.keys)
	}
}

func TestReimportIsIdempotentAndKeepsReviewState(t *testing.T) {
	f := newFixture(t)
	in := f.seedStudio()
	ctx := context.Background()

	if _, err := f.svc.ImportEvents(ctx, in.ID, windowFrom, windowTo); err != nil {
		t.Fatalf("first import: %v", err)
	}
	res, err := f.svc.ImportEvents(ctx, in.ID, windowFrom, windowTo)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if n := len(f.repo.eventsFor(in.ID)); n != 2 {
		t.Fatalf("stored events after re-import = %d, want 2", n)
	}
	if res.SuccessfullyImported != 1 || res.RequiresReview != 1 {
		t.Errorf("second result = %+v", res)
	}
	if got := f.repo.event(in.ID, "e2").MigrationStatus; got != entity.MigrationPending {
		t.Errorf("e2 status = %q, want pending", got)
	}

	e2 := f.repo.event(in.ID, "e2")
	approved, err := f.svc.ApproveEventMapping(ctx, e2.ID, nil, nil, true)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	res, err = f.svc.ImportEvents(ctx, in.ID, windowFrom, windowTo)
	if err != nil {
		t.Fatalf("third import: %v", err)
	}
	if res.DuplicateEvents != 2 {
		t.Errorf("duplicates = %d, want 2 (payload repeat plus imported e2)", res.DuplicateEvents)
	}
	after := f.repo.event(in.ID, "e2")
	if after.MigrationStatus != entity.MigrationImported || after.MappedClassID == nil || *after.MappedClassID != *approved.MappedClassID {
		t.Errorf("e2 after re-import = %+v, want imported mapping kept", after)
	}
}

func TestPendingEventIsNeverAutoResolved(t *testing.T) {
	f := newFixture(t)
	in := f.seedStudio()
	ctx := context.Background()

	if _, err := f.svc.ImportEvents(ctx, in.ID, windowFrom, windowTo); err != nil {
		t.Fatalf("import: %v", err)
	}
	// a class that would now match e2 perfectly
	f.repo.addClass(f.studioID, "Candle Making Night", "general", "", monday.Add(48*time.Hour))

	if _, err := f.svc.ImportEvents(ctx, in.ID, windowFrom, windowTo); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if ev := f.repo.event(in.ID, "e2"); ev.MigrationStatus != entity.MigrationPending || ev.MappedClassID != nil {
		t.Errorf("e2 = %+v, want still pending", ev)
	}
}

func TestProviderFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.factory.providers[entity.ProviderCalendly] = &fakeProvider{
		name: entity.ProviderCalendly,
		err:  &provider.Error{Provider: entity.ProviderCalendly, Kind: provider.KindRateLimit, Status: 429},
	}
	in := f.repo.addIntegration(f.studioID, entity.ProviderCalendly, entity.SyncActive)

	_, err := f.svc.ImportEvents(context.Background(), in.ID, windowFrom, windowTo)
	if !errors.HasCode(err, errors.ErrProviderFailure) {
		t.Fatalf("err = %v, want provider failure", err)
	}
	var pe *provider.Error
	if !errors.As(err, &pe) || pe.Kind != provider.KindRateLimit || pe.IntegrationID != in.ID.String() {
		t.Fatalf("provider error = %+v", pe)
	}

	if n := len(f.repo.eventsFor(in.ID)); n != 0 {
		t.Errorf("stored events = %d, want 0", n)
	}
	if f.repo.upserts != 0 {
		t.Errorf("upserts = %d, want 0", f.repo.upserts)
	}
	stored, _ := f.repo.GetByID(context.Background(), in.ID)
	if stored.SyncStatus != entity.SyncError || stored.ErrorMessage == nil {
		t.Errorf("integration = %+v, want error status with message", stored)
	}
	if f.notifier.count(notificationEntity.TypeSyncFailed) != 1 {
		t.Error("expected a sync failure notification")
	}
}

func TestTokensAreSealedAndRotationPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.factory.providers[entity.ProviderOutlook] = &fakeProvider{name: entity.ProviderOutlook}

	in, err := f.svc.CreateIntegration(ctx, &dto.CreateIntegrationRequest{
		StudioID: f.studioID, Provider: entity.ProviderOutlook, AccessToken: "access-1", RefreshToken: "refresh-1",
	})
	if err != nil {
		t.Fatalf("CreateIntegration: %v", err)
	}
	stored, _ := f.repo.GetByID(ctx, in.ID)
	if stored.AccessToken == "access-1" || !strings.HasPrefix(stored.AccessToken, "v1:") {
		t.Fatalf("access token stored as %q, want ciphertext", stored.AccessToken)
	}

	if _, err := f.svc.ImportEvents(ctx, in.ID, windowFrom, windowTo); err != nil {
		t.Fatalf("ImportEvents: %v", err)
	}
	sess := f.factory.sessions[in.ID.String()]
	if sess.Credentials.AccessToken != "access-1" || sess.Credentials.RefreshToken != "refresh-1" {
		t.Fatalf("session credentials = %+v", sess.Credentials)
	}

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := sess.OnRefresh(ctx, &oauth2.Token{AccessToken: "access-2", RefreshToken: "refresh-2", Expiry: expiry}); err != nil {
		t.Fatalf("OnRefresh: %v", err)
	}
	stored, _ = f.repo.GetByID(ctx, in.ID)
	cipher := testCipher(t)
	if got, _ := cipher.Decrypt(stored.AccessToken); got != "access-2" {
		t.Errorf("access token = %q, want access-2", got)
	}
	if got, _ := cipher.Decrypt(stored.RefreshToken); got != "refresh-2" {
		t.Errorf("refresh token = %q, want refresh-2", got)
	}
	if stored.TokenExpiresAt == nil || !stored.TokenExpiresAt.Equal(expiry) {
		t.Errorf("expiry = %v, want %v", stored.TokenExpiresAt, expiry)
	}
}

func TestCreateIntegrationRejectsUnknownProvider(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateIntegration(context.Background(), &dto.CreateIntegrationRequest{StudioID: f.studioID, Provider: "zoom"})
	if !errors.HasCode(err, errors.ErrInvalidInput) {
		t.Fatalf("err = %v, want invalid input", err)
	}
}

func TestSyncAllIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.seedStudio()
	f.factory.providers[entity.ProviderCalendly] = &fakeProvider{
		name: entity.ProviderCalendly,
		err:  &provider.Error{Provider: entity.ProviderCalendly, Kind: provider.KindAuth, Status: 401},
	}
	f.repo.addIntegration(f.studioID, entity.ProviderCalendly, entity.SyncActive)
	f.repo.addIntegration(f.studioID, entity.ProviderSquare, entity.SyncPaused)

	results, err := f.svc.SyncAllIntegrations(context.Background(), f.studioID)
	if err != nil {
		t.Fatalf("SyncAllIntegrations: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %v, want google and calendly", results)
	}
	if _, ok := results[entity.ProviderSquare]; ok {
		t.Error("paused integration should not sync")
	}
	if g := results[entity.ProviderGoogle]; g.FailedImports != 2 || g.SuccessfullyImported != 1 {
		t.Errorf("google = %+v", g)
	}
	c := results[entity.ProviderCalendly]
	if c.FailedImports != 1 || len(c.ErrorDetails) != 1 || !strings.Contains(c.ErrorDetails[0], "auth") {
		t.Errorf("calendly = %+v", c)
	}
}

func TestApproveLinksExistingClass(t *testing.T) {
	f := newFixture(t)
	in := f.seedStudio()
	ctx := context.Background()
	if _, err := f.svc.ImportEvents(ctx, in.ID, windowFrom, windowTo); err != nil {
		t.Fatalf("import: %v", err)
	}
	e2 := f.repo.event(in.ID, "e2")

	if _, err := f.svc.ApproveEventMapping(ctx, e2.ID, nil, nil, false); !errors.HasCode(err, errors.ErrInvalidInput) {
		t.Errorf("missing class err = %v, want invalid input", err)
	}

	other := f.repo.addClass(uuid.New(), "Candle Making", "", "")
	if _, err := f.svc.ApproveEventMapping(ctx, e2.ID, &other.ID, nil, false); !errors.HasCode(err, errors.ErrNotFound) {
		t.Errorf("foreign class err = %v, want not found", err)
	}

	own := f.repo.addClass(f.studioID, "Candle Making", "", "")
	ev, err := f.svc.ApproveEventMapping(ctx, e2.ID, &own.ID, nil, false)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if ev.MigrationStatus != entity.MigrationImported || *ev.MappedClassID != own.ID {
		t.Errorf("event = %+v", ev)
	}
	if _, err := f.svc.ApproveEventMapping(ctx, e2.ID, &own.ID, nil, false); !errors.HasCode(err, errors.ErrAlreadyExists) {
		t.Errorf("second approve err = %v, want already exists", err)
	}
}

func TestApproveCreatesClassFromEvent(t *testing.T) {
	f := newFixture(t)
	in := f.seedStudio()
	ctx := context.Background()
	if _, err := f.svc.ImportEvents(ctx, in.ID, windowFrom, windowTo); err != nil {
		t.Fatalf("import: %v", err)
	}
	e2 := f.repo.event(in.ID, "e2")

	ev, err := f.svc.ApproveEventMapping(ctx, e2.ID, nil, nil, true)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	class, _ := f.repo.GetClass(ctx, *ev.MappedClassID)
	if class.Name != "Candle Making Night" || class.DurationMinutes != 120 {
		t.Errorf("class = %+v", class)
	}
	if class.MaxParticipants != 10 || class.PriceCents != 3500 {
		t.Errorf("capacity/price = %d/%d, want 10/3500", class.MaxParticipants, class.PriceCents)
	}
	if !strings.HasPrefix(class.Slug, "candle-making-night-") {
		t.Errorf("slug = %q", class.Slug)
	}
	if ev.MappedScheduleID == nil {
		t.Error("expected a schedule to be created")
	}
}

func TestApprovalDuringReimportIsKept(t *testing.T) {
	f := newFixture(t)
	in := f.seedStudio()
	ctx := context.Background()
	if _, err := f.svc.ImportEvents(ctx, in.ID, windowFrom, windowTo); err != nil {
		t.Fatalf("import: %v", err)
	}
	e2 := f.repo.event(in.ID, "e2")
	own := f.repo.addClass(f.studioID, "Candle Making", "", "")

	// the approval lands after the re-import has read e2 as pending
	var approveErr error
	f.repo.beforeListExisting = func() {
		_, approveErr = f.svc.ApproveEventMapping(ctx, e2.ID, &own.ID, nil, false)
	}
	if _, err := f.svc.ImportEvents(ctx, in.ID, windowFrom, windowTo); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if approveErr != nil {
		t.Fatalf("approve: %v", approveErr)
	}
	after := f.repo.event(in.ID, "e2")
	if after.MigrationStatus != entity.MigrationImported || after.MappedClassID == nil || *after.MappedClassID != own.ID {
		t.Errorf("e2 = %+v, want imported into %s", after, own.ID)
	}
}

// staleEvents serves the event as it was before another approval landed.
type staleEvents struct {
	*memRepo
	snapshot entity.ImportedEvent
}

func (r staleEvents) GetEvent(context.Context, uuid.UUID) (*entity.ImportedEvent, error) {
	cp := r.snapshot
	return &cp, nil
}

func TestConcurrentApprovalsCreateOneClass(t *testing.T) {
	f := newFixture(t)
	in := f.seedStudio()
	ctx := context.Background()
	if _, err := f.svc.ImportEvents(ctx, in.ID, windowFrom, windowTo); err != nil {
		t.Fatalf("import: %v", err)
	}
	snapshot, _ := f.repo.GetEvent(ctx, f.repo.event(in.ID, "e2").ID)
	late := NewIntegrationService(staleEvents{memRepo: f.repo, snapshot: *snapshot}, f.factory, testCipher(t), f.archiver, f.notifier, Config{})

	first, err := f.svc.ApproveEventMapping(ctx, snapshot.ID, nil, nil, true)
	if err != nil {
		t.Fatalf("first approve: %v", err)
	}
	classes, schedules := len(f.repo.classes), len(f.repo.schedules)

	if _, err := late.ApproveEventMapping(ctx, snapshot.ID, nil, nil, true); !errors.HasCode(err, errors.ErrAlreadyExists) {
		t.Errorf("late create err = %v, want already exists", err)
	}
	own := f.repo.addClass(f.studioID, "Candle Making", "", "")
	classes++
	if _, err := late.ApproveEventMapping(ctx, snapshot.ID, &own.ID, nil, false); !errors.HasCode(err, errors.ErrAlreadyExists) {
		t.Errorf("late link err = %v, want already exists", err)
	}
	if len(f.repo.classes) != classes || len(f.repo.schedules) != schedules {
		t.Errorf("classes/schedules = %d/%d, want %d/%d", len(f.repo.classes), len(f.repo.schedules), classes, schedules)
	}
	if got := f.repo.event(in.ID, "e2").MappedClassID; got == nil || *got != *first.MappedClassID {
		t.Errorf("e2 mapped to %v, want %s", got, *first.MappedClassID)
	}
}

func TestApproveRejectsScheduleOfAnotherClass(t *testing.T) {
	f := newFixture(t)
	in := f.seedStudio()
	ctx := context.Background()
	if _, err := f.svc.ImportEvents(ctx, in.ID, windowFrom, windowTo); err != nil {
		t.Fatalf("import: %v", err)
	}
	e2 := f.repo.event(in.ID, "e2")
	slot := monday.Add(48 * time.Hour)
	own := f.repo.addClass(f.studioID, "Candle Making", "", "", slot)
	other := f.repo.addClass(f.studioID, "Soap Making", "", "", slot)
	scheduleOf := func(classID uuid.UUID) uuid.UUID {
		for _, sc := range f.repo.schedules {
			if sc.ClassID == classID {
				return sc.ID
			}
		}
		t.Fatalf("no schedule for class %s", classID)
		return uuid.Nil
	}

	foreign := scheduleOf(other.ID)
	if _, err := f.svc.ApproveEventMapping(ctx, e2.ID, &own.ID, &foreign, false); !errors.HasCode(err, errors.ErrNotFound) {
		t.Errorf("foreign schedule err = %v, want not found", err)
	}
	missing := uuid.New()
	if _, err := f.svc.ApproveEventMapping(ctx, e2.ID, &own.ID, &missing, false); !errors.HasCode(err, errors.ErrNotFound) {
		t.Errorf("missing schedule err = %v, want not found", err)
	}
	if got := f.repo.event(in.ID, "e2").MigrationStatus; got != entity.MigrationPending {
		t.Fatalf("e2 status = %q after rejected approvals, want pending", got)
	}

	mine := scheduleOf(own.ID)
	ev, err := f.svc.ApproveEventMapping(ctx, e2.ID, &own.ID, &mine, false)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if ev.MappedScheduleID == nil || *ev.MappedScheduleID != mine {
		t.Errorf("schedule = %v, want %s", ev.MappedScheduleID, mine)
	}
}

func TestClassFromEventDefaults(t *testing.T) {
	ev := &entity.ImportedEvent{Title: "Open Studio", StartTime: monday, EndTime: monday.Add(90 * time.Minute)}
	c := classFromEvent(ev)
	if c.MaxParticipants != 8 || c.PriceCents != 0 || c.DurationMinutes != 90 {
		t.Errorf("class = %+v, want capacity 8, price 0, 90 minutes", c)
	}
}

func TestDeleteAndStats(t *testing.T) {
	f := newFixture(t)
	in := f.seedStudio()
	ctx := context.Background()
	if _, err := f.svc.ImportEvents(ctx, in.ID, windowFrom, windowTo); err != nil {
		t.Fatalf("import: %v", err)
	}

	stats, err := f.svc.GetSyncStats(ctx, f.studioID)
	if err != nil {
		t.Fatalf("GetSyncStats: %v", err)
	}
	if stats.TotalIntegrations != 1 || stats.ActiveIntegrations != 1 || stats.PendingReviews != 1 || stats.LastSyncAt == nil {
		t.Errorf("stats = %+v", stats)
	}

	review, _ := f.svc.GetEventsNeedingReview(ctx, f.studioID)
	if len(review) != 1 || review[0].ExternalID != "e2" {
		t.Errorf("review = %+v", review)
	}

	if err := f.svc.DeleteIntegration(ctx, in.ID); err != nil {
		t.Fatalf("DeleteIntegration: %v", err)
	}
	if n := len(f.repo.eventsFor(in.ID)); n != 0 {
		t.Errorf("events left after delete = %d", n)
	}
	if err := f.svc.DeleteIntegration(ctx, in.ID); !errors.HasCode(err, errors.ErrNotFound) {
		t.Errorf("second delete err = %v, want not found", err)
	}
}
