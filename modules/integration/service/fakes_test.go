package service

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/security"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/provider"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/repository"

	"github.com/google/uuid"
)

type memRepo struct {
	mu           sync.Mutex
	integrations map[uuid.UUID]*entity.CalendarIntegration
	events       map[string]*entity.ImportedEvent
	classes      map[uuid.UUID]*entity.Class
	schedules    []entity.ClassSchedule
	contacts     map[uuid.UUID]string
	upserts      int

	// beforeListExisting runs once, unlocked, when an import reads the
	// stored rows, standing in for a writer that lands in between.
	beforeListExisting func()
}

func newMemRepo() *memRepo {
	return &memRepo{
		integrations: map[uuid.UUID]*entity.CalendarIntegration{},
		events:       map[string]*entity.ImportedEvent{},
		classes:      map[uuid.UUID]*entity.Class{},
		contacts:     map[uuid.UUID]string{},
	}
}

func eventKey(integrationID uuid.UUID, externalID string) string {
	return integrationID.String() + "/" + externalID
}

func (r *memRepo) addIntegration(studioID uuid.UUID, providerName, status string) *entity.CalendarIntegration {
	in := &entity.CalendarIntegration{
		StudioID:    studioID,
		Provider:    providerName,
		SyncEnabled: true,
		SyncStatus:  status,
	}
	in.ID = uuid.New()
	r.integrations[in.ID] = in
	return in
}

func (r *memRepo) addClass(studioID uuid.UUID, name, category, instructorEmail string, slots ...time.Time) *entity.Class {
	c := &entity.Class{StudioID: studioID, Name: name, IsActive: true, MaxParticipants: 8}
	c.ID = uuid.New()
	if category != "" {
		c.Category = &category
	}
	if instructorEmail != "" {
		id := uuid.New()
		c.InstructorID = &id
		r.contacts[id] = instructorEmail
	}
	for _, start := range slots {
		sc := entity.ClassSchedule{ClassID: c.ID, StartTime: start, EndTime: start.Add(2 * time.Hour)}
		sc.ID = uuid.New()
		r.schedules = append(r.schedules, sc)
	}
	r.classes[c.ID] = c
	return c
}

func (r *memRepo) eventsFor(integrationID uuid.UUID) []*entity.ImportedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ImportedEvent
	for k, ev := range r.events {
		if strings.HasPrefix(k, integrationID.String()+"/") {
			out = append(out, ev)
		}
	}
	return out
}

func (r *memRepo) event(integrationID uuid.UUID, externalID string) *entity.ImportedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[eventKey(integrationID, externalID)]
}

func (r *memRepo) Create(_ context.Context, in *entity.CalendarIntegration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	in.ID = uuid.New()
	cp := *in
	r.integrations[in.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.CalendarIntegration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.integrations[id]
	if !ok {
		return nil, nil
	}
	cp := *in
	return &cp, nil
}

func (r *memRepo) ListByStudio(_ context.Context, studioID uuid.UUID, syncableOnly bool) ([]entity.CalendarIntegration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.CalendarIntegration
	for _, in := range r.integrations {
		if in.StudioID != studioID {
			continue
		}
		if syncableOnly && (!in.SyncEnabled || in.SyncStatus == entity.SyncPaused) {
			continue
		}
		out = append(out, *in)
	}
	return out, nil
}

func (r *memRepo) ListSyncableStudioIDs(context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, in := range r.integrations {
		if in.SyncEnabled && in.SyncStatus != entity.SyncPaused && in.SyncStatus != entity.SyncExpired && !seen[in.StudioID] {
			seen[in.StudioID] = true
			out = append(out, in.StudioID)
		}
	}
	return out, nil
}

func (r *memRepo) UpdateSyncStatus(_ context.Context, id uuid.UUID, status string, message *string, syncedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := r.integrations[id]
	in.SyncStatus = status
	in.ErrorMessage = message
	if syncedAt != nil {
		t := *syncedAt
		in.LastSyncAt = &t
	}
	return nil
}

func (r *memRepo) UpdateTokens(_ context.Context, id uuid.UUID, access, refresh string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := r.integrations[id]
	in.AccessToken, in.RefreshToken, in.TokenExpiresAt = access, refresh, expiresAt
	return nil
}

func (r *memRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.integrations[id]; !ok {
		return false, nil
	}
	for k := range r.events {
		if strings.HasPrefix(k, id.String()+"/") {
			delete(r.events, k)
		}
	}
	delete(r.integrations, id)
	return true, nil
}

func (r *memRepo) ListEventsByExternalIDs(_ context.Context, integrationID uuid.UUID, externalIDs []string) ([]entity.ImportedEvent, error) {
	if hook := r.beforeListExisting; hook != nil {
		r.beforeListExisting = nil
		defer hook()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.ImportedEvent
	for _, id := range externalIDs {
		if ev, ok := r.events[eventKey(integrationID, id)]; ok {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (r *memRepo) UpsertEvents(_ context.Context, events []entity.ImportedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	for _, ev := range events {
		k := eventKey(ev.IntegrationID, ev.ExternalID)
		cp := ev
		if prev, ok := r.events[k]; ok {
			cp.ID = prev.ID
			if prev.MigrationStatus == entity.MigrationImported || prev.MigrationStatus == entity.MigrationPending {
				cp.MigrationStatus = prev.MigrationStatus
				cp.MappedClassID, cp.MappedScheduleID = prev.MappedClassID, prev.MappedScheduleID
			}
		} else {
			cp.ID = uuid.New()
		}
		r.events[k] = &cp
	}
	return nil
}

func (r *memRepo) GetEvent(_ context.Context, id uuid.UUID) (*entity.ImportedEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ID == id {
			cp := *ev
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) ListEventsNeedingReview(_ context.Context, studioID uuid.UUID) ([]entity.ImportedEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.ImportedEvent
	for _, ev := range r.events {
		if ev.StudioID == studioID && ev.MigrationStatus == entity.MigrationPending {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (r *memRepo) CountEvents(_ context.Context, studioID uuid.UUID, status string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.StudioID == studioID && ev.MigrationStatus == status {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) findEvent(id uuid.UUID) *entity.ImportedEvent {
	for _, ev := range r.events {
		if ev.ID == id {
			return ev
		}
	}
	return nil
}

func (r *memRepo) ApproveMapping(_ context.Context, eventID, classID uuid.UUID, scheduleID *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := r.findEvent(eventID)
	if ev.MigrationStatus == entity.MigrationImported {
		return repository.ErrEventAlreadyImported
	}
	ev.MappedClassID, ev.MappedScheduleID = &classID, scheduleID
	ev.MigrationStatus = entity.MigrationImported
	return nil
}

func (r *memRepo) CreateClassFromEvent(_ context.Context, event *entity.ImportedEvent, class *entity.Class) (*entity.ClassSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := r.findEvent(event.ID)
	if ev.MigrationStatus == entity.MigrationImported {
		return nil, repository.ErrEventAlreadyImported
	}
	class.ID = uuid.New()
	cp := *class
	r.classes[class.ID] = &cp

	sc := entity.ClassSchedule{ClassID: class.ID, StartTime: event.StartTime, EndTime: event.EndTime, SpotsAvailable: class.MaxParticipants, SpotsTotal: class.MaxParticipants}
	sc.ID = uuid.New()
	r.schedules = append(r.schedules, sc)

	ev.MappedClassID, ev.MappedScheduleID = &class.ID, &sc.ID
	ev.MigrationStatus = entity.MigrationImported
	return &sc, nil
}

func (r *memRepo) GetClass(_ context.Context, id uuid.UUID) (*entity.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *memRepo) GetSchedule(_ context.Context, id uuid.UUID) (*entity.ClassSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sc := range r.schedules {
		if sc.ID == id {
			cp := sc
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) ListClasses(_ context.Context, studioID uuid.UUID) ([]entity.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Class
	for _, c := range r.classes {
		if c.StudioID == studioID && c.IsActive {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memRepo) ListSchedules(_ context.Context, classIDs []uuid.UUID, from, to time.Time) ([]entity.ClassSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[uuid.UUID]bool{}
	for _, id := range classIDs {
		want[id] = true
	}
	var out []entity.ClassSchedule
	for _, sc := range r.schedules {
		if want[sc.ClassID] && sc.StartTime.Before(to) && sc.EndTime.After(from) {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (r *memRepo) ListInstructorContacts(_ context.Context, ids []uuid.UUID) ([]entity.InstructorContact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.InstructorContact
	for _, id := range ids {
		if email, ok := r.contacts[id]; ok {
			e := email
			out = append(out, entity.InstructorContact{ID: id, Email: &e})
		}
	}
	return out, nil
}

type fakeProvider struct {
	name   string
	events []provider.Event
	err    error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) ListEvents(context.Context, provider.Window) ([]provider.Event, error) {
	return p.events, p.err
}

type fakeFactory struct {
	mu        sync.Mutex
	providers map[string]*fakeProvider
	sessions  map[string]provider.Session
	builds    int
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{providers: map[string]*fakeProvider{}, sessions: map[string]provider.Session{}}
}

func (f *fakeFactory) Build(name string, sess provider.Session) (provider.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds++
	f.sessions[sess.IntegrationID] = sess
	p, ok := f.providers[name]
	if !ok {
		return nil, &provider.Error{Provider: name, Kind: provider.KindConfig}
	}
	return p, nil
}

type notification struct {
	studioID uuid.UUID
	typ      string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) NotifyStudio(_ context.Context, studioID uuid.UUID, typ, _, _ string, _ map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{studioID: studioID, typ: typ})
}

func (n *recordingNotifier) count(typ string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.typ == typ {
			c++
		}
	}
	return c
}

type memArchiver struct {
	mu   sync.Mutex
	keys []string
}

func (a *memArchiver) Archive(_ context.Context, key string, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	return nil
}

func testCipher(t *testing.T) *security.TokenCipher {
	t.Helper()
	c, err := security.NewTokenCipher(base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))
	if err != nil {
		t.Fatalf("NewTokenCipher: %v", err)
	}
	return c
}
