package service

import (
	"context"
	"strings"
	"time"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/constants"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/errors"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/logger"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/storage"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/dto"
	integrationEntity "github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/entity"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/mapper"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/provider"
	"github.com/Chromeox/hobbyist-web-partner-sub014/modules/integration/repository"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/oauth2"
)

type Config struct {
	PastDays    int
	FutureDays  int
	Concurrency int
	Timeout     time.Duration
	Thresholds  mapper.Thresholds
}

type ProviderFactory interface {
	Build(name string, sess provider.Session) (provider.Provider, error)
}

type TokenSealer interface {
	Encrypt(plain string) (string, error)
	Decrypt(sealed string) (string, error)
}

type Notifier interface {
	NotifyStudio(ctx context.Context, studioID uuid.UUID, typ, title, message string, data map[string]any)
}

type IntegrationService struct {
	repo     repository.IntegrationRepository
	factory  ProviderFactory
	sealer   TokenSealer
	archiver storage.Archiver
	notifier Notifier
	cfg      Config
	now      func() time.Time
}

func NewIntegrationService(repo repository.IntegrationRepository, factory ProviderFactory, sealer TokenSealer, archiver storage.Archiver, notifier Notifier, cfg Config) *IntegrationService {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultTimeout
	}
	if cfg.PastDays <= 0 {
		cfg.PastDays = 30
	}
	if cfg.FutureDays <= 0 {
		cfg.FutureDays = 30
	}
	if cfg.Thresholds == (mapper.Thresholds{}) {
		cfg.Thresholds = mapper.DefaultThresholds
	}
	if archiver == nil {
		archiver = storage.NopArchiver{}
	}
	return &IntegrationService{
		repo:     repo,
		factory:  factory,
		sealer:   sealer,
		archiver: archiver,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *IntegrationService) CreateIntegration(ctx context.Context, req *dto.CreateIntegrationRequest) (*integrationEntity.CalendarIntegration, error) {
	if !provider.Supported(req.Provider) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "Unsupported calendar provider", nil)
	}
	access, err := s.sealer.Encrypt(req.AccessToken)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to store credentials", err)
	}
	refresh, err := s.sealer.Encrypt(req.RefreshToken)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to store credentials", err)
	}

	in := &integrationEntity.CalendarIntegration{
		StudioID:       req.StudioID,
		Provider:       req.Provider,
		AccessToken:    access,
		RefreshToken:   refresh,
		TokenExpiresAt: req.TokenExpiresAt,
		SyncEnabled:    true,
		SyncStatus:     integrationEntity.SyncActive,
		Settings:       entity.JSONB(req.Settings),
	}
	if req.ProviderAccountID != "" {
		in.ProviderAccountID = &req.ProviderAccountID
	}

	if err := s.repo.Create(ctx, in); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, errors.NewAppError(errors.ErrAlreadyExists, "Studio already has an integration for this provider", err)
		}
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to create integration", err)
	}
	logger.Info("IntegrationService:CreateIntegration:Created", "id", in.ID, "studio_id", in.StudioID, "provider", in.Provider)
	return in, nil
}

func (s *IntegrationService) GetIntegration(ctx context.Context, id uuid.UUID) (*integrationEntity.CalendarIntegration, error) {
	in, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load integration", err)
	}
	if in == nil {
		return nil, errors.NewAppError(errors.ErrNotFound, "Integration not found", nil)
	}
	return in, nil
}

func (s *IntegrationService) GetStudioIntegrations(ctx context.Context, studioID uuid.UUID) ([]integrationEntity.CalendarIntegration, error) {
	rows, err := s.repo.ListByStudio(ctx, studioID, false)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load integrations", err)
	}
	return rows, nil
}

func (s *IntegrationService) UpdateSyncStatus(ctx context.Context, id uuid.UUID, status, message string) error {
	if _, err := s.GetIntegration(ctx, id); err != nil {
		return err
	}
	var msg *string
	if message != "" {
		msg = &message
	}
	if err := s.repo.UpdateSyncStatus(ctx, id, status, msg, nil); err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "Failed to update sync status", err)
	}
	return nil
}

// DeleteIntegration removes the integration together with its imported
// events. Classes created from those events stay.
func (s *IntegrationService) DeleteIntegration(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "Failed to delete integration", err)
	}
	if !ok {
		return errors.NewAppError(errors.ErrNotFound, "Integration not found", nil)
	}
	logger.Info("IntegrationService:DeleteIntegration:Deleted", "id", id)
	return nil
}

func (s *IntegrationService) GetEventsNeedingReview(ctx context.Context, studioID uuid.UUID) ([]integrationEntity.ImportedEvent, error) {
	rows, err := s.repo.ListEventsNeedingReview(ctx, studioID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load events", err)
	}
	return rows, nil
}

func (s *IntegrationService) GetImportedEvent(ctx context.Context, id uuid.UUID) (*integrationEntity.ImportedEvent, error) {
	ev, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load event", err)
	}
	if ev == nil {
		return nil, errors.NewAppError(errors.ErrNotFound, "Event not found", nil)
	}
	return ev, nil
}

func (s *IntegrationService) GetSyncStats(ctx context.Context, studioID uuid.UUID) (*dto.SyncStats, error) {
	integrations, err := s.repo.ListByStudio(ctx, studioID, false)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load sync stats", err)
	}
	stats := &dto.SyncStats{TotalIntegrations: len(integrations)}
	for i := range integrations {
		in := &integrations[i]
		if in.SyncStatus == integrationEntity.SyncActive {
			stats.ActiveIntegrations++
		}
		if in.LastSyncAt != nil && (stats.LastSyncAt == nil || in.LastSyncAt.After(*stats.LastSyncAt)) {
			stats.LastSyncAt = in.LastSyncAt
		}
	}

	pending, err := s.repo.CountEvents(ctx, studioID, integrationEntity.MigrationPending)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load sync stats", err)
	}
	imported, err := s.repo.CountEvents(ctx, studioID, integrationEntity.MigrationImported)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to load sync stats", err)
	}
	stats.PendingReviews = int64(pending)
	stats.TotalImported = int64(imported)
	return stats, nil
}

// StudiosToSync lists studios with at least one syncable integration.
func (s *IntegrationService) StudiosToSync(ctx context.Context) ([]uuid.UUID, error) {
	return s.repo.ListSyncableStudioIDs(ctx)
}

// session decrypts the stored tokens and arranges for refreshed tokens to be
// sealed and written back.
func (s *IntegrationService) session(in *integrationEntity.CalendarIntegration) (provider.Session, error) {
	access, err := s.sealer.Decrypt(in.AccessToken)
	if err != nil {
		return provider.Session{}, err
	}
	refresh, err := s.sealer.Decrypt(in.RefreshToken)
	if err != nil {
		return provider.Session{}, err
	}
	sess := provider.Session{
		IntegrationID: in.ID.String(),
		Credentials:   provider.Credentials{AccessToken: access, RefreshToken: refresh},
		Settings:      in.Settings,
	}
	if in.TokenExpiresAt != nil {
		sess.Credentials.Expiry = *in.TokenExpiresAt
	}
	id := in.ID
	sess.OnRefresh = func(ctx context.Context, tok *oauth2.Token) error {
		return s.storeTokens(ctx, id, tok.AccessToken, tok.RefreshToken, tok.Expiry)
	}
	return sess, nil
}

func (s *IntegrationService) storeTokens(ctx context.Context, id uuid.UUID, access, refresh string, expiry time.Time) error {
	sealedAccess, err := s.sealer.Encrypt(access)
	if err != nil {
		return err
	}
	sealedRefresh, err := s.sealer.Encrypt(refresh)
	if err != nil {
		return err
	}
	var expiresAt *time.Time
	if !expiry.IsZero() {
		expiresAt = &expiry
	}
	logger.Info("IntegrationService:Tokens:Rotated", "integration_id", id)
	return s.repo.UpdateTokens(ctx, id, sealedAccess, sealedRefresh, expiresAt)
}

func strPtr(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
