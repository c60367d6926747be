// Package exchange implements the two-step authorization-code exchange the
// marketplace platform requires: a company-scoped token first, then a
// location-scoped token minted from it. The location token pair is what the
// rest of the application uses.
package exchange

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/engageautomations/ghl-oauth-service/audit"
	"github.com/engageautomations/ghl-oauth-service/installations"
	svcerrors "github.com/engageautomations/ghl-oauth-service/internal/errors"
	"github.com/engageautomations/ghl-oauth-service/provider"
	"github.com/engageautomations/ghl-oauth-service/tokens"
)

// ProviderClient is the slice of the upstream client the engine needs.
type ProviderClient interface {
	ExchangeAuthorizationCode(ctx context.Context, code string) (*provider.TokenPayload, error)
	ExchangeLocationToken(ctx context.Context, companyToken, locationID string) (*provider.TokenPayload, error)
}

// Result is the outcome of a completed installation.
type Result struct {
	InstallationID string `json:"installation_id"`
	LocationID     string `json:"location_id"`
	CompanyID      string `json:"company_id,omitempty"`
	// Degraded is set when the upstream payload carried no installation id
	// and one had to be synthesized. The install works, but the identity
	// cannot be correlated with the marketplace's own record.
	Degraded bool `json:"degraded,omitempty"`
}

// Service orchestrates the exchange steps and writes results through the
// installation and token repos.
type Service struct {
	installationRepo installations.Repo
	tokenRepo        tokens.Repo
	client           ProviderClient
	auditLog         *audit.Logger
	log              zerolog.Logger
	nowTime          func() time.Time
	newAttemptID     func() string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithAttemptIDFunc overrides attempt id generation (primarily for testing).
func WithAttemptIDFunc(fn func() string) ServiceOption {
	return func(s *Service) {
		s.newAttemptID = fn
	}
}

// NewService creates the exchange engine.
func NewService(
	installationRepo installations.Repo,
	tokenRepo tokens.Repo,
	client ProviderClient,
	auditLog *audit.Logger,
	log zerolog.Logger,
	options ...ServiceOption,
) (*Service, error) {
	if installationRepo == nil {
		return nil, errors.New("[NewService] installation repo is required")
	}
	if tokenRepo == nil {
		return nil, errors.New("[NewService] token repo is required")
	}
	if client == nil {
		return nil, errors.New("[NewService] provider client is required")
	}
	if auditLog == nil {
		return nil, errors.New("[NewService] audit logger is required")
	}

	s := &Service{
		installationRepo: installationRepo,
		tokenRepo:        tokenRepo,
		client:           client,
		auditLog:         auditLog,
		log:              log.With().Str("component", "exchange").Logger(),
		nowTime:          time.Now,
		newAttemptID:     func() string { return uuid.New().String() },
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// PreRegister records an installation the moment its id is first observed
// at the marketplace entry point, before any exchange happens. Re-entry
// through the entry point never downgrades an installation already past
// pending; a revoked installation is reset to pending, since arriving here
// again means a brand new install observation.
func (s *Service) PreRegister(ctx context.Context, installationID string) error {
	if existing, err := s.installationRepo.Get(installationID); err == nil {
		if existing.Status != installations.StatusRevoked {
			return nil
		}
	}

	now := s.nowTime()
	if err := s.installationRepo.Upsert(installations.New(installationID, now)); err != nil {
		return svcerrors.Wrapf(svcerrors.ErrPersistence, "[PreRegister] %q: %v", installationID, err)
	}

	s.auditLog.Log(audit.Event{
		Level:          audit.LevelInfo,
		Category:       "install",
		Message:        "installation pre-registered",
		InstallationID: installationID,
	})
	return nil
}

// CompleteInstallation runs the full two-step exchange for an
// authorization code. observedInstallationID is the id seen at request
// time (state parameter); the id inside the token payload is canonical and
// wins when both are present.
func (s *Service) CompleteInstallation(ctx context.Context, authorizationCode, observedInstallationID string) (*Result, error) {
	attemptID := s.newAttemptID()

	// Step 1: no code, no network call.
	if authorizationCode == "" {
		s.auditLog.Log(audit.Event{
			Level:     audit.LevelError,
			Category:  "exchange",
			Message:   "missing authorization code",
			AttemptID: attemptID,
		})
		return nil, svcerrors.Wrapf(svcerrors.ErrInvalidRequest, "[CompleteInstallation] missing authorization code")
	}

	// Step 2: authorization code -> company-scoped token.
	companyPayload, err := s.client.ExchangeAuthorizationCode(ctx, authorizationCode)
	if err != nil {
		s.auditLog.Log(audit.Event{
			Level:          audit.LevelError,
			Category:       "exchange",
			Message:        "company token exchange failed",
			Data:           map[string]any{"error": err.Error()},
			InstallationID: observedInstallationID,
			AttemptID:      attemptID,
		})
		return nil, svcerrors.Wrapf(svcerrors.ErrUpstreamExchange, "[CompleteInstallation] company token exchange: %v", err)
	}

	// Step 3: the id in the payload is the canonical identity. The
	// observed id deduplicates against the pre-registered pending record;
	// a synthesized id is a flagged degraded path, never silent.
	installationID := companyPayload.InstallationID
	if installationID == "" {
		installationID = observedInstallationID
	}
	degraded := false
	if installationID == "" {
		installationID = uuid.New().String()
		degraded = true
		s.auditLog.Log(audit.Event{
			Level:          audit.LevelWarning,
			Category:       "exchange",
			Message:        "no installation id in payload or request, synthesized one",
			InstallationID: installationID,
			AttemptID:      attemptID,
		})
	}

	s.auditLog.Log(audit.Event{
		Level:    audit.LevelSuccess,
		Category: "exchange",
		Message:  "company token received",
		Data: map[string]any{
			"access_token": audit.Redact(companyPayload.AccessToken),
			"location_id":  companyPayload.LocationID,
			"company_id":   companyPayload.CompanyID,
		},
		InstallationID: installationID,
		LocationID:     companyPayload.LocationID,
		AttemptID:      attemptID,
	})

	// Step 4: a location token cannot be minted without a location id.
	locationID := companyPayload.LocationID
	if locationID == "" {
		s.auditLog.Log(audit.Event{
			Level:          audit.LevelError,
			Category:       "exchange",
			Message:        "no location id in company token payload",
			InstallationID: installationID,
			AttemptID:      attemptID,
		})
		return nil, svcerrors.Wrapf(svcerrors.ErrMissingLocationID, "[CompleteInstallation] %q", installationID)
	}

	// Step 5: installation goes active and the intermediate company token
	// is persisted for traceability. If step 6 fails the attempt is
	// resumable from here with a fresh code.
	now := s.nowTime()
	if err := s.upsertInstallation(installationID, installations.StatusActive, now); err != nil {
		return nil, err
	}
	companyRecord := &tokens.TokenRecord{
		InstallationID: installationID,
		AccessToken:    companyPayload.AccessToken,
		RefreshToken:   companyPayload.RefreshToken,
		LocationID:     locationID,
		CompanyID:      companyPayload.CompanyID,
		UserID:         companyPayload.UserID,
		ExpiresAt:      now.Add(time.Duration(companyPayload.ExpiresIn) * time.Second),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.tokenRepo.Upsert(companyRecord); err != nil {
		return nil, svcerrors.Wrapf(svcerrors.ErrPersistence, "[CompleteInstallation] persisting company token for %q: %v", installationID, err)
	}

	// Step 6: company token -> location-scoped token.
	locationPayload, err := s.client.ExchangeLocationToken(ctx, companyPayload.AccessToken, locationID)
	if err != nil {
		s.auditLog.Log(audit.Event{
			Level:          audit.LevelError,
			Category:       "exchange",
			Message:        "location token conversion failed, installation left active",
			Data:           map[string]any{"error": err.Error()},
			InstallationID: installationID,
			LocationID:     locationID,
			AttemptID:      attemptID,
		})
		return nil, svcerrors.Wrapf(svcerrors.ErrUpstreamExchange, "[CompleteInstallation] location token conversion: %v", err)
	}

	// Step 7: upsert the location token pair and mark the install complete.
	now = s.nowTime()
	record := &tokens.TokenRecord{
		InstallationID: installationID,
		AccessToken:    locationPayload.AccessToken,
		RefreshToken:   locationPayload.RefreshToken,
		LocationID:     firstNonEmpty(locationPayload.LocationID, locationID),
		CompanyID:      firstNonEmpty(locationPayload.CompanyID, companyPayload.CompanyID),
		UserID:         firstNonEmpty(locationPayload.UserID, companyPayload.UserID),
		ExpiresAt:      now.Add(time.Duration(locationPayload.ExpiresIn) * time.Second),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.tokenRepo.Upsert(record); err != nil {
		return nil, svcerrors.Wrapf(svcerrors.ErrPersistence, "[CompleteInstallation] persisting location token for %q: %v", installationID, err)
	}
	if err := s.upsertInstallation(installationID, installations.StatusCompleted, now); err != nil {
		return nil, err
	}

	s.auditLog.Log(audit.Event{
		Level:    audit.LevelSuccess,
		Category: "exchange",
		Message:  "installation completed",
		Data: map[string]any{
			"access_token": audit.Redact(locationPayload.AccessToken),
			"auth_class":   locationPayload.AuthClass,
			"expires_at":   record.ExpiresAt,
		},
		InstallationID: installationID,
		LocationID:     record.LocationID,
		AttemptID:      attemptID,
	})

	return &Result{
		InstallationID: installationID,
		LocationID:     record.LocationID,
		CompanyID:      record.CompanyID,
		Degraded:       degraded,
	}, nil
}

func (s *Service) upsertInstallation(installationID string, status installations.Status, now time.Time) error {
	installation := &installations.Installation{
		InstallationID: installationID,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.installationRepo.Upsert(installation); err != nil {
		return svcerrors.Wrapf(svcerrors.ErrPersistence, "[CompleteInstallation] upserting installation %q to %s: %v", installationID, status, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
