// Package sessions issues and validates the signed, stateless credentials
// used by browser clients embedded in the platform's iframe, and recovers a
// session from out-of-band hints when the primary cookie is unavailable
// (different device, partitioned storage, long-lived embed).
package sessions

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/engageautomations/ghl-oauth-service/audit"
	"github.com/engageautomations/ghl-oauth-service/installations"
	svcerrors "github.com/engageautomations/ghl-oauth-service/internal/errors"
	"github.com/engageautomations/ghl-oauth-service/tokens"
)

// TokenRefresher is the slice of the token manager the session path needs
// for its synchronous expired-token refresh.
type TokenRefresher interface {
	Refresh(ctx context.Context, installationID string) (*tokens.TokenRecord, error)
}

// Manager is the per-request session state machine.
type Manager struct {
	installationRepo installations.Repo
	tokenRepo        tokens.Repo
	refresher        TokenRefresher
	auditLog         *audit.Logger
	log              zerolog.Logger
	secret           []byte
	expiry           time.Duration
	nowTime          func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// NewManager creates a session manager. secret signs credentials; expiry
// bounds their lifetime.
func NewManager(
	installationRepo installations.Repo,
	tokenRepo tokens.Repo,
	refresher TokenRefresher,
	auditLog *audit.Logger,
	log zerolog.Logger,
	secret string,
	expiry time.Duration,
	options ...ManagerOption,
) (*Manager, error) {
	if installationRepo == nil {
		return nil, errors.New("[NewManager] installation repo is required")
	}
	if tokenRepo == nil {
		return nil, errors.New("[NewManager] token repo is required")
	}
	if refresher == nil {
		return nil, errors.New("[NewManager] token refresher is required")
	}
	if auditLog == nil {
		return nil, errors.New("[NewManager] audit logger is required")
	}
	if secret == "" {
		return nil, errors.New("[NewManager] signing secret is required")
	}

	m := &Manager{
		installationRepo: installationRepo,
		tokenRepo:        tokenRepo,
		refresher:        refresher,
		auditLog:         auditLog,
		log:              log.With().Str("component", "sessions").Logger(),
		secret:           []byte(secret),
		expiry:           expiry,
		nowTime:          time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Mint signs a fresh credential for the installation.
func (m *Manager) Mint(installationID, locationID, userID string, recovered bool) (string, error) {
	now := m.nowTime()
	claims := Claims{
		InstallationID: installationID,
		LocationID:     locationID,
		UserID:         userID,
		Recovered:      recovered,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", errors.Wrap(err, "[Mint] signing credential")
	}
	return signed, nil
}

// Validate checks signature and expiry, then verifies the referenced
// installation is still live. A credential pointing at a revoked or
// missing installation is rejected even with a valid signature.
func (m *Manager) Validate(ctx context.Context, credential string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.nowTime))
	if err != nil || !parsed.Valid {
		return nil, svcerrors.Wrapf(svcerrors.ErrInvalidCredential, "[Validate] %v", err)
	}

	installation, err := m.installationRepo.Get(claims.InstallationID)
	if err != nil {
		return nil, svcerrors.Wrapf(svcerrors.ErrInstallationNotFound, "[Validate] %q", claims.InstallationID)
	}
	if !installation.Usable() {
		return nil, svcerrors.Wrapf(svcerrors.ErrInstallationRevoked, "[Validate] %q is %s", claims.InstallationID, installation.Status)
	}

	return claims, nil
}

// Check runs the per-request state machine. It never raises: every failure
// degrades to an unauthenticated result, since this path guards all
// embedded-client requests.
func (m *Manager) Check(ctx context.Context, req CheckRequest) *CheckResult {
	if req.Credential != "" {
		if result := m.checkCredential(ctx, req.Credential); result != nil {
			return result
		}
	}

	if result := m.recover(ctx, req); result != nil {
		return result
	}

	return &CheckResult{
		Authenticated: false,
		CanRecover:    false,
		Status:        StatusNeedsInstallation,
	}
}

// checkCredential handles the primary-credential path. A nil return means
// the credential was unusable and recovery should be attempted.
func (m *Manager) checkCredential(ctx context.Context, credential string) *CheckResult {
	claims, err := m.Validate(ctx, credential)
	if err != nil {
		m.log.Debug().Err(err).Msg("credential rejected, falling through to recovery")
		return nil
	}

	record, err := m.tokenRepo.Get(claims.InstallationID)
	if err != nil {
		m.log.Debug().Err(err).Str("installation_id", claims.InstallationID).Msg("no token behind valid credential")
		return nil
	}

	if record.ExpiresWithin(m.nowTime(), 0) {
		if !record.Refreshable() {
			return &CheckResult{
				Authenticated: false,
				CanRecover:    false,
				Status:        StatusNeedsReauth,
			}
		}
		if record, err = m.refresher.Refresh(ctx, claims.InstallationID); err != nil {
			m.log.Warn().Err(err).Str("installation_id", claims.InstallationID).Msg("synchronous refresh failed on session path")
			return &CheckResult{
				Authenticated: false,
				CanRecover:    false,
				Status:        StatusNeedsReauth,
			}
		}
	}

	// Re-mint so the browser's expiry window slides forward.
	fresh, err := m.Mint(claims.InstallationID, record.LocationID, claims.UserID, false)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to re-mint session credential")
		fresh = credential
	}

	return &CheckResult{
		Authenticated: true,
		CanRecover:    true,
		Status:        StatusAuthenticated,
		Credential:    fresh,
		Claims:        claims,
		DisplayInfo: &DisplayInfo{
			InstallationID: claims.InstallationID,
			LocationID:     record.LocationID,
		},
	}
}

// recover resolves an installation from out-of-band hints, in priority
// order: explicit user id, then location id, then installation id. A nil
// return means no hint matched.
func (m *Manager) recover(ctx context.Context, req CheckRequest) *CheckResult {
	record := m.resolveHint(req)
	if record == nil {
		return nil
	}

	installation, err := m.installationRepo.Get(record.InstallationID)
	if err != nil || !installation.Usable() {
		return nil
	}

	credential, err := m.Mint(record.InstallationID, record.LocationID, record.UserID, true)
	if err != nil {
		m.log.Error().Err(err).Str("installation_id", record.InstallationID).Msg("failed to mint recovered credential")
		return nil
	}

	m.auditLog.Log(audit.Event{
		Level:          audit.LevelInfo,
		Category:       "session",
		Message:        "session recovered from hint",
		Data:           map[string]any{"recovered": true},
		InstallationID: record.InstallationID,
		LocationID:     record.LocationID,
	})

	return &CheckResult{
		Authenticated: true,
		CanRecover:    true,
		Recovered:     true,
		Status:        StatusAuthenticated,
		Credential:    credential,
		DisplayInfo: &DisplayInfo{
			InstallationID: record.InstallationID,
			LocationID:     record.LocationID,
			Recovered:      true,
		},
	}
}

func (m *Manager) resolveHint(req CheckRequest) *tokens.TokenRecord {
	if req.UserID != "" {
		if record, err := m.tokenRepo.FindByUserID(req.UserID); err == nil {
			return record
		}
	}
	if req.LocationID != "" {
		if record, err := m.tokenRepo.FindByLocationID(req.LocationID); err == nil {
			return record
		}
	}
	if req.InstallationID != "" {
		if record, err := m.tokenRepo.Get(req.InstallationID); err == nil {
			return record
		}
	}
	return nil
}
