package tokens

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/engageautomations/ghl-oauth-service/audit"
	"github.com/engageautomations/ghl-oauth-service/installations"
	svcerrors "github.com/engageautomations/ghl-oauth-service/internal/errors"
	"github.com/engageautomations/ghl-oauth-service/provider"
)

// RefreshClient is the slice of the upstream client the manager needs.
type RefreshClient interface {
	RefreshToken(ctx context.Context, refreshToken string) (*provider.TokenPayload, error)
}

// Manager owns stored tokens: it refreshes them through the upstream
// refresh grant and is the only path the rest of the application may use
// to reach an access token.
type Manager struct {
	installationRepo installations.Repo
	repo             Repo
	client           RefreshClient
	auditLog         *audit.Logger
	log              zerolog.Logger
	nowTime          func() time.Time
	skew             time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithAccessTokenSkew sets the padding window applied when deciding
// whether a token needs a synchronous refresh before being handed out.
func WithAccessTokenSkew(skew time.Duration) ManagerOption {
	return func(m *Manager) {
		m.skew = skew
	}
}

// NewManager creates a token manager.
func NewManager(
	installationRepo installations.Repo,
	repo Repo,
	client RefreshClient,
	auditLog *audit.Logger,
	log zerolog.Logger,
	options ...ManagerOption,
) (*Manager, error) {
	if installationRepo == nil {
		return nil, errors.New("[NewManager] installation repo is required")
	}
	if repo == nil {
		return nil, errors.New("[NewManager] token repo is required")
	}
	if client == nil {
		return nil, errors.New("[NewManager] refresh client is required")
	}
	if auditLog == nil {
		return nil, errors.New("[NewManager] audit logger is required")
	}

	m := &Manager{
		installationRepo: installationRepo,
		repo:             repo,
		client:           client,
		auditLog:         auditLog,
		log:              log.With().Str("component", "tokens").Logger(),
		nowTime:          time.Now,
		skew:             5 * time.Minute,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// GetValidAccessToken returns a usable access token for the installation,
// refreshing synchronously when the stored one is expired or about to
// expire. This is the collaborator contract exposed to the rest of the
// application; nothing else reads stored tokens.
func (m *Manager) GetValidAccessToken(ctx context.Context, installationID string) (string, error) {
	record, err := m.repo.Get(installationID)
	if err != nil {
		return "", svcerrors.Wrapf(svcerrors.ErrTokenNotFound, "[GetValidAccessToken] %q", installationID)
	}

	if !record.ExpiresWithin(m.nowTime(), m.skew) {
		return record.AccessToken, nil
	}

	if !record.Refreshable() {
		return "", svcerrors.Wrapf(svcerrors.ErrTokenExpiredNoRefresh, "[GetValidAccessToken] %q", installationID)
	}

	refreshed, err := m.Refresh(ctx, installationID)
	if err != nil {
		return "", errors.Wrap(err, "[GetValidAccessToken] synchronous refresh failed")
	}
	return refreshed.AccessToken, nil
}

// Refresh performs the refresh-token grant for one installation and
// replaces the stored record. A permanent invalid_grant rejection revokes
// the installation; transient failures leave the stale record in place for
// a later retry.
func (m *Manager) Refresh(ctx context.Context, installationID string) (*TokenRecord, error) {
	record, err := m.repo.Get(installationID)
	if err != nil {
		return nil, svcerrors.Wrapf(svcerrors.ErrTokenNotFound, "[Refresh] %q", installationID)
	}

	if !record.Refreshable() {
		return nil, svcerrors.Wrapf(svcerrors.ErrTokenExpiredNoRefresh, "[Refresh] %q", installationID)
	}

	payload, err := m.client.RefreshToken(ctx, record.RefreshToken)
	if err != nil {
		if provider.IsInvalidGrant(err) {
			m.revoke(installationID)
			m.auditLog.Log(audit.Event{
				Level:          audit.LevelError,
				Category:       "refresh",
				Message:        "refresh grant permanently rejected, installation revoked",
				InstallationID: installationID,
				LocationID:     record.LocationID,
			})
			return nil, errors.Wrapf(err, "[Refresh] grant revoked for %q", installationID)
		}

		m.auditLog.Log(audit.Event{
			Level:          audit.LevelWarning,
			Category:       "refresh",
			Message:        "refresh failed, keeping stale record",
			Data:           map[string]any{"error": err.Error()},
			InstallationID: installationID,
			LocationID:     record.LocationID,
		})
		return nil, svcerrors.Wrapf(svcerrors.ErrRefreshFailed, "[Refresh] upstream refresh for %q: %v", installationID, err)
	}

	now := m.nowTime()
	updated := &TokenRecord{
		InstallationID: installationID,
		AccessToken:    payload.AccessToken,
		// Some providers omit the refresh token on rotation; keep the old
		// one in that case so the installation stays refreshable.
		RefreshToken: firstNonEmpty(payload.RefreshToken, record.RefreshToken),
		LocationID:   firstNonEmpty(payload.LocationID, record.LocationID),
		CompanyID:    firstNonEmpty(payload.CompanyID, record.CompanyID),
		UserID:       firstNonEmpty(payload.UserID, record.UserID),
		ExpiresAt:    now.Add(time.Duration(payload.ExpiresIn) * time.Second),
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    now,
	}

	if err := m.repo.Upsert(updated); err != nil {
		return nil, svcerrors.Wrapf(svcerrors.ErrPersistence, "[Refresh] storing refreshed token for %q: %v", installationID, err)
	}

	m.auditLog.Log(audit.Event{
		Level:          audit.LevelSuccess,
		Category:       "refresh",
		Message:        "token refreshed",
		Data:           map[string]any{"access_token": audit.Redact(payload.AccessToken), "expires_at": updated.ExpiresAt},
		InstallationID: installationID,
		LocationID:     updated.LocationID,
	})

	return updated, nil
}

// revoke marks the installation revoked and removes its token record. The
// record must go too, or the sweep would keep selecting the dead refresh
// token forever.
func (m *Manager) revoke(installationID string) {
	if err := m.repo.Delete(installationID); err != nil {
		m.log.Warn().Err(err).Str("installation_id", installationID).Msg("failed to delete token record on revocation")
	}

	installation, err := m.installationRepo.Get(installationID)
	if err != nil {
		m.log.Warn().Err(err).Str("installation_id", installationID).Msg("cannot revoke unknown installation")
		return
	}
	installation.Status = installations.StatusRevoked
	installation.UpdatedAt = m.nowTime()
	if err := m.installationRepo.Upsert(installation); err != nil {
		m.log.Error().Err(err).Str("installation_id", installationID).Msg("failed to mark installation revoked")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
