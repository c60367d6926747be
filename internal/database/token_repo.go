package database

import (
	"database/sql"
	"time"

	svcerrors "github.com/engageautomations/ghl-oauth-service/internal/errors"
	"github.com/engageautomations/ghl-oauth-service/tokens"
	"github.com/pkg/errors"
)

var _ tokens.Repo = (*TokenRepo)(nil)

// TokenRepo stores token records in the oauth_tokens table, one row per
// installation.
type TokenRepo struct {
	store *Store
}

// NewTokenRepo creates the sqlite-backed token repo.
func NewTokenRepo(store *Store) *TokenRepo {
	return &TokenRepo{store: store}
}

const tokenColumns = `installation_id, access_token, refresh_token, location_id,
	company_id, user_id, expires_at, created_at, updated_at`

// Upsert replaces the whole record for the installation. created_at of an
// existing row is preserved; the single-statement write keeps readers from
// ever observing a half-written record.
func (r *TokenRepo) Upsert(record *tokens.TokenRecord) error {
	_, err := r.store.db.Exec(
		`INSERT INTO oauth_tokens (`+tokenColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (installation_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			location_id = excluded.location_id,
			company_id = excluded.company_id,
			user_id = excluded.user_id,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		record.InstallationID, record.AccessToken, record.RefreshToken,
		record.LocationID, record.CompanyID, record.UserID,
		record.ExpiresAt.UTC(), record.CreatedAt.UTC(), record.UpdatedAt.UTC(),
	)
	return errors.Wrapf(err, "[Upsert] writing token record for %q", record.InstallationID)
}

// Get returns the record or ErrTokenNotFound.
func (r *TokenRepo) Get(installationID string) (*tokens.TokenRecord, error) {
	return r.queryOne(
		`SELECT `+tokenColumns+` FROM oauth_tokens WHERE installation_id = ?`,
		installationID,
	)
}

// FindExpiringBefore returns refreshable records expiring before ts,
// soonest first. Records without a refresh token are excluded; they need a
// reauthorization, not a refresh.
func (r *TokenRepo) FindExpiringBefore(ts time.Time) ([]*tokens.TokenRecord, error) {
	rows, err := r.store.db.Query(
		`SELECT `+tokenColumns+` FROM oauth_tokens
		 WHERE expires_at < ? AND refresh_token != ''
		 ORDER BY expires_at`,
		ts.UTC(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[FindExpiringBefore] querying tokens")
	}
	defer rows.Close()

	var expiring []*tokens.TokenRecord
	for rows.Next() {
		record, err := scanToken(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "[FindExpiringBefore] scanning row")
		}
		expiring = append(expiring, record)
	}
	return expiring, errors.Wrap(rows.Err(), "[FindExpiringBefore] iterating rows")
}

// FindByUserID returns the most recently updated record for the user.
func (r *TokenRepo) FindByUserID(userID string) (*tokens.TokenRecord, error) {
	if userID == "" {
		return nil, svcerrors.ErrTokenNotFound
	}
	return r.queryOne(
		`SELECT `+tokenColumns+` FROM oauth_tokens
		 WHERE user_id = ? ORDER BY updated_at DESC LIMIT 1`,
		userID,
	)
}

// FindByLocationID returns the most recently updated record for the location.
func (r *TokenRepo) FindByLocationID(locationID string) (*tokens.TokenRecord, error) {
	if locationID == "" {
		return nil, svcerrors.ErrTokenNotFound
	}
	return r.queryOne(
		`SELECT `+tokenColumns+` FROM oauth_tokens
		 WHERE location_id = ? ORDER BY updated_at DESC LIMIT 1`,
		locationID,
	)
}

// Delete removes the record or returns ErrTokenNotFound.
func (r *TokenRepo) Delete(installationID string) error {
	result, err := r.store.db.Exec(`DELETE FROM oauth_tokens WHERE installation_id = ?`, installationID)
	if err != nil {
		return errors.Wrapf(err, "[Delete] deleting token record for %q", installationID)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "[Delete] reading affected rows")
	}
	if affected == 0 {
		return svcerrors.ErrTokenNotFound
	}
	return nil
}

func (r *TokenRepo) queryOne(query string, arg any) (*tokens.TokenRecord, error) {
	record, err := scanToken(r.store.db.QueryRow(query, arg).Scan)
	if err == sql.ErrNoRows {
		return nil, svcerrors.ErrTokenNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[queryOne] reading token record")
	}
	return record, nil
}

func scanToken(scan func(dest ...any) error) (*tokens.TokenRecord, error) {
	record := &tokens.TokenRecord{}
	err := scan(
		&record.InstallationID, &record.AccessToken, &record.RefreshToken,
		&record.LocationID, &record.CompanyID, &record.UserID,
		&record.ExpiresAt, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}
