package database

import (
	"database/sql"
	"time"

	"github.com/engageautomations/ghl-oauth-service/installations"
	svcerrors "github.com/engageautomations/ghl-oauth-service/internal/errors"
	"github.com/pkg/errors"
)

var _ installations.Repo = (*InstallationRepo)(nil)

// InstallationRepo stores installations in the installations table.
type InstallationRepo struct {
	store *Store
}

// NewInstallationRepo creates the sqlite-backed installation repo.
func NewInstallationRepo(store *Store) *InstallationRepo {
	return &InstallationRepo{store: store}
}

// Upsert inserts or replaces the installation. Transition legality is
// checked against the stored row inside the same transaction, and
// created_at of an existing row is preserved.
func (r *InstallationRepo) Upsert(installation *installations.Installation) error {
	tx, err := r.store.db.Begin()
	if err != nil {
		return errors.Wrap(err, "[Upsert] beginning transaction")
	}
	defer tx.Rollback()

	var currentStatus string
	err = tx.QueryRow(
		`SELECT status FROM installations WHERE installation_id = ?`,
		installation.InstallationID,
	).Scan(&currentStatus)
	switch {
	case err == sql.ErrNoRows:
		// first observation, any valid status may be written
	case err != nil:
		return errors.Wrapf(err, "[Upsert] reading current status of %q", installation.InstallationID)
	default:
		if !installations.Status(currentStatus).CanTransitionTo(installation.Status) {
			return svcerrors.Wrapf(svcerrors.ErrInvalidTransition, "cannot move %q from %s to %s",
				installation.InstallationID, currentStatus, installation.Status)
		}
	}

	_, err = tx.Exec(
		`INSERT INTO installations (installation_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (installation_id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at`,
		installation.InstallationID, string(installation.Status),
		installation.CreatedAt.UTC(), installation.UpdatedAt.UTC(),
	)
	if err != nil {
		return errors.Wrapf(err, "[Upsert] writing installation %q", installation.InstallationID)
	}

	return errors.Wrap(tx.Commit(), "[Upsert] committing")
}

// Get returns the installation or ErrInstallationNotFound.
func (r *InstallationRepo) Get(installationID string) (*installations.Installation, error) {
	installation := &installations.Installation{}
	var status string
	err := r.store.db.QueryRow(
		`SELECT installation_id, status, created_at, updated_at
		 FROM installations WHERE installation_id = ?`,
		installationID,
	).Scan(&installation.InstallationID, &status, &installation.CreatedAt, &installation.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, svcerrors.ErrInstallationNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[Get] reading installation %q", installationID)
	}
	installation.Status = installations.Status(status)
	return installation, nil
}

// List returns installations ordered by creation time.
func (r *InstallationRepo) List(offset, limit int) ([]*installations.Installation, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.store.db.Query(
		`SELECT installation_id, status, created_at, updated_at
		 FROM installations ORDER BY created_at LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, errors.Wrap(err, "[List] querying installations")
	}
	defer rows.Close()

	var all []*installations.Installation
	for rows.Next() {
		installation := &installations.Installation{}
		var status string
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&installation.InstallationID, &status, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "[List] scanning row")
		}
		installation.Status = installations.Status(status)
		installation.CreatedAt = createdAt
		installation.UpdatedAt = updatedAt
		all = append(all, installation)
	}
	return all, errors.Wrap(rows.Err(), "[List] iterating rows")
}
