// Package database is the sqlite persistence layer behind the installation,
// token and audit repositories.
package database

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Store owns the sqlite handle shared by the repositories.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (or creates) the database file and applies migrations.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrapf(err, "[Open] opening %q", path)
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrapf(err, "[Open] pinging %q", path)
	}

	s := &Store{
		db:  db,
		log: log.With().Str("component", "database").Logger(),
	}
	if err := s.migrate(); err != nil {
		return nil, errors.Wrap(err, "[Open] migrating")
	}

	s.log.Info().Str("path", path).Msg("database ready")
	return s, nil
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Health pings the database.
func (s *Store) Health() error {
	return s.db.Ping()
}

func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS installations (
			installation_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS oauth_tokens (
			installation_id TEXT PRIMARY KEY,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL DEFAULT '',
			location_id TEXT NOT NULL DEFAULT '',
			company_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			expires_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (installation_id) REFERENCES installations (installation_id)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			level TEXT NOT NULL,
			category TEXT NOT NULL,
			message TEXT NOT NULL,
			data TEXT NOT NULL DEFAULT '{}',
			installation_id TEXT NOT NULL DEFAULT '',
			location_id TEXT NOT NULL DEFAULT '',
			attempt_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_oauth_tokens_expires_at ON oauth_tokens (expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_oauth_tokens_user_id ON oauth_tokens (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_oauth_tokens_location_id ON oauth_tokens (location_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_installation_id ON audit_events (installation_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return errors.Wrapf(err, "[migrate] %.40q", query)
		}
	}
	return nil
}
