package database

import (
	"encoding/json"
	"time"

	"github.com/engageautomations/ghl-oauth-service/audit"
	"github.com/pkg/errors"
)

var _ audit.Sink = (*AuditStore)(nil)

// AuditStore appends audit events to the audit_events table. The table is
// append-only; nothing in the service updates or deletes rows.
type AuditStore struct {
	store *Store
}

// NewAuditStore creates the sqlite-backed audit sink.
func NewAuditStore(store *Store) *AuditStore {
	return &AuditStore{store: store}
}

// Append writes one event.
func (a *AuditStore) Append(event audit.Event) error {
	data := "{}"
	if len(event.Data) > 0 {
		encoded, err := json.Marshal(event.Data)
		if err != nil {
			return errors.Wrap(err, "[Append] encoding event data")
		}
		data = string(encoded)
	}

	_, err := a.store.db.Exec(
		`INSERT INTO audit_events (timestamp, level, category, message, data,
			installation_id, location_id, attempt_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.Timestamp.UTC(), event.Level, event.Category, event.Message, data,
		event.InstallationID, event.LocationID, event.AttemptID,
	)
	return errors.Wrap(err, "[Append] inserting audit event")
}

// ListRecent returns the newest events, optionally filtered by
// installation id, newest first.
func (a *AuditStore) ListRecent(installationID string, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT timestamp, level, category, message, data,
		installation_id, location_id, attempt_id
		FROM audit_events`
	args := []any{}
	if installationID != "" {
		query += ` WHERE installation_id = ?`
		args = append(args, installationID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := a.store.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "[ListRecent] querying audit events")
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var event audit.Event
		var timestamp time.Time
		var data string
		if err := rows.Scan(&timestamp, &event.Level, &event.Category, &event.Message,
			&data, &event.InstallationID, &event.LocationID, &event.AttemptID); err != nil {
			return nil, errors.Wrap(err, "[ListRecent] scanning row")
		}
		event.Timestamp = timestamp
		if data != "" && data != "{}" {
			if err := json.Unmarshal([]byte(data), &event.Data); err != nil {
				return nil, errors.Wrap(err, "[ListRecent] decoding event data")
			}
		}
		events = append(events, event)
	}
	return events, errors.Wrap(rows.Err(), "[ListRecent] iterating rows")
}
