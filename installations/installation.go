package installations

import "time"

// Status tracks how far a marketplace installation has progressed through
// the OAuth flow.
type Status string

const (
	// StatusPending is set the moment an installation_id is first observed,
	// before any exchange with the upstream platform.
	StatusPending Status = "pending"
	// StatusActive means a code exchange has begun; the installation can be
	// resumed by retrying with a fresh authorization code.
	StatusActive Status = "active"
	// StatusCompleted means both exchange steps succeeded and a token
	// record exists for the installation.
	StatusCompleted Status = "completed"
	// StatusRevoked means the upstream grant was permanently rejected.
	// Only a brand new install (back to pending) leaves this state.
	StatusRevoked Status = "revoked"
)

// Installation is one customer's grant of this application within the
// marketplace, identified by the platform-issued installation id.
type Installation struct {
	InstallationID string    `json:"installation_id"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle step. Status only moves forward within an attempt; a reinstall
// restarts the cycle from completed, and revoked is terminal except for a
// brand new install observation.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusActive || next == StatusRevoked
	case StatusActive:
		return next == StatusCompleted || next == StatusRevoked
	case StatusCompleted:
		return next == StatusActive || next == StatusPending || next == StatusRevoked
	case StatusRevoked:
		return next == StatusPending
	}
	return false
}

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusRevoked:
		return true
	}
	return false
}

// Usable reports whether sessions may be minted against the installation.
func (i *Installation) Usable() bool {
	return i.Status == StatusActive || i.Status == StatusCompleted
}

// New creates an installation in the pending state.
func New(installationID string, now time.Time) *Installation {
	return &Installation{
		InstallationID: installationID,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
