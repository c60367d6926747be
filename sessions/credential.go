package sessions

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of a session credential. Credentials are stateless:
// nothing here is looked up in a server-side session table, only verified
// against the signature, the expiry, and the referenced installation's
// current status.
type Claims struct {
	InstallationID string `json:"installation_id"`
	LocationID     string `json:"location_id"`
	UserID         string `json:"ghl_user_id,omitempty"`
	Recovered      bool   `json:"recovered,omitempty"`
	jwt.RegisteredClaims
}

// Status is the outcome category of a session check, telling the embedded
// client which prompt to show. Reauthorization and installation are
// deliberately distinct: "please reauthorize" must never be conflated with
// "please install".
type Status string

const (
	StatusAuthenticated     Status = "authenticated"
	StatusNeedsReauth       Status = "needsReauth"
	StatusNeedsInstallation Status = "needsInstallation"
)

// DisplayInfo is the non-sensitive metadata mirrored into a
// script-readable companion cookie for UI convenience. It never carries a
// token.
type DisplayInfo struct {
	InstallationID string `json:"installation_id"`
	LocationID     string `json:"location_id"`
	Recovered      bool   `json:"recovered,omitempty"`
}

// CheckRequest carries everything a request can present for
// identification: the primary credential plus any recovery hints supplied
// by the hosting platform.
type CheckRequest struct {
	Credential     string
	UserID         string
	LocationID     string
	InstallationID string
}

// CheckResult is the outcome of the per-request session state machine.
type CheckResult struct {
	Authenticated bool         `json:"authenticated"`
	CanRecover    bool         `json:"canRecover"`
	Recovered     bool         `json:"recovered,omitempty"`
	Status        Status       `json:"status"`
	Credential    string       `json:"-"`
	Claims        *Claims      `json:"-"`
	DisplayInfo   *DisplayInfo `json:"user,omitempty"`
}
