package tokens

import "time"

// TokenRecord is the stored access/refresh token pair for one installation.
// There is at most one record per installation; every successful exchange or
// refresh replaces the whole record rather than appending.
type TokenRecord struct {
	InstallationID string    `json:"installation_id"`
	AccessToken    string    `json:"-"`
	RefreshToken   string    `json:"-"`
	LocationID     string    `json:"location_id"`
	CompanyID      string    `json:"company_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ExpiresWithin reports whether the access token is expired, or will expire
// inside the given padding window.
func (r *TokenRecord) ExpiresWithin(now time.Time, padding time.Duration) bool {
	return !r.ExpiresAt.After(now.Add(padding))
}

// Refreshable reports whether the record carries a refresh token. Records
// without one cannot be refreshed and need a full reauthorization instead.
func (r *TokenRecord) Refreshable() bool {
	return r.RefreshToken != ""
}
