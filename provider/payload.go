package provider

// TokenPayload is the canonical, normalized form of an upstream token
// response. The platform is inconsistent about field naming across its
// endpoints (installation_id vs installationId, locationId vs location_id);
// every variant is resolved here, at the network boundary, so no other
// package ever sees them.
type TokenPayload struct {
	AccessToken    string
	RefreshToken   string
	TokenType      string
	Scope          string
	ExpiresIn      int
	InstallationID string
	LocationID     string
	CompanyID      string
	UserID         string
	AuthClass      string
}

// wirePayload mirrors the raw upstream JSON with every observed field-name
// variant.
type wirePayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int    `json:"expires_in"`
	AuthClass    string `json:"authClass"`

	InstallationID    string `json:"installation_id"`
	InstallationIDAlt string `json:"installationId"`
	LocationID        string `json:"locationId"`
	LocationIDAlt     string `json:"location_id"`
	CompanyID         string `json:"companyId"`
	CompanyIDAlt      string `json:"company_id"`
	UserID            string `json:"userId"`
	UserIDAlt         string `json:"user_id"`
}

func (w *wirePayload) normalize() *TokenPayload {
	return &TokenPayload{
		AccessToken:    w.AccessToken,
		RefreshToken:   w.RefreshToken,
		TokenType:      w.TokenType,
		Scope:          w.Scope,
		ExpiresIn:      w.ExpiresIn,
		AuthClass:      w.AuthClass,
		InstallationID: firstNonEmpty(w.InstallationID, w.InstallationIDAlt),
		LocationID:     firstNonEmpty(w.LocationID, w.LocationIDAlt),
		CompanyID:      firstNonEmpty(w.CompanyID, w.CompanyIDAlt),
		UserID:         firstNonEmpty(w.UserID, w.UserIDAlt),
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
