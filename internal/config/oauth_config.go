package config

import (
	"strings"
	"time"
)

// OAuthConfig describes the upstream GoHighLevel OAuth endpoints and the
// timing policy around token exchange and refresh.
type OAuthConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetRedirectURI() string
	GetAuthorizeURL() string
	GetTokenURL() string
	GetLocationTokenURL() string
	GetScopes() []string
	GetUpstreamTimeout() time.Duration
	GetRefreshSchedule() string
	GetRefreshLookahead() time.Duration
	GetAccessTokenSkew() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetClientID() string {
	return GetEnv("GHL_CLIENT_ID", "")
}

func (OAuth) GetClientSecret() string {
	return GetEnv("GHL_CLIENT_SECRET", "")
}

func (o OAuth) GetRedirectURI() string {
	return GetEnv("GHL_REDIRECT_URI", EnvVars{}.GetBaseURL()+"/oauth/callback")
}

// GetAuthorizeURL is the marketplace choose-location page the browser is
// sent to when an install begins.
func (OAuth) GetAuthorizeURL() string {
	return GetEnv("GHL_AUTHORIZE_URL", "https://marketplace.gohighlevel.com/oauth/chooselocation")
}

func (OAuth) GetTokenURL() string {
	return GetEnv("GHL_TOKEN_URL", "https://services.leadconnectorhq.com/oauth/token")
}

func (OAuth) GetLocationTokenURL() string {
	return GetEnv("GHL_LOCATION_TOKEN_URL", "https://services.leadconnectorhq.com/oauth/locationToken")
}

func (OAuth) GetScopes() []string {
	scopes := GetEnv("GHL_SCOPES",
		"products.write products.readonly products/prices.write products/prices.readonly "+
			"medias.write medias.readonly locations.readonly contacts.readonly contacts.write")
	return strings.Fields(scopes)
}

func (OAuth) GetUpstreamTimeout() time.Duration {
	return 15 * time.Second
}

// GetRefreshSchedule is a cron spec; the default sweeps hourly.
func (OAuth) GetRefreshSchedule() string {
	return GetEnv("TOKEN_REFRESH_SCHEDULE", "0 * * * *")
}

// GetRefreshLookahead is how far ahead of expiry the background sweep
// refreshes tokens.
func (OAuth) GetRefreshLookahead() time.Duration {
	return 2 * time.Hour
}

// GetAccessTokenSkew is the padding applied on the request path: a token
// expiring within this window is refreshed before being handed out.
func (OAuth) GetAccessTokenSkew() time.Duration {
	return 5 * time.Minute
}
