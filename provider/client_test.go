package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/engageautomations/ghl-oauth-service/provider"
)

// stubOAuthConfig satisfies config.OAuthConfig against a test server.
type stubOAuthConfig struct {
	baseURL string
}

func (s stubOAuthConfig) GetClientID() string                { return "client-1" }
func (s stubOAuthConfig) GetClientSecret() string            { return "secret-1" }
func (s stubOAuthConfig) GetRedirectURI() string             { return "http://localhost/oauth/callback" }
func (s stubOAuthConfig) GetAuthorizeURL() string            { return s.baseURL + "/oauth/chooselocation" }
func (s stubOAuthConfig) GetTokenURL() string                { return s.baseURL + "/oauth/token" }
func (s stubOAuthConfig) GetLocationTokenURL() string        { return s.baseURL + "/oauth/locationToken" }
func (s stubOAuthConfig) GetScopes() []string                { return []string{"contacts.readonly"} }
func (s stubOAuthConfig) GetUpstreamTimeout() time.Duration  { return time.Second }
func (s stubOAuthConfig) GetRefreshSchedule() string         { return "0 * * * *" }
func (s stubOAuthConfig) GetRefreshLookahead() time.Duration { return 2 * time.Hour }
func (s stubOAuthConfig) GetAccessTokenSkew() time.Duration  { return 5 * time.Minute }

func newTestClient(t *testing.T, handler http.HandlerFunc) *provider.Client {
	t.Helper()
	testServer := httptest.NewServer(handler)
	t.Cleanup(testServer.Close)
	return provider.NewClient(stubOAuthConfig{baseURL: testServer.URL}, zerolog.Nop())
}

func TestExchangeAuthorizationCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		require.Equal(t, "code-1", r.PostForm.Get("code"))
		require.Equal(t, "client-1", r.PostForm.Get("client_id"))
		require.Equal(t, "secret-1", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "access-1",
			"refresh_token": "refresh-1",
			"expires_in": 86399,
			"locationId": "loc-1",
			"companyId": "comp-1",
			"userId": "user-1",
			"installationId": "inst-1"
		}`))
	})

	payload, err := client.ExchangeAuthorizationCode(context.Background(), "code-1")
	require.NoError(t, err)
	require.Equal(t, "access-1", payload.AccessToken)
	require.Equal(t, "refresh-1", payload.RefreshToken)
	require.Equal(t, 86399, payload.ExpiresIn)
	require.Equal(t, "loc-1", payload.LocationID)
	require.Equal(t, "comp-1", payload.CompanyID)
	require.Equal(t, "user-1", payload.UserID)
	require.Equal(t, "inst-1", payload.InstallationID)
}

func TestPayloadFieldNameVariants(t *testing.T) {
	// The snake_case variants must normalize identically to the camelCase
	// ones.
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "access-1",
			"installation_id": "inst-1",
			"location_id": "loc-1",
			"company_id": "comp-1",
			"user_id": "user-1"
		}`))
	})

	payload, err := client.ExchangeAuthorizationCode(context.Background(), "code-1")
	require.NoError(t, err)
	require.Equal(t, "inst-1", payload.InstallationID)
	require.Equal(t, "loc-1", payload.LocationID)
	require.Equal(t, "comp-1", payload.CompanyID)
	require.Equal(t, "user-1", payload.UserID)
}

func TestExchangeLocationToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/locationToken", r.URL.Path)
		require.Equal(t, "Bearer company-access", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		require.Equal(t, "loc-1", r.PostForm.Get("locationId"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "location-access",
			"refresh_token": "location-refresh",
			"expires_in": 86399,
			"locationId": "loc-1",
			"authClass": "Location"
		}`))
	})

	payload, err := client.ExchangeLocationToken(context.Background(), "company-access", "loc-1")
	require.NoError(t, err)
	require.Equal(t, "location-access", payload.AccessToken)
	require.Equal(t, "Location", payload.AuthClass)
}

func TestUpstreamErrorSurfaced(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant", "error_description": "Code expired"}`))
	})

	_, err := client.RefreshToken(context.Background(), "refresh-1")
	require.Error(t, err)
	require.True(t, provider.IsInvalidGrant(err))

	var upstreamErr *provider.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, http.StatusBadRequest, upstreamErr.StatusCode)
	require.Equal(t, "Code expired", upstreamErr.Description)
}

func TestUpstreamMessageFieldUsedWhenDescriptionMissing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "Invalid token"}`))
	})

	_, err := client.RefreshToken(context.Background(), "refresh-1")
	var upstreamErr *provider.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, "Invalid token", upstreamErr.Description)
	require.False(t, provider.IsInvalidGrant(err))
	require.False(t, provider.IsTransient(err))
}

func TestTransientClassification(t *testing.T) {
	require.True(t, (&provider.UpstreamError{StatusCode: 503}).Transient())
	require.True(t, (&provider.UpstreamError{StatusCode: 429}).Transient())
	require.False(t, (&provider.UpstreamError{StatusCode: 400}).Transient())
}

func TestAuthorizeURLCarriesInstallationID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	authorizeURL := client.AuthorizeURL("inst-1")
	require.Contains(t, authorizeURL, "/oauth/chooselocation")
	require.Contains(t, authorizeURL, "state=inst-1")
	require.Contains(t, authorizeURL, "client_id=client-1")
}
