// Package provider is the HTTP client for the upstream platform's OAuth
// endpoints: the authorization-code and refresh-token grants on
// /oauth/token, and the company-to-location token conversion on
// /oauth/locationToken.
package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/engageautomations/ghl-oauth-service/internal/config"
)

// Client talks to the platform's OAuth endpoints. All methods are safe for
// concurrent use.
type Client struct {
	httpClient       *http.Client
	oauth            *oauth2.Config
	tokenURL         string
	locationTokenURL string
	clientID         string
	clientSecret     string
	redirectURI      string
	log              zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (primarily for testing).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a provider client from the OAuth configuration.
func NewClient(cfg config.OAuthConfig, log zerolog.Logger, options ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.GetUpstreamTimeout(),
		},
		oauth: &oauth2.Config{
			ClientID:     cfg.GetClientID(),
			ClientSecret: cfg.GetClientSecret(),
			RedirectURL:  cfg.GetRedirectURI(),
			Scopes:       cfg.GetScopes(),
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.GetAuthorizeURL(),
				TokenURL: cfg.GetTokenURL(),
			},
		},
		tokenURL:         cfg.GetTokenURL(),
		locationTokenURL: cfg.GetLocationTokenURL(),
		clientID:         cfg.GetClientID(),
		clientSecret:     cfg.GetClientSecret(),
		redirectURI:      cfg.GetRedirectURI(),
		log:              log.With().Str("component", "provider").Logger(),
	}

	for _, opt := range options {
		opt(c)
	}
	return c
}

// AuthorizeURL builds the marketplace choose-location URL the browser is
// redirected to. The installation id rides in the state parameter so the
// callback can correlate the grant with the pre-registered install.
func (c *Client) AuthorizeURL(installationID string) string {
	return c.oauth.AuthCodeURL(installationID)
}

// ExchangeAuthorizationCode performs the authorization_code grant and
// returns the company-scoped token payload.
func (c *Client) ExchangeAuthorizationCode(ctx context.Context, code string) (*TokenPayload, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"redirect_uri":  {c.redirectURI},
	}

	payload, err := c.postForm(ctx, c.tokenURL, "", form)
	if err != nil {
		return nil, errors.Wrap(err, "[ExchangeAuthorizationCode] code exchange failed")
	}
	return payload, nil
}

// ExchangeLocationToken converts a company-scoped token into a
// location-scoped one, authenticated with the company token itself.
func (c *Client) ExchangeLocationToken(ctx context.Context, companyToken, locationID string) (*TokenPayload, error) {
	form := url.Values{
		"locationId": {locationID},
	}

	payload, err := c.postForm(ctx, c.locationTokenURL, companyToken, form)
	if err != nil {
		return nil, errors.Wrap(err, "[ExchangeLocationToken] location token conversion failed")
	}
	return payload, nil
}

// RefreshToken performs the refresh_token grant.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenPayload, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	payload, err := c.postForm(ctx, c.tokenURL, "", form)
	if err != nil {
		return nil, errors.Wrap(err, "[RefreshToken] refresh grant failed")
	}
	return payload, nil
}

// wireError is the upstream OAuth error body. The platform uses both the
// RFC 6749 fields and a bare "message" field depending on the endpoint.
type wireError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

func (c *Client) postForm(ctx context.Context, endpoint, bearer string, form url.Values) (*TokenPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("endpoint", endpoint).Msg("upstream request failed")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response body")
	}

	c.log.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("upstream response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var werr wireError
		_ = json.Unmarshal(body, &werr)
		return nil, &UpstreamError{
			StatusCode:  resp.StatusCode,
			Code:        werr.Error,
			Description: firstNonEmpty(werr.ErrorDescription, werr.Message),
		}
	}

	var wire wirePayload
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, errors.Wrap(err, "decoding token payload")
	}
	return wire.normalize(), nil
}
