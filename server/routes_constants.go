package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Install flow
	RouteInstall       = "/"
	RouteOAuthCallback = "/oauth/callback"
	RouteInstallGuide  = "/install-guide"

	// Session
	RouteSessionCheck = "/session/check"

	// API routes
	RouteAPIInstallations = "/api/installations"
	RouteAPITokens        = "/api/tokens"
	RouteAPITokenAccess   = "/api/token-access/{installationId}"
	RouteAPITokenRefresh  = "/token-refresh/{installationId}"
	RouteAPIAuditEvents   = "/api/audit/events"

	// Operational
	RouteHealth = "/health"
)

// Cookie names shared between the session handlers and the embedded client.
const (
	// CookieSession carries the signed credential. HttpOnly, and SameSite=None
	// because the client lives inside the platform's iframe.
	CookieSession = "session_token"
	// CookieUserInfo mirrors non-sensitive display metadata for scripts. It
	// never carries a token.
	CookieUserInfo = "user_info"
)
