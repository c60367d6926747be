package server

import (
	"fmt"
	"net/http"
	"net/url"

	svcerrors "github.com/engageautomations/ghl-oauth-service/internal/errors"
)

// InstallHandler is the marketplace entry point. The installation id is
// pre-registered the moment it is first observed, before the browser is
// sent to the platform's choose-location page.
func (s *Server) InstallHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		installationID := r.URL.Query().Get("installation_id")
		if s.config.GetClientID() == "" || installationID == "" {
			http.Redirect(w, r, RouteInstallGuide, http.StatusFound)
			return
		}

		if err := s.deps.Exchange.PreRegister(r.Context(), installationID); err != nil {
			s.log.Error().Err(err).Str("installation_id", installationID).Msg("pre-registration failed")
			writeJSONError(w, http.StatusInternalServerError, "could not start installation, please try again")
			return
		}

		http.Redirect(w, r, s.deps.Provider.AuthorizeURL(installationID), http.StatusFound)
	}
}

// InstallGuideHandler serves a minimal setup page for deployments that have
// no client credentials configured yet.
func (s *Server) InstallGuideHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<h1>%s</h1>
<p>To install, open the entry point with an installation id, e.g.
<code>/?installation_id=...</code>. If GHL_CLIENT_ID and GHL_CLIENT_SECRET are
not set yet, configure them and restart the service first.</p>
<p>Redirect URI to register with the marketplace: <code>%s</code></p>
</body>
</html>`, s.config.GetAppName(), s.config.GetAppName(), s.config.GetRedirectURI())
	}
}

// OAuthCallbackHandler finishes an installation: it runs the two-step code
// exchange and hands the browser to the frontend. Upstream OAuth errors are
// surfaced verbatim so a failed install is diagnosable from the browser.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		if oauthError := query.Get("error"); oauthError != "" {
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"error":             oauthError,
				"error_description": query.Get("error_description"),
			})
			return
		}

		code := query.Get("code")
		observedInstallationID := query.Get("state")

		result, err := s.deps.Exchange.CompleteInstallation(r.Context(), code, observedInstallationID)
		if err != nil {
			s.writeExchangeError(w, err)
			return
		}

		if frontend := s.config.GetFrontendURL(); frontend != "" {
			target := frontend + "?" + url.Values{
				"installation_id": {result.InstallationID},
				"location_id":     {result.LocationID},
			}.Encode()
			http.Redirect(w, r, target, http.StatusFound)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":         true,
			"installation_id": result.InstallationID,
			"location_id":     result.LocationID,
			"degraded":        result.Degraded,
		})
	}
}

func (s *Server) writeExchangeError(w http.ResponseWriter, err error) {
	switch {
	case svcerrors.Is(err, svcerrors.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, "missing authorization code")
	case svcerrors.Is(err, svcerrors.ErrUpstreamExchange):
		writeJSONError(w, http.StatusBadGateway, err.Error())
	case svcerrors.Is(err, svcerrors.ErrMissingLocationID),
		svcerrors.Is(err, svcerrors.ErrPersistence):
		// Internal detail the installer cannot act on, give them a retry
		// message instead.
		writeJSONError(w, http.StatusInternalServerError, "installation could not be completed, please retry from the marketplace")
	default:
		writeJSONError(w, http.StatusInternalServerError, "installation could not be completed, please retry from the marketplace")
	}
}
