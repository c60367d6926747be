package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/engageautomations/ghl-oauth-service/sessions"
)

// SessionCheckHandler is the embedded client's single entry point for
// authentication state. It accepts the session cookie plus any recovery
// hints the platform passes along, and always answers 200 with a state the
// client can render; an unauthenticated visitor is a normal outcome here,
// not an error.
func (s *Server) SessionCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		req := sessions.CheckRequest{
			UserID:         query.Get("ghl_user_id"),
			LocationID:     query.Get("ghl_location_id"),
			InstallationID: query.Get("installation_id"),
		}
		if cookie, err := r.Cookie(CookieSession); err == nil {
			req.Credential = cookie.Value
		}

		result := s.deps.Sessions.Check(r.Context(), req)

		if result.Authenticated && result.Credential != "" {
			s.setSessionCookies(w, result)
		} else {
			s.clearSessionCookies(w)
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) setSessionCookies(w http.ResponseWriter, result *sessions.CheckResult) {
	maxAge := int(s.config.GetSessionExpiry().Seconds())

	// SameSite=None so the cookie survives inside the platform's iframe.
	http.SetCookie(w, &http.Cookie{
		Name:     CookieSession,
		Value:    result.Credential,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.config.GetSecureCookies(),
		SameSite: http.SameSiteNoneMode,
	})

	if result.DisplayInfo != nil {
		encoded, err := json.Marshal(result.DisplayInfo)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to encode display info cookie")
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     CookieUserInfo,
			Value:    url.QueryEscape(string(encoded)),
			Path:     "/",
			MaxAge:   maxAge,
			HttpOnly: false,
			Secure:   s.config.GetSecureCookies(),
			SameSite: http.SameSiteNoneMode,
		})
	}
}

func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{CookieSession, CookieUserInfo} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Secure:   s.config.GetSecureCookies(),
			SameSite: http.SameSiteNoneMode,
		})
	}
}
