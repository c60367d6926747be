// Package server is the HTTP surface of the OAuth installation service: the
// marketplace install entry point and callback, the session check used by
// embedded clients, and the read-only debug API.
package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/engageautomations/ghl-oauth-service/audit"
	"github.com/engageautomations/ghl-oauth-service/exchange"
	"github.com/engageautomations/ghl-oauth-service/installations"
	"github.com/engageautomations/ghl-oauth-service/internal/config"
	"github.com/engageautomations/ghl-oauth-service/provider"
	"github.com/engageautomations/ghl-oauth-service/sessions"
	"github.com/engageautomations/ghl-oauth-service/tokens"
)

// AuditReader reads back persisted audit events for the debug API.
type AuditReader interface {
	ListRecent(installationID string, limit int) ([]audit.Event, error)
}

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Provider         *provider.Client
	Exchange         *exchange.Service
	Tokens           *tokens.Manager
	Sessions         *sessions.Manager
	InstallationRepo installations.Repo
	TokenRepo        tokens.Repo
	AuditReader      AuditReader
	Health           func() error
}

type Server struct {
	env    string
	mux    *http.ServeMux
	routes []string
	config config.Config
	deps   Deps
	log    zerolog.Logger
}

func New(cfg config.Config, deps Deps, log zerolog.Logger) (*Server, error) {
	if deps.Provider == nil || deps.Exchange == nil || deps.Tokens == nil || deps.Sessions == nil {
		return nil, errors.New("[Server New] provider, exchange, tokens and sessions are all required")
	}
	if deps.InstallationRepo == nil || deps.TokenRepo == nil || deps.AuditReader == nil {
		return nil, errors.New("[Server New] repositories and audit reader are required")
	}

	s := &Server{
		env:    cfg.GetEnv(),
		mux:    http.NewServeMux(),
		config: cfg,
		deps:   deps,
		log:    log.With().Str("component", "server").Logger(),
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			s.log.Info().Str("method", parts[0]).Str("path", parts[1]).Msg("route registered")
		} else {
			s.log.Info().Str("path", parts[0]).Msg("route registered")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
