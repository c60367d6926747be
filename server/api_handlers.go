package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/engageautomations/ghl-oauth-service/audit"
	svcerrors "github.com/engageautomations/ghl-oauth-service/internal/errors"
)

// tokenPreview is the redacted view of a stored token record. Full token
// values never leave the service through this API.
type tokenPreview struct {
	InstallationID     string    `json:"installation_id"`
	AccessTokenPreview string    `json:"access_token_preview"`
	HasRefreshToken    bool      `json:"has_refresh_token"`
	LocationID         string    `json:"location_id"`
	CompanyID          string    `json:"company_id,omitempty"`
	ExpiresAt          time.Time `json:"expires_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// InstallationsListHandler lists installations with their lifecycle status.
func (s *Server) InstallationsListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset := queryInt(r, "offset", 0)
		limit := queryInt(r, "limit", 100)

		all, err := s.deps.InstallationRepo.List(offset, limit)
		if err != nil {
			s.log.Error().Err(err).Msg("listing installations failed")
			writeJSONError(w, http.StatusInternalServerError, "could not list installations")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count":         len(all),
			"installations": all,
		})
	}
}

// TokenPreviewsHandler lists redacted token records for every installation.
func (s *Server) TokenPreviewsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := s.deps.InstallationRepo.List(0, 0)
		if err != nil {
			s.log.Error().Err(err).Msg("listing installations failed")
			writeJSONError(w, http.StatusInternalServerError, "could not list tokens")
			return
		}

		previews := make([]tokenPreview, 0, len(all))
		for _, installation := range all {
			record, err := s.deps.TokenRepo.Get(installation.InstallationID)
			if err != nil {
				continue
			}
			previews = append(previews, tokenPreview{
				InstallationID:     record.InstallationID,
				AccessTokenPreview: audit.Redact(record.AccessToken),
				HasRefreshToken:    record.Refreshable(),
				LocationID:         record.LocationID,
				CompanyID:          record.CompanyID,
				ExpiresAt:          record.ExpiresAt,
				UpdatedAt:          record.UpdatedAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count":  len(previews),
			"tokens": previews,
		})
	}
}

// TokenAccessHandler hands a valid access token to a sibling backend
// service, refreshing first if the stored one is stale. This is the only
// read path that returns a token in full.
func (s *Server) TokenAccessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		installationID := r.PathValue("installationId")

		accessToken, err := s.deps.Tokens.GetValidAccessToken(r.Context(), installationID)
		if err != nil {
			switch {
			case svcerrors.Is(err, svcerrors.ErrTokenNotFound):
				writeJSONError(w, http.StatusNotFound, "no token for installation")
			case svcerrors.Is(err, svcerrors.ErrTokenExpiredNoRefresh):
				writeJSONError(w, http.StatusConflict, "token expired and cannot be refreshed, reauthorization required")
			default:
				writeJSONError(w, http.StatusBadGateway, "token refresh failed")
			}
			return
		}

		record, err := s.deps.TokenRepo.Get(installationID)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "no token for installation")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":    accessToken,
			"installation_id": installationID,
			"location_id":     record.LocationID,
			"expires_at":      record.ExpiresAt,
		})
	}
}

// TokenRefreshHandler forces a refresh for one installation.
func (s *Server) TokenRefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		installationID := r.PathValue("installationId")

		record, err := s.deps.Tokens.Refresh(r.Context(), installationID)
		if err != nil {
			switch {
			case svcerrors.Is(err, svcerrors.ErrTokenNotFound):
				writeJSONError(w, http.StatusNotFound, "no token for installation")
			case svcerrors.Is(err, svcerrors.ErrTokenExpiredNoRefresh):
				writeJSONError(w, http.StatusBadRequest, "no refresh token stored for installation")
			case svcerrors.Is(err, svcerrors.ErrRefreshFailed):
				writeJSONError(w, http.StatusBadGateway, "upstream refresh failed")
			default:
				writeJSONError(w, http.StatusBadGateway, "refresh failed")
			}
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":         true,
			"installation_id": record.InstallationID,
			"expires_at":      record.ExpiresAt,
		})
	}
}

// AuditEventsHandler returns the recent audit trail, newest first.
func (s *Server) AuditEventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		installationID := r.URL.Query().Get("installation_id")
		limit := queryInt(r, "limit", 100)

		events, err := s.deps.AuditReader.ListRecent(installationID, limit)
		if err != nil {
			s.log.Error().Err(err).Msg("listing audit events failed")
			writeJSONError(w, http.StatusInternalServerError, "could not list audit events")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count":  len(events),
			"events": events,
		})
	}
}

// HealthHandler reports process and database health.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Health != nil {
			if err := s.deps.Health(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"service": s.config.GetAppName(),
			"features": []string{
				"two-step-exchange",
				"token-refresh",
				"session-recovery",
				"audit-trail",
			},
		})
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
