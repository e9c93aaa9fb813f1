package api

import (
	"net/http"

	customMiddleware "github.com/lightbasenl/identity-core/internal/api/middleware"
	"github.com/lightbasenl/identity-core/internal/apperr"
)

// SessionRefresh exchanges a refresh token for a new access/refresh pair
// (spec §4.3 step "refresh").
func (s *Server) SessionRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string         `json:"refreshToken"`
		Device       *deviceRequest `json:"device"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	pair, err := s.Sessions.Refresh(r.Context(), req.RefreshToken, req.Device.toDevice())
	if err != nil {
		writeErr(w, apperr.NormalizeSessionError(err))
		return
	}
	writeTokens(w, pair)
}

// SessionLogout invalidates the caller's current session (spec §4.3 step
// "logout"). Requires RequireAuth.
func (s *Server) SessionLogout(w http.ResponseWriter, r *http.Request) {
	sessionID, err := customMiddleware.GetSessionID(r.Context())
	if err != nil {
		writeErr(w, apperr.Unauthorized("session.load.invalidToken"))
		return
	}
	if err := s.Sessions.Delete(r.Context(), sessionID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionList lists every session belonging to the authenticated user (spec
// §4.3). Requires RequireAuth.
func (s *Server) SessionList(w http.ResponseWriter, r *http.Request) {
	userID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		writeErr(w, apperr.Unauthorized("session.load.invalidToken"))
		return
	}
	sessions, err := s.Sessions.ListForUser(r.Context(), userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// SessionRevoke invalidates a specific session of the authenticated user
// (spec §4.3). Requires RequireAuth.
func (s *Server) SessionRevoke(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUUIDParam(r, "sessionID")
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.Sessions.Invalidate(r.Context(), sessionID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionLogoutAll invalidates every session of the authenticated user
// except the one making the request (spec §4.3 "sign out everywhere").
// Requires RequireAuth.
func (s *Server) SessionLogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		writeErr(w, apperr.Unauthorized("session.load.invalidToken"))
		return
	}
	sessionID, err := customMiddleware.GetSessionID(r.Context())
	if err != nil {
		writeErr(w, apperr.Unauthorized("session.load.invalidToken"))
		return
	}
	if err := s.Sessions.InvalidateAllForUser(r.Context(), userID, &sessionID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionSetNotificationToken stores the push-notification token for the
// caller's current session (spec §4.3, device registration).
// Requires RequireAuth.
func (s *Server) SessionSetNotificationToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	sessionID, err := customMiddleware.GetSessionID(r.Context())
	if err != nil {
		writeErr(w, apperr.Unauthorized("session.load.invalidToken"))
		return
	}
	if err := s.Sessions.SetNotificationToken(r.Context(), sessionID, req.Token); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user's profile and resolved permission
// summary for the resolved tenant (spec §4.7). Requires RequireAuth,
// RequireTenant.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		writeErr(w, apperr.Unauthorized("session.load.invalidToken"))
		return
	}
	tenantID, err := customMiddleware.GetTenantID(r.Context())
	if err != nil {
		writeErr(w, apperr.Validation("multitenant.require.invalidTenant", nil))
		return
	}

	summary, err := s.Perms.UserSummary(r.Context(), userID, tenantID)
	if err != nil {
		writeErr(w, err)
		return
	}

	resp := map[string]any{
		"userId":      userID,
		"roles":       summary.Roles,
		"permissions": summary.Permissions,
	}
	if impersonator, ok := customMiddleware.GetImpersonatorID(r.Context()); ok {
		resp["impersonatedBy"] = impersonator
	}
	writeJSON(w, http.StatusOK, resp)
}
