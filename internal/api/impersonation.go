package api

import (
	"net/http"

	customMiddleware "github.com/lightbasenl/identity-core/internal/api/middleware"
	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/audit"
	"github.com/lightbasenl/identity-core/internal/session"
)

// ImpersonatePermission is the permission identifier required to start an
// impersonation session (spec §4.9).
const ImpersonatePermission = "auth:user:impersonate"

// Impersonate issues a full user session for the target user on behalf of
// the calling operator, stamping the session with ImpersonatorUserID so
// every downstream request carries both identities (spec §4.9). The
// impersonated session inherits the device the operator is currently
// using; it is not a refresh-chained continuation of the operator's own
// session.
func (s *Server) Impersonate(w http.ResponseWriter, r *http.Request) {
	targetUserID, err := parseUUIDParam(r, "userID")
	if err != nil {
		writeErr(w, err)
		return
	}
	operatorID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		writeErr(w, apperr.Unauthorized("session.load.invalidToken"))
		return
	}
	if targetUserID == operatorID {
		writeErr(w, apperr.Validation("authImpersonation.start.cannotImpersonateSelf", nil))
		return
	}

	pair, err := s.Sessions.Create(r.Context(), targetUserID, session.Data{
		UserID:             targetUserID,
		Type:               session.TypeUser,
		ImpersonatorUserID: &operatorID,
	}, nil)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.Audit.Log(r.Context(), operatorID, audit.EventImpersonate, "impersonation_start", map[string]string{"targetUserId": targetUserID.String()})
	writeTokens(w, pair)
}

// StopImpersonating ends the caller's impersonation session by deleting it;
// the operator continues under their own original session (spec §4.9).
// Requires RequireAuth.
func (s *Server) StopImpersonating(w http.ResponseWriter, r *http.Request) {
	if _, ok := customMiddleware.GetImpersonatorID(r.Context()); !ok {
		writeErr(w, apperr.Validation("authImpersonation.stop.notImpersonating", nil))
		return
	}
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
