package api

import (
	"net/http"

	customMiddleware "github.com/lightbasenl/identity-core/internal/api/middleware"
	"github.com/lightbasenl/identity-core/internal/audit"
)

// UserSoftDelete soft-deletes a user account, revoking every session and
// detaching its login identifiers (spec §4.4). Requires RequirePermission.
func (s *Server) UserSoftDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUIDParam(r, "userID")
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.Users.SoftDelete(r.Context(), userID); err != nil {
		writeErr(w, err)
		return
	}
	actorID, _ := customMiddleware.GetUserID(r.Context())
	s.Audit.Log(r.Context(), actorID, audit.EventUserDeleted, "user_soft_delete", map[string]string{"targetUserId": userID.String()})
	w.WriteHeader(http.StatusNoContent)
}

// UserReactivate reverses a prior soft-delete (spec §4.4).
// Requires RequirePermission.
func (s *Server) UserReactivate(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUIDParam(r, "userID")
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.Users.Reactivate(r.Context(), userID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
