package api

import (
	"net/http"

	"github.com/lightbasenl/identity-core/internal/apperr"
)

// ManagementRequestMagicLink starts the operator self-provisioning flow: an
// external-platform user id is checked against the workspace directory and,
// on success, a magic link to a short-lived elevated session is delivered
// over the same platform (spec §4.8).
func (s *Server) ManagementRequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExternalID string `json:"externalId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.ExternalID == "" {
		writeErr(w, apperr.Validation("management.magicLinkRequest.missingExternalId", nil))
		return
	}
	if _, err := s.Management.RequestMagicLink(r.Context(), req.ExternalID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
