package api

import (
	"net/http"

	customMiddleware "github.com/lightbasenl/identity-core/internal/api/middleware"
	"github.com/lightbasenl/identity-core/internal/apperr"
)

// TenantInfo returns the public, non-sensitive subset of the resolved
// tenant's configuration (spec §4.1), used by clients to bootstrap before
// any authentication takes place.
func (s *Server) TenantInfo(w http.ResponseWriter, r *http.Request) {
	entity, err := customMiddleware.GetTenantEntity(r.Context())
	if err != nil {
		writeErr(w, apperr.Validation("multitenant.require.invalidTenant", nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        entity.Name,
		"publicUrl":   entity.PublicURL,
		"apiUrl":      entity.APIUrl,
		"environment": entity.Environment,
	})
}
