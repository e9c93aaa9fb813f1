package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	customMiddleware "github.com/lightbasenl/identity-core/internal/api/middleware"
	"github.com/lightbasenl/identity-core/internal/apperr"
)

// FeatureFlags resolves every declared feature flag for the resolved tenant
// (spec §4.6).
func (s *Server) FeatureFlags(w http.ResponseWriter, r *http.Request) {
	entity, err := customMiddleware.GetTenantEntity(r.Context())
	if err != nil {
		writeErr(w, apperr.Validation("multitenant.require.invalidTenant", nil))
		return
	}
	flags, err := s.Flags.ResolveAll(r.Context(), entity.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

// FeatureFlag resolves a single feature flag for the resolved tenant (spec
// §4.6).
func (s *Server) FeatureFlag(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	entity, err := customMiddleware.GetTenantEntity(r.Context())
	if err != nil {
		writeErr(w, apperr.Validation("multitenant.require.invalidTenant", nil))
		return
	}
	enabled, err := s.Flags.ResolveSingle(r.Context(), name, entity.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{name: enabled})
}

// SetFeatureFlag updates a feature flag's global and/or per-tenant override
// (spec §4.6). Requires RequirePermission(permission.ManagePermission).
func (s *Server) SetFeatureFlag(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req struct {
		Global       *bool  `json:"global"`
		TenantName   string `json:"tenantName"`
		TenantValue  *bool  `json:"tenantValue"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.Flags.SetDynamic(r.Context(), name, req.Global, req.TenantName, req.TenantValue); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
