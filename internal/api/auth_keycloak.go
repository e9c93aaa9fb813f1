package api

import (
	"net/http"

	customMiddleware "github.com/lightbasenl/identity-core/internal/api/middleware"
	"github.com/lightbasenl/identity-core/internal/apperr"
)

// KeycloakRedirect returns the authorization-code redirect URL for the
// resolved tenant's realm (spec §4.5.4 step 1).
func (s *Server) KeycloakRedirect(w http.ResponseWriter, r *http.Request) {
	entity, err := customMiddleware.GetTenantEntity(r.Context())
	if err != nil {
		writeErr(w, apperr.Validation("multitenant.require.invalidTenant", nil))
		return
	}
	cfg, err := keycloakConfigForTenant(entity)
	if err != nil {
		writeErr(w, err)
		return
	}
	state := r.URL.Query().Get("state")
	writeJSON(w, http.StatusOK, map[string]string{"redirectUrl": s.Keycloak.RedirectURL(cfg, state)})
}

// KeycloakCallback exchanges the authorization code for tokens, resolves or
// creates the matching user, and logs them in (spec §4.5.4 steps 2-4).
func (s *Server) KeycloakCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code   string         `json:"code"`
		Device *deviceRequest `json:"device"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	entity, err := customMiddleware.GetTenantEntity(r.Context())
	if err != nil {
		writeErr(w, apperr.Validation("multitenant.require.invalidTenant", nil))
		return
	}
	tenantID, err := customMiddleware.GetTenantID(r.Context())
	if err != nil {
		writeErr(w, apperr.Validation("multitenant.require.invalidTenant", nil))
		return
	}
	cfg, err := keycloakConfigForTenant(entity)
	if err != nil {
		writeErr(w, err)
		return
	}

	pair, err := s.Keycloak.Login(r.Context(), cfg, tenantID, req.Code, req.Device.toDevice())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeTokens(w, pair)
}
