package api

import (
	"net/http"

	customMiddleware "github.com/lightbasenl/identity-core/internal/api/middleware"
	"github.com/lightbasenl/identity-core/internal/apperr"
)

// DigidMetadata serves the SP's signed SAML metadata document for the
// resolved tenant (spec §4.5.3).
func (s *Server) DigidMetadata(w http.ResponseWriter, r *http.Request) {
	entity, err := customMiddleware.GetTenantEntity(r.Context())
	if err != nil {
		writeErr(w, apperr.Validation("multitenant.require.invalidTenant", nil))
		return
	}
	cfg, err := digidConfigForTenant(entity)
	if err != nil {
		writeErr(w, err)
		return
	}
	doc, err := s.Digid.Metadata(cfg)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(doc))
}

// DigidRedirect returns the signed AuthnRequest redirect URL the client
// should navigate the user to (spec §4.5.3 step 2).
func (s *Server) DigidRedirect(w http.ResponseWriter, r *http.Request) {
	entity, err := customMiddleware.GetTenantEntity(r.Context())
	if err != nil {
		writeErr(w, apperr.Validation("multitenant.require.invalidTenant", nil))
		return
	}
	cfg, err := digidConfigForTenant(entity)
	if err != nil {
		writeErr(w, err)
		return
	}
	relayState := r.URL.Query().Get("relayState")
	redirectURL, err := s.Digid.Redirect(cfg, relayState)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"redirectUrl": redirectURL})
}

// DigidACS resolves the SAMLart artifact into a BSN and logs the matching
// user in (spec §4.5.3 steps 3-5).
func (s *Server) DigidACS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Artifact string         `json:"samlArt"`
		Device   *deviceRequest `json:"device"`
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
	cfg, err := digidConfigForTenant(entity)
	if err != nil {
		writeErr(w, err)
		return
	}

	bsn, err := s.Digid.ResolveArtifact(r.Context(), cfg, req.Artifact)
	if err != nil {
		writeErr(w, err)
		return
	}

	pair, err := s.Digid.Login(r.Context(), tenantID, bsn, req.Device.toDevice())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeTokens(w, pair)
}
