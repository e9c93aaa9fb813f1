package api

import (
	"net/http"

	customMiddleware "github.com/lightbasenl/identity-core/internal/api/middleware"
	"github.com/lightbasenl/identity-core/internal/apperr"
)

// TOTPSetup issues a fresh TOTP secret for the authenticated user, pending
// confirmation via TOTPSetupVerify (spec §4.5.5 step 1). Requires RequireAuth.
func (s *Server) TOTPSetup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountName string `json:"accountName"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	userID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		writeErr(w, apperr.Unauthorized("session.load.invalidToken"))
		return
	}
	result, err := s.TOTP.Setup(r.Context(), userID, req.AccountName)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"secret":     result.Secret,
		"otpauthUrl": result.OtpauthURL,
	})
}

// TOTPSetupVerify confirms pending TOTP setup with a freshly generated code
// (spec §4.5.5 step 2). Requires RequireAuth.
func (s *Server) TOTPSetupVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	userID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		writeErr(w, apperr.Unauthorized("session.load.invalidToken"))
		return
	}
	if err := s.TOTP.SetupVerify(r.Context(), userID, req.Code); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TOTPVerify checks a one-time code against the authenticated user's
// confirmed TOTP secret (spec §4.5.5 step 3, used by the password provider's
// second factor). Requires RequireAuth.
func (s *Server) TOTPVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	userID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		writeErr(w, apperr.Unauthorized("session.load.invalidToken"))
		return
	}
	ok, err := s.TOTP.Verify(r.Context(), userID, req.Code)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": ok})
}

// TOTPRemove disables TOTP for the authenticated user (spec §4.5.5).
// Requires RequireAuth.
func (s *Server) TOTPRemove(w http.ResponseWriter, r *http.Request) {
	userID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		writeErr(w, apperr.Unauthorized("session.load.invalidToken"))
		return
	}
	if err := s.TOTP.Remove(r.Context(), userID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminTOTPRemove lets an operator disable TOTP for another user (spec
// §4.5.5, management operations). Requires RequirePermission.
func (s *Server) AdminTOTPRemove(w http.ResponseWriter, r *http.Request) {
	targetID, err := parseUUIDParam(r, "userID")
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.TOTP.RemoveForUser(r.Context(), targetID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
