package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	customMiddleware "github.com/lightbasenl/identity-core/internal/api/middleware"
	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/audit"
	"github.com/lightbasenl/identity-core/internal/authproviders"
	"github.com/lightbasenl/identity-core/internal/storage"
	"github.com/lightbasenl/identity-core/internal/user"
)

// PasswordRegister creates a fresh user and attaches a password login to it
// (spec §4.4 step 1-5, §4.5.1). Runs as one transaction: Directory.Create,
// then PasswordProvider.Register, sharing the same tx-bound collaborators.
func (s *Server) PasswordRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email          string         `json:"email"`
		Password       string         `json:"password"`
		RandomPassword bool           `json:"randomPassword"`
		DisplayName    string         `json:"displayName"`
		Device         *deviceRequest `json:"device"`
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

	var result *authproviders.RegisterResult
	err = storage.WithoutRLS(r.Context(), s.Pool, func(tx pgx.Tx) error {
		users := s.Users.WithTx(tx)
		u, err := users.Create(r.Context(), user.CreateParams{
			DisplayName: req.DisplayName,
			TenantID:    tenantID,
		})
		if err != nil {
			return err
		}
		userID := uuidFromPG(u.ID)

		deps := authproviders.Deps{
			Pool:     s.Pool,
			Queries:  s.Queries.WithTx(tx),
			Sessions: s.Sessions.WithTx(tx),
			Users:    users,
			Jobs:     s.Jobs.WithTx(tx),
			Flags:    s.Flags,
			Hasher:   s.Hasher,
		}
		res, err := s.Password.Register(r.Context(), deps, authproviders.RegisterInput{
			UserID:         userID,
			TenantID:       tenantID,
			Email:          req.Email,
			Password:       req.Password,
			RandomPassword: req.RandomPassword,
		})
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"token":             result.Token,
		"shouldSetPassword": result.ShouldSetPassword,
		"tenant":            entity.Name,
	})
}

// PasswordLogin runs the password-provider login sequence (spec §4.5.1).
func (s *Server) PasswordLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string         `json:"email"`
		Password string         `json:"password"`
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

	result, err := s.Password.Login(r.Context(), authproviders.LoginInput{
		TenantID:   tenantID,
		TenantName: entity.Name,
		Email:      req.Email,
		Password:   req.Password,
		Device:     req.Device.toDevice(),
	})
	if err != nil {
		s.Audit.Log(r.Context(), uuid.Nil, audit.EventLoginFailed, "password_login", map[string]string{"email": req.Email})
		writeErr(w, err)
		return
	}

	s.Audit.Log(r.Context(), uuid.Nil, audit.EventLoginSuccess, "password_login", map[string]string{"email": req.Email})
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":              result.Tokens.AccessToken,
		"refreshToken":             result.Tokens.RefreshToken,
		"requiresPasswordRotation": result.RequiresPasswordRotation,
	})
}

func (s *Server) PasswordVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.Password.VerifyEmail(r.Context(), req.Token); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) PasswordForgot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
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
	if err := s.Password.ForgotPassword(r.Context(), tenantID, entity.Name, req.Email); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.Password.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PasswordUpdate changes the authenticated user's password (spec §4.5.1).
// Requires RequireAuth.
func (s *Server) PasswordUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewPassword string `json:"newPassword"`
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
	sessionID, _ := customMiddleware.GetSessionID(r.Context())
	if err := s.Password.UpdatePassword(r.Context(), userID, &sessionID, req.NewPassword); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PasswordListEmails reports the email(s) the authenticated user's
// password login is reachable by (spec §6 `list-emails`). Requires
// RequireAuth.
func (s *Server) PasswordListEmails(w http.ResponseWriter, r *http.Request) {
	userID, err := customMiddleware.GetUserID(r.Context())
	if err != nil {
		writeErr(w, apperr.Unauthorized("session.load.invalidToken"))
		return
	}
	emails, err := s.Password.ListEmails(r.Context(), userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"emails": emails})
}

// PasswordUpdateEmail changes the authenticated user's login email,
// invalidating every session (spec §4.5.1). Requires RequireAuth.
func (s *Server) PasswordUpdateEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewEmail string `json:"newEmail"`
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
	tenantID, err := customMiddleware.GetTenantID(r.Context())
	if err != nil {
		writeErr(w, apperr.Validation("multitenant.require.invalidTenant", nil))
		return
	}
	result, err := s.Password.UpdateEmail(r.Context(), userID, tenantID, req.NewEmail)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": result.Token})
}

// PasswordVerifyOTP checks a checkTwoStep session's one-time code and
// promotes it to a full user session (spec §4.5.1 step 6).
func (s *Server) PasswordVerifyOTP(w http.ResponseWriter, r *http.Request) {
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
	ok, err := s.Password.VerifyOTP(r.Context(), userID, req.Code)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !ok {
		writeErr(w, apperr.Validation("authPasswordBased.verifyOtp.invalidCode", nil))
		return
	}

	sess, data, err := s.Sessions.Load(r.Context(), bearerToken(r))
	if err != nil {
		writeErr(w, apperr.NormalizeSessionError(err))
		return
	}
	deps := authproviders.Deps{Sessions: s.Sessions}
	if err := deps.PromoteToUser(r.Context(), sess, data); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
