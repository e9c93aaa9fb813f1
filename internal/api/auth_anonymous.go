package api

import (
	"net/http"

	"github.com/jackc/pgx/v5"

	customMiddleware "github.com/lightbasenl/identity-core/internal/api/middleware"
	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/authproviders"
	"github.com/lightbasenl/identity-core/internal/storage"
	"github.com/lightbasenl/identity-core/internal/user"
)

// AnonymousRegister creates a fresh user with an anonymous login and returns
// the one-time login token the client exchanges for a session (spec §4.5.2).
func (s *Server) AnonymousRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"displayName"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	tenantID, err := customMiddleware.GetTenantID(r.Context())
	if err != nil {
		writeErr(w, apperr.Validation("multitenant.require.invalidTenant", nil))
		return
	}

	var loginToken string
	err = storage.WithoutRLS(r.Context(), s.Pool, func(tx pgx.Tx) error {
		users := s.Users.WithTx(tx)
		u, err := users.Create(r.Context(), user.CreateParams{
			DisplayName: req.DisplayName,
			TenantID:    tenantID,
		})
		if err != nil {
			return err
		}

		deps := authproviders.Deps{
			Pool:     s.Pool,
			Queries:  s.Queries.WithTx(tx),
			Sessions: s.Sessions.WithTx(tx),
			Users:    users,
			Jobs:     s.Jobs.WithTx(tx),
			Flags:    s.Flags,
			Hasher:   s.Hasher,
		}
		token, err := s.Anonymous.Register(r.Context(), deps, uuidFromPG(u.ID))
		if err != nil {
			return err
		}
		loginToken = token
		return nil
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"loginToken": loginToken})
}

// AnonymousLogin exchanges the one-time login token issued at registration
// for a session (spec §4.5.2).
func (s *Server) AnonymousLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoginToken string         `json:"loginToken"`
		Device     *deviceRequest `json:"device"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	tenantID, err := customMiddleware.GetTenantID(r.Context())
	if err != nil {
		writeErr(w, apperr.Validation("multitenant.require.invalidTenant", nil))
		return
	}

	pair, err := s.Anonymous.Login(r.Context(), tenantID, req.LoginToken, req.Device.toDevice())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeTokens(w, pair)
}
