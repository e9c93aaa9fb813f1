package middleware

import (
	"log/slog"
	"net/http"

	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/permission"
)

// RequirePermission builds a middleware that denies the request unless the
// authenticated user holds every one of the given permission identifiers on
// the resolved tenant (spec §4.2). It requires RequireAuth and RequireTenant
// to run first.
func RequirePermission(engine *permission.Engine, required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := GetUserID(r.Context())
			if err != nil {
				apperr.WriteHTTP(w, apperr.Unauthorized("session.load.invalidToken"))
				return
			}

			tenantID, err := GetTenantID(r.Context())
			if err != nil {
				apperr.WriteHTTP(w, apperr.Validation("multitenant.require.invalidTenant", nil))
				return
			}

			ok, err := engine.HasPermissions(r.Context(), userID, tenantID, required)
			if err != nil {
				slog.Error("permission check failed", "error", err, "user", userID, "tenant", tenantID)
				apperr.WriteHTTP(w, apperr.Server("permission.check.failed", err))
				return
			}
			if !ok {
				apperr.WriteHTTP(w, apperr.Forbidden("permission.require.denied"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
