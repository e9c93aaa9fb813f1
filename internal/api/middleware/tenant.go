package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/storage/db"
	"github.com/lightbasenl/identity-core/internal/tenant"
)

// TenantLookup is the narrow query surface TenantContext needs to translate
// a resolved tenant name into its database id.
type TenantLookup interface {
	GetTenantByName(ctx context.Context, name string) (db.Tenant, error)
}

// TenantContext resolves the tenant for every request from its Host/Origin
// headers (spec §4.1) and injects both the resolved tenant.Entity and its
// database id into the request context.
//
// Resolution failures do not abort the request here: some routes (tenant
// discovery itself, health checks) are tenant-independent. Handlers and
// downstream middleware that require a resolved tenant run behind
// RequireTenant instead.
func TenantContext(cache *tenant.Cache, q TenantLookup, isDevOrAcceptance bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers := tenant.RequestHeaders{
				Host:         r.Host,
				Origin:       r.Header.Get("Origin"),
				TenantOrigin: r.Header.Get("X-Lpc-Tenant-Origin"),
			}

			entity, err := cache.Load().Resolve(headers, isDevOrAcceptance)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), TenantEntityKey, entity)

			row, err := q.GetTenantByName(ctx, entity.Name)
			if err != nil {
				slog.Warn("resolved tenant has no matching row", "tenant", entity.Name, "error", err)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			tenantID := uuid.UUID(row.ID.Bytes)
			ctx = context.WithValue(ctx, TenantIDKey, tenantID)
			SetSentryTenant(ctx, entity.Name, "host-resolved")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant rejects any request for which TenantContext could not
// resolve a tenant, as a validation error (spec §4.1 "invalid tenant").
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := GetTenantID(r.Context()); err != nil {
			apperr.WriteHTTP(w, apperr.Validation("multitenant.require.invalidTenant", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}
