package middleware

import (
	"log/slog"
	"net/http"
)

// DynamicCorsMiddleware enforces per-tenant CORS using the tenant already
// resolved by TenantContext: a request's Origin is allowed only when it
// matches the resolved tenant's configured public URL (spec §4.1). It must
// run after TenantContext.
func DynamicCorsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Lpc-Tenant-Origin, X-Requested-With")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.WriteHeader(http.StatusOK)
				return
			}

			entity, err := GetTenantEntity(r.Context())
			if err != nil {
				// No tenant resolved: endpoint is tenant-independent (e.g. tenant
				// discovery itself). Proceed without CORS headers.
				next.ServeHTTP(w, r)
				return
			}

			if entity.PublicURL != "" && origin == entity.PublicURL {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			} else {
				slog.Warn("CORS: origin rejected", "tenant", entity.Name, "origin", origin)
				http.Error(w, "CORS Policy Violation", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
