package middleware

import (
	"net/http"
	"strings"

	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/ratelimit"
)

// RateLimit enforces the Rate Limiter (spec §4.7) against POST/PUT/PATCH
// requests under pathPrefix. A request to loginPath costs two tokens;
// everything else under pathPrefix costs one. signingKey verifies the
// optional signed X-SSR-Ip override header; pass nil to disable it and
// rely on RemoteAddr alone.
func RateLimit(limiter *ratelimit.Limiter, signingKey []byte, pathPrefix, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rateLimited(r.Method, r.URL.Path, pathPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			cost := ratelimit.DefaultCost
			if r.URL.Path == loginPath {
				cost = ratelimit.LoginCost
			}

			ip := ratelimit.ClientIP(r, signingKey)
			if !limiter.Allow(ip, cost) {
				apperr.WriteHTTP(w, apperr.RateLimited("server.internal.rateLimit"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rateLimited(method, path, pathPrefix string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return false
	}
	return strings.HasPrefix(path, pathPrefix)
}
