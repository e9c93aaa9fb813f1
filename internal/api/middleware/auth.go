package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/session"
)

// RequireAuth validates the bearer access token against the Session Store
// and injects the authenticated user, session and (when present) the
// impersonating operator into the request context.
//
// A session still in the checkTwoStep state (spec §4.3) is deliberately
// allowed through here: only the second-factor endpoints themselves inspect
// session.Data.Type to decide whether the caller has completed login.
func RequireAuth(store *session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				apperr.WriteHTTP(w, apperr.Unauthorized("session.load.invalidToken"))
				return
			}

			sess, data, err := store.Load(r.Context(), parts[1])
			if err != nil {
				apperr.WriteHTTP(w, apperr.NormalizeSessionError(err))
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, data.UserID)
			ctx = context.WithValue(ctx, SessionIDKey, uuid.UUID(sess.ID.Bytes))
			if data.ImpersonatorUserID != nil {
				ctx = context.WithValue(ctx, ImpersonatorKey, *data.ImpersonatorUserID)
			}

			SetSentryUser(ctx, data.UserID.String(), string(data.LoginType), r.RemoteAddr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
