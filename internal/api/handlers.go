package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lightbasenl/identity-core/internal/api/helpers"
	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/audit"
	"github.com/lightbasenl/identity-core/internal/authproviders"
	"github.com/lightbasenl/identity-core/internal/featureflag"
	"github.com/lightbasenl/identity-core/internal/jobs"
	"github.com/lightbasenl/identity-core/internal/management"
	"github.com/lightbasenl/identity-core/internal/permission"
	"github.com/lightbasenl/identity-core/internal/ratelimit"
	"github.com/lightbasenl/identity-core/internal/session"
	"github.com/lightbasenl/identity-core/internal/storage/db"
	"github.com/lightbasenl/identity-core/internal/tenant"
	"github.com/lightbasenl/identity-core/internal/user"
)

// Server bundles every collaborator the HTTP layer dispatches to. It
// replaces the teacher's single AuthService-backed Server with one handle
// per SPEC_FULL.md component, wired together by NewServer.
type Server struct {
	Router *chi.Mux

	Pool    *pgxpool.Pool
	Queries *db.Queries
	Logger  *slog.Logger

	TenantIndex *tenant.Cache
	Sessions    *session.Store
	Users       *user.Directory
	Perms       *permission.Engine
	Flags       *featureflag.Engine
	Jobs        *jobs.Bus
	Limiter     *ratelimit.Limiter
	Management  *management.Service

	Password  *authproviders.PasswordProvider
	Anonymous *authproviders.AnonymousProvider
	Digid     *authproviders.DigidProvider
	Keycloak  *authproviders.KeycloakProvider
	TOTP      *authproviders.TOTPProvider
	Hasher    authproviders.PasswordHasher

	Audit audit.AuditLogger
}

// deviceFromRequest builds a session.Device from the request body's device
// sub-object, shared by every login/register endpoint (spec §4.5.6).
type deviceRequest struct {
	Platform            string `json:"platform"`
	Name                string `json:"name"`
	NotificationToken   string `json:"notificationToken,omitempty"`
	WebPushSubscription []byte `json:"webPushSubscription,omitempty"`
}

func (d *deviceRequest) toDevice() *session.Device {
	if d == nil || d.Platform == "" {
		return nil
	}
	return &session.Device{
		Platform:            session.Platform(d.Platform),
		Name:                d.Name,
		NotificationToken:   d.NotificationToken,
		WebPushSubscription: d.WebPushSubscription,
	}
}

func writeErr(w http.ResponseWriter, err error) {
	apperr.WriteHTTP(w, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	helpers.RespondJSON(w, status, v)
}

func decodeJSON(r *http.Request, v any) error {
	if err := helpers.DecodeJSON(r, v); err != nil {
		return apperr.Validation("server.internal.invalidBody", nil)
	}
	return nil
}

// tokenPairResponse is the stable wire shape for every endpoint that issues
// or refreshes tokens (spec §4.3, §6).
type tokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func writeTokens(w http.ResponseWriter, pair *session.TokenPair) {
	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// uuidFromPG converts a pgtype.UUID scanned from storage into a uuid.UUID,
// the currency every provider and middleware package uses.
func uuidFromPG(id pgtype.UUID) uuid.UUID {
	return uuid.UUID(id.Bytes)
}

// bearerToken extracts the raw token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// parseUUIDParam reads a chi URL parameter as a uuid.UUID, used by every
// admin endpoint that targets another user/role/permission by id.
func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("server.internal.invalidParam", map[string]any{"param": name})
	}
	return id, nil
}
