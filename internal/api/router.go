package api

import (
	"log/slog"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	customMiddleware "github.com/lightbasenl/identity-core/internal/api/middleware"
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

// RouterConfig carries the request-path plumbing NewServer needs beyond the
// domain collaborators carried on Server itself: the signing key behind the
// optional signed client-IP override header (spec §4.7), and whether the
// process is running in a development/acceptance environment (spec §4.1's
// relaxed tenant-resolution mode).
type RouterConfig struct {
	RateLimitSigningKey []byte
	IsDevOrAcceptance   bool
}

// NewServer wires every SPEC_FULL.md component into one Server and builds
// its chi.Mux. Every argument is a fully constructed collaborator; NewServer
// only assembles and mounts routes, mirroring the teacher's single
// constructor-builds-the-router pattern.
func NewServer(
	pool *pgxpool.Pool,
	queries *db.Queries,
	tenantIndex *tenant.Cache,
	sessions *session.Store,
	users *user.Directory,
	perms *permission.Engine,
	flags *featureflag.Engine,
	bus *jobs.Bus,
	limiter *ratelimit.Limiter,
	mgmt *management.Service,
	password *authproviders.PasswordProvider,
	anonymous *authproviders.AnonymousProvider,
	digid *authproviders.DigidProvider,
	keycloak *authproviders.KeycloakProvider,
	totp *authproviders.TOTPProvider,
	hasher authproviders.PasswordHasher,
	auditLogger audit.AuditLogger,
	cfg RouterConfig,
) *Server {
	if auditLogger == nil {
		auditLogger = audit.NewJSONAuditLogger()
	}
	s := &Server{
		Pool:        pool,
		Queries:     queries,
		Logger:      slog.Default(),
		TenantIndex: tenantIndex,
		Sessions:    sessions,
		Users:       users,
		Perms:       perms,
		Flags:       flags,
		Jobs:        bus,
		Limiter:     limiter,
		Management:  mgmt,
		Password:    password,
		Anonymous:   anonymous,
		Digid:       digid,
		Keycloak:    keycloak,
		TOTP:        totp,
		Hasher:      hasher,
		Audit:       auditLogger,
	}
	s.Router = s.buildRouter(cfg)
	return s
}

func (s *Server) buildRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	r.Use(sentryHandler.Handle)

	r.Use(customMiddleware.RequestLogger)
	r.Use(customMiddleware.PanicRecovery)

	r.Use(customMiddleware.RateLimit(s.Limiter, cfg.RateLimitSigningKey, "/api/v1/auth/password", "/api/v1/auth/password/login"))
	r.Use(customMiddleware.TenantContext(s.TenantIndex, s.Queries, cfg.IsDevOrAcceptance))
	r.Use(customMiddleware.DynamicCorsMiddleware())

	requireAuth := customMiddleware.RequireAuth(s.Sessions)
	requirePerm := func(required ...string) func(chi.Router) {
		mw := customMiddleware.RequirePermission(s.Perms, required...)
		return func(router chi.Router) { router.Use(mw) }
	}

	r.Get("/health", s.HealthHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(customMiddleware.RequireTenant)

		r.Get("/tenant", s.TenantInfo)
		r.Get("/feature-flags", s.FeatureFlags)
		r.Get("/feature-flags/{name}", s.FeatureFlag)

		// Password provider (spec §4.5.1)
		r.Post("/auth/password/register", s.PasswordRegister)
		r.Post("/auth/password/login", s.PasswordLogin)
		r.Post("/auth/password/verify-email", s.PasswordVerifyEmail)
		r.Post("/auth/password/forgot", s.PasswordForgot)
		r.Post("/auth/password/reset", s.PasswordReset)

		// Anonymous provider (spec §4.5.2)
		r.Post("/auth/anonymous/register", s.AnonymousRegister)
		r.Post("/auth/anonymous/login", s.AnonymousLogin)

		// DigiD/SAML provider (spec §4.5.3)
		r.Get("/auth/digid/metadata", s.DigidMetadata)
		r.Get("/auth/digid/redirect", s.DigidRedirect)
		r.Post("/auth/digid/acs", s.DigidACS)

		// Keycloak/OIDC provider (spec §4.5.4)
		r.Get("/auth/keycloak/redirect", s.KeycloakRedirect)
		r.Post("/auth/keycloak/callback", s.KeycloakCallback)

		// Session lifecycle (spec §4.3)
		r.Post("/auth/session/refresh", s.SessionRefresh)

		// Self-service operator access (spec §4.8)
		r.Post("/management/magic-link", s.ManagementRequestMagicLink)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(customMiddleware.CSRFMiddleware)

			r.Get("/me", s.Me)
			r.Post("/auth/logout", s.SessionLogout)
			r.Post("/auth/logout-all", s.SessionLogoutAll)
			r.Get("/auth/sessions", s.SessionList)
			r.Delete("/auth/sessions/{sessionID}", s.SessionRevoke)
			r.Post("/auth/sessions/notification-token", s.SessionSetNotificationToken)

			r.Post("/auth/password/verify-otp", s.PasswordVerifyOTP)
			r.Get("/auth/password/list-emails", s.PasswordListEmails)
			r.Put("/auth/password/update", s.PasswordUpdate)
			r.Post("/auth/password/update-email", s.PasswordUpdateEmail)

			r.Post("/auth/totp/setup", s.TOTPSetup)
			r.Post("/auth/totp/setup/verify", s.TOTPSetupVerify)
			r.Post("/auth/totp/verify", s.TOTPVerify)
			r.Delete("/auth/totp", s.TOTPRemove)

			r.Post("/impersonation/stop", s.StopImpersonating)

			r.Route("/admin", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					requirePerm(permission.ManagePermission)(r)

					r.Get("/permissions", s.ListPermissions)
					r.Get("/roles", s.ListRoles)
					r.Post("/roles", s.CreateRole)
					r.Delete("/roles/{roleID}", s.DeleteRole)
					r.Post("/roles/{roleID}/permissions", s.AddRolePermissions)
					r.Delete("/roles/{roleID}/permissions", s.RemoveRolePermissions)
					r.Post("/users/{userID}/roles/sync", s.UserSyncRoles)
					r.Post("/users/{userID}/roles/{roleID}", s.AssignRole)
					r.Delete("/users/{userID}/roles/{roleID}", s.RemoveRole)
					r.Get("/users/{userID}/permissions", s.UserPermissionSummary)

					r.Put("/feature-flags/{name}", s.SetFeatureFlag)

					r.Delete("/users/{userID}", s.UserSoftDelete)
					r.Post("/users/{userID}/reactivate", s.UserReactivate)
					r.Delete("/users/{userID}/totp", s.AdminTOTPRemove)
				})

				r.Group(func(r chi.Router) {
					requirePerm(ImpersonatePermission)(r)
					r.Post("/users/{userID}/impersonate", s.Impersonate)
				})
			})
		})
	})

	return r
}
