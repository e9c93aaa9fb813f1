package main

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/lightbasenl/identity-core/internal/api"
	"github.com/lightbasenl/identity-core/internal/authproviders"
	"github.com/lightbasenl/identity-core/internal/config"
	"github.com/lightbasenl/identity-core/internal/featureflag"
	"github.com/lightbasenl/identity-core/internal/jobs"
	"github.com/lightbasenl/identity-core/internal/management"
	"github.com/lightbasenl/identity-core/internal/permission"
	"github.com/lightbasenl/identity-core/internal/ratelimit"
	"github.com/lightbasenl/identity-core/internal/session"
	"github.com/lightbasenl/identity-core/internal/storage"
	"github.com/lightbasenl/identity-core/internal/tenant"
	"github.com/lightbasenl/identity-core/internal/user"
	"github.com/lightbasenl/identity-core/pkg/logger"
)

func main() {
	// We mask errors because in production these files don't exist and we
	// rely on the platform's own env vars.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// No logger yet; this is a startup-time configuration failure.
		os.Stderr.WriteString("config_load_failed: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.Setup(string(cfg.Env))
	log.Info("application_startup", "env", cfg.Env)

	if sentryDSN := os.Getenv("SENTRY_DSN"); sentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              sentryDSN,
			TracesSampleRate: 1.0,
			Environment:      string(cfg.Env),
		}); err != nil {
			log.Error("sentry_init_failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
			log.Info("sentry_initialized")
		}
	} else {
		log.Warn("sentry_dsn_missing", "details", "skipping_init")
	}

	ctx := context.Background()

	pool, err := storage.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Error("database_connect_failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	log.Info("database_connected")

	queries := storage.New(pool)

	tenantDoc, err := loadTenantDocument(cfg)
	if err != nil {
		log.Error("tenant_config_load_failed", "error", err)
		os.Exit(1)
	}
	tenantCache := tenant.NewCache(tenant.NewIndex(tenantDoc, string(cfg.Env)))

	sessions := session.NewStore(queries, session.Config{
		SigningKey:        []byte(cfg.SigningKey),
		AccessTTL:         cfg.AccessTokenTTL,
		RefreshTTL:        cfg.RefreshTokenTTL,
		RequireDevice:     false,
		MaxMobileSessions: cfg.MaxMobileSessionsPerUser,
	})

	perms := permission.NewEngine(pool, queries)
	if err := perms.Sync(ctx); err != nil {
		log.Error("permission_sync_failed", "error", err)
		os.Exit(1)
	}

	flags := featureflag.NewEngine(pool, queries, nil)
	if err := flags.Sync(ctx); err != nil {
		log.Error("feature_flag_sync_failed", "error", err)
		os.Exit(1)
	}

	bus := jobs.NewBus(queries)
	users := user.NewDirectory(queries, bus, perms)

	hasher := authproviders.NewBcryptHasher()
	deps := authproviders.Deps{
		Pool:     pool,
		Queries:  queries,
		Sessions: sessions,
		Users:    users,
		Jobs:     bus,
		Flags:    flags,
		Hasher:   hasher,
	}

	passwordCfg := authproviders.DefaultPasswordConfig()
	passwordCfg.AttemptWindow = cfg.PasswordAttemptWindow
	passwordCfg.MaxAttemptsPerWindow = cfg.PasswordMaxAttempts
	passwordCfg.ForceRotateAfter = cfg.PasswordForceRotateAfter
	passwordCfg.RemoveAllSessionsOnUpdate = !cfg.RemoveOnlyOtherSessions
	password := authproviders.NewPasswordProvider(deps, passwordCfg)

	anonymous := authproviders.NewAnonymousProvider(deps)
	digid := authproviders.NewDigidProvider(deps)
	keycloak := authproviders.NewKeycloakProvider(deps, &http.Client{
		Timeout: 10 * time.Second,
		Jar:     mustCookieJar(),
	})
	totp := authproviders.NewTOTPProvider(deps, cfg.TOTPIssuer)

	limiter := ratelimit.NewLimiter()

	mgmtCfg := management.DefaultConfig(cfg.AppURL)
	mgmt := management.NewService(
		pool, queries, sessions, bus,
		&management.StaticTokenLookup{Token: cfg.ManagementWorkspaceToken},
		&management.DevLinkSender{Logger: log},
		&management.DevLinkSender{Logger: log},
		mgmtCfg,
	)

	server := api.NewServer(
		pool, queries, tenantCache, sessions, users, perms, flags, bus, limiter, mgmt,
		password, anonymous, digid, keycloak, totp, hasher, nil,
		api.RouterConfig{
			RateLimitSigningKey: []byte(cfg.SSRIPVerificationKey),
			IsDevOrAcceptance:   cfg.Env.IsDevelopment() || cfg.Env.IsAcceptance(),
		},
	)
	server.Logger = log

	reloadCtx, stopReload := context.WithCancel(context.Background())
	defer stopReload()
	go tenantCache.WatchReloadSignal(reloadCtx, cfg.TenantConfigPath, string(cfg.Env), log)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      server.Router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server_listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server_startup_failed", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		log.Info("shutdown_signal_received", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful_shutdown_failed", "error", err)
			if err := srv.Close(); err != nil {
				log.Error("server_force_close_failed", "error", err)
			}
		}

		pool.Close()
		log.Info("database_pool_closed")
		log.Info("server_shutdown_complete")
	}
}

// loadTenantDocument reads and parses the static tenant configuration file
// (spec §4.1). Its path is required configuration; there is no in-process
// fallback because tenant resolution cannot function without it.
func loadTenantDocument(cfg config.Config) (*tenant.Document, error) {
	raw, err := os.ReadFile(cfg.TenantConfigPath)
	if err != nil {
		return nil, err
	}
	return tenant.ParseDocument(raw, string(cfg.Env))
}

// mustCookieJar gives the Keycloak OIDC HTTP client cookie support for
// providers whose token/userinfo endpoints sit behind a session-affinity
// load balancer; a jar-less client works identically otherwise.
func mustCookieJar() *cookiejar.Jar {
	jar, _ := cookiejar.New(nil)
	return jar
}
