// Package config loads the process-wide configuration from environment
// variables. It is read once at startup and treated as effectively
// immutable for the lifetime of the process (spec §3, §6).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment is the deployment environment marker consumed throughout the
// core (tenant resolver dev-override, token signing key selection, error
// coalescing policy).
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvAcceptance  Environment = "acceptance"
	EnvDevelopment Environment = "development"
)

func (e Environment) IsDevelopment() bool { return e == EnvDevelopment }
func (e Environment) IsAcceptance() bool  { return e == EnvAcceptance }
func (e Environment) IsProduction() bool  { return e == EnvProduction }

// devSigningKey is the fixed development signing string named in spec §6
// ("a fixed development string (non-production)").
const devSigningKey = "lightbase-dev-signing-key-do-not-use-in-production"

// Config is the full environment-variable surface the core consumes.
type Config struct {
	Env Environment

	DatabaseURL string

	// Token signing. APP_KEYS in production; devSigningKey otherwise.
	SigningKey      string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Rate limiter / SSR IP verification (spec §4.7).
	SSRIPVerificationKey string

	// TOTP issuer name shown in authenticator apps.
	TOTPIssuer string

	// Password provider policy knobs (spec §4.5.1).
	PasswordBcryptCost       int
	PasswordReduceErrorInfo  bool
	PasswordAttemptWindow    time.Duration
	PasswordMaxAttempts      int
	PasswordForceRotateAfter time.Duration
	RemoveOnlyOtherSessions  bool

	// Mobile device session cap (spec §4.5.6).
	MaxMobileSessionsPerUser int

	// Multitenant sync-on-create default (spec §4.4).
	SyncUsersAcrossAllTenants bool

	// Management interface (spec §4.8).
	ManagementWorkspaceToken string

	AppURL string

	// Path to the static tenant configuration document (spec §4.1).
	TenantConfigPath string

	// Outbound mail "From" address shown by the development email provider
	// (internal/mailer, wired from cmd/worker's job handlers). Real SMTP
	// delivery is explicitly out of scope (spec §1); this core only logs
	// what it would have sent.
	SMTPFrom string
}

// Load reads configuration from the environment. Any missing required
// variable aborts startup with a clear, enumerated error (spec §6).
func Load() (Config, error) {
	env := Environment(getEnv("APP_ENV", string(EnvDevelopment)))

	cfg := Config{
		Env:                       env,
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		AccessTokenTTL:            getEnvAsDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:           getEnvAsDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		SSRIPVerificationKey:      os.Getenv("SSR_IP_VERIFICATION_KEY"),
		TOTPIssuer:                getEnv("TOTP_ISSUER", "lightbase"),
		PasswordBcryptCost:        getEnvAsInt("PASSWORD_BCRYPT_COST", 13),
		PasswordReduceErrorInfo:   getEnvAsBool("__FEATURE_LPC_AUTH_REDUCE_ERROR_KEY_INFO", false),
		PasswordAttemptWindow:     getEnvAsDuration("PASSWORD_ATTEMPT_WINDOW", 5*time.Minute),
		PasswordMaxAttempts:       getEnvAsInt("PASSWORD_MAX_ATTEMPTS", 10),
		PasswordForceRotateAfter:  getEnvAsDuration("PASSWORD_FORCE_ROTATE_AFTER", 6*30*24*time.Hour),
		RemoveOnlyOtherSessions:   getEnvAsBool("PASSWORD_REMOVE_ONLY_OTHER_SESSIONS", false),
		MaxMobileSessionsPerUser:  getEnvAsInt("MAX_MOBILE_SESSIONS_PER_USER", 5),
		SyncUsersAcrossAllTenants: getEnvAsBool("SYNC_USERS_ACROSS_ALL_TENANTS", false),
		ManagementWorkspaceToken:  os.Getenv("MANAGEMENT_WORKSPACE_TOKEN"),
		AppURL:                    getEnv("APP_URL", "https://app.lightbase.nl"),
		TenantConfigPath:          getEnv("TENANT_CONFIG_PATH", "tenants.yaml"),
		SMTPFrom:                  getEnv("SMTP_FROM", "no-reply@lightbase.nl"),
	}

	if env == EnvProduction {
		cfg.SigningKey = os.Getenv("APP_KEYS")
		if cfg.SigningKey == "" {
			return Config{}, fmt.Errorf("config: APP_KEYS is required in production")
		}
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("config: DATABASE_URL is required in production")
		}
	} else {
		cfg.SigningKey = getEnv("APP_KEYS", devSigningKey)
	}

	return cfg, nil
}

func getEnv(name, defaultVal string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultVal
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsInt(name string, defaultVal int) int {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
