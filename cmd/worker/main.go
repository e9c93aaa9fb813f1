package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/lightbasenl/identity-core/internal/config"
	"github.com/lightbasenl/identity-core/internal/jobs"
	"github.com/lightbasenl/identity-core/internal/mailer"
	"github.com/lightbasenl/identity-core/internal/management"
	"github.com/lightbasenl/identity-core/internal/storage"
	"github.com/lightbasenl/identity-core/internal/storage/db"
)

// main runs the background job worker pool (spec §5): the email-notification
// handlers registered below, plus a daily sweep that purges expired
// management sessions (spec §4.8).
func main() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config_load_failed", "error", err)
		os.Exit(1)
	}

	pool, err := storage.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Error("database_connect_failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	queries := storage.New(pool)

	provider := mailer.NewDevProvider(logger, cfg.SMTPFrom)

	h := &emailHandlers{pool: pool, provider: provider, logger: logger}

	jobPool := jobs.NewPool(pool, queries, logger, jobs.PoolConfig{})
	jobPool.Handle("auth.passwordBased.userRegistered", h.passwordUserRegistered)
	jobPool.Handle("auth.passwordBased.loginVerified", h.loginVerified)
	jobPool.Handle("auth.passwordBased.forgotPassword", h.forgotPassword)
	jobPool.Handle("auth.passwordBased.passwordReset", h.passwordChanged)
	jobPool.Handle("auth.passwordBased.passwordUpdated", h.passwordChanged)
	jobPool.Handle("auth.passwordBased.emailUpdated", h.emailUpdated)
	jobPool.Handle("auth.passwordBased.requestOtp", h.requestOtp)
	jobPool.Handle("auth.anonymousBased.userRegistered", h.noop)
	jobPool.Handle("auth.digidBased.userRegistered", h.noop)
	jobPool.Handle("auth.keycloakBased.userRegistered", h.noop)
	jobPool.Handle("auth.user.softDeleted", h.noop)
	jobPool.Handle("management.magicLinkRequested", h.noop)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgmt := management.NewService(
		pool, queries, nil, nil,
		&management.StaticTokenLookup{Token: cfg.ManagementWorkspaceToken},
		&management.DevLinkSender{Logger: logger},
		&management.DevLinkSender{Logger: logger},
		management.DefaultConfig(cfg.AppURL),
	)
	go runPurgeLoop(ctx, mgmt, logger)

	logger.Info("worker_started", "workers", 3)
	jobPool.Run(ctx)
	logger.Info("worker_shutdown_complete")
}

// runPurgeLoop sweeps expired management sessions once a day (spec §4.8
// "a janitor job purges sessions past their lifetime").
func runPurgeLoop(ctx context.Context, mgmt *management.Service, logger *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	purge := func() {
		n, err := mgmt.PurgeExpired(ctx)
		if err != nil {
			logger.Error("management_purge_failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("management_purge_complete", "purged", n)
		}
	}

	purge()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purge()
		}
	}
}

type emailHandlers struct {
	pool     *pgxpool.Pool
	provider mailer.EmailProvider
	logger   *slog.Logger
}

func (h *emailHandlers) noop(ctx context.Context, payload json.RawMessage) error {
	return nil
}

func (h *emailHandlers) passwordUserRegistered(ctx context.Context, payload json.RawMessage) error {
	var p struct {
		UserID string `json:"userId"`
		Email  string `json:"email"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	return h.sendLookupTenant(ctx, p.UserID, p.Email, mailer.TemplateEmailVerification, nil)
}

func (h *emailHandlers) loginVerified(ctx context.Context, payload json.RawMessage) error {
	var p struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	return h.sendLookupEmail(ctx, p.UserID, mailer.TemplateEmailVerification, nil)
}

func (h *emailHandlers) forgotPassword(ctx context.Context, payload json.RawMessage) error {
	var p struct {
		UserID string `json:"userId"`
		Token  string `json:"token"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	return h.sendLookupEmail(ctx, p.UserID, mailer.TemplatePasswordReset, map[string]any{"token": p.Token})
}

func (h *emailHandlers) passwordChanged(ctx context.Context, payload json.RawMessage) error {
	var p struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	return h.sendLookupEmail(ctx, p.UserID, mailer.TemplatePasswordChanged, nil)
}

func (h *emailHandlers) emailUpdated(ctx context.Context, payload json.RawMessage) error {
	var p struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	return h.sendLookupEmail(ctx, p.UserID, mailer.TemplateEmailVerification, nil)
}

func (h *emailHandlers) requestOtp(ctx context.Context, payload json.RawMessage) error {
	var p struct {
		UserID string `json:"userId"`
		Code   string `json:"code"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	return h.sendLookupEmail(ctx, p.UserID, mailer.TemplateMFAEnabled, map[string]any{"code": p.Code})
}

// sendLookupEmail resolves the user's password-login email address and
// tenant before delivering, for jobs whose payload carries only a user id.
func (h *emailHandlers) sendLookupEmail(ctx context.Context, userIDStr string, tmpl mailer.EmailTemplate, data map[string]any) error {
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return fmt.Errorf("invalid userId in job payload: %w", err)
	}

	var email string
	var tenantID uuid.UUID
	err = storage.WithoutRLS(ctx, h.pool, func(tx pgx.Tx) error {
		q := db.New(tx)
		login, err := q.GetPasswordLoginByUser(ctx, toPGUUID(userID))
		if err != nil {
			return err
		}
		email = login.Email
		tenantID, err = firstTenantFor(ctx, q, userID)
		return err
	})
	if err != nil {
		// Not every login type has a password email (anonymous, DigiD,
		// Keycloak); silently skipping keeps those job names registered
		// without spurious retry loops.
		h.logger.Info("email_skip_no_password_login", "userId", userIDStr, "error", err)
		return nil
	}

	return h.send(ctx, userID, tenantID, email, tmpl, data)
}

// sendLookupTenant delivers to an email the job payload already carries,
// resolving only the tenant id the EmailPayload expects.
func (h *emailHandlers) sendLookupTenant(ctx context.Context, userIDStr, email string, tmpl mailer.EmailTemplate, data map[string]any) error {
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return fmt.Errorf("invalid userId in job payload: %w", err)
	}

	var tenantID uuid.UUID
	err = storage.WithoutRLS(ctx, h.pool, func(tx pgx.Tx) error {
		q := db.New(tx)
		tenantID, err = firstTenantFor(ctx, q, userID)
		return err
	})
	if err != nil {
		return err
	}

	return h.send(ctx, userID, tenantID, email, tmpl, data)
}

func firstTenantFor(ctx context.Context, q *db.Queries, userID uuid.UUID) (uuid.UUID, error) {
	tenants, err := q.ListUserTenants(ctx, toPGUUID(userID))
	if err != nil {
		return uuid.UUID{}, err
	}
	if len(tenants) == 0 {
		return uuid.UUID{}, nil
	}
	return uuidFromPG(tenants[0]), nil
}

func (h *emailHandlers) send(ctx context.Context, userID, tenantID uuid.UUID, email string, tmpl mailer.EmailTemplate, data map[string]any) error {
	if email == "" {
		return nil
	}
	_, err := h.provider.Send(ctx, mailer.EmailPayload{
		To:        email,
		TenantID:  tenantID,
		Template:  tmpl,
		Data:      data,
		RequestID: uuid.New().String(),
	})
	if err != nil {
		h.logger.Error("email_send_failed", "userId", userID.String(), "template", tmpl, "error", err)
	}
	return err
}

func toPGUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func uuidFromPG(id pgtype.UUID) uuid.UUID {
	return uuid.UUID(id.Bytes)
}
