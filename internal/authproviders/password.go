package authproviders

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/crypto/bcrypt"

	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/session"
	"github.com/lightbasenl/identity-core/internal/storage/db"
)

// PasswordBcryptCost is raised from the teacher's cost of 12 to the cost
// spec.md §4.5.1 calls for.
const PasswordBcryptCost = 13

// BcryptHasher implements PasswordHasher, grounded on
// internal/auth/password.go's BcryptHasher.
type BcryptHasher struct{ cost int }

func NewBcryptHasher() *BcryptHasher { return &BcryptHasher{cost: PasswordBcryptCost} }

func (h *BcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	return string(b), err
}

func (h *BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// dummyPasswordHash is compared against on an unknown-email login when the
// reduce-error-info flag is on, to equalize response timing between a
// known and an unknown email (spec §4.5.1 step 1).
var dummyPasswordHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing-equalization"), PasswordBcryptCost)

// PasswordConfig holds the deployment knobs spec §4.5.1 names as policy
// rather than data: attempt-rate limiting, reset-token lifetime, and the
// two session-cleanup policies.
type PasswordConfig struct {
	RollingAttemptBlockingEnabled bool
	MaxAttemptsPerWindow          int
	AttemptWindow                 time.Duration
	ResetTokenTTL                 time.Duration
	ForceRotateAfter              time.Duration // 0 disables force-rotation
	RemoveAllSessionsOnUpdate     bool          // false keeps the caller's session
}

// DefaultPasswordConfig matches spec §4.5.1/§8's stated defaults.
func DefaultPasswordConfig() PasswordConfig {
	return PasswordConfig{
		RollingAttemptBlockingEnabled: true,
		MaxAttemptsPerWindow:          10,
		AttemptWindow:                 5 * time.Minute,
		ResetTokenTTL:                 24 * time.Hour,
		ForceRotateAfter:              6 * 30 * 24 * time.Hour,
		RemoveAllSessionsOnUpdate:     true,
	}
}

// PasswordProvider implements the Password Provider (spec §4.5.1), grounded
// on internal/auth/password.go (hasher shape), internal/auth/login_service.go
// (the login sequence), and internal/auth/recovery.go (the reset-token
// pattern).
type PasswordProvider struct {
	deps Deps
	cfg  PasswordConfig
}

func NewPasswordProvider(deps Deps, cfg PasswordConfig) *PasswordProvider {
	return &PasswordProvider{deps: deps, cfg: cfg}
}

func generateOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// LoginInput describes a password-login attempt.
type LoginInput struct {
	TenantID        uuid.UUID
	TenantName      string
	Email           string
	Password        string
	ExistingSession *db.Session
	Device          *session.Device
}

// LoginResult reports the outcome: either a token pair (full or
// checkTwoStep session) or, when a forced rotation is due, an instruction
// for the caller to route the user straight to update-password.
type LoginResult struct {
	Tokens                   *session.TokenPair
	RequiresPasswordRotation bool
}

// Login runs the spec §4.5.1 sequence. Every branch that can observe
// whether an email exists runs inside one transaction so the attempt
// counter and the dummy-compare timing path cost the same number of
// round-trips.
func (p *PasswordProvider) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	var result *LoginResult

	err := p.deps.transact(ctx, func(d Deps) error {
		pl, err := d.Queries.GetPasswordLoginByEmailInTenant(ctx, toPGUUID(in.TenantID), in.Email)
		if err != nil {
			if flagEnabled(ctx, d.Flags, ReduceErrorInfoFlag, in.TenantName) {
				_ = p.deps.Hasher.Compare(string(dummyPasswordHash), in.Password)
				return apperr.Validation("authPasswordBased.login.invalidEmailPasswordCombination", nil)
			}
			return apperr.Validation("authPasswordBased.login.unknownEmail", map[string]any{"email": in.Email})
		}

		if p.cfg.RollingAttemptBlockingEnabled {
			since := pgtype.Timestamptz{Time: time.Now().Add(-p.cfg.AttemptWindow), Valid: true}
			count, err := d.Queries.CountRecentPasswordLoginAttempts(ctx, pl.UserID, since)
			if err != nil {
				return apperr.Server("authPasswordBased.login.countAttempts", err)
			}
			if count >= p.cfg.MaxAttemptsPerWindow {
				_ = d.Queries.CreatePasswordLoginAttempt(ctx, pl.UserID)
				return apperr.Validation("authPasswordBased.login.maxAttemptsExceeded", nil)
			}
		}

		if err := p.deps.Hasher.Compare(pl.PasswordHash, in.Password); err != nil {
			_ = d.Queries.CreatePasswordLoginAttempt(ctx, pl.UserID)
			return apperr.Validation("authPasswordBased.login.invalidEmailPasswordCombination", nil)
		}

		if !pl.VerifiedAt.Valid {
			return apperr.Validation("authPasswordBased.login.emailNotVerified", nil)
		}

		if err := d.Queries.SetUserLastLogin(ctx, pl.UserID); err != nil {
			return apperr.Server("authPasswordBased.login.lastLogin", err)
		}

		userID := uuid.UUID(pl.UserID.Bytes)

		if pl.OtpEnabledAt.Valid {
			secret, err := p.ensureOTPSecret(ctx, d, pl)
			if err != nil {
				return err
			}
			code, err := generateTOTP(secret, passwordOTPAlgorithm, otp6())
			if err != nil {
				return apperr.Server("authPasswordBased.login.generateOtp", err)
			}
			if err := d.Jobs.Enqueue(ctx, "auth.passwordBased.requestOtp", map[string]any{
				"userId": userID.String(),
				"code":   code,
			}); err != nil {
				return err
			}

			tokens, err := d.tail(ctx, TailInput{
				UserID:          userID,
				ExistingSession: in.ExistingSession,
				LoginType:       session.LoginTypePasswordBased,
				Type:            session.TypeCheckTwoStep,
				TwoStepType:     session.TwoStepTypePasswordBasedOtp,
				Device:          in.Device,
			})
			if err != nil {
				return err
			}
			result = &LoginResult{Tokens: tokens}
			return nil
		}

		if p.cfg.ForceRotateAfter > 0 && pl.UpdatedAt.Valid && time.Since(pl.UpdatedAt.Time) > p.cfg.ForceRotateAfter {
			tokens, err := d.tail(ctx, TailInput{
				UserID:          userID,
				ExistingSession: in.ExistingSession,
				LoginType:       session.LoginTypePasswordBased,
				Type:            session.TypePasswordBasedUpdatePassword,
				Device:          in.Device,
			})
			if err != nil {
				return err
			}
			result = &LoginResult{Tokens: tokens, RequiresPasswordRotation: true}
			return nil
		}

		tokens, err := d.tail(ctx, TailInput{
			UserID:          userID,
			ExistingSession: in.ExistingSession,
			LoginType:       session.LoginTypePasswordBased,
			Type:            session.TypeUser,
			Device:          in.Device,
		})
		if err != nil {
			return err
		}
		result = &LoginResult{Tokens: tokens}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ensureOTPSecret reuses an existing OTP secret or generates and persists a
// fresh one (spec §4.5.1 step 6 "generate (or reuse)").
func (p *PasswordProvider) ensureOTPSecret(ctx context.Context, d Deps, pl db.PasswordLogin) (string, error) {
	if pl.OtpSecret.Valid && pl.OtpSecret.String != "" {
		return pl.OtpSecret.String, nil
	}
	key, err := totpKey(passwordOTPAlgorithm)
	if err != nil {
		return "", apperr.Server("authPasswordBased.login.generateOtpSecret", err)
	}
	if err := d.Queries.SetPasswordLoginOTP(ctx, pl.UserID, true, pgtype.Text{String: key, Valid: true}); err != nil {
		return "", apperr.Server("authPasswordBased.login.persistOtpSecret", err)
	}
	return key, nil
}

// RegisterInput describes a Register call, run on an already-created user
// row (spec §4.5.1 "Register ... called on existing user").
type RegisterInput struct {
	UserID         uuid.UUID
	TenantID       uuid.UUID
	Email          string
	Password       string
	RandomPassword bool
}

// RegisterResult reports which opaque token the caller must deliver (reset
// vs. verify) and whether it's a reset token.
type RegisterResult struct {
	Token             string
	ShouldSetPassword bool
}

// Register attaches a PasswordLogin to an existing user, inside the
// caller's enclosing transaction (spec §4.4 "Create requires the enclosing
// transaction", §4.5.1).
func (p *PasswordProvider) Register(ctx context.Context, d Deps, in RegisterInput) (*RegisterResult, error) {
	if err := d.Users.CheckPasswordEmailUnique(ctx, in.TenantID, in.UserID, in.Email); err != nil {
		return nil, err
	}

	var (
		hash              string
		verifiedAt        pgtype.Timestamptz
		shouldSetPassword bool
	)
	if in.RandomPassword {
		placeholder, err := generateOpaqueToken()
		if err != nil {
			return nil, apperr.Server("authPasswordBased.register.randomPassword", err)
		}
		hashed, err := p.deps.Hasher.Hash(placeholder)
		if err != nil {
			return nil, apperr.Server("authPasswordBased.register.hash", err)
		}
		hash = hashed
		verifiedAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
		shouldSetPassword = true
	} else {
		hashed, err := p.deps.Hasher.Hash(in.Password)
		if err != nil {
			return nil, apperr.Server("authPasswordBased.register.hash", err)
		}
		hash = hashed
		shouldSetPassword = false
	}

	userID := toPGUUID(in.UserID)
	if err := d.Queries.CreatePasswordLogin(ctx, db.CreatePasswordLoginParams{
		UserID:       userID,
		Email:        in.Email,
		PasswordHash: hash,
		VerifiedAt:   verifiedAt,
	}); err != nil {
		return nil, apperr.Server("authPasswordBased.register.insert", err)
	}

	token, err := generateOpaqueToken()
	if err != nil {
		return nil, apperr.Server("authPasswordBased.register.token", err)
	}
	if _, err := d.Queries.CreatePasswordLoginReset(ctx, db.CreatePasswordLoginResetParams{
		UserID:            userID,
		Token:             token,
		ExpiresAt:         pgtype.Timestamptz{Time: expiresIn(p.cfg.ResetTokenTTL), Valid: true},
		ShouldSetPassword: shouldSetPassword,
	}); err != nil {
		return nil, apperr.Server("authPasswordBased.register.persistToken", err)
	}

	if err := d.Jobs.Enqueue(ctx, "auth.passwordBased.userRegistered", map[string]any{
		"userId": in.UserID.String(),
		"email":  in.Email,
	}); err != nil {
		return nil, err
	}

	return &RegisterResult{Token: token, ShouldSetPassword: shouldSetPassword}, nil
}

// VerifyEmail consumes a non-expired verify token (shouldSetPassword=false).
func (p *PasswordProvider) VerifyEmail(ctx context.Context, token string) error {
	return p.deps.transact(ctx, func(d Deps) error {
		row, err := d.Queries.GetPasswordLoginResetByToken(ctx, token)
		if err != nil || row.ShouldSetPassword {
			return apperr.Validation("authPasswordBased.verifyEmail.invalidToken", nil)
		}
		if err := d.Queries.SetPasswordLoginVerified(ctx, row.UserID); err != nil {
			return apperr.Server("authPasswordBased.verifyEmail.persist", err)
		}
		if err := d.Queries.DeletePasswordLoginReset(ctx, row.ID); err != nil {
			return apperr.Server("authPasswordBased.verifyEmail.consume", err)
		}
		return d.Jobs.Enqueue(ctx, "auth.passwordBased.loginVerified", map[string]any{
			"userId": uuid.UUID(row.UserID.Bytes).String(),
		})
	})
}

// ResetPassword consumes a non-expired reset token (shouldSetPassword=true).
func (p *PasswordProvider) ResetPassword(ctx context.Context, token, newPassword string) error {
	return p.deps.transact(ctx, func(d Deps) error {
		row, err := d.Queries.GetPasswordLoginResetByToken(ctx, token)
		if err != nil || !row.ShouldSetPassword {
			return apperr.Validation("authPasswordBased.resetPassword.invalidToken", nil)
		}
		hash, err := p.deps.Hasher.Hash(newPassword)
		if err != nil {
			return apperr.Server("authPasswordBased.resetPassword.hash", err)
		}
		if err := d.Queries.UpdatePasswordLoginHash(ctx, row.UserID, hash); err != nil {
			return apperr.Server("authPasswordBased.resetPassword.persist", err)
		}
		if err := d.Queries.DeletePasswordLoginReset(ctx, row.ID); err != nil {
			return apperr.Server("authPasswordBased.resetPassword.consume", err)
		}
		return d.Jobs.Enqueue(ctx, "auth.passwordBased.passwordReset", map[string]any{
			"userId": uuid.UUID(row.UserID.Bytes).String(),
		})
	})
}

// ForgotPassword always succeeds observably when the reduce-error-info
// flag is on, regardless of whether email is known (spec §4.5.1).
func (p *PasswordProvider) ForgotPassword(ctx context.Context, tenantID uuid.UUID, tenantName, email string) error {
	return p.deps.transact(ctx, func(d Deps) error {
		pl, err := d.Queries.GetPasswordLoginByEmailInTenant(ctx, toPGUUID(tenantID), email)
		if err != nil {
			if flagEnabled(ctx, d.Flags, ReduceErrorInfoFlag, tenantName) {
				return nil
			}
			return apperr.Validation("authPasswordBased.forgotPassword.unknownEmail", map[string]any{"email": email})
		}

		token, err := generateOpaqueToken()
		if err != nil {
			return apperr.Server("authPasswordBased.forgotPassword.token", err)
		}
		if _, err := d.Queries.CreatePasswordLoginReset(ctx, db.CreatePasswordLoginResetParams{
			UserID:            pl.UserID,
			Token:             token,
			ExpiresAt:         pgtype.Timestamptz{Time: expiresIn(p.cfg.ResetTokenTTL), Valid: true},
			ShouldSetPassword: true,
		}); err != nil {
			return apperr.Server("authPasswordBased.forgotPassword.persist", err)
		}
		return d.Jobs.Enqueue(ctx, "auth.passwordBased.forgotPassword", map[string]any{
			"userId": uuid.UUID(pl.UserID.Bytes).String(),
			"token":  token,
		})
	})
}

// UpdateEmail rewrites the login email, forces re-verification, deletes
// every session for the user, and re-checks uniqueness (spec §4.5.1).
func (p *PasswordProvider) UpdateEmail(ctx context.Context, userID, tenantID uuid.UUID, newEmail string) (*RegisterResult, error) {
	var result *RegisterResult
	err := p.deps.transact(ctx, func(d Deps) error {
		if err := d.Queries.UpdatePasswordLoginEmail(ctx, toPGUUID(userID), newEmail); err != nil {
			return apperr.Server("authPasswordBased.updateEmail.persist", err)
		}

		token, err := generateOpaqueToken()
		if err != nil {
			return apperr.Server("authPasswordBased.updateEmail.token", err)
		}
		if _, err := d.Queries.CreatePasswordLoginReset(ctx, db.CreatePasswordLoginResetParams{
			UserID:            toPGUUID(userID),
			Token:             token,
			ExpiresAt:         pgtype.Timestamptz{Time: expiresIn(p.cfg.ResetTokenTTL), Valid: true},
			ShouldSetPassword: false,
		}); err != nil {
			return apperr.Server("authPasswordBased.updateEmail.persistToken", err)
		}

		if err := deleteAllSessions(ctx, d, userID); err != nil {
			return err
		}

		if err := d.Users.CheckPasswordEmailUnique(ctx, tenantID, userID, newEmail); err != nil {
			return err
		}

		if err := d.Jobs.Enqueue(ctx, "auth.passwordBased.emailUpdated", map[string]any{
			"userId": userID.String(),
		}); err != nil {
			return err
		}

		result = &RegisterResult{Token: token, ShouldSetPassword: false}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdatePassword writes a new hash and applies the configured
// session-cleanup policy (spec §4.5.1 "remove-current-session policy").
func (p *PasswordProvider) UpdatePassword(ctx context.Context, userID uuid.UUID, callerSessionID *uuid.UUID, newPassword string) error {
	return p.deps.transact(ctx, func(d Deps) error {
		hash, err := p.deps.Hasher.Hash(newPassword)
		if err != nil {
			return apperr.Server("authPasswordBased.updatePassword.hash", err)
		}
		if err := d.Queries.UpdatePasswordLoginHash(ctx, toPGUUID(userID), hash); err != nil {
			return apperr.Server("authPasswordBased.updatePassword.persist", err)
		}

		if p.cfg.RemoveAllSessionsOnUpdate {
			if err := deleteAllSessions(ctx, d, userID); err != nil {
				return err
			}
		} else {
			if err := deleteAllSessionsExcept(ctx, d, userID, callerSessionID); err != nil {
				return err
			}
		}

		return d.Jobs.Enqueue(ctx, "auth.passwordBased.passwordUpdated", map[string]any{
			"userId": userID.String(),
		})
	})
}

// VerifyOTP checks a password-flow one-time code (spec §4.5.1 step 6,
// §4.5.5): SHA-512, base32, an 11-step (~5m30s) window.
func (p *PasswordProvider) VerifyOTP(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	pl, err := p.deps.Queries.GetPasswordLoginByUser(ctx, toPGUUID(userID))
	if err != nil || !pl.OtpSecret.Valid {
		return false, apperr.Validation("authPasswordBased.verifyOtp.notEnabled", nil)
	}
	return verifyTOTP(pl.OtpSecret.String, code, passwordOTPWindow, passwordOTPAlgorithm, otp6())
}

// ListEmails returns the email addresses the caller's password login is
// reachable by (spec §6 `list-emails`). PasswordLogin is 1:1 with User, so
// today this is always a single-element slice, but the shape stays a list
// since account-recovery UIs call it to render "did you mean" choices and
// a user may gain more than one password-based identity down the line.
func (p *PasswordProvider) ListEmails(ctx context.Context, userID uuid.UUID) ([]string, error) {
	pl, err := p.deps.Queries.GetPasswordLoginByUser(ctx, toPGUUID(userID))
	if err != nil {
		return nil, apperr.NotFound("authPasswordBased.listEmails.notFound")
	}
	return []string{pl.Email}, nil
}

func deleteAllSessions(ctx context.Context, d Deps, userID uuid.UUID) error {
	sessions, err := d.Sessions.ListForUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if err := d.Sessions.Delete(ctx, uuid.UUID(s.ID.Bytes)); err != nil {
			return err
		}
	}
	return nil
}

func deleteAllSessionsExcept(ctx context.Context, d Deps, userID uuid.UUID, keep *uuid.UUID) error {
	sessions, err := d.Sessions.ListForUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		id := uuid.UUID(s.ID.Bytes)
		if keep != nil && id == *keep {
			continue
		}
		if err := d.Sessions.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
