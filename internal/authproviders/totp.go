package authproviders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/lightbasenl/identity-core/internal/apperr"
)

// totpPeriod is the fixed 30-second step every TOTP computation in this
// package uses, per spec §4.5.5/§8.
const totpPeriod = 30

// windowSkew converts a spec "window of N steps" into the pquerna/otp
// Skew (periods allowed before AND after the current one): window=11
// (~5m30s) is skew 5, window=1 (~30s) is skew 0.
func windowSkew(window uint) uint {
	if window == 0 {
		return 0
	}
	return (window - 1) / 2
}

// generateTOTP computes the current code for secret under the given
// digest/digits, matching the otpauth parameters verifyTOTP validates
// against.
func generateTOTP(secret string, algorithm otp.Algorithm, digits otp.Digits) (string, error) {
	return totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      0,
		Digits:    digits,
		Algorithm: algorithm,
	})
}

// verifyTOTP checks code against secret, tolerating drift of window steps
// in either direction.
func verifyTOTP(secret, code string, window uint, algorithm otp.Algorithm, digits otp.Digits) (bool, error) {
	return totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      windowSkew(window),
		Digits:    digits,
		Algorithm: algorithm,
	})
}

// passwordOTPAlgorithm/Digits fix the password-flow one-time-code shape
// (spec §4.5.1 step 6, §4.5.5): SHA-512, base32 secret, 6 digits, an
// 11-step (~5m30s) validation window.
const (
	passwordOTPWindow = 11
)

var passwordOTPAlgorithm = otp.AlgorithmSHA512

// totpSecondFactorWindow is the authenticator-app second-factor window
// (spec §4.5.5, §8): one step, ~30s, no drift tolerance.
const totpSecondFactorWindow = 1

var totpSecondFactorAlgorithm = otp.AlgorithmSHA1

// TOTPProvider implements the TOTP second factor (spec §4.5.5): setup,
// setup verification, runtime verification, and removal, grounded on the
// teacher's pquerna/otp usage in internal/auth/mfa.go.
type TOTPProvider struct {
	deps   Deps
	issuer string
}

func NewTOTPProvider(deps Deps, issuer string) *TOTPProvider {
	return &TOTPProvider{deps: deps, issuer: issuer}
}

// SetupResult carries the freshly generated secret and its otpauth URL for
// the client to render as a QR code.
type SetupResult struct {
	Secret    string
	OtpauthURL string
}

// Setup issues a base32 secret and persists it unverified. Calling Setup
// again before SetupVerify overwrites the pending secret (the storage
// layer's UpsertTotpSettings only updates while unverified).
func (p *TOTPProvider) Setup(ctx context.Context, userID uuid.UUID, accountName string) (*SetupResult, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		Algorithm:   totpSecondFactorAlgorithm,
	})
	if err != nil {
		return nil, apperr.Server("authTotp.setup.generate", err)
	}

	if err := p.deps.Queries.UpsertTotpSettings(ctx, toPGUUID(userID), key.Secret()); err != nil {
		return nil, apperr.Server("authTotp.setup.persist", err)
	}

	return &SetupResult{Secret: key.Secret(), OtpauthURL: key.String()}, nil
}

// SetupVerify confirms a just-issued secret within a 1-step window and
// marks it verified. Rejects an already-verified or never-set-up user.
func (p *TOTPProvider) SetupVerify(ctx context.Context, userID uuid.UUID, code string) error {
	row, err := p.deps.Queries.GetTotpSettings(ctx, toPGUUID(userID))
	if err != nil {
		return apperr.Validation("authTotp.setupVerify.notSetUp", nil)
	}
	if row.VerifiedAt.Valid {
		return apperr.Validation("authTotp.setupVerify.alreadyVerified", nil)
	}

	ok, err := verifyTOTP(row.Secret, code, totpSecondFactorWindow, totpSecondFactorAlgorithm, otp.DigitsSix)
	if err != nil || !ok {
		return apperr.Validation("authTotp.setupVerify.invalidCode", nil)
	}

	if err := p.deps.Queries.SetTotpVerified(ctx, toPGUUID(userID)); err != nil {
		return apperr.Server("authTotp.setupVerify.persist", err)
	}
	return nil
}

// Verify is the runtime second-factor check: on success the caller
// promotes the checkTwoStep session to type "user".
func (p *TOTPProvider) Verify(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	row, err := p.deps.Queries.GetTotpSettings(ctx, toPGUUID(userID))
	if err != nil || !row.VerifiedAt.Valid {
		return false, apperr.Validation("authTotp.verify.notSetUp", nil)
	}
	return verifyTOTP(row.Secret, code, totpSecondFactorWindow, totpSecondFactorAlgorithm, otp.DigitsSix)
}

// Remove deletes the caller's own TOTP settings.
func (p *TOTPProvider) Remove(ctx context.Context, userID uuid.UUID) error {
	if err := p.deps.Queries.DeleteTotpSettings(ctx, toPGUUID(userID)); err != nil {
		return apperr.Server("authTotp.remove", err)
	}
	return nil
}

// RemoveForUser deletes another user's TOTP settings; the caller must have
// already checked the `auth:totp:manage` permission via
// user.Directory.RequireUser (spec §4.5.5).
func (p *TOTPProvider) RemoveForUser(ctx context.Context, targetUserID uuid.UUID) error {
	return p.Remove(ctx, targetUserID)
}

func toPGUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// totpKey generates a fresh base32 secret under the given algorithm,
// independent of any particular account/issuer label (used by the
// password provider's OTP-secret-on-demand path, spec §4.5.1 step 6).
func totpKey(algorithm otp.Algorithm) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "identity-core",
		AccountName: "password-otp",
		Period:      totpPeriod,
		Algorithm:   algorithm,
	})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

func otp6() otp.Digits { return otp.DigitsSix }
