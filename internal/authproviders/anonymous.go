package authproviders

import (
	"context"

	"github.com/google/uuid"

	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/session"
)

// AnonymousProvider implements the Anonymous Provider (spec §4.5.2): no
// credential compare, just an opaque per-user login token gated by an
// isAllowedToLogin flag. Modeled after the password provider's
// register/login shape but without the attempt-rate bookkeeping.
type AnonymousProvider struct {
	deps Deps
}

func NewAnonymousProvider(deps Deps) *AnonymousProvider {
	return &AnonymousProvider{deps: deps}
}

// Login resolves a user by (tenant, loginToken); a token marked
// isAllowedToLogin=false can never authenticate through this path (spec
// §4.5.2) even though it remains valid for internally-issued sessions.
func (p *AnonymousProvider) Login(ctx context.Context, tenantID uuid.UUID, loginToken string, device *session.Device) (*session.TokenPair, error) {
	var result *session.TokenPair
	err := p.deps.transact(ctx, func(d Deps) error {
		al, err := d.Queries.GetAnonymousLoginByTenantAndToken(ctx, toPGUUID(tenantID), loginToken)
		if err != nil {
			return apperr.Validation("authAnonymousBased.login.unknownToken", nil)
		}
		if !al.IsAllowedToLogin {
			return anonymousNotAllowedError()
		}

		userID := uuid.UUID(al.UserID.Bytes)
		if err := d.Queries.SetUserLastLogin(ctx, al.UserID); err != nil {
			return apperr.Server("authAnonymousBased.login.lastLogin", err)
		}

		tokens, err := d.tail(ctx, TailInput{
			UserID:    userID,
			LoginType: session.LoginTypeAnonymousBased,
			Type:      session.TypeUser,
			Device:    device,
		})
		if err != nil {
			return err
		}
		result = tokens
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// anonymousNotAllowedError is a business-rule validation failure (spec §7:
// unknownBsn/unknownEmail/userHasRole-class errors are 400, not 404), wire
// key `tokenIsNotAllowedToLogin` (spec §8 scenario 6).
func anonymousNotAllowedError() error {
	return apperr.Validation("authAnonymousBased.login.tokenIsNotAllowedToLogin", nil)
}

// Register inserts an AnonymousLogin with a fresh opaque token, inside the
// caller's enclosing transaction (spec §4.4, §4.5.2).
func (p *AnonymousProvider) Register(ctx context.Context, d Deps, userID uuid.UUID) (string, error) {
	token := "auth-anonymous-" + uuid.New().String()
	if err := d.Queries.CreateAnonymousLogin(ctx, toPGUUID(userID), token); err != nil {
		return "", apperr.Server("authAnonymousBased.register.insert", err)
	}
	if err := d.Jobs.Enqueue(ctx, "auth.anonymousBased.userRegistered", map[string]any{
		"userId": userID.String(),
	}); err != nil {
		return "", err
	}
	return token, nil
}

// GetSessionForUser converts a user already known to have an
// AnonymousLogin into a session-data seed, without issuing tokens — used
// where a caller already holds a user (e.g. an admin "login as") and only
// needs the Data shape anonymous sessions carry (spec §4.5.2).
func (p *AnonymousProvider) GetSessionForUser(ctx context.Context, userID uuid.UUID) (session.Data, error) {
	al, err := p.deps.Queries.GetAnonymousLoginByUser(ctx, toPGUUID(userID))
	if err != nil {
		return session.Data{}, apperr.NotFound("authAnonymousBased.getSessionForUser.notFound")
	}
	return session.Data{
		UserID:    uuid.UUID(al.UserID.Bytes),
		LoginType: session.LoginTypeAnonymousBased,
		Type:      session.TypeUser,
	}, nil
}
