// Package authproviders implements the five Authentication Providers
// (password, anonymous, BSN/SAML, Keycloak/OIDC, TOTP second factor) and
// their shared tail protocol (spec §4.5): on success, invalidate any
// existing session, determine the new session's two-step state, create the
// session, attach device info, and return the token pair.
package authproviders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/jobs"
	"github.com/lightbasenl/identity-core/internal/session"
	"github.com/lightbasenl/identity-core/internal/storage"
	"github.com/lightbasenl/identity-core/internal/storage/db"
	"github.com/lightbasenl/identity-core/internal/user"
)

// ReduceErrorInfoFlag is the reserved feature flag name that coalesces
// several password-flow errors into generic ones to defeat user
// enumeration (spec §4.5.1, §7).
const ReduceErrorInfoFlag = "__FEATURE_LPC_AUTH_REDUCE_ERROR_KEY_INFO"

// FlagResolver is the subset of the Feature Flag Engine the providers
// depend on, kept narrow so tests can stub it without a database.
type FlagResolver interface {
	ResolveSingle(ctx context.Context, name, tenantName string) (bool, error)
}

// PasswordHasher abstracts bcrypt so tests can swap in a cheap stub;
// production wiring uses BcryptHasher at the spec-mandated cost of 13.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// Deps bundles every collaborator a provider needs. Each provider method
// that mutates state opens its own transaction via storage.WithoutRLS (the
// tenant/session layer above this package is responsible for request-level
// RLS scoping; providers themselves operate across tenants by explicit
// tenant id parameters) and rebinds Sessions/Users/Jobs to it via WithTx.
type Deps struct {
	Pool     *pgxpool.Pool
	Queries  *db.Queries
	Sessions *session.Store
	Users    *user.Directory
	Jobs     *jobs.Bus
	Flags    FlagResolver
	Hasher   PasswordHasher
}

// withTx clones d with every collaborator rebound to tx.
func (d Deps) withTx(tx pgx.Tx) Deps {
	d.Queries = d.Queries.WithTx(tx)
	d.Sessions = d.Sessions.WithTx(tx)
	d.Users = d.Users.WithTx(tx)
	d.Jobs = d.Jobs.WithTx(tx)
	return d
}

// transact runs fn inside a fresh transaction with every Deps collaborator
// rebound to it.
func (d Deps) transact(ctx context.Context, fn func(Deps) error) error {
	return storage.WithoutRLS(ctx, d.Pool, func(tx pgx.Tx) error {
		return fn(d.withTx(tx))
	})
}

// TailInput bundles the parameters common to every provider's post-auth
// tail (spec §4.5): invalidate the loaded session if any, create the new
// one, attach the device.
type TailInput struct {
	UserID          uuid.UUID
	ExistingSession *db.Session
	LoginType       session.LoginType
	Type            session.Type
	TwoStepType     session.TwoStepType
	Device          *session.Device
}

// tail runs the shared post-authentication sequence and returns the new
// token pair.
func (d Deps) tail(ctx context.Context, in TailInput) (*session.TokenPair, error) {
	if in.ExistingSession != nil {
		if err := d.Sessions.Invalidate(ctx, uuid.UUID(in.ExistingSession.ID.Bytes)); err != nil {
			return nil, err
		}
	}

	data := session.Data{
		LoginType:   in.LoginType,
		Type:        in.Type,
		TwoStepType: in.TwoStepType,
	}

	pair, err := d.Sessions.Create(ctx, in.UserID, data, in.Device)
	if err != nil {
		return nil, apperr.NormalizeSessionError(err)
	}
	return pair, nil
}

// flagEnabled resolves a feature flag for tenantName, treating a resolver
// error as disabled rather than failing the whole auth flow over an
// observability concern.
func flagEnabled(ctx context.Context, flags FlagResolver, name, tenantName string) bool {
	if flags == nil {
		return false
	}
	enabled, err := flags.ResolveSingle(ctx, name, tenantName)
	if err != nil {
		return false
	}
	return enabled
}

func expiresIn(d time.Duration) time.Time {
	return time.Now().Add(d)
}

// PromoteToUser rewrites a checkTwoStep session's data to type "user" after
// its second factor has been verified (spec §4.5.1 step 6, §4.5.5), keeping
// the original login type and clearing the pending two-step marker.
func (d Deps) PromoteToUser(ctx context.Context, sess db.Session, data session.Data) error {
	data.Type = session.TypeUser
	data.TwoStepType = ""
	return d.Sessions.Update(ctx, uuid.UUID(sess.ID.Bytes), data)
}
