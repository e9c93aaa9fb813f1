// Package user implements the User Directory: user lifecycle (create,
// soft-delete/reactivate, merge), cross-tenant login-identifier uniqueness,
// and the RequireUser guard-clause sequence every protected operation runs
// before it trusts a session (spec §4.4).
package user

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/jobs"
	"github.com/lightbasenl/identity-core/internal/permission"
	"github.com/lightbasenl/identity-core/internal/session"
	"github.com/lightbasenl/identity-core/internal/storage/db"
)

// Directory is the User Directory module.
type Directory struct {
	q    *db.Queries
	jobs *jobs.Bus
	perm *permission.Engine
}

func NewDirectory(q *db.Queries, bus *jobs.Bus, perm *permission.Engine) *Directory {
	return &Directory{q: q, jobs: bus, perm: perm}
}

// WithTx returns a Directory bound to tx, for use inside a caller-managed
// transaction (register flows, merges).
func (d *Directory) WithTx(tx pgx.Tx) *Directory {
	clone := *d
	clone.q = d.q.WithTx(tx)
	clone.jobs = d.jobs.WithTx(tx)
	return &clone
}

// CreateParams describes step 1-2 of the Create sequence (spec §4.4).
// Provider attachment (step 3) and role sync (step 4) are run by the
// caller — an authentication provider's Register operation, or an
// administrative invite flow — against the same transaction, then
// uniqueness is checked (step 5) via CheckPasswordEmailUnique /
// CheckKeycloakEmailUnique.
type CreateParams struct {
	DisplayName           string
	TenantID              uuid.UUID
	SyncAcrossAllTenants  bool
}

// Create inserts a new user record, attaches it to TenantID, and — when
// SyncAcrossAllTenants is set — to every other existing tenant. Must run
// inside the enclosing transaction (spec §4.4 "Create requires the
// enclosing transaction").
func (d *Directory) Create(ctx context.Context, p CreateParams) (db.User, error) {
	u, err := d.q.CreateUser(ctx, pgtype.Text{String: p.DisplayName, Valid: p.DisplayName != ""})
	if err != nil {
		return db.User{}, apperr.Server("user.create.insert", err)
	}

	tenantID := pgtype.UUID{Bytes: p.TenantID, Valid: true}
	if err := d.q.AddUserTenant(ctx, u.ID, tenantID); err != nil {
		return db.User{}, apperr.Server("user.create.attachTenant", err)
	}

	if p.SyncAcrossAllTenants {
		tenants, err := d.q.ListTenants(ctx)
		if err != nil {
			return db.User{}, apperr.Server("user.create.listTenants", err)
		}
		for _, t := range tenants {
			if t.ID == tenantID {
				continue
			}
			if err := d.q.AddUserTenant(ctx, u.ID, t.ID); err != nil {
				return db.User{}, apperr.Server("user.create.attachAllTenants", err)
			}
		}
	}

	return u, nil
}

// --- Uniqueness (spec §4.4 "Uniqueness") ---

// CheckPasswordEmailUnique fails if another non-deleted user in tenantID
// already holds a PasswordLogin with this email.
func (d *Directory) CheckPasswordEmailUnique(ctx context.Context, tenantID, userID uuid.UUID, email string) error {
	n, err := d.q.CountOtherPasswordLoginEmailsInTenant(ctx, pgtype.UUID{Bytes: tenantID, Valid: true}, pgtype.UUID{Bytes: userID, Valid: true}, email)
	if err != nil {
		return apperr.Server("user.checkUnique.password", err)
	}
	if n > 0 {
		return apperr.Validation("authPasswordBased.checkUnique.duplicateEmail", map[string]any{"email": email})
	}
	return nil
}

// CheckKeycloakEmailUnique fails if another non-deleted user in tenantID
// already holds a KeycloakLogin with this email.
func (d *Directory) CheckKeycloakEmailUnique(ctx context.Context, tenantID, userID uuid.UUID, email string) error {
	n, err := d.q.CountOtherKeycloakEmailsInTenant(ctx, pgtype.UUID{Bytes: tenantID, Valid: true}, pgtype.UUID{Bytes: userID, Valid: true}, email)
	if err != nil {
		return apperr.Server("user.checkUnique.keycloak", err)
	}
	if n > 0 {
		return apperr.Validation("authKeycloakBased.checkUnique.duplicateEmail", map[string]any{"email": email})
	}
	return nil
}

// --- RequireUser (spec §4.4) ---

// View is the assembled per-request user context: the row plus its
// resolved roles/permissions within the active tenant.
type View struct {
	User    db.User
	Summary permission.Summary
}

// RequireUserInput bundles the guard-clause parameters. EventKeyPrefix
// namespaces the distinct error keys each failure produces (e.g.
// "authPasswordBased" yields "authPasswordBased.incorrectSessionType").
type RequireUserInput struct {
	UserID                 uuid.UUID
	TenantID               uuid.UUID
	Session                *session.Data
	SkipSessionIsUserCheck bool
	RequiredLoginTypes     []session.LoginType
	RequiredPermissions    []string
	EventKeyPrefix         string
}

// RequireUser loads the user and runs the guard-clause sequence from spec
// §4.4, in order: existence, session type, session login type, permission
// superset. Each failure is a distinct, documented error key.
func (d *Directory) RequireUser(ctx context.Context, in RequireUserInput) (View, error) {
	prefix := in.EventKeyPrefix
	if prefix == "" {
		prefix = "authUser"
	}

	u, err := d.q.GetUserByID(ctx, pgtype.UUID{Bytes: in.UserID, Valid: true})
	if err != nil {
		return View{}, apperr.NotFound(prefix + ".invalidUser")
	}
	if u.DeletedAt.Valid {
		return View{}, apperr.NotFound(prefix + ".invalidUser")
	}

	if !in.SkipSessionIsUserCheck {
		if in.Session == nil || in.Session.Type != session.TypeUser {
			return View{}, apperr.Unauthorized(prefix + ".incorrectSessionType")
		}
	}

	if len(in.RequiredLoginTypes) > 0 {
		if in.Session == nil || !loginTypeAllowed(in.Session.LoginType, in.RequiredLoginTypes) {
			return View{}, apperr.Unauthorized(prefix + ".incorrectLoginType")
		}
	}

	summary, err := d.perm.UserSummary(ctx, in.UserID, in.TenantID)
	if err != nil {
		return View{}, err
	}
	if len(in.RequiredPermissions) > 0 {
		ok, err := d.perm.HasPermissions(ctx, in.UserID, in.TenantID, in.RequiredPermissions)
		if err != nil {
			return View{}, err
		}
		if !ok {
			return View{}, apperr.Forbidden(prefix + ".missingPermissions")
		}
	}

	return View{User: u, Summary: summary}, nil
}

func loginTypeAllowed(got session.LoginType, allowed []session.LoginType) bool {
	for _, a := range allowed {
		if got == a {
			return true
		}
	}
	return false
}

// --- Soft delete / reactivate (spec §4.4) ---

// SoftDelete marks userID deleted and enqueues auth.user.softDeleted.
func (d *Directory) SoftDelete(ctx context.Context, userID uuid.UUID) error {
	id := pgtype.UUID{Bytes: userID, Valid: true}
	if err := d.q.SetUserDeletedAt(ctx, id, true); err != nil {
		return apperr.Server("user.softDelete", err)
	}
	return d.jobs.Enqueue(ctx, "auth.user.softDeleted", map[string]any{"userId": userID.String()})
}

// Reactivate clears userID's deletedAt.
func (d *Directory) Reactivate(ctx context.Context, userID uuid.UUID) error {
	if err := d.q.SetUserDeletedAt(ctx, pgtype.UUID{Bytes: userID, Valid: true}, false); err != nil {
		return apperr.Server("user.reactivate", err)
	}
	return nil
}

// --- Merge (spec §4.4) ---

// mergeRetargetTables lists every (table, user-id column) pair a merge must
// rewrite. Deliberately excludes the identity tables the spec calls out
// (password/anonymous/digid/keycloak/totp logins, user_roles, user_tenants)
// — those stay with whichever user authenticated and are not carried over.
var mergeRetargetTables = []struct{ Table, Column string }{
	{"user_sessions", "user_id"},
	{"password_login_resets", "user_id"},
	{"password_login_attempts", "user_id"},
}

// MergeHooks are the caller-supplied callbacks bracketing a merge (spec
// §4.4). ShouldCombine defaults to "always combine" when nil.
type MergeHooks struct {
	ShouldCombine func(old, new db.User) bool
	BeforeCombine func(ctx context.Context, old, new db.User) error
	AfterCombine  func(ctx context.Context, old, new db.User) error
}

// Merge re-targets every foreign key from oldUserID to newUserID (except the
// identity tables) and deletes the old user row. Must run inside the
// enclosing transaction — a half-applied merge must never be observable.
func (d *Directory) Merge(ctx context.Context, oldUserID, newUserID uuid.UUID, hooks MergeHooks) error {
	oldU, err := d.q.GetUserByID(ctx, pgtype.UUID{Bytes: oldUserID, Valid: true})
	if err != nil {
		return apperr.NotFound("user.merge.oldUserNotFound")
	}
	newU, err := d.q.GetUserByID(ctx, pgtype.UUID{Bytes: newUserID, Valid: true})
	if err != nil {
		return apperr.NotFound("user.merge.newUserNotFound")
	}

	if hooks.ShouldCombine != nil && !hooks.ShouldCombine(oldU, newU) {
		return nil
	}

	if hooks.BeforeCombine != nil {
		if err := hooks.BeforeCombine(ctx, oldU, newU); err != nil {
			return fmt.Errorf("user merge beforeCombine: %w", err)
		}
	}

	oldID := pgtype.UUID{Bytes: oldUserID, Valid: true}
	newID := pgtype.UUID{Bytes: newUserID, Valid: true}
	for _, t := range mergeRetargetTables {
		if err := d.q.RetargetForeignKey(ctx, t.Table, t.Column, oldID, newID); err != nil {
			return apperr.Server("user.merge.retarget", fmt.Errorf("%s.%s: %w", t.Table, t.Column, err))
		}
	}

	if err := d.q.DeleteUserHard(ctx, oldID); err != nil {
		return apperr.Server("user.merge.deleteOld", err)
	}

	if hooks.AfterCombine != nil {
		if err := hooks.AfterCombine(ctx, oldU, newU); err != nil {
			return fmt.Errorf("user merge afterCombine: %w", err)
		}
	}
	return nil
}
