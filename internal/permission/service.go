// Package permission implements the Permission Engine: catalog/mandatory
// role synchronization at startup, role/permission query and edit
// operations, and per-user permission resolution (spec §4.2).
package permission

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/storage"
	"github.com/lightbasenl/identity-core/internal/storage/db"
)

// ManagePermission is the permission identifier required to call any of
// the administrative operations on this package.
const ManagePermission = "auth:permission:manage"

// MandatoryRole is a role declared in configuration whose permission set
// is kept in sync on every startup and which cannot be edited at runtime.
type MandatoryRole struct {
	Identifier  string
	TenantID    *uuid.UUID // nil => global role
	Permissions []string
}

// Engine is the Permission Engine.
type Engine struct {
	pool *pgxpool.Pool
	q    *db.Queries
}

func NewEngine(pool *pgxpool.Pool, q *db.Queries) *Engine {
	return &Engine{pool: pool, q: q}
}

// Sync runs the startup synchronization described in spec §4.2 under a
// transaction-scoped advisory lock so concurrently booting instances
// serialize this work.
func (e *Engine) Sync(ctx context.Context, permissionIdentifiers []string, mandatoryRoles []MandatoryRole) error {
	if err := requireNoDuplicates(permissionIdentifiers); err != nil {
		return apperr.Validation("authPermission.sync.duplicatePermission", map[string]any{"error": err.Error()})
	}
	if err := requireUniqueMandatoryRoleIdentifiers(mandatoryRoles); err != nil {
		return apperr.Validation("authPermission.sync.duplicateMandatoryRole", map[string]any{"error": err.Error()})
	}

	return storage.WithAdvisoryLock(ctx, e.pool, storage.AdvisoryLockPermissionSync, func(tx pgx.Tx) error {
		q := e.q.WithTx(tx)

		if err := q.DeletePermissionsNotIn(ctx, permissionIdentifiers); err != nil {
			return fmt.Errorf("delete stale permissions: %w", err)
		}
		for _, id := range permissionIdentifiers {
			if err := q.InsertPermissionIfMissing(ctx, id); err != nil {
				return fmt.Errorf("insert permission %q: %w", id, err)
			}
		}

		for _, mr := range mandatoryRoles {
			if err := e.syncMandatoryRole(ctx, q, mr); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Engine) syncMandatoryRole(ctx context.Context, q *db.Queries, mr MandatoryRole) error {
	tenantID := pgtype.UUID{Valid: false}
	if mr.TenantID != nil {
		tenantID = pgtype.UUID{Bytes: *mr.TenantID, Valid: true}
	}

	role, err := q.GetRoleByIdentifier(ctx, mr.Identifier, tenantID)
	if err != nil {
		role, err = q.CreateRole(ctx, db.CreateRoleParams{Identifier: mr.Identifier, TenantID: tenantID, IsStatic: true})
		if err != nil {
			return fmt.Errorf("create mandatory role %q: %w", mr.Identifier, err)
		}
	} else {
		if err := q.DeleteRolePermissions(ctx, role.ID); err != nil {
			return fmt.Errorf("clear role permissions for %q: %w", mr.Identifier, err)
		}
	}

	perms, err := q.GetPermissionsByIdentifiers(ctx, mr.Permissions)
	if err != nil {
		return fmt.Errorf("load permissions for role %q: %w", mr.Identifier, err)
	}
	if len(perms) < len(mr.Permissions) {
		return apperr.Server("authPermission.sync.missingPermissions",
			fmt.Errorf("role %q declares %d permissions but only %d exist (sync permissions before mandatory roles)", mr.Identifier, len(mr.Permissions), len(perms)))
	}
	for _, p := range perms {
		if err := q.AddRolePermission(ctx, role.ID, p.ID); err != nil {
			return fmt.Errorf("link permission %q to role %q: %w", p.Identifier, mr.Identifier, err)
		}
	}
	return nil
}

func requireNoDuplicates(identifiers []string) error {
	seen := make(map[string]struct{}, len(identifiers))
	for _, id := range identifiers {
		if _, ok := seen[id]; ok {
			return fmt.Errorf("duplicate permission identifier %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func requireUniqueMandatoryRoleIdentifiers(roles []MandatoryRole) error {
	global := map[string]struct{}{}
	perTenant := map[uuid.UUID]map[string]struct{}{}
	for _, r := range roles {
		if r.TenantID == nil {
			if _, ok := global[r.Identifier]; ok {
				return fmt.Errorf("duplicate global mandatory role %q", r.Identifier)
			}
			global[r.Identifier] = struct{}{}
			continue
		}
		set, ok := perTenant[*r.TenantID]
		if !ok {
			set = map[string]struct{}{}
			perTenant[*r.TenantID] = set
		}
		if _, ok := set[r.Identifier]; ok {
			return fmt.Errorf("duplicate mandatory role %q for tenant %s", r.Identifier, r.TenantID)
		}
		set[r.Identifier] = struct{}{}
	}
	return nil
}

// --- Administrative operations (caller must hold ManagePermission) ---

func (e *Engine) ListPermissions(ctx context.Context) ([]db.Permission, error) {
	return e.q.ListPermissions(ctx)
}

// RoleView adds the derived isEditable flag to a role (spec §4.2:
// isEditable = ¬isStatic ∧ role.tenant ≠ null).
type RoleView struct {
	db.Role
	IsEditable bool
}

func (e *Engine) ListRolesVisibleToTenant(ctx context.Context, tenantID uuid.UUID) ([]RoleView, error) {
	roles, err := e.q.ListRolesVisibleToTenant(ctx, pgtype.UUID{Bytes: tenantID, Valid: true})
	if err != nil {
		return nil, apperr.Server("authPermission.listRoles", err)
	}
	out := make([]RoleView, len(roles))
	for i, r := range roles {
		out[i] = RoleView{Role: r, IsEditable: !r.IsStatic && r.TenantID.Valid}
	}
	return out, nil
}

func (e *Engine) CreateRole(ctx context.Context, tenantID uuid.UUID, identifier string) (db.Role, error) {
	tid := pgtype.UUID{Bytes: tenantID, Valid: true}
	if _, err := e.q.GetRoleByIdentifier(ctx, identifier, tid); err == nil {
		return db.Role{}, apperr.Validation("authPermission.createRole.duplicateIdentifier", map[string]any{"identifier": identifier})
	}
	role, err := e.q.CreateRole(ctx, db.CreateRoleParams{Identifier: identifier, TenantID: tid, IsStatic: false})
	if err != nil {
		return db.Role{}, apperr.Server("authPermission.createRole", err)
	}
	return role, nil
}

func (e *Engine) DeleteRole(ctx context.Context, roleID uuid.UUID) error {
	role, err := e.q.GetRoleByID(ctx, pgtype.UUID{Bytes: roleID, Valid: true})
	if err != nil {
		return apperr.NotFound("authPermission.deleteRole.notFound")
	}
	if role.IsStatic {
		return apperr.Validation("authPermission.deleteRole.isStatic", nil)
	}
	if err := e.q.DeleteRole(ctx, role.ID); err != nil {
		return apperr.Server("authPermission.deleteRole", err)
	}
	return nil
}

func (e *Engine) AddRolePermissions(ctx context.Context, roleID uuid.UUID, identifiers []string) error {
	perms, err := e.q.GetPermissionsByIdentifiers(ctx, identifiers)
	if err != nil {
		return apperr.Server("authPermission.addPermissions.lookup", err)
	}
	rid := pgtype.UUID{Bytes: roleID, Valid: true}
	for _, p := range perms {
		// Duplicates ignored on add (spec §4.2).
		if err := e.q.AddRolePermission(ctx, rid, p.ID); err != nil {
			return apperr.Server("authPermission.addPermissions", err)
		}
	}
	return nil
}

func (e *Engine) RemoveRolePermissions(ctx context.Context, roleID uuid.UUID, identifiers []string) error {
	perms, err := e.q.GetPermissionsByIdentifiers(ctx, identifiers)
	if err != nil {
		return apperr.Server("authPermission.removePermissions.lookup", err)
	}
	rid := pgtype.UUID{Bytes: roleID, Valid: true}
	for _, p := range perms {
		removed, err := e.q.RemoveRolePermission(ctx, rid, p.ID)
		if err != nil {
			return apperr.Server("authPermission.removePermissions", err)
		}
		if !removed {
			return apperr.Validation("authPermission.removePermissions.notAssigned", map[string]any{"permission": p.Identifier})
		}
	}
	return nil
}

func (e *Engine) AssignRole(ctx context.Context, userID, roleID uuid.UUID) error {
	uid, rid := pgtype.UUID{Bytes: userID, Valid: true}, pgtype.UUID{Bytes: roleID, Valid: true}
	has, err := e.q.HasUserRole(ctx, uid, rid)
	if err != nil {
		return apperr.Server("authPermission.assignRole.lookup", err)
	}
	if has {
		return apperr.Validation("authPermission.assignRole.alreadyAssigned", nil)
	}
	if err := e.q.AssignUserRole(ctx, uid, rid); err != nil {
		return apperr.Server("authPermission.assignRole", err)
	}
	return nil
}

func (e *Engine) RemoveRole(ctx context.Context, userID, roleID uuid.UUID) error {
	uid, rid := pgtype.UUID{Bytes: userID, Valid: true}, pgtype.UUID{Bytes: roleID, Valid: true}
	removed, err := e.q.RemoveUserRole(ctx, uid, rid)
	if err != nil {
		return apperr.Server("authPermission.removeRole", err)
	}
	if !removed {
		return apperr.Validation("authPermission.removeRole.notAssigned", nil)
	}
	return nil
}

// SyncRolesInput identifies the target role set by id or by identifier;
// exactly one must be set (spec §4.2 userSyncRoles).
type SyncRolesInput struct {
	IDIn         []uuid.UUID
	IdentifierIn []string
}

// UserSyncRoles computes and applies the add/remove delta between a user's
// current roles (scoped to tenantID and global roles) and the target set.
func (e *Engine) UserSyncRoles(ctx context.Context, userID, tenantID uuid.UUID, target SyncRolesInput) error {
	hasID := len(target.IDIn) > 0
	hasIdentifier := len(target.IdentifierIn) > 0
	if hasID == hasIdentifier {
		return apperr.Validation("authPermission.userSyncRoles.exactlyOne", nil)
	}

	current, err := e.q.ListUserRoleIdentifiers(ctx, pgtype.UUID{Bytes: userID, Valid: true}, pgtype.UUID{Bytes: tenantID, Valid: true})
	if err != nil {
		return apperr.Server("authPermission.userSyncRoles.listCurrent", err)
	}
	currentSet := toSet(current)

	var targetSet map[string]struct{}
	if hasIdentifier {
		targetSet = toSet(target.IdentifierIn)
	} else {
		targetSet = map[string]struct{}{}
		for _, id := range target.IDIn {
			role, err := e.q.GetRoleByID(ctx, pgtype.UUID{Bytes: id, Valid: true})
			if err != nil {
				return apperr.Validation("authPermission.userSyncRoles.unknownRole", map[string]any{"id": id.String()})
			}
			targetSet[role.Identifier] = struct{}{}
		}
	}

	for id := range targetSet {
		if _, ok := currentSet[id]; !ok {
			role, err := e.q.GetRoleByIdentifier(ctx, id, pgtype.UUID{Bytes: tenantID, Valid: true})
			if err != nil {
				role, err = e.q.GetRoleByIdentifier(ctx, id, pgtype.UUID{Valid: false})
			}
			if err != nil {
				return apperr.Validation("authPermission.userSyncRoles.unknownRole", map[string]any{"identifier": id})
			}
			if err := e.q.AssignUserRole(ctx, pgtype.UUID{Bytes: userID, Valid: true}, role.ID); err != nil {
				return apperr.Server("authPermission.userSyncRoles.assign", err)
			}
		}
	}
	for id := range currentSet {
		if _, ok := targetSet[id]; !ok {
			role, err := e.q.GetRoleByIdentifier(ctx, id, pgtype.UUID{Bytes: tenantID, Valid: true})
			if err != nil {
				role, err = e.q.GetRoleByIdentifier(ctx, id, pgtype.UUID{Valid: false})
			}
			if err != nil {
				continue
			}
			if _, err := e.q.RemoveUserRole(ctx, pgtype.UUID{Bytes: userID, Valid: true}, role.ID); err != nil {
				return apperr.Server("authPermission.userSyncRoles.remove", err)
			}
		}
	}
	return nil
}

// Summary is the aggregated role/permission view for a user within a
// tenant (spec §4.2 "User summary").
type Summary struct {
	Roles       []string
	Permissions []string
}

func (e *Engine) UserSummary(ctx context.Context, userID, tenantID uuid.UUID) (Summary, error) {
	roles, err := e.q.ListUserRoleIdentifiers(ctx, pgtype.UUID{Bytes: userID, Valid: true}, pgtype.UUID{Bytes: tenantID, Valid: true})
	if err != nil {
		return Summary{}, apperr.Server("authPermission.userSummary.roles", err)
	}
	perms, err := e.q.ListUserPermissionIdentifiers(ctx, pgtype.UUID{Bytes: userID, Valid: true}, pgtype.UUID{Bytes: tenantID, Valid: true})
	if err != nil {
		return Summary{}, apperr.Server("authPermission.userSummary.permissions", err)
	}
	sort.Strings(roles)
	sort.Strings(perms)
	return Summary{Roles: roles, Permissions: perms}, nil
}

// HasPermissions reports whether userID's resolved permission set (within
// tenantID, or global) is a superset of required.
func (e *Engine) HasPermissions(ctx context.Context, userID, tenantID uuid.UUID, required []string) (bool, error) {
	held, err := e.q.ListUserPermissionIdentifiers(ctx, pgtype.UUID{Bytes: userID, Valid: true}, pgtype.UUID{Bytes: tenantID, Valid: true})
	if err != nil {
		return false, apperr.Server("authPermission.hasPermissions", err)
	}
	set := toSet(held)
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
