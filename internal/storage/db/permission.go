package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

func (q *Queries) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := q.db.Query(ctx, `SELECT id, identifier FROM permissions ORDER BY identifier`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Identifier); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) DeletePermissionsNotIn(ctx context.Context, identifiers []string) error {
	_, err := q.db.Exec(ctx, `DELETE FROM permissions WHERE NOT (identifier = ANY($1))`, identifiers)
	return err
}

func (q *Queries) InsertPermissionIfMissing(ctx context.Context, identifier string) error {
	_, err := q.db.Exec(ctx, `INSERT INTO permissions (identifier) VALUES ($1) ON CONFLICT (identifier) DO NOTHING`, identifier)
	return err
}

func (q *Queries) GetPermissionsByIdentifiers(ctx context.Context, identifiers []string) ([]Permission, error) {
	rows, err := q.db.Query(ctx, `SELECT id, identifier FROM permissions WHERE identifier = ANY($1)`, identifiers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Identifier); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Roles ---

func (q *Queries) GetRoleByIdentifier(ctx context.Context, identifier string, tenantID pgtype.UUID) (Role, error) {
	var r Role
	var err error
	if tenantID.Valid {
		err = q.db.QueryRow(ctx, `SELECT id, identifier, tenant_id, is_static FROM roles WHERE identifier = $1 AND tenant_id = $2`, identifier, tenantID).
			Scan(&r.ID, &r.Identifier, &r.TenantID, &r.IsStatic)
	} else {
		err = q.db.QueryRow(ctx, `SELECT id, identifier, tenant_id, is_static FROM roles WHERE identifier = $1 AND tenant_id IS NULL`, identifier).
			Scan(&r.ID, &r.Identifier, &r.TenantID, &r.IsStatic)
	}
	return r, err
}

func (q *Queries) GetRoleByID(ctx context.Context, id pgtype.UUID) (Role, error) {
	var r Role
	err := q.db.QueryRow(ctx, `SELECT id, identifier, tenant_id, is_static FROM roles WHERE id = $1`, id).
		Scan(&r.ID, &r.Identifier, &r.TenantID, &r.IsStatic)
	return r, err
}

type CreateRoleParams struct {
	Identifier string
	TenantID   pgtype.UUID
	IsStatic   bool
}

func (q *Queries) CreateRole(ctx context.Context, arg CreateRoleParams) (Role, error) {
	var r Role
	err := q.db.QueryRow(ctx, `
		INSERT INTO roles (identifier, tenant_id, is_static) VALUES ($1, $2, $3)
		RETURNING id, identifier, tenant_id, is_static
	`, arg.Identifier, arg.TenantID, arg.IsStatic).Scan(&r.ID, &r.Identifier, &r.TenantID, &r.IsStatic)
	return r, err
}

func (q *Queries) DeleteRole(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	return err
}

// ListRolesVisibleToTenant returns tenant-scoped roles plus global roles.
func (q *Queries) ListRolesVisibleToTenant(ctx context.Context, tenantID pgtype.UUID) ([]Role, error) {
	rows, err := q.db.Query(ctx, `SELECT id, identifier, tenant_id, is_static FROM roles WHERE tenant_id = $1 OR tenant_id IS NULL ORDER BY identifier`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Identifier, &r.TenantID, &r.IsStatic); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- RolePermission ---

func (q *Queries) DeleteRolePermissions(ctx context.Context, roleID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID)
	return err
}

func (q *Queries) AddRolePermission(ctx context.Context, roleID, permissionID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
		ON CONFLICT (role_id, permission_id) DO NOTHING
	`, roleID, permissionID)
	return err
}

func (q *Queries) RemoveRolePermission(ctx context.Context, roleID, permissionID pgtype.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q *Queries) ListRolePermissionIdentifiers(ctx context.Context, roleID pgtype.UUID) ([]string, error) {
	rows, err := q.db.Query(ctx, `
		SELECT p.identifier FROM role_permissions rp JOIN permissions p ON p.id = rp.permission_id WHERE rp.role_id = $1
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// --- UserRole ---

func (q *Queries) HasUserRole(ctx context.Context, userID, roleID pgtype.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM user_roles WHERE user_id = $1 AND role_id = $2)`, userID, roleID).Scan(&exists)
	return exists, err
}

func (q *Queries) AssignUserRole(ctx context.Context, userID, roleID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, userID, roleID)
	return err
}

func (q *Queries) RemoveUserRole(ctx context.Context, userID, roleID pgtype.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListUserPermissionIdentifiers computes ⋃{role.permissions} across every
// role the user holds that is global or scoped to tenantID (spec §8).
func (q *Queries) ListUserPermissionIdentifiers(ctx context.Context, userID, tenantID pgtype.UUID) ([]string, error) {
	rows, err := q.db.Query(ctx, `
		SELECT DISTINCT p.identifier
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		JOIN role_permissions rp ON rp.role_id = r.id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1 AND (r.tenant_id = $2 OR r.tenant_id IS NULL)
		ORDER BY p.identifier
	`, userID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (q *Queries) ListUserRoleIdentifiers(ctx context.Context, userID, tenantID pgtype.UUID) ([]string, error) {
	rows, err := q.db.Query(ctx, `
		SELECT r.identifier
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1 AND (r.tenant_id = $2 OR r.tenant_id IS NULL)
		ORDER BY r.identifier
	`, userID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
