package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

func (q *Queries) ListTenants(ctx context.Context) ([]Tenant, error) {
	rows, err := q.db.Query(ctx, `SELECT id, name, data, url_config, created_at, updated_at FROM tenants ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Data, &t.URLConfig, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *Queries) GetTenantByID(ctx context.Context, id pgtype.UUID) (Tenant, error) {
	var t Tenant
	err := q.db.QueryRow(ctx, `SELECT id, name, data, url_config, created_at, updated_at FROM tenants WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Data, &t.URLConfig, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (q *Queries) GetTenantByName(ctx context.Context, name string) (Tenant, error) {
	var t Tenant
	err := q.db.QueryRow(ctx, `SELECT id, name, data, url_config, created_at, updated_at FROM tenants WHERE name = $1`, name).
		Scan(&t.ID, &t.Name, &t.Data, &t.URLConfig, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

type UpsertTenantParams struct {
	Name      string
	Data      []byte
	URLConfig []byte
}

func (q *Queries) UpsertTenant(ctx context.Context, arg UpsertTenantParams) (Tenant, error) {
	var t Tenant
	err := q.db.QueryRow(ctx, `
		INSERT INTO tenants (name, data, url_config)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, url_config = EXCLUDED.url_config, updated_at = now()
		RETURNING id, name, data, url_config, created_at, updated_at
	`, arg.Name, arg.Data, arg.URLConfig).Scan(&t.ID, &t.Name, &t.Data, &t.URLConfig, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}
