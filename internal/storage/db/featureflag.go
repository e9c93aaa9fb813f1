package db

import (
	"context"
)

func (q *Queries) ListFeatureFlags(ctx context.Context) ([]FeatureFlag, error) {
	rows, err := q.db.Query(ctx, `SELECT id, name, global_value, description, tenant_values FROM feature_flags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FeatureFlag
	for rows.Next() {
		var f FeatureFlag
		if err := rows.Scan(&f.ID, &f.Name, &f.GlobalValue, &f.Description, &f.TenantValues); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (q *Queries) GetFeatureFlagByName(ctx context.Context, name string) (FeatureFlag, error) {
	var f FeatureFlag
	err := q.db.QueryRow(ctx, `SELECT id, name, global_value, description, tenant_values FROM feature_flags WHERE name = $1`, name).
		Scan(&f.ID, &f.Name, &f.GlobalValue, &f.Description, &f.TenantValues)
	return f, err
}

type UpsertFeatureFlagParams struct {
	Name        string
	GlobalValue bool
	Description string
}

// UpsertFeatureFlag registers a flag discovered at sync time (spec §4.6).
// It never touches tenant_values so already-recorded per-tenant overrides
// made via SetTenantFeatureFlagValue survive a redeploy.
func (q *Queries) UpsertFeatureFlag(ctx context.Context, arg UpsertFeatureFlagParams) (FeatureFlag, error) {
	var f FeatureFlag
	err := q.db.QueryRow(ctx, `
		INSERT INTO feature_flags (name, global_value, description, tenant_values)
		VALUES ($1, $2, $3, '{}'::jsonb)
		ON CONFLICT (name) DO UPDATE SET global_value = EXCLUDED.global_value, description = EXCLUDED.description
		RETURNING id, name, global_value, description, tenant_values
	`, arg.Name, arg.GlobalValue, arg.Description).Scan(&f.ID, &f.Name, &f.GlobalValue, &f.Description, &f.TenantValues)
	return f, err
}

// SetFeatureFlagGlobalValue updates only the global default, leaving
// per-tenant overrides untouched (spec §4.6 "Set dynamic").
func (q *Queries) SetFeatureFlagGlobalValue(ctx context.Context, name string, value bool) error {
	_, err := q.db.Exec(ctx, `UPDATE feature_flags SET global_value = $2 WHERE name = $1`, name, value)
	return err
}

func (q *Queries) DeleteFeatureFlagsNotIn(ctx context.Context, names []string) error {
	_, err := q.db.Exec(ctx, `DELETE FROM feature_flags WHERE NOT (name = ANY($1))`, names)
	return err
}

// SetTenantFeatureFlagValue merges a {tenantName: value} pair into the
// flag's tenant_values jsonb map, overriding the flag's global_value for
// that tenant only.
func (q *Queries) SetTenantFeatureFlagValue(ctx context.Context, name, tenantName string, value bool) error {
	_, err := q.db.Exec(ctx, `
		UPDATE feature_flags
		SET tenant_values = jsonb_set(coalesce(tenant_values, '{}'::jsonb), array[$2], to_jsonb($3::bool), true)
		WHERE name = $1
	`, name, tenantName, value)
	return err
}

func (q *Queries) ClearTenantFeatureFlagValue(ctx context.Context, name, tenantName string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE feature_flags SET tenant_values = tenant_values - $2 WHERE name = $1
	`, name, tenantName)
	return err
}
