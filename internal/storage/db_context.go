package storage

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTenantContext executes fn inside a transaction with app.current_tenant
// set for Row Level Security, isolating every query fn issues to rows
// belonging to tenantID.
//
// The session variable is transaction-scoped (SET LOCAL) and is cleared
// automatically when the transaction ends.
func WithTenantContext(ctx context.Context, pool *pgxpool.Pool, tenantID uuid.UUID, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.current_tenant', $1, true)", tenantID.String()); err != nil {
		return fmt.Errorf("failed to set tenant context: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// WithoutRLS executes fn inside a transaction that bypasses Row Level
// Security, for system-level operations: the feature flag sync, the
// permission catalog sync, and background workers that must see rows
// across every tenant.
func WithoutRLS(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ExecInTenantContext is a convenience wrapper for single-statement
// execution with tenant context.
func ExecInTenantContext(ctx context.Context, pool *pgxpool.Pool, tenantID uuid.UUID, sql string, args ...interface{}) error {
	return WithTenantContext(ctx, pool, tenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, sql, args...)
		return err
	})
}

// Advisory lock keys. pg_advisory_xact_lock takes a single bigint, so every
// serialized operation in the system is assigned a fixed, distinct key here
// rather than hashed at the call site — collisions would silently serialize
// unrelated operations.
const (
	// AdvisoryLockPermissionSync guards the startup permission/role catalog
	// sync so two replicas booting concurrently can't race on upserts.
	AdvisoryLockPermissionSync int64 = 7001
	// AdvisoryLockFeatureFlagSync guards the startup feature flag catalog sync.
	AdvisoryLockFeatureFlagSync int64 = 7002
)

// WithAdvisoryLock runs fn inside a transaction holding a transaction-scoped
// Postgres advisory lock on key. The lock is released automatically on
// commit or rollback; there is no separate unlock call.
func WithAdvisoryLock(ctx context.Context, pool *pgxpool.Pool, key int64, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", key); err != nil {
		return fmt.Errorf("failed to acquire advisory lock: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// WithUserLock serializes mutations against a single user (merges,
// role/permission changes, password updates racing a reset) by taking a
// transaction-scoped advisory lock keyed on a fixed namespace plus the
// user's id, via the two-argument pg_advisory_xact_lock(int, int) overload
// so this collision space stays disjoint from the fixed keys above.
func WithUserLock(ctx context.Context, pool *pgxpool.Pool, userID uuid.UUID, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const namespace = 9001
	key := int32(binary.BigEndian.Uint32(userID[:4]))
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1, $2)", namespace, key); err != nil {
		return fmt.Errorf("failed to acquire user lock: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
