// Package featureflag implements the Feature Flag Engine: startup catalog
// sync, per-tenant resolution with global fallback, and a short-TTL
// pull-through cache (spec §4.6).
package featureflag

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/storage"
	"github.com/lightbasenl/identity-core/internal/storage/db"
)

// ReservedFlagPrefix marks internally-reserved flags that are always
// included regardless of what a deployment declares.
const ReservedFlagPrefix = "__FEATURE_LPC_"

// ExampleReservedFlag seeds an empty declared-flag list so Sync never runs
// against a degenerate, entirely-empty catalog (spec §4.6).
const ExampleReservedFlag = ReservedFlagPrefix + "EXAMPLE_FLAG"

const cacheTTL = 5 * time.Second

// Engine is the Feature Flag Engine.
type Engine struct {
	pool     *pgxpool.Pool
	q        *db.Queries
	declared []string

	mu       sync.RWMutex
	cache    map[string]db.FeatureFlag
	cachedAt time.Time
}

// NewEngine builds an Engine over the declared flag identifiers. Reserved
// flags are added automatically and need not be passed in.
func NewEngine(pool *pgxpool.Pool, q *db.Queries, declared []string) *Engine {
	names := append([]string{}, declared...)
	if !contains(names, ExampleReservedFlag) {
		names = append(names, ExampleReservedFlag)
	}
	return &Engine{pool: pool, q: q, declared: names}
}

// Sync runs the startup catalog synchronization under a transaction-scoped
// advisory lock: removes flags no longer declared, inserts missing ones.
func (e *Engine) Sync(ctx context.Context) error {
	return storage.WithAdvisoryLock(ctx, e.pool, storage.AdvisoryLockFeatureFlagSync, func(tx pgx.Tx) error {
		q := e.q.WithTx(tx)
		if err := q.DeleteFeatureFlagsNotIn(ctx, e.declared); err != nil {
			return fmt.Errorf("delete stale feature flags: %w", err)
		}
		for _, name := range e.declared {
			if _, err := q.UpsertFeatureFlag(ctx, db.UpsertFeatureFlagParams{Name: name, GlobalValue: false}); err != nil {
				return fmt.Errorf("upsert feature flag %q: %w", name, err)
			}
		}
		return nil
	})
}

func (e *Engine) refreshAll(ctx context.Context) error {
	flags, err := e.q.ListFeatureFlags(ctx)
	if err != nil {
		return apperr.Server("featureFlag.refresh", err)
	}
	byName := make(map[string]db.FeatureFlag, len(flags))
	for _, f := range flags {
		byName[f.Name] = f
	}
	e.mu.Lock()
	e.cache = byName
	e.cachedAt = time.Now()
	e.mu.Unlock()
	return nil
}

// ensureFresh implements the pull-through cache: an empty or stale cache
// triggers one full reload that "primes" every declared flag at once,
// rather than one query per lookup (spec §4.6 "fetching one known key
// warms all").
func (e *Engine) ensureFresh(ctx context.Context) error {
	e.mu.RLock()
	stale := len(e.cache) == 0 || time.Since(e.cachedAt) > cacheTTL
	e.mu.RUnlock()
	if !stale {
		return nil
	}
	return e.refreshAll(ctx)
}

func resolveValue(f db.FeatureFlag, tenantName string) bool {
	if len(f.TenantValues) > 0 {
		var overrides map[string]bool
		if err := json.Unmarshal(f.TenantValues, &overrides); err == nil {
			if v, ok := overrides[tenantName]; ok {
				return v
			}
		}
	}
	return f.GlobalValue
}

// ResolveAll returns every declared flag's value for tenantName, with
// flags declared but absent from storage defaulting to false.
func (e *Engine) ResolveAll(ctx context.Context, tenantName string) (map[string]bool, error) {
	if err := e.ensureFresh(ctx); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]bool, len(e.declared))
	for _, name := range e.declared {
		f, ok := e.cache[name]
		if !ok {
			out[name] = false
			continue
		}
		out[name] = resolveValue(f, tenantName)
	}
	return out, nil
}

// ResolveSingle ("getDynamic") resolves one flag by name. An identifier
// that isn't declared at all is a server error (spec §4.6).
func (e *Engine) ResolveSingle(ctx context.Context, name, tenantName string) (bool, error) {
	if !contains(e.declared, name) {
		return false, apperr.Server("featureFlag.getDynamic.unknownFlag", fmt.Errorf("flag %q is not declared", name))
	}
	if err := e.ensureFresh(ctx); err != nil {
		return false, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	f, ok := e.cache[name]
	if !ok {
		return false, nil
	}
	return resolveValue(f, tenantName), nil
}

// SetDynamic updates a flag's global value and/or a single tenant's
// override, then invalidates the cache so the next resolution re-primes
// from storage.
func (e *Engine) SetDynamic(ctx context.Context, name string, global *bool, tenantName string, tenantValue *bool) error {
	if global != nil {
		if err := e.q.SetFeatureFlagGlobalValue(ctx, name, *global); err != nil {
			return apperr.Server("featureFlag.setDynamic.global", err)
		}
	}
	if tenantName != "" {
		if tenantValue == nil {
			if err := e.q.ClearTenantFeatureFlagValue(ctx, name, tenantName); err != nil {
				return apperr.Server("featureFlag.setDynamic.clearTenant", err)
			}
		} else {
			if err := e.q.SetTenantFeatureFlagValue(ctx, name, tenantName, *tenantValue); err != nil {
				return apperr.Server("featureFlag.setDynamic.setTenant", err)
			}
		}
	}
	e.invalidate()
	return nil
}

func (e *Engine) invalidate() {
	e.mu.Lock()
	e.cache = nil
	e.mu.Unlock()
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
