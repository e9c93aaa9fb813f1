package middleware

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lightbasenl/identity-core/internal/tenant"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// Context keys for request-scoped values.
const (
	UserIDKey       contextKey = "user_id"
	TenantIDKey     contextKey = "tenant_id"
	TenantEntityKey contextKey = "tenant_entity"
	ImpersonatorKey contextKey = "impersonator_user_id"
	SessionIDKey    contextKey = "session_id"
)

// GetUserID safely extracts the user ID from context.
func GetUserID(ctx context.Context) (uuid.UUID, error) {
	val := ctx.Value(UserIDKey)
	if val == nil {
		return uuid.Nil, fmt.Errorf("user_id not found in context")
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("user_id has wrong type: %T", val)
	}
	return id, nil
}

// GetTenantID safely extracts the resolved tenant's database id from context.
func GetTenantID(ctx context.Context) (uuid.UUID, error) {
	val := ctx.Value(TenantIDKey)
	if val == nil {
		return uuid.Nil, fmt.Errorf("tenant_id not found in context")
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("tenant_id has wrong type: %T", val)
	}
	return id, nil
}

// GetTenantEntity extracts the resolved tenant entity (spec §4.1) from
// context, as injected by TenantContext.
func GetTenantEntity(ctx context.Context) (tenant.Entity, error) {
	val := ctx.Value(TenantEntityKey)
	if val == nil {
		return tenant.Entity{}, fmt.Errorf("tenant entity not found in context")
	}
	e, ok := val.(tenant.Entity)
	if !ok {
		return tenant.Entity{}, fmt.Errorf("tenant entity has wrong type: %T", val)
	}
	return e, nil
}

// GetImpersonatorID extracts the impersonating operator's user id, set only
// on sessions created by the impersonation flow (spec §4.9).
func GetImpersonatorID(ctx context.Context) (uuid.UUID, bool) {
	val := ctx.Value(ImpersonatorKey)
	if val == nil {
		return uuid.Nil, false
	}
	id, ok := val.(uuid.UUID)
	return id, ok
}

// GetSessionID extracts the current request's session id.
func GetSessionID(ctx context.Context) (uuid.UUID, error) {
	val := ctx.Value(SessionIDKey)
	if val == nil {
		return uuid.Nil, fmt.Errorf("session_id not found in context")
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("session_id has wrong type: %T", val)
	}
	return id, nil
}

// MustGetUserID extracts user ID and panics if not found. Use only in
// handlers mounted behind RequireAuth, where UserID is guaranteed set.
func MustGetUserID(ctx context.Context) uuid.UUID {
	id, err := GetUserID(ctx)
	if err != nil {
		panic(fmt.Sprintf("CRITICAL: %v", err))
	}
	return id
}

// MustGetTenantID extracts tenant ID and panics if not found. Use only in
// handlers mounted behind RequireTenant.
func MustGetTenantID(ctx context.Context) uuid.UUID {
	id, err := GetTenantID(ctx)
	if err != nil {
		panic(fmt.Sprintf("CRITICAL: %v", err))
	}
	return id
}
