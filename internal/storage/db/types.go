package db

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// Tenant mirrors the `tenants` table (spec §3).
type Tenant struct {
	ID        pgtype.UUID
	Name      string
	Data      []byte // jsonb free-form data bag
	URLConfig []byte // jsonb { publicUrl: { environment, apiUrl } }
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

// User mirrors the `users` table.
type User struct {
	ID          pgtype.UUID
	DisplayName pgtype.Text
	LastLoginAt pgtype.Timestamptz
	DeletedAt   pgtype.Timestamptz
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

// UserTenant mirrors the `user_tenants` join table.
type UserTenant struct {
	UserID   pgtype.UUID
	TenantID pgtype.UUID
}

// PasswordLogin mirrors the `password_logins` table (1:1 with User).
type PasswordLogin struct {
	UserID       pgtype.UUID
	Email        string
	PasswordHash string
	VerifiedAt   pgtype.Timestamptz
	OtpEnabledAt pgtype.Timestamptz
	OtpSecret    pgtype.Text
	UpdatedAt    pgtype.Timestamptz
}

// PasswordLoginReset mirrors `password_login_resets`.
type PasswordLoginReset struct {
	ID                pgtype.UUID
	UserID            pgtype.UUID
	Token             string
	ExpiresAt         pgtype.Timestamptz
	ShouldSetPassword bool
}

// PasswordLoginAttempt mirrors `password_login_attempts` (append-only).
type PasswordLoginAttempt struct {
	ID        pgtype.UUID
	UserID    pgtype.UUID
	CreatedAt pgtype.Timestamptz
}

// AnonymousLogin mirrors `anonymous_logins` (1:1 with User).
type AnonymousLogin struct {
	UserID           pgtype.UUID
	LoginToken       string
	IsAllowedToLogin bool
}

// DigidLogin mirrors `digid_logins` (1:1 with User).
type DigidLogin struct {
	UserID pgtype.UUID
	BSN    string
}

// KeycloakLogin mirrors `keycloak_logins` (1:1 with User).
type KeycloakLogin struct {
	UserID pgtype.UUID
	Email  string
}

// TotpSettings mirrors `totp_settings` (1:1 with User).
type TotpSettings struct {
	UserID     pgtype.UUID
	Secret     string
	VerifiedAt pgtype.Timestamptz
}

// Role mirrors `roles`. TenantID is null for global roles.
type Role struct {
	ID         pgtype.UUID
	Identifier string
	TenantID   pgtype.UUID
	IsStatic   bool
}

// Permission mirrors the global `permissions` catalog.
type Permission struct {
	ID         pgtype.UUID
	Identifier string
}

// RolePermission mirrors `role_permissions`.
type RolePermission struct {
	RoleID       pgtype.UUID
	PermissionID pgtype.UUID
}

// UserRole mirrors `user_roles`.
type UserRole struct {
	UserID pgtype.UUID
	RoleID pgtype.UUID
}

// Session mirrors `sessions`. Data is the caller-owned opaque blob.
type Session struct {
	ID        pgtype.UUID
	Checksum  string
	Data      []byte
	RevokedAt pgtype.Timestamptz
	CreatedAt pgtype.Timestamptz
}

// SessionToken mirrors `session_tokens`, covering both access and refresh
// rows (Kind distinguishes them; refresh rows form a linear chain via
// ParentID).
type SessionToken struct {
	ID        pgtype.UUID
	SessionID pgtype.UUID
	Kind      string // "access" | "refresh"
	ParentID  pgtype.UUID
	ExpiresAt pgtype.Timestamptz
	RevokedAt pgtype.Timestamptz
	CreatedAt pgtype.Timestamptz
}

// Device mirrors `devices` (1:1 with Session).
type Device struct {
	SessionID           pgtype.UUID
	Platform             string
	Name                 string
	NotificationToken    pgtype.Text
	WebPushSubscription  []byte
}

// FeatureFlag mirrors `feature_flags`.
type FeatureFlag struct {
	ID           pgtype.UUID
	Name         string
	GlobalValue  bool
	Description  string
	TenantValues []byte // jsonb map[tenantName]bool
}

// UserSession mirrors `user_sessions`, the owning-user index for the
// otherwise-opaque `sessions` table.
type UserSession struct {
	UserID    pgtype.UUID
	SessionID pgtype.UUID
}

// ManagementUser mirrors `management_users` — transient elevated-session
// users created by the self-provisioning flow (spec §4.8). ID is shared
// with the backing `users` row so the daily sweep can purge both.
type ManagementUser struct {
	ID         pgtype.UUID
	ExternalID string
	CreatedAt  pgtype.Timestamptz
}
