package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

func (q *Queries) CreateUser(ctx context.Context, displayName pgtype.Text) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, `
		INSERT INTO users (display_name) VALUES ($1)
		RETURNING id, display_name, last_login_at, deleted_at, created_at, updated_at
	`, displayName).Scan(&u.ID, &u.DisplayName, &u.LastLoginAt, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (q *Queries) GetUserByID(ctx context.Context, id pgtype.UUID) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, `
		SELECT id, display_name, last_login_at, deleted_at, created_at, updated_at FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.DisplayName, &u.LastLoginAt, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (q *Queries) SetUserLastLogin(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE users SET last_login_at = now(), updated_at = now() WHERE id = $1`, id)
	return err
}

func (q *Queries) SetUserDeletedAt(ctx context.Context, id pgtype.UUID, deleted bool) error {
	if deleted {
		_, err := q.db.Exec(ctx, `UPDATE users SET deleted_at = now(), updated_at = now() WHERE id = $1`, id)
		return err
	}
	_, err := q.db.Exec(ctx, `UPDATE users SET deleted_at = NULL, updated_at = now() WHERE id = $1`, id)
	return err
}

func (q *Queries) SetUserDisplayName(ctx context.Context, id pgtype.UUID, name pgtype.Text) error {
	_, err := q.db.Exec(ctx, `UPDATE users SET display_name = $2, updated_at = now() WHERE id = $1`, id, name)
	return err
}

// --- UserTenant ---

func (q *Queries) AddUserTenant(ctx context.Context, userID, tenantID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO user_tenants (user_id, tenant_id) VALUES ($1, $2)
		ON CONFLICT (user_id, tenant_id) DO NOTHING
	`, userID, tenantID)
	return err
}

func (q *Queries) RemoveUserTenant(ctx context.Context, userID, tenantID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM user_tenants WHERE user_id = $1 AND tenant_id = $2`, userID, tenantID)
	return err
}

func (q *Queries) ListUserTenants(ctx context.Context, userID pgtype.UUID) ([]pgtype.UUID, error) {
	rows, err := q.db.Query(ctx, `SELECT tenant_id FROM user_tenants WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pgtype.UUID
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (q *Queries) IsUserInTenant(ctx context.Context, userID, tenantID pgtype.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM user_tenants WHERE user_id = $1 AND tenant_id = $2)`, userID, tenantID).Scan(&exists)
	return exists, err
}

// --- PasswordLogin ---

type CreatePasswordLoginParams struct {
	UserID       pgtype.UUID
	Email        string
	PasswordHash string
	VerifiedAt   pgtype.Timestamptz
}

func (q *Queries) CreatePasswordLogin(ctx context.Context, arg CreatePasswordLoginParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO password_logins (user_id, email, password_hash, verified_at)
		VALUES ($1, $2, $3, $4)
	`, arg.UserID, arg.Email, arg.PasswordHash, arg.VerifiedAt)
	return err
}

func (q *Queries) GetPasswordLoginByUser(ctx context.Context, userID pgtype.UUID) (PasswordLogin, error) {
	var p PasswordLogin
	err := q.db.QueryRow(ctx, `
		SELECT user_id, email, password_hash, verified_at, otp_enabled_at, otp_secret, updated_at
		FROM password_logins WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.Email, &p.PasswordHash, &p.VerifiedAt, &p.OtpEnabledAt, &p.OtpSecret, &p.UpdatedAt)
	return p, err
}

func (q *Queries) GetPasswordLoginByEmailInTenant(ctx context.Context, tenantID pgtype.UUID, email string) (PasswordLogin, error) {
	var p PasswordLogin
	err := q.db.QueryRow(ctx, `
		SELECT pl.user_id, pl.email, pl.password_hash, pl.verified_at, pl.otp_enabled_at, pl.otp_secret, pl.updated_at
		FROM password_logins pl
		JOIN user_tenants ut ON ut.user_id = pl.user_id
		JOIN users u ON u.id = pl.user_id
		WHERE ut.tenant_id = $1 AND pl.email = $2 AND u.deleted_at IS NULL
	`, tenantID, email).Scan(&p.UserID, &p.Email, &p.PasswordHash, &p.VerifiedAt, &p.OtpEnabledAt, &p.OtpSecret, &p.UpdatedAt)
	return p, err
}

// CountOtherPasswordLoginEmailsInTenant supports the cross-tenant uniqueness
// check: any other non-deleted user in tenantID sharing this email.
func (q *Queries) CountOtherPasswordLoginEmailsInTenant(ctx context.Context, tenantID, excludeUserID pgtype.UUID, email string) (int, error) {
	var count int
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM password_logins pl
		JOIN user_tenants ut ON ut.user_id = pl.user_id
		JOIN users u ON u.id = pl.user_id
		WHERE ut.tenant_id = $1 AND pl.email = $2 AND pl.user_id != $3 AND u.deleted_at IS NULL
	`, tenantID, email, excludeUserID).Scan(&count)
	return count, err
}

func (q *Queries) UpdatePasswordLoginHash(ctx context.Context, userID pgtype.UUID, hash string) error {
	_, err := q.db.Exec(ctx, `UPDATE password_logins SET password_hash = $2, updated_at = now() WHERE user_id = $1`, userID, hash)
	return err
}

func (q *Queries) UpdatePasswordLoginEmail(ctx context.Context, userID pgtype.UUID, email string) error {
	_, err := q.db.Exec(ctx, `UPDATE password_logins SET email = $2, verified_at = NULL, updated_at = now() WHERE user_id = $1`, userID, email)
	return err
}

func (q *Queries) SetPasswordLoginVerified(ctx context.Context, userID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE password_logins SET verified_at = now(), updated_at = now() WHERE user_id = $1 AND verified_at IS NULL`, userID)
	return err
}

func (q *Queries) SetPasswordLoginOTP(ctx context.Context, userID pgtype.UUID, enabled bool, secret pgtype.Text) error {
	var enabledAt pgtype.Timestamptz
	if enabled {
		enabledAt = pgtype.Timestamptz{Valid: true}
		_, err := q.db.Exec(ctx, `UPDATE password_logins SET otp_enabled_at = now(), otp_secret = $2, updated_at = now() WHERE user_id = $1`, userID, secret)
		return err
	}
	_, err := q.db.Exec(ctx, `UPDATE password_logins SET otp_enabled_at = NULL, otp_secret = NULL, updated_at = now() WHERE user_id = $1`, userID)
	_ = enabledAt
	return err
}

// --- PasswordLoginReset ---

type CreatePasswordLoginResetParams struct {
	UserID            pgtype.UUID
	Token             string
	ExpiresAt         pgtype.Timestamptz
	ShouldSetPassword bool
}

func (q *Queries) CreatePasswordLoginReset(ctx context.Context, arg CreatePasswordLoginResetParams) (PasswordLoginReset, error) {
	var r PasswordLoginReset
	err := q.db.QueryRow(ctx, `
		INSERT INTO password_login_resets (user_id, token, expires_at, should_set_password)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, token, expires_at, should_set_password
	`, arg.UserID, arg.Token, arg.ExpiresAt, arg.ShouldSetPassword).
		Scan(&r.ID, &r.UserID, &r.Token, &r.ExpiresAt, &r.ShouldSetPassword)
	return r, err
}

func (q *Queries) GetPasswordLoginResetByToken(ctx context.Context, token string) (PasswordLoginReset, error) {
	var r PasswordLoginReset
	err := q.db.QueryRow(ctx, `
		SELECT id, user_id, token, expires_at, should_set_password
		FROM password_login_resets WHERE token = $1 AND expires_at > now()
	`, token).Scan(&r.ID, &r.UserID, &r.Token, &r.ExpiresAt, &r.ShouldSetPassword)
	return r, err
}

func (q *Queries) DeletePasswordLoginReset(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM password_login_resets WHERE id = $1`, id)
	return err
}

func (q *Queries) SweepExpiredPasswordLoginResets(ctx context.Context) error {
	_, err := q.db.Exec(ctx, `DELETE FROM password_login_resets WHERE expires_at <= now()`)
	return err
}

// --- PasswordLoginAttempt ---

func (q *Queries) CreatePasswordLoginAttempt(ctx context.Context, userID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `INSERT INTO password_login_attempts (user_id) VALUES ($1)`, userID)
	return err
}

func (q *Queries) CountRecentPasswordLoginAttempts(ctx context.Context, userID pgtype.UUID, since pgtype.Timestamptz) (int, error) {
	var count int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM password_login_attempts WHERE user_id = $1 AND created_at >= $2`, userID, since).Scan(&count)
	return count, err
}

// --- AnonymousLogin ---

func (q *Queries) CreateAnonymousLogin(ctx context.Context, userID pgtype.UUID, token string) error {
	_, err := q.db.Exec(ctx, `INSERT INTO anonymous_logins (user_id, login_token, is_allowed_to_login) VALUES ($1, $2, true)`, userID, token)
	return err
}

func (q *Queries) GetAnonymousLoginByTenantAndToken(ctx context.Context, tenantID pgtype.UUID, token string) (AnonymousLogin, error) {
	var a AnonymousLogin
	err := q.db.QueryRow(ctx, `
		SELECT al.user_id, al.login_token, al.is_allowed_to_login
		FROM anonymous_logins al
		JOIN user_tenants ut ON ut.user_id = al.user_id
		JOIN users u ON u.id = al.user_id
		WHERE ut.tenant_id = $1 AND al.login_token = $2 AND u.deleted_at IS NULL
	`, tenantID, token).Scan(&a.UserID, &a.LoginToken, &a.IsAllowedToLogin)
	return a, err
}

func (q *Queries) GetAnonymousLoginByUser(ctx context.Context, userID pgtype.UUID) (AnonymousLogin, error) {
	var a AnonymousLogin
	err := q.db.QueryRow(ctx, `SELECT user_id, login_token, is_allowed_to_login FROM anonymous_logins WHERE user_id = $1`, userID).
		Scan(&a.UserID, &a.LoginToken, &a.IsAllowedToLogin)
	return a, err
}

// --- DigidLogin ---

func (q *Queries) CreateDigidLogin(ctx context.Context, userID pgtype.UUID, bsn string) error {
	_, err := q.db.Exec(ctx, `INSERT INTO digid_logins (user_id, bsn) VALUES ($1, $2)`, userID, bsn)
	return err
}

func (q *Queries) GetDigidLoginByTenantAndBSN(ctx context.Context, tenantID pgtype.UUID, bsn string) (DigidLogin, error) {
	var d DigidLogin
	err := q.db.QueryRow(ctx, `
		SELECT dl.user_id, dl.bsn
		FROM digid_logins dl
		JOIN user_tenants ut ON ut.user_id = dl.user_id
		JOIN users u ON u.id = dl.user_id
		WHERE ut.tenant_id = $1 AND dl.bsn = $2 AND u.deleted_at IS NULL
	`, tenantID, bsn).Scan(&d.UserID, &d.BSN)
	return d, err
}

// --- KeycloakLogin ---

func (q *Queries) CreateKeycloakLogin(ctx context.Context, userID pgtype.UUID, email string) error {
	_, err := q.db.Exec(ctx, `INSERT INTO keycloak_logins (user_id, email) VALUES ($1, $2)`, userID, email)
	return err
}

func (q *Queries) GetKeycloakLoginByTenantAndEmail(ctx context.Context, tenantID pgtype.UUID, email string) (KeycloakLogin, error) {
	var k KeycloakLogin
	err := q.db.QueryRow(ctx, `
		SELECT kl.user_id, kl.email
		FROM keycloak_logins kl
		JOIN user_tenants ut ON ut.user_id = kl.user_id
		JOIN users u ON u.id = kl.user_id
		WHERE ut.tenant_id = $1 AND kl.email = $2 AND u.deleted_at IS NULL
	`, tenantID, email).Scan(&k.UserID, &k.Email)
	return k, err
}

func (q *Queries) CountOtherKeycloakEmailsInTenant(ctx context.Context, tenantID, excludeUserID pgtype.UUID, email string) (int, error) {
	var count int
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM keycloak_logins kl
		JOIN user_tenants ut ON ut.user_id = kl.user_id
		JOIN users u ON u.id = kl.user_id
		WHERE ut.tenant_id = $1 AND kl.email = $2 AND kl.user_id != $3 AND u.deleted_at IS NULL
	`, tenantID, email, excludeUserID).Scan(&count)
	return count, err
}

// --- TotpSettings ---

func (q *Queries) UpsertTotpSettings(ctx context.Context, userID pgtype.UUID, secret string) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO totp_settings (user_id, secret, verified_at) VALUES ($1, $2, NULL)
		ON CONFLICT (user_id) DO UPDATE SET secret = EXCLUDED.secret, verified_at = NULL
		WHERE totp_settings.verified_at IS NULL
	`, userID, secret)
	return err
}

func (q *Queries) GetTotpSettings(ctx context.Context, userID pgtype.UUID) (TotpSettings, error) {
	var t TotpSettings
	err := q.db.QueryRow(ctx, `SELECT user_id, secret, verified_at FROM totp_settings WHERE user_id = $1`, userID).
		Scan(&t.UserID, &t.Secret, &t.VerifiedAt)
	return t, err
}

func (q *Queries) SetTotpVerified(ctx context.Context, userID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE totp_settings SET verified_at = now() WHERE user_id = $1`, userID)
	return err
}

func (q *Queries) DeleteTotpSettings(ctx context.Context, userID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM totp_settings WHERE user_id = $1`, userID)
	return err
}

// --- Merge support ---

// Retargets every foreign-key reference to fromUserID onto toUserID, in the
// tables named by the caller's allowlist (spec §9 design note (b)).
func (q *Queries) RetargetForeignKey(ctx context.Context, table, column string, fromUserID, toUserID pgtype.UUID) error {
	sql := `UPDATE ` + quoteIdent(table) + ` SET ` + quoteIdent(column) + ` = $2 WHERE ` + quoteIdent(column) + ` = $1`
	_, err := q.db.Exec(ctx, sql, fromUserID, toUserID)
	return err
}

func (q *Queries) DeleteUserHard(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

// quoteIdent double-quotes a known-safe, caller-controlled identifier from
// the merge allowlist (never end-user input) before interpolating it.
func quoteIdent(ident string) string {
	return `"` + ident + `"`
}
