package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// --- Session ---

type CreateSessionParams struct {
	ID       pgtype.UUID
	Checksum string
	Data     []byte
}

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error) {
	var s Session
	err := q.db.QueryRow(ctx, `
		INSERT INTO sessions (id, checksum, data) VALUES ($1, $2, $3)
		RETURNING id, checksum, data, revoked_at, created_at
	`, arg.ID, arg.Checksum, arg.Data).Scan(&s.ID, &s.Checksum, &s.Data, &s.RevokedAt, &s.CreatedAt)
	return s, err
}

func (q *Queries) GetSessionByID(ctx context.Context, id pgtype.UUID) (Session, error) {
	var s Session
	err := q.db.QueryRow(ctx, `SELECT id, checksum, data, revoked_at, created_at FROM sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.Checksum, &s.Data, &s.RevokedAt, &s.CreatedAt)
	return s, err
}

func (q *Queries) UpdateSessionData(ctx context.Context, id pgtype.UUID, data []byte) error {
	_, err := q.db.Exec(ctx, `UPDATE sessions SET data = $2 WHERE id = $1`, id, data)
	return err
}

// UpdateSessionDataAndChecksum rewrites both the blob and its checksum in
// one statement, so a reader never observes a data/checksum pair that
// don't match each other.
func (q *Queries) UpdateSessionDataAndChecksum(ctx context.Context, id pgtype.UUID, data []byte, checksum string) (Session, error) {
	var s Session
	err := q.db.QueryRow(ctx, `
		UPDATE sessions SET data = $2, checksum = $3 WHERE id = $1
		RETURNING id, checksum, data, revoked_at, created_at
	`, id, data, checksum).Scan(&s.ID, &s.Checksum, &s.Data, &s.RevokedAt, &s.CreatedAt)
	return s, err
}

// InvalidateSession soft-revokes a session; its tokens remain in place but
// every token lookup must treat a revoked session as unauthenticated.
func (q *Queries) InvalidateSession(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE sessions SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	return err
}

func (q *Queries) DeleteSessionHard(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// ListActiveSessionsForUser joins through session_tokens to find every
// non-revoked session that currently has at least one unexpired refresh
// token owned indirectly by userID via the device/session linkage the
// session's Data blob carries (the caller decodes Data to check ownership;
// this only filters on revocation).
func (q *Queries) ListSessionIDs(ctx context.Context, ids []pgtype.UUID) ([]Session, error) {
	rows, err := q.db.Query(ctx, `SELECT id, checksum, data, revoked_at, created_at FROM sessions WHERE id = ANY($1) AND revoked_at IS NULL`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Checksum, &s.Data, &s.RevokedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// --- SessionToken ---

type CreateSessionTokenParams struct {
	ID        pgtype.UUID
	SessionID pgtype.UUID
	Kind      string
	ParentID  pgtype.UUID
	ExpiresAt pgtype.Timestamptz
}

func (q *Queries) CreateSessionToken(ctx context.Context, arg CreateSessionTokenParams) (SessionToken, error) {
	var t SessionToken
	err := q.db.QueryRow(ctx, `
		INSERT INTO session_tokens (id, session_id, kind, parent_id, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, session_id, kind, parent_id, expires_at, revoked_at, created_at
	`, arg.ID, arg.SessionID, arg.Kind, arg.ParentID, arg.ExpiresAt).
		Scan(&t.ID, &t.SessionID, &t.Kind, &t.ParentID, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt)
	return t, err
}

func (q *Queries) GetSessionTokenByID(ctx context.Context, id pgtype.UUID) (SessionToken, error) {
	var t SessionToken
	err := q.db.QueryRow(ctx, `SELECT id, session_id, kind, parent_id, expires_at, revoked_at, created_at FROM session_tokens WHERE id = $1`, id).
		Scan(&t.ID, &t.SessionID, &t.Kind, &t.ParentID, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt)
	return t, err
}

// GetRefreshTokenByID fetches a refresh-kind token row by id, used at
// rotation time to validate the presented refresh token.
func (q *Queries) GetRefreshTokenByID(ctx context.Context, id pgtype.UUID) (SessionToken, error) {
	var t SessionToken
	err := q.db.QueryRow(ctx, `
		SELECT id, session_id, kind, parent_id, expires_at, revoked_at, created_at
		FROM session_tokens WHERE id = $1 AND kind = 'refresh'
	`, id).Scan(&t.ID, &t.SessionID, &t.Kind, &t.ParentID, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt)
	return t, err
}

func (q *Queries) RevokeSessionToken(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE session_tokens SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	return err
}

// RevokeRefreshTokenChain walks parent_id backwards from startID and revokes
// every refresh token in the chain, plus the session itself. This is the
// replay-detection "nuclear option": presenting an already-rotated refresh
// token proves the token was stolen, so the whole lineage and its session
// are killed rather than just the presented token.
func (q *Queries) RevokeRefreshTokenChain(ctx context.Context, sessionID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE session_tokens SET revoked_at = now()
		WHERE session_id = $1 AND kind = 'refresh' AND revoked_at IS NULL
	`, sessionID)
	if err != nil {
		return err
	}
	return q.InvalidateSession(ctx, sessionID)
}

// CountActiveRefreshTokensForSession reports outstanding (non-revoked,
// unexpired) refresh tokens for a session — normally 0 or 1, since rotation
// revokes the parent as it mints the child.
func (q *Queries) CountActiveRefreshTokensForSession(ctx context.Context, sessionID pgtype.UUID) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `
		SELECT count(*) FROM session_tokens
		WHERE session_id = $1 AND kind = 'refresh' AND revoked_at IS NULL AND expires_at > now()
	`, sessionID).Scan(&n)
	return n, err
}

func (q *Queries) SweepExpiredSessionTokens(ctx context.Context) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM session_tokens WHERE expires_at < now() - interval '30 days'`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- Device ---

type CreateDeviceParams struct {
	SessionID           pgtype.UUID
	Platform            string
	Name                string
	NotificationToken   pgtype.Text
	WebPushSubscription []byte
}

func (q *Queries) CreateDevice(ctx context.Context, arg CreateDeviceParams) (Device, error) {
	var d Device
	err := q.db.QueryRow(ctx, `
		INSERT INTO devices (session_id, platform, name, notification_token, web_push_subscription)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING session_id, platform, name, notification_token, web_push_subscription
	`, arg.SessionID, arg.Platform, arg.Name, arg.NotificationToken, arg.WebPushSubscription).
		Scan(&d.SessionID, &d.Platform, &d.Name, &d.NotificationToken, &d.WebPushSubscription)
	return d, err
}

func (q *Queries) GetDeviceBySessionID(ctx context.Context, sessionID pgtype.UUID) (Device, error) {
	var d Device
	err := q.db.QueryRow(ctx, `SELECT session_id, platform, name, notification_token, web_push_subscription FROM devices WHERE session_id = $1`, sessionID).
		Scan(&d.SessionID, &d.Platform, &d.Name, &d.NotificationToken, &d.WebPushSubscription)
	return d, err
}

func (q *Queries) UpdateDeviceNotificationToken(ctx context.Context, sessionID pgtype.UUID, token pgtype.Text) error {
	_, err := q.db.Exec(ctx, `UPDATE devices SET notification_token = $2 WHERE session_id = $1`, sessionID, token)
	return err
}

// CountMobileSessionsForUser counts active mobile-platform sessions owned by
// a user, joined through devices -> sessions. userSessionIDs is supplied by
// the session package, which tracks session ownership outside this package
// (sessions carry no direct user_id column; ownership lives in the caller's
// Data blob and an index table maintained by internal/session).
func (q *Queries) CountMobileSessionsForUser(ctx context.Context, userSessionIDs []pgtype.UUID) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `
		SELECT count(*)
		FROM devices d
		JOIN sessions s ON s.id = d.session_id
		WHERE d.session_id = ANY($1) AND d.platform = 'mobile' AND s.revoked_at IS NULL
	`, userSessionIDs).Scan(&n)
	return n, err
}

func (q *Queries) DeleteDevice(ctx context.Context, sessionID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM devices WHERE session_id = $1`, sessionID)
	return err
}

// --- user_sessions index (owning-user lookup, since sessions are opaque) ---

func (q *Queries) CreateUserSession(ctx context.Context, userID, sessionID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `INSERT INTO user_sessions (user_id, session_id) VALUES ($1, $2)`, userID, sessionID)
	return err
}

func (q *Queries) ListUserSessionIDs(ctx context.Context, userID pgtype.UUID) ([]pgtype.UUID, error) {
	rows, err := q.db.Query(ctx, `SELECT session_id FROM user_sessions WHERE user_id = $1`, userID)
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

func (q *Queries) GetUserIDForSession(ctx context.Context, sessionID pgtype.UUID) (pgtype.UUID, error) {
	var id pgtype.UUID
	err := q.db.QueryRow(ctx, `SELECT user_id FROM user_sessions WHERE session_id = $1`, sessionID).Scan(&id)
	return id, err
}

func (q *Queries) DeleteUserSession(ctx context.Context, sessionID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM user_sessions WHERE session_id = $1`, sessionID)
	return err
}
