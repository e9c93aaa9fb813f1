package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/storage/db"
)

// Platform is a device's operating environment (spec §3).
type Platform string

const (
	PlatformApple   Platform = "apple"
	PlatformAndroid Platform = "android"
	PlatformDesktop Platform = "desktop"
	PlatformOther   Platform = "other"
)

func (p Platform) isMobile() bool {
	return p == PlatformApple || p == PlatformAndroid
}

// Device is the caller-supplied device descriptor every provider's tail
// protocol attaches to a freshly created session (spec §4.5.6).
type Device struct {
	Platform            Platform
	Name                string
	NotificationToken   string
	WebPushSubscription []byte
}

// RefreshMaxAgeFunc lets a deployment resolve the refresh token's max age
// per call from the session and the proposed device, per spec §4.3.
type RefreshMaxAgeFunc func(s db.Session, d *Device) time.Duration

// TokenPair is what every authentication provider's tail protocol and the
// refresh endpoint return to the caller.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Session      db.Session
}

var (
	// ErrSessionInvalid covers checksum mismatch, revocation, or a missing
	// row — every case the spec requires normalized to 401 at the boundary.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrRefreshTokenReused is returned after a replay is detected and the
	// whole chain has been revoked.
	ErrRefreshTokenReused = errors.New("refresh token already used")
	// ErrDeviceRequired is returned when the deployment requires device
	// info and the caller omitted it.
	ErrDeviceRequired = errors.New("device information required")
	// ErrMobileSessionCapExceeded is returned when a mobile login would
	// exceed the configured concurrent-session cap.
	ErrMobileSessionCapExceeded = errors.New("mobile session limit exceeded")
)

// Store is the Session Store module (spec §4.3): issues access/refresh
// pairs, validates tokens, rotates refresh tokens, revokes sessions.
type Store struct {
	q                  *db.Queries
	tokens             *TokenProvider
	signingKey         []byte
	requireDevice      bool
	maxMobileSessions  int
	refreshMaxAge      RefreshMaxAgeFunc
}

type Config struct {
	SigningKey           []byte
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	RequireDevice        bool
	MaxMobileSessions    int
	RefreshMaxAge        RefreshMaxAgeFunc
}

func NewStore(q *db.Queries, cfg Config) *Store {
	if cfg.RefreshMaxAge == nil {
		cfg.RefreshMaxAge = func(db.Session, *Device) time.Duration { return cfg.RefreshTTL }
	}
	return &Store{
		q:                 q,
		tokens:            NewTokenProvider(cfg.SigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		signingKey:        cfg.SigningKey,
		requireDevice:     cfg.RequireDevice,
		maxMobileSessions: cfg.MaxMobileSessions,
		refreshMaxAge:     cfg.RefreshMaxAge,
	}
}

// WithTx returns a Store bound to tx, for use inside a caller-managed
// transaction (provider login/register/merge operations, spec §5).
func (s *Store) WithTx(tx pgx.Tx) *Store {
	clone := *s
	clone.q = s.q.WithTx(tx)
	return &clone
}

// Create inserts a new session row and issues its first token pair.
// device may be nil only when the deployment does not require device info.
func (s *Store) Create(ctx context.Context, userID uuid.UUID, data Data, device *Device) (*TokenPair, error) {
	if s.requireDevice && device == nil {
		return nil, apperr.Validation("session.create.deviceRequired", nil)
	}
	data.UserID = userID

	if device != nil && device.Platform.isMobile() && s.maxMobileSessions > 0 {
		n, err := s.countMobileSessionsForUser(ctx, userID)
		if err != nil {
			return nil, apperr.Server("session.create.countMobile", err)
		}
		if n >= s.maxMobileSessions {
			return nil, apperr.Validation("session.create.mobileSessionLimitExceeded", map[string]any{"limit": s.maxMobileSessions})
		}
	}

	raw, err := data.Marshal()
	if err != nil {
		return nil, apperr.Server("session.create.marshal", err)
	}
	sum := Checksum(s.signingKey, raw)

	sess, err := s.q.CreateSession(ctx, db.CreateSessionParams{
		ID:       newUUID(),
		Checksum: sum,
		Data:     raw,
	})
	if err != nil {
		return nil, apperr.Server("session.create.insert", err)
	}

	if err := s.q.CreateUserSession(ctx, toPGUUID(userID), sess.ID); err != nil {
		return nil, apperr.Server("session.create.index", err)
	}

	if device != nil {
		if _, err := s.q.CreateDevice(ctx, db.CreateDeviceParams{
			SessionID:           sess.ID,
			Platform:            string(device.Platform),
			Name:                device.Name,
			NotificationToken:   pgtype.Text{String: device.NotificationToken, Valid: device.NotificationToken != ""},
			WebPushSubscription: device.WebPushSubscription,
		}); err != nil {
			return nil, apperr.Server("session.create.device", err)
		}
	}

	return s.issueTokenPair(ctx, sess, device)
}

func (s *Store) countMobileSessionsForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	ids, err := s.q.ListUserSessionIDs(ctx, toPGUUID(userID))
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return s.q.CountMobileSessionsForUser(ctx, ids)
}

func (s *Store) issueTokenPair(ctx context.Context, sess db.Session, device *Device) (*TokenPair, error) {
	access, _, err := s.tokens.GenerateAccessToken(fromPGUUID(sess.ID))
	if err != nil {
		return nil, apperr.Server("session.issue.access", err)
	}

	ttl := s.refreshMaxAge(sess, device)
	tokenRow, err := s.q.CreateSessionToken(ctx, db.CreateSessionTokenParams{
		ID:        newUUID(),
		SessionID: sess.ID,
		Kind:      "refresh",
		ParentID:  pgtype.UUID{Valid: false},
		ExpiresAt: pgtype.Timestamptz{Time: time.Now().Add(ttl), Valid: true},
	})
	if err != nil {
		return nil, apperr.Server("session.issue.refreshRow", err)
	}

	refresh, _, err := s.tokens.GenerateRefreshToken(fromPGUUID(tokenRow.ID), ttl)
	if err != nil {
		return nil, apperr.Server("session.issue.refresh", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh, Session: sess}, nil
}

// Load validates an access token, loads its session, and verifies the
// stored checksum. Any failure here is a session-layer error and must be
// normalized to 401 by the caller via apperr.NormalizeSessionError.
func (s *Store) Load(ctx context.Context, accessToken string) (db.Session, Data, error) {
	claims, err := s.tokens.ValidateToken(accessToken, ScopeAccess)
	if err != nil {
		return db.Session{}, Data{}, apperr.Unauthorized("session.load.invalidToken")
	}

	sess, err := s.q.GetSessionByID(ctx, toPGUUID(claims.SessionID))
	if err != nil {
		return db.Session{}, Data{}, apperr.Unauthorized("session.load.notFound")
	}
	if sess.RevokedAt.Valid {
		return db.Session{}, Data{}, apperr.Unauthorized("session.load.revoked")
	}
	if !VerifyChecksum(s.signingKey, sess.Data, sess.Checksum) {
		return db.Session{}, Data{}, apperr.Unauthorized("session.load.checksumMismatch")
	}

	data, err := UnmarshalData(sess.Data)
	if err != nil {
		return db.Session{}, Data{}, apperr.Server("session.load.unmarshal", err)
	}
	return sess, data, nil
}

// Update rewrites the session's data blob and recomputes its checksum.
func (s *Store) Update(ctx context.Context, sessionID uuid.UUID, data Data) error {
	raw, err := data.Marshal()
	if err != nil {
		return apperr.Server("session.update.marshal", err)
	}
	sum := Checksum(s.signingKey, raw)
	if _, err := s.q.UpdateSessionDataAndChecksum(ctx, toPGUUID(sessionID), raw, sum); err != nil {
		return apperr.Unauthorized("session.update.notFound")
	}
	return nil
}

// Invalidate soft-revokes a session: every token referencing it thereafter
// returns unauthorized (spec §8).
func (s *Store) Invalidate(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.q.InvalidateSession(ctx, toPGUUID(sessionID)); err != nil {
		return apperr.Server("session.invalidate", err)
	}
	return nil
}

// Delete hard-deletes a session, cascading to its tokens and device.
func (s *Store) Delete(ctx context.Context, sessionID uuid.UUID) error {
	id := toPGUUID(sessionID)
	_ = s.q.DeleteDevice(ctx, id)
	_ = s.q.DeleteUserSession(ctx, id)
	if err := s.q.DeleteSessionHard(ctx, id); err != nil {
		return apperr.Server("session.delete", err)
	}
	return nil
}

// Refresh implements the rotation protocol (spec §4.3):
//  1. verify signature,
//  2. look up the refresh-token row (non-revoked, non-expired, parent
//     session non-revoked),
//  3. on replay (row already revoked) nuke the whole chain and the session,
//  4. else revoke the presented row and mint a new row + new pair.
func (s *Store) Refresh(ctx context.Context, refreshToken string, device *Device) (*TokenPair, error) {
	claims, err := s.tokens.ValidateToken(refreshToken, ScopeRefresh)
	if err != nil {
		return nil, apperr.Unauthorized("session.refresh.invalidToken")
	}

	row, err := s.q.GetRefreshTokenByID(ctx, toPGUUID(claims.TokenID))
	if err != nil {
		return nil, apperr.Unauthorized("session.refresh.notFound")
	}

	sess, err := s.q.GetSessionByID(ctx, row.SessionID)
	if err != nil {
		return nil, apperr.Unauthorized("session.refresh.sessionNotFound")
	}
	if sess.RevokedAt.Valid {
		return nil, apperr.Unauthorized("session.refresh.sessionRevoked")
	}

	if row.RevokedAt.Valid {
		// Replay: this exact refresh token was already rotated once.
		if err := s.q.RevokeRefreshTokenChain(ctx, row.SessionID); err != nil {
			return nil, apperr.Server("session.refresh.revokeChain", err)
		}
		return nil, apperr.Unauthorized("session.refresh.reused")
	}
	if time.Now().After(row.ExpiresAt.Time) {
		return nil, apperr.Unauthorized("session.refresh.expired")
	}

	if err := s.q.RevokeSessionToken(ctx, row.ID); err != nil {
		return nil, apperr.Server("session.refresh.revokeOld", err)
	}

	return s.issueTokenPairChained(ctx, sess, row.ID, device)
}

func (s *Store) issueTokenPairChained(ctx context.Context, sess db.Session, parentID pgtype.UUID, device *Device) (*TokenPair, error) {
	access, _, err := s.tokens.GenerateAccessToken(fromPGUUID(sess.ID))
	if err != nil {
		return nil, apperr.Server("session.refresh.access", err)
	}

	ttl := s.refreshMaxAge(sess, device)
	tokenRow, err := s.q.CreateSessionToken(ctx, db.CreateSessionTokenParams{
		ID:        newUUID(),
		SessionID: sess.ID,
		Kind:      "refresh",
		ParentID:  parentID,
		ExpiresAt: pgtype.Timestamptz{Time: time.Now().Add(ttl), Valid: true},
	})
	if err != nil {
		return nil, apperr.Server("session.refresh.newRow", err)
	}

	refresh, _, err := s.tokens.GenerateRefreshToken(fromPGUUID(tokenRow.ID), ttl)
	if err != nil {
		return nil, apperr.Server("session.refresh.sign", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh, Session: sess}, nil
}

// ListForUser returns every non-revoked session owned by userID, used by
// `GET /session/list`.
func (s *Store) ListForUser(ctx context.Context, userID uuid.UUID) ([]db.Session, error) {
	ids, err := s.q.ListUserSessionIDs(ctx, toPGUUID(userID))
	if err != nil {
		return nil, apperr.Server("session.list", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.q.ListSessionIDs(ctx, ids)
}

// InvalidateAllForUser revokes every session owned by userID except
// keepSessionID (when non-nil) — used by password/email update flows
// (spec §4.5.1 "remove-current-session" policy).
func (s *Store) InvalidateAllForUser(ctx context.Context, userID uuid.UUID, keepSessionID *uuid.UUID) error {
	ids, err := s.q.ListUserSessionIDs(ctx, toPGUUID(userID))
	if err != nil {
		return apperr.Server("session.invalidateAll.list", err)
	}
	for _, id := range ids {
		if keepSessionID != nil && fromPGUUID(id) == *keepSessionID {
			continue
		}
		if err := s.q.InvalidateSession(ctx, id); err != nil {
			return apperr.Server("session.invalidateAll.revoke", err)
		}
	}
	return nil
}

// SetNotificationToken updates a device's push-notification token.
func (s *Store) SetNotificationToken(ctx context.Context, sessionID uuid.UUID, token string) error {
	err := s.q.UpdateDeviceNotificationToken(ctx, toPGUUID(sessionID), pgtype.Text{String: token, Valid: token != ""})
	if err != nil {
		return apperr.Server("session.setNotificationToken", err)
	}
	return nil
}

func newUUID() pgtype.UUID {
	id := uuid.New()
	return pgtype.UUID{Bytes: id, Valid: true}
}

func toPGUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func fromPGUUID(id pgtype.UUID) uuid.UUID {
	return uuid.UUID(id.Bytes)
}
