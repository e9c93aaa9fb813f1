// Package session implements the Session Store module: access/refresh JWT
// issuance, refresh rotation with replay-chain revocation, and device
// binding for mobile session caps.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Scope distinguishes the three kinds of bearer token this package issues.
type Scope string

const (
	// ScopeAccess tokens carry a session id and are presented on every request.
	ScopeAccess Scope = "access"
	// ScopeRefresh tokens carry a session-token (refresh row) id and are
	// presented only to the rotation endpoint.
	ScopeRefresh Scope = "refresh"
	// ScopePreAuth tokens carry a bare user id between password verification
	// and a second factor, before any session exists.
	ScopePreAuth Scope = "pre_auth"
)

// Claims is the JWT payload for every token this package issues. Which
// field is populated depends on Scope: access tokens set SessionID,
// refresh tokens set TokenID, pre-auth tokens set UserID.
type Claims struct {
	SessionID uuid.UUID `json:"sid,omitempty"`
	TokenID   uuid.UUID `json:"tkn,omitempty"`
	UserID    uuid.UUID `json:"sub,omitempty"`
	Scope     Scope     `json:"scope"`
	jwt.RegisteredClaims
}

// TokenProvider issues and validates access, refresh, and pre-auth JWTs.
//
// The spec requires an HMAC-SHA signing key shared by every process that
// needs to validate a token, rather than the teacher's RS256 scheme — so
// there is no JWKS endpoint to publish a public key from (see
// SPEC_FULL.md §6).
type TokenProvider struct {
	signingKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	preAuthTTL time.Duration
	issuer     string
}

func NewTokenProvider(signingKey []byte, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		signingKey: signingKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		preAuthTTL: 2 * time.Minute,
		issuer:     "identity-core",
	}
}

func (p *TokenProvider) GenerateAccessToken(sessionID uuid.UUID) (string, time.Time, error) {
	exp := time.Now().Add(p.accessTTL)
	signed, err := p.sign(Claims{
		SessionID: sessionID,
		Scope:     ScopeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-1 * time.Minute)),
			NotBefore: jwt.NewNumericDate(time.Now().Add(-1 * time.Minute)),
			Issuer:    p.issuer,
		},
	})
	return signed, exp, err
}

// GenerateRefreshToken signs a token pointing at tokenID, a session_tokens
// row of kind "refresh". ttl lets the caller resolve the max age per-call
// (device-aware override), defaulting to p.refreshTTL when zero.
func (p *TokenProvider) GenerateRefreshToken(tokenID uuid.UUID, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = p.refreshTTL
	}
	exp := time.Now().Add(ttl)
	signed, err := p.sign(Claims{
		TokenID: tokenID,
		Scope:   ScopeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    p.issuer,
		},
	})
	return signed, exp, err
}

func (p *TokenProvider) GeneratePreAuthToken(userID uuid.UUID) (string, error) {
	signed, err := p.sign(Claims{
		UserID: userID,
		Scope:  ScopePreAuth,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(p.preAuthTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    p.issuer,
		},
	})
	return signed, err
}

func (p *TokenProvider) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies signature and expiry and requires the token to
// carry the given scope; callers never accept a refresh token where an
// access token is expected or vice versa.
func (p *TokenProvider) ValidateToken(tokenString string, want Scope) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Scope != want {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
