package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	p := NewTokenProvider([]byte("k"), time.Minute, time.Hour)
	sessionID := uuid.New()

	tok, _, err := p.GenerateAccessToken(sessionID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := p.ValidateToken(tok, ScopeAccess)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.SessionID != sessionID {
		t.Fatalf("session id mismatch: got %s want %s", claims.SessionID, sessionID)
	}
}

func TestValidateTokenRejectsWrongScope(t *testing.T) {
	p := NewTokenProvider([]byte("k"), time.Minute, time.Hour)
	tok, _, _ := p.GenerateAccessToken(uuid.New())

	if _, err := p.ValidateToken(tok, ScopeRefresh); err == nil {
		t.Fatal("expected scope mismatch to be rejected")
	}
}

func TestValidateTokenRejectsWrongKey(t *testing.T) {
	p1 := NewTokenProvider([]byte("key-one"), time.Minute, time.Hour)
	p2 := NewTokenProvider([]byte("key-two"), time.Minute, time.Hour)

	tok, _, _ := p1.GenerateAccessToken(uuid.New())
	if _, err := p2.ValidateToken(tok, ScopeAccess); err == nil {
		t.Fatal("expected signature verification to fail under a different key")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	p := NewTokenProvider([]byte("k"), -time.Minute, time.Hour)
	tok, _, _ := p.GenerateAccessToken(uuid.New())

	_, err := p.ValidateToken(tok, ScopeAccess)
	if err != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestPreAuthTokenCarriesUserID(t *testing.T) {
	p := NewTokenProvider([]byte("k"), time.Minute, time.Hour)
	userID := uuid.New()

	tok, err := p.GeneratePreAuthToken(userID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := p.ValidateToken(tok, ScopePreAuth)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("user id mismatch: got %s want %s", claims.UserID, userID)
	}
}
