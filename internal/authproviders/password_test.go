package authproviders

import (
	"testing"
	"time"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := NewBcryptHasher()
	hash, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if err := h.Compare(hash, "correct horse battery staple"); err != nil {
		t.Fatalf("Compare of matching password failed: %v", err)
	}
	if err := h.Compare(hash, "wrong password"); err == nil {
		t.Fatal("expected Compare of mismatched password to fail")
	}
}

func TestBcryptHasherUsesConfiguredCost(t *testing.T) {
	h := NewBcryptHasher()
	if h.cost != PasswordBcryptCost {
		t.Fatalf("cost = %d, want %d", h.cost, PasswordBcryptCost)
	}
}

func TestGenerateOpaqueTokenIsUnpredictableAndURLSafe(t *testing.T) {
	a, err := generateOpaqueToken()
	if err != nil {
		t.Fatalf("generateOpaqueToken: %v", err)
	}
	b, err := generateOpaqueToken()
	if err != nil {
		t.Fatalf("generateOpaqueToken: %v", err)
	}
	if a == b {
		t.Fatal("expected two independently generated tokens to differ")
	}
	for _, c := range a {
		if c == '+' || c == '/' || c == '=' {
			t.Fatalf("token %q contains a non-URL-safe character", a)
		}
	}
}

func TestDummyPasswordHashNeverMatchesRealPasswords(t *testing.T) {
	h := NewBcryptHasher()
	if err := h.Compare(string(dummyPasswordHash), "whatever the caller typed"); err == nil {
		t.Fatal("expected the dummy hash to never match an arbitrary password")
	}
}

func TestDefaultPasswordConfig(t *testing.T) {
	cfg := DefaultPasswordConfig()
	if !cfg.RollingAttemptBlockingEnabled {
		t.Fatal("expected rolling attempt blocking enabled by default")
	}
	if cfg.MaxAttemptsPerWindow != 10 {
		t.Fatalf("MaxAttemptsPerWindow = %d, want 10", cfg.MaxAttemptsPerWindow)
	}
	if cfg.AttemptWindow != 5*time.Minute {
		t.Fatalf("AttemptWindow = %v, want 5m", cfg.AttemptWindow)
	}
	if cfg.ResetTokenTTL != 24*time.Hour {
		t.Fatalf("ResetTokenTTL = %v, want 24h", cfg.ResetTokenTTL)
	}
	if !cfg.RemoveAllSessionsOnUpdate {
		t.Fatal("expected RemoveAllSessionsOnUpdate enabled by default")
	}
}
