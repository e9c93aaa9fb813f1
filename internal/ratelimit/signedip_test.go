package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIPFallsBackToRemoteAddrWithoutHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/auth/password/login", nil)
	r.RemoteAddr = "198.51.100.1:54321"

	if got := ClientIP(r, []byte("key")); got != r.RemoteAddr {
		t.Fatalf("expected fallback to RemoteAddr, got %q", got)
	}
}

func TestClientIPUsesVerifiedSignedHeader(t *testing.T) {
	key := []byte("key")
	r := httptest.NewRequest(http.MethodPost, "/auth/password/login", nil)
	r.RemoteAddr = "198.51.100.1:54321"
	r.Header.Set(SignedIPHeader, "203.0.113.9")
	r.Header.Set(VerificationHeader, signIP(key, "203.0.113.9"))

	if got := ClientIP(r, key); got != "203.0.113.9" {
		t.Fatalf("expected signed header to win, got %q", got)
	}
}

func TestClientIPIgnoresUnverifiedSignedHeader(t *testing.T) {
	key := []byte("key")
	r := httptest.NewRequest(http.MethodPost, "/auth/password/login", nil)
	r.RemoteAddr = "198.51.100.1:54321"
	r.Header.Set(SignedIPHeader, "203.0.113.9")
	r.Header.Set(VerificationHeader, "bogus")

	if got := ClientIP(r, key); got != r.RemoteAddr {
		t.Fatalf("expected unverified header to be ignored, got %q", got)
	}
}
