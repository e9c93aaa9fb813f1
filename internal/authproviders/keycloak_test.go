package authproviders

import (
	"net/url"
	"testing"
)

func TestRedirectURLBuildsAuthorizationCodeURL(t *testing.T) {
	p := NewKeycloakProvider(Deps{}, nil)
	cfg := KeycloakConfig{
		Issuer:      "https://idp.example.com/realms/acme/",
		ClientID:    "identity-core",
		RedirectURI: "https://app.example.com/callback",
	}

	got := p.RedirectURL(cfg, "state-123")

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	if u.Path != "/realms/acme/protocol/openid-connect/auth" {
		t.Fatalf("path = %q, want trailing-slash-trimmed issuer + auth endpoint", u.Path)
	}
	q := u.Query()
	if q.Get("client_id") != "identity-core" {
		t.Fatalf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("response_type") != "code" {
		t.Fatalf("response_type = %q, want code", q.Get("response_type"))
	}
	if q.Get("redirect_uri") != cfg.RedirectURI {
		t.Fatalf("redirect_uri = %q, want %q", q.Get("redirect_uri"), cfg.RedirectURI)
	}
	if q.Get("state") != "state-123" {
		t.Fatalf("state = %q, want state-123", q.Get("state"))
	}
}

func TestRedirectURLOmitsEmptyState(t *testing.T) {
	p := NewKeycloakProvider(Deps{}, nil)
	cfg := KeycloakConfig{Issuer: "https://idp.example.com", ClientID: "c", RedirectURI: "https://app/callback"}

	got := p.RedirectURL(cfg, "")

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	if _, ok := u.Query()["state"]; ok {
		t.Fatal("expected no state parameter when state is empty")
	}
}
