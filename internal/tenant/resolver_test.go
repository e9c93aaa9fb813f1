package tenant

import "testing"

func buildTestIndex(t *testing.T) *Index {
	t.Helper()
	doc, err := ParseDocument([]byte(sampleDoc), "production")
	if err != nil {
		t.Fatalf("parse document: %v", err)
	}
	return NewIndex(doc, "production")
}

func TestResolveRequiresHost(t *testing.T) {
	idx := buildTestIndex(t)
	if _, err := idx.Resolve(RequestHeaders{}, false); err == nil {
		t.Fatal("expected an error when Host is empty")
	}
}

func TestResolveByUniqueApiUrlHost(t *testing.T) {
	idx := buildTestIndex(t)
	if !idx.HasUniqueApiUrls() {
		t.Fatal("expected this fixture to have unique api urls")
	}
	entity, err := idx.Resolve(RequestHeaders{Host: "api.acme.example.com"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entity.Name != "acme" {
		t.Fatalf("expected acme, got %q", entity.Name)
	}
	if entity.PublicURL != "https://acme.example.com" {
		t.Fatalf("unexpected public url: %q", entity.PublicURL)
	}
}

func TestResolveByOriginFallback(t *testing.T) {
	idx := buildTestIndex(t)
	entity, err := idx.Resolve(RequestHeaders{Host: "api.widgets.example.com", Origin: "https://widgets.example.com"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entity.Name != "widgets" {
		t.Fatalf("expected widgets, got %q", entity.Name)
	}
}

func TestResolveDevOverrideViaTenantOriginHeader(t *testing.T) {
	idx := buildTestIndex(t)
	entity, err := idx.Resolve(RequestHeaders{Host: "localhost:3000", TenantOrigin: "https://acme.example.com"}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entity.Name != "acme" {
		t.Fatalf("expected acme via dev override, got %q", entity.Name)
	}
}

func TestResolveUnknownHostIsInvalidTenant(t *testing.T) {
	idx := buildTestIndex(t)
	if _, err := idx.Resolve(RequestHeaders{Host: "api.unknown.example.com"}, false); err == nil {
		t.Fatal("expected an error for an unrecognized host")
	}
}

func TestResolveNonUniqueApiUrlsUsesOriginLookup(t *testing.T) {
	raw := `
tenants:
  a:
    urlConfig:
      https://a.example.com:
        environment: production
        apiUrl: https://api.shared.example.com
  b:
    urlConfig:
      https://b.example.com:
        environment: production
        apiUrl: https://api.shared.example.com
`
	doc, err := ParseDocument([]byte(raw), "production")
	if err != nil {
		t.Fatalf("parse document: %v", err)
	}
	idx := NewIndex(doc, "production")
	if idx.HasUniqueApiUrls() {
		t.Fatal("expected shared api urls to be detected as non-unique")
	}

	entity, err := idx.Resolve(RequestHeaders{Host: "api.shared.example.com", Origin: "https://b.example.com"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entity.Name != "b" {
		t.Fatalf("expected tenant b resolved by origin, got %q", entity.Name)
	}
}

func TestByName(t *testing.T) {
	idx := buildTestIndex(t)
	entity, ok := idx.ByName("acme")
	if !ok {
		t.Fatal("expected acme to be found by name")
	}
	if entity.APIUrl != "https://api.acme.example.com" {
		t.Fatalf("unexpected api url: %q", entity.APIUrl)
	}
	if _, ok := idx.ByName("nonexistent"); ok {
		t.Fatal("expected lookup of unknown tenant to fail")
	}
}
