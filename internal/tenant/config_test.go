package tenant

import "testing"

const sampleDoc = `
tenants:
  acme:
    data:
      displayName: Acme Corp
    urlConfig:
      https://acme.example.com:
        environment: production
        apiUrl: https://api.acme.example.com
      https://acme.staging.example.com:
        environment: staging
        apiUrl: https://api.acme.staging.example.com
  widgets:
    data:
      displayName: Widgets Inc
    urlConfig:
      https://widgets.example.com:
        environment: production
        apiUrl: https://api.widgets.example.com
`

func TestParseDocumentFiltersByEnvironment(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDoc), "production")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Tenants) != 2 {
		t.Fatalf("expected 2 tenants to survive production filtering, got %d", len(doc.Tenants))
	}
	acme, ok := doc.Tenants["acme"]
	if !ok {
		t.Fatal("expected acme tenant to survive")
	}
	if len(acme.URLConfig) != 1 {
		t.Fatalf("expected acme to keep exactly 1 production urlConfig entry, got %d", len(acme.URLConfig))
	}
	if _, ok := acme.URLConfig["https://acme.example.com"]; !ok {
		t.Fatal("expected production publicUrl to survive")
	}
}

func TestParseDocumentDropsTenantWithNoMatchingEnvironment(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDoc), "staging")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := doc.Tenants["widgets"]; ok {
		t.Fatal("widgets has no staging entry and should have been dropped")
	}
	if _, ok := doc.Tenants["acme"]; !ok {
		t.Fatal("acme has a staging entry and should have survived")
	}
}

func TestParseDocumentErrorsWhenNothingSurvives(t *testing.T) {
	_, err := ParseDocument([]byte(sampleDoc), "acceptance")
	if err == nil {
		t.Fatal("expected an error when no tenant has an entry for the environment")
	}
}

func TestParseDocumentRejectsInsecurePublicUrl(t *testing.T) {
	raw := `
tenants:
  acme:
    urlConfig:
      http://acme.example.com:
        environment: production
        apiUrl: https://api.acme.example.com
`
	if _, err := ParseDocument([]byte(raw), "production"); err == nil {
		t.Fatal("expected non-HTTPS publicUrl to be rejected")
	}
}
