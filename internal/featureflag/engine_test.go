package featureflag

import (
	"testing"

	"github.com/lightbasenl/identity-core/internal/storage/db"
)

func TestResolveValueFallsBackToGlobal(t *testing.T) {
	f := db.FeatureFlag{Name: "foo", GlobalValue: true, TenantValues: []byte(`{}`)}
	if !resolveValue(f, "acme") {
		t.Fatal("expected fallback to global value true")
	}
}

func TestResolveValuePrefersTenantOverride(t *testing.T) {
	f := db.FeatureFlag{Name: "foo", GlobalValue: true, TenantValues: []byte(`{"acme": false}`)}
	if resolveValue(f, "acme") {
		t.Fatal("expected tenant override to win over global value")
	}
	if !resolveValue(f, "widgets") {
		t.Fatal("expected unrelated tenant to fall back to global value")
	}
}

func TestContains(t *testing.T) {
	if !contains([]string{"a", "b"}, "b") {
		t.Fatal("expected contains to find present element")
	}
	if contains([]string{"a", "b"}, "c") {
		t.Fatal("expected contains to reject absent element")
	}
}

func TestNewEngineAlwaysIncludesExampleReservedFlag(t *testing.T) {
	e := NewEngine(nil, nil, []string{"myFlag"})
	if !contains(e.declared, ExampleReservedFlag) {
		t.Fatal("expected example reserved flag to always be declared")
	}
	if !contains(e.declared, "myFlag") {
		t.Fatal("expected caller-declared flag to survive")
	}
}
