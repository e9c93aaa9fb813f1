package permission

import (
	"testing"

	"github.com/google/uuid"
)

func TestRequireNoDuplicates(t *testing.T) {
	if err := requireNoDuplicates([]string{"a", "b", "c"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := requireNoDuplicates([]string{"a", "b", "a"}); err == nil {
		t.Fatal("expected duplicate detection to fail")
	}
}

func TestRequireUniqueMandatoryRoleIdentifiers(t *testing.T) {
	tenantA := uuid.New()
	tenantB := uuid.New()

	ok := []MandatoryRole{
		{Identifier: "admin"},
		{Identifier: "admin", TenantID: &tenantA},
		{Identifier: "admin", TenantID: &tenantB},
	}
	if err := requireUniqueMandatoryRoleIdentifiers(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dupGlobal := []MandatoryRole{{Identifier: "admin"}, {Identifier: "admin"}}
	if err := requireUniqueMandatoryRoleIdentifiers(dupGlobal); err == nil {
		t.Fatal("expected duplicate global role to fail")
	}

	dupTenant := []MandatoryRole{
		{Identifier: "admin", TenantID: &tenantA},
		{Identifier: "admin", TenantID: &tenantA},
	}
	if err := requireUniqueMandatoryRoleIdentifiers(dupTenant); err == nil {
		t.Fatal("expected duplicate per-tenant role to fail")
	}
}

func TestToSet(t *testing.T) {
	set := toSet([]string{"a", "b", "a"})
	if len(set) != 2 {
		t.Fatalf("expected 2 unique entries, got %d", len(set))
	}
}
