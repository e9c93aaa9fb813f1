package user

import (
	"testing"

	"github.com/lightbasenl/identity-core/internal/session"
)

func TestLoginTypeAllowed(t *testing.T) {
	allowed := []session.LoginType{session.LoginTypePasswordBased, session.LoginTypeKeycloakBased}
	if !loginTypeAllowed(session.LoginTypePasswordBased, allowed) {
		t.Fatal("expected passwordBased to be allowed")
	}
	if loginTypeAllowed(session.LoginTypeAnonymousBased, allowed) {
		t.Fatal("expected anonymousBased to be rejected")
	}
}

func TestMergeRetargetTablesExcludesIdentityTables(t *testing.T) {
	excluded := []string{
		"password_logins", "anonymous_logins", "digid_logins",
		"keycloak_logins", "totp_settings", "user_roles", "user_tenants",
	}
	for _, rt := range mergeRetargetTables {
		for _, ex := range excluded {
			if rt.Table == ex {
				t.Fatalf("identity table %q must not be in the merge retarget allowlist", ex)
			}
		}
	}
	if len(mergeRetargetTables) == 0 {
		t.Fatal("expected at least one retarget table")
	}
}
