package authproviders

import (
	"net/http"
	"testing"

	"github.com/lightbasenl/identity-core/internal/apperr"
)

// Regression coverage for the anonymous login's isAllowedToLogin=false
// branch: it must surface as a 400 business-rule validation with the exact
// wire key clients key off of, not a 404.
func TestAnonymousNotAllowedErrorIsValidationWithSpecKey(t *testing.T) {
	e, ok := apperr.As(anonymousNotAllowedError())
	if !ok {
		t.Fatal("expected an *apperr.Error")
	}
	if e.Kind != apperr.KindValidation {
		t.Fatalf("Kind = %v, want %v", e.Kind, apperr.KindValidation)
	}
	if e.Status != http.StatusBadRequest {
		t.Fatalf("Status = %d, want %d", e.Status, http.StatusBadRequest)
	}
	if e.Key != "authAnonymousBased.login.tokenIsNotAllowedToLogin" {
		t.Fatalf("Key = %q, want %q", e.Key, "authAnonymousBased.login.tokenIsNotAllowedToLogin")
	}
}
