package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customMiddleware "github.com/lightbasenl/identity-core/internal/api/middleware"
	"github.com/lightbasenl/identity-core/internal/storage/db"
	"github.com/lightbasenl/identity-core/internal/tenant"
)

type fakeTenantLookup struct {
	id pgtype.UUID
}

func (f fakeTenantLookup) GetTenantByName(ctx context.Context, name string) (db.Tenant, error) {
	return db.Tenant{ID: f.id, Name: name}, nil
}

func buildTestIndex(t *testing.T) *tenant.Index {
	t.Helper()
	raw := []byte(`
tenants:
  acme:
    data:
      displayName: Acme
    urlConfig:
      https://acme.example.com:
        environment: production
        apiUrl: api.acme.example.com
`)
	doc, err := tenant.ParseDocument(raw, "production")
	require.NoError(t, err)
	return tenant.NewIndex(doc, "production")
}

func TestTenantContext_ResolvesEntityFromOrigin(t *testing.T) {
	cache := tenant.NewCache(buildTestIndex(t))
	lookup := fakeTenantLookup{id: pgtype.UUID{Bytes: [16]byte{1}, Valid: true}}

	mw := customMiddleware.TenantContext(cache, lookup, false)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entity, err := customMiddleware.GetTenantEntity(r.Context())
		require.NoError(t, err)
		assert.Equal(t, "acme", entity.Name)

		tenantID, err := customMiddleware.GetTenantID(r.Context())
		require.NoError(t, err)
		assert.NotEqual(t, [16]byte{}, tenantID)

		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Host = "api.acme.example.com"
	req.Header.Set("Origin", "https://acme.example.com")
	rr := httptest.NewRecorder()

	mw(handler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireTenant_RejectsUnresolvedTenant(t *testing.T) {
	handler := customMiddleware.RequireTenant(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without a resolved tenant")
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
