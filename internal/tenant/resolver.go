package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/storage/db"
)

// Entity is a fully resolved tenant: the name, its free-form data, and
// the (publicUrl, apiUrl, environment) triple picked for the current
// request.
type Entity struct {
	Name        string
	Data        map[string]any
	PublicURL   string
	APIUrl      string
	Environment string
}

// Index is the precomputed, immutable view of the tenant configuration
// built once at startup (spec §4.1: "treated as effectively immutable
// for process lifetime").
type Index struct {
	env              string
	byName           map[string]RawTenant
	byPublicURL      map[string]string // publicUrl -> tenant name
	byAPIUrl         map[string]string // apiUrl -> tenant name
	hasUniqueApiUrls bool
}

// NewIndex builds an Index from a parsed, environment-filtered Document.
func NewIndex(doc *Document, env string) *Index {
	idx := &Index{
		env:         env,
		byName:      doc.Tenants,
		byPublicURL: map[string]string{},
		byAPIUrl:    map[string]string{},
	}

	apiUrlCounts := map[string]int{}
	for name, t := range doc.Tenants {
		for publicURL, entry := range t.URLConfig {
			idx.byPublicURL[publicURL] = name
			idx.byAPIUrl[entry.APIUrl] = name
			apiUrlCounts[entry.APIUrl]++
		}
	}

	idx.hasUniqueApiUrls = true
	for _, n := range apiUrlCounts {
		if n != 1 {
			idx.hasUniqueApiUrls = false
			break
		}
	}
	return idx
}

// RequestHeaders are the three headers the resolution algorithm reads
// (spec §4.1).
type RequestHeaders struct {
	Host         string // mandatory
	Origin       string // optional
	TenantOrigin string // optional override, x-lpc-tenant-origin
}

// Resolve implements the algorithm from spec §4.1.
func (idx *Index) Resolve(h RequestHeaders, isDevOrAcceptance bool) (Entity, error) {
	if h.Host == "" {
		return Entity{}, idx.invalidTenant()
	}

	if isDevOrAcceptance && h.TenantOrigin != "" {
		if e, ok := idx.resolveByPublicURL(h.TenantOrigin, h.Host); ok {
			return e, nil
		}
		return Entity{}, idx.invalidTenant()
	}

	if idx.hasUniqueApiUrls {
		name, ok := idx.byAPIUrl[h.Host]
		if ok {
			publicURL := h.Origin
			if publicURL == "" {
				publicURL = idx.findPublicURLForAPIUrl(name, h.Host)
			}
			return idx.build(name, publicURL, h.Host), nil
		}
		return Entity{}, idx.invalidTenant()
	}

	lookupURL := h.Origin
	if lookupURL == "" {
		lookupURL = h.TenantOrigin
	}
	if e, ok := idx.resolveByPublicURL(lookupURL, ""); ok {
		return e, nil
	}
	return Entity{}, idx.invalidTenant()
}

func (idx *Index) resolveByPublicURL(publicURL, fallbackHost string) (Entity, bool) {
	name, ok := idx.byPublicURL[publicURL]
	if !ok {
		return Entity{}, false
	}
	t := idx.byName[name]
	entry, ok := t.URLConfig[publicURL]
	if !ok {
		return Entity{}, false
	}
	apiURL := entry.APIUrl
	if apiURL == "" {
		apiURL = fallbackHost
	}
	return idx.build(name, publicURL, apiURL), true
}

func (idx *Index) findPublicURLForAPIUrl(name, apiURL string) string {
	t := idx.byName[name]
	for publicURL, entry := range t.URLConfig {
		if entry.APIUrl == apiURL {
			return publicURL
		}
	}
	return ""
}

func (idx *Index) build(name, publicURL, apiURL string) Entity {
	t := idx.byName[name]
	return Entity{
		Name:        name,
		Data:        t.Data,
		PublicURL:   publicURL,
		APIUrl:      apiURL,
		Environment: idx.env,
	}
}

func (idx *Index) invalidTenant() error {
	return apperr.Validation("multitenant.require.invalidTenant", nil)
}

// ByName looks up a tenant by name directly, for background contexts that
// have no request (spec §4.1 "expose a by-id/by-name variant").
func (idx *Index) ByName(name string) (Entity, bool) {
	t, ok := idx.byName[name]
	if !ok {
		return Entity{}, false
	}
	for publicURL, entry := range t.URLConfig {
		return idx.build(name, publicURL, entry.APIUrl), true
	}
	return Entity{}, false
}

// TenantByIDLookup is the narrow database surface ByID needs to translate a
// tenant's database id into its configuration-document name.
type TenantByIDLookup interface {
	GetTenantByID(ctx context.Context, id pgtype.UUID) (db.Tenant, error)
}

// ByID looks up a tenant by its database id, for background contexts (job
// handlers, the management purge sweep) that only carry a tenant id and
// have no inbound request to resolve from (spec §4.1 "expose a by-id/by-name
// variant for background contexts"). It composes a database lookup for the
// id-to-name mapping with ByName, since the configuration document itself
// is keyed by name, not id.
func (idx *Index) ByID(ctx context.Context, q TenantByIDLookup, id uuid.UUID) (Entity, bool, error) {
	row, err := q.GetTenantByID(ctx, pgtype.UUID{Bytes: id, Valid: true})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entity{}, false, nil
		}
		return Entity{}, false, err
	}
	e, ok := idx.ByName(row.Name)
	return e, ok, nil
}

// HasUniqueApiUrls exposes the derived property for tests and callers
// that need to branch on resolution strategy explicitly.
func (idx *Index) HasUniqueApiUrls() bool { return idx.hasUniqueApiUrls }

func (e Entity) String() string {
	return fmt.Sprintf("tenant(%s, public=%s, api=%s)", e.Name, e.PublicURL, e.APIUrl)
}
