// Package tenant implements the Tenant Resolver: mapping an inbound
// request to a tenant entity and derived URLs from a validated static
// configuration document, with a pull-through cache (spec §4.1).
package tenant

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// URLConfigEntry is one entry of a tenant's urlConfig map, keyed by
// public URL in the source document.
type URLConfigEntry struct {
	Environment string `yaml:"environment"`
	APIUrl      string `yaml:"apiUrl"`
}

// RawTenant is a single `tenants.<name>` entry as written in the
// configuration document, before environment filtering.
type RawTenant struct {
	Data      map[string]any            `yaml:"data"`
	URLConfig map[string]URLConfigEntry `yaml:"urlConfig"`
}

// Document is the top-level static configuration (spec §4.1).
type Document struct {
	Tenants map[string]RawTenant `yaml:"tenants"`
}

// ParseDocument parses and validates the YAML tenant configuration,
// dropping urlConfig entries whose environment doesn't match env and
// disabling (removing) any tenant left with no entries. Startup fails if
// fewer than one tenant remains.
func ParseDocument(raw []byte, env string) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse tenant config: %w", err)
	}

	for name, t := range doc.Tenants {
		filtered := make(map[string]URLConfigEntry, len(t.URLConfig))
		for publicURL, entry := range t.URLConfig {
			if entry.Environment != env {
				continue
			}
			if err := validatePublicURL(publicURL); err != nil {
				return nil, fmt.Errorf("tenant %q: invalid publicUrl %q: %w", name, publicURL, err)
			}
			filtered[publicURL] = entry
		}
		if len(filtered) == 0 {
			delete(doc.Tenants, name)
			continue
		}
		t.URLConfig = filtered
		doc.Tenants[name] = t
	}

	if len(doc.Tenants) < 1 {
		return nil, fmt.Errorf("tenant config: no tenant has an active urlConfig entry for environment %q", env)
	}
	return &doc, nil
}

// validatePublicURL rejects a tenant's publicUrl entry that would make a
// bad CORS origin: wildcards, non-HTTPS (other than localhost, for local
// development), blanks, and embedded whitespace.
func validatePublicURL(origin string) error {
	if origin == "" || strings.Contains(origin, " ") {
		return fmt.Errorf("invalid origin format")
	}
	if origin == "*" {
		return fmt.Errorf("wildcard origin not allowed")
	}
	if !strings.HasPrefix(origin, "https://") && !strings.HasPrefix(origin, "http://localhost") {
		return fmt.Errorf("only https origins allowed (except http://localhost for development)")
	}
	return nil
}
