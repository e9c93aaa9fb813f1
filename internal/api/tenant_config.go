package api

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/authproviders"
	"github.com/lightbasenl/identity-core/internal/tenant"
)

// Per-tenant federation settings live in the tenant configuration document's
// free-form `data` bag (spec §4.1, §4.5.3, §4.5.4): each tenant operator
// supplies its own DigiD/SAML key material and Keycloak realm without a
// code change on this side.

func stringField(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}

func boolField(data map[string]any, key string) bool {
	v, _ := data[key].(bool)
	return v
}

func subMap(data map[string]any, key string) map[string]any {
	m, _ := data[key].(map[string]any)
	return m
}

func parsePEMCertificate(pemText string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("invalid PEM certificate")
	}
	return x509.ParseCertificate(block.Bytes)
}

func parsePEMRSAPrivateKey(pemText string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("invalid PEM private key")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}

// digidConfigForTenant builds a DigidConfig from entity.Data["digid"].
func digidConfigForTenant(entity tenant.Entity) (authproviders.DigidConfig, error) {
	d := subMap(entity.Data, "digid")
	if d == nil {
		return authproviders.DigidConfig{}, apperr.Validation("authDigidBased.config.notConfigured", map[string]any{"tenant": entity.Name})
	}

	cert, err := parsePEMCertificate(stringField(d, "certificate"))
	if err != nil {
		return authproviders.DigidConfig{}, apperr.Server("authDigidBased.config.parseCertificate", err)
	}
	key, err := parsePEMRSAPrivateKey(stringField(d, "privateKey"))
	if err != nil {
		return authproviders.DigidConfig{}, apperr.Server("authDigidBased.config.parsePrivateKey", err)
	}
	idpCert, err := parsePEMCertificate(stringField(d, "idpCertificate"))
	if err != nil {
		return authproviders.DigidConfig{}, apperr.Server("authDigidBased.config.parseIdpCertificate", err)
	}

	return authproviders.DigidConfig{
		Issuer: stringField(d, "issuer"),
		KeyPair: authproviders.DigidKeyPair{
			PrivateKey:  key,
			Certificate: cert,
		},
		IdPCertificate:     idpCert,
		IdPSSOURL:          stringField(d, "idpSsoUrl"),
		ArtifactResolveURL: stringField(d, "artifactResolveUrl"),
	}, nil
}

// keycloakConfigForTenant builds a KeycloakConfig from entity.Data["keycloak"].
func keycloakConfigForTenant(entity tenant.Entity) (authproviders.KeycloakConfig, error) {
	k := subMap(entity.Data, "keycloak")
	if k == nil {
		return authproviders.KeycloakConfig{}, apperr.Validation("authKeycloakBased.config.notConfigured", map[string]any{"tenant": entity.Name})
	}
	return authproviders.KeycloakConfig{
		Issuer:                stringField(k, "issuer"),
		ClientID:              stringField(k, "clientId"),
		ClientSecret:          stringField(k, "clientSecret"),
		RedirectURI:           stringField(k, "redirectUri"),
		ImplicitlyCreateUsers: boolField(k, "implicitlyCreateUsers"),
		GlobalUserCreation:    boolField(k, "globalUserCreation"),
		SingleTenant:          boolField(k, "singleTenant"),
	}, nil
}
