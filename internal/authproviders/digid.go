package authproviders

import (
	"bytes"
	"compress/flate"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/session"
)

// DigidKeyPair is the SP's signing/mTLS identity for the BSN/SAML flow
// (spec §4.5.3). Certificate doubles as the XML-DSig signing cert and the
// TLS client certificate for the back-channel ArtifactResolve call.
type DigidKeyPair struct {
	PrivateKey  *rsa.PrivateKey
	Certificate *x509.Certificate
}

// DigidConfig describes one tenant's DigiD/SAML relationship.
type DigidConfig struct {
	Issuer             string // this SP's entityID
	KeyPair            DigidKeyPair
	IdPCertificate     *x509.Certificate // for verifying signed IdP responses
	IdPSSOURL          string            // Redirect-binding SSO endpoint
	ArtifactResolveURL string            // back-channel SOAP endpoint (environment-selected by caller)
	RootCAs            *x509.CertPool    // bundled CA chain for the mTLS back channel
}

// DigidProvider implements the BSN/SAML Provider (spec §4.5.3): this is the
// one component with no direct teacher analogue, so it is grounded on the
// wider pack's github.com/russellhaering/goxmldsig for XML-DSig, alongside
// stdlib encoding/xml, compress/flate, and a crypto/tls-configured
// net/http client mirroring internal/mailer's validated-outbound-connection
// pattern.
type DigidProvider struct {
	deps Deps
}

func NewDigidProvider(deps Deps) *DigidProvider {
	return &DigidProvider{deps: deps}
}

// Metadata returns a signed SAML metadata document for cfg's key pair and
// issuer, used for out-of-band federation onboarding.
func (p *DigidProvider) Metadata(cfg DigidConfig) (string, error) {
	doc := etree.NewDocument()
	root := doc.CreateElement("md:EntityDescriptor")
	root.CreateAttr("xmlns:md", "urn:oasis:names:tc:SAML:2.0:metadata")
	root.CreateAttr("entityID", cfg.Issuer)

	sso := root.CreateElement("md:SPSSODescriptor")
	sso.CreateAttr("protocolSupportEnumeration", "urn:oasis:names:tc:SAML:2.0:protocol")
	sso.CreateAttr("AuthnRequestsSigned", "true")

	keyDesc := sso.CreateElement("md:KeyDescriptor")
	keyDesc.CreateAttr("use", "signing")
	keyInfo := keyDesc.CreateElement("ds:KeyInfo")
	keyInfo.CreateAttr("xmlns:ds", "http://www.w3.org/2000/09/xmldsig#")
	x509Data := keyInfo.CreateElement("ds:X509Data")
	x509Cert := x509Data.CreateElement("ds:X509Certificate")
	x509Cert.SetText(base64.StdEncoding.EncodeToString(cfg.KeyPair.Certificate.Raw))

	signed, err := signingContext(cfg.KeyPair).SignEnveloped(root)
	if err != nil {
		return "", apperr.Server("authDigidBased.metadata.sign", err)
	}
	doc.SetRoot(signed)

	out, err := doc.WriteToString()
	if err != nil {
		return "", apperr.Server("authDigidBased.metadata.serialize", err)
	}
	return out, nil
}

func signingContext(kp DigidKeyPair) *dsig.SigningContext {
	ks := dsig.TLSCertKeyStore(tls.Certificate{
		Certificate: [][]byte{kp.Certificate.Raw},
		PrivateKey:  kp.PrivateKey,
	})
	return dsig.NewDefaultSigningContext(ks)
}

// Redirect builds and signs a SAML AuthnRequest and returns the IdP SSO URL
// with it attached as a query parameter: deflate + base64 + URL-encode,
// plus an RSA-SHA256 signature of "SAMLRequest=...&SigAlg=..." per the
// HTTP-Redirect binding (spec §4.5.3 step 2).
func (p *DigidProvider) Redirect(cfg DigidConfig, relayState string) (string, error) {
	requestID := "_" + uuid.New().String()
	issueInstant := time.Now().UTC().Format(time.RFC3339)

	authnRequest := fmt.Sprintf(
		`<samlp:AuthnRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion" ID="%s" Version="2.0" IssueInstant="%s" Destination="%s" ProtocolBinding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Artifact"><saml:Issuer>%s</saml:Issuer></samlp:AuthnRequest>`,
		requestID, issueInstant, cfg.IdPSSOURL, cfg.Issuer,
	)

	deflated, err := deflateAndEncode([]byte(authnRequest))
	if err != nil {
		return "", apperr.Server("authDigidBased.redirect.deflate", err)
	}

	const sigAlg = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	query := "SAMLRequest=" + url.QueryEscape(deflated) + "&SigAlg=" + url.QueryEscape(sigAlg)
	if relayState != "" {
		query += "&RelayState=" + url.QueryEscape(relayState)
	}

	sig, err := signRSASHA256(cfg.KeyPair.PrivateKey, []byte(query))
	if err != nil {
		return "", apperr.Server("authDigidBased.redirect.sign", err)
	}
	query += "&Signature=" + url.QueryEscape(sig)

	return cfg.IdPSSOURL + "?" + query, nil
}

func deflateAndEncode(raw []byte) (string, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(raw); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func signRSASHA256(key *rsa.PrivateKey, data []byte) (string, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(nil, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// artifactResolveEnvelope mirrors the SOAP body DigiD's back channel
// expects; the inner ArtifactResolve element is what gets XML-DSig signed.
const artifactResolveEnvelope = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body><samlp:ArtifactResolve xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion" ID="%s" Version="2.0" IssueInstant="%s"><saml:Issuer>%s</saml:Issuer><samlp:Artifact>%s</samlp:Artifact></samlp:ArtifactResolve></soap:Body></soap:Envelope>`

// artifactResponse is the minimal shape this provider reads out of the
// IdP's ArtifactResponse (spec §4.5.3 steps 3-4).
type artifactResponse struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		ArtifactResponse struct {
			Response struct {
				Status struct {
					StatusCode struct {
						Value string `xml:"Value,attr"`
					} `xml:"StatusCode"`
				} `xml:"Status"`
				Assertion struct {
					Conditions struct {
						NotBefore           string `xml:"NotBefore,attr"`
						NotOnOrAfter        string `xml:"NotOnOrAfter,attr"`
						AudienceRestriction struct {
							Audience string `xml:"Audience"`
						} `xml:"AudienceRestriction"`
					} `xml:"Conditions"`
					Subject struct {
						NameID string `xml:"NameID"`
					} `xml:"Subject"`
				} `xml:"Assertion"`
			} `xml:"Response"`
		} `xml:"ArtifactResponse"`
	} `xml:"Body"`
}

// statusCode constants per the IdP's SAML status URIs (spec §4.5.3 step 3).
const (
	samlStatusSuccess        = "urn:oasis:names:tc:SAML:2.0:status:Success"
	samlStatusAuthnFailed    = "urn:oasis:names:tc:SAML:2.0:status:AuthnFailed"
	samlStatusNoAuthnContext = "urn:oasis:names:tc:SAML:2.0:status:NoAuthnContext"
	samlStatusRequestDenied  = "urn:oasis:names:tc:SAML:2.0:status:RequestDenied"
)

// ResolveArtifact POSTs a signed SOAP ArtifactResolve over mutual TLS to
// the IdP's back-channel URL, verifies the response signature, enforces
// the audience/validity window, and extracts the BSN from the NameID
// (spec §4.5.3 steps 3-4).
func (p *DigidProvider) ResolveArtifact(ctx context.Context, cfg DigidConfig, artifact string) (string, error) {
	requestID := "_" + uuid.New().String()
	envelope := fmt.Sprintf(artifactResolveEnvelope, requestID, time.Now().UTC().Format(time.RFC3339), cfg.Issuer, artifact)

	signedEnvelope, err := p.signSOAPEnvelope(cfg.KeyPair, envelope)
	if err != nil {
		return "", apperr.Server("authDigidBased.resolveArtifact.sign", err)
	}

	client := mutualTLSClient(cfg.KeyPair, cfg.RootCAs)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.ArtifactResolveURL, bytes.NewBufferString(signedEnvelope))
	if err != nil {
		return "", apperr.Server("authDigidBased.resolveArtifact.buildRequest", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "")

	resp, err := client.Do(req)
	if err != nil {
		return "", apperr.Server("authDigidBased.resolveArtifact.post", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Server("authDigidBased.resolveArtifact.read", err)
	}

	if err := p.verifyResponseSignatures(cfg, body); err != nil {
		return "", err
	}

	var parsed artifactResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return "", apperr.Server("authDigidBased.resolveArtifact.parse", err)
	}

	switch parsed.Body.ArtifactResponse.Response.Status.StatusCode.Value {
	case samlStatusSuccess:
		// continue
	case samlStatusAuthnFailed:
		return "", apperr.Unauthorized("authDigidBased.resolveArtifact.aborted")
	case samlStatusNoAuthnContext:
		return "", apperr.Unauthorized("authDigidBased.resolveArtifact.insufficientSecurityLevel")
	case samlStatusRequestDenied:
		return "", apperr.Unauthorized("authDigidBased.resolveArtifact.invalidSAMLArt")
	default:
		return "", apperr.Server("authDigidBased.resolveArtifact.unknownStatus", fmt.Errorf("status %q", parsed.Body.ArtifactResponse.Response.Status.StatusCode.Value))
	}

	assertion := parsed.Body.ArtifactResponse.Response.Assertion
	if assertion.Conditions.AudienceRestriction.Audience != cfg.Issuer {
		return "", apperr.Unauthorized("authDigidBased.resolveArtifact.audienceMismatch")
	}

	now := time.Now().UTC()
	notBefore, err := time.Parse(time.RFC3339, assertion.Conditions.NotBefore)
	if err != nil {
		return "", apperr.Server("authDigidBased.resolveArtifact.parseNotBefore", err)
	}
	notOnOrAfter, err := time.Parse(time.RFC3339, assertion.Conditions.NotOnOrAfter)
	if err != nil {
		return "", apperr.Server("authDigidBased.resolveArtifact.parseNotOnOrAfter", err)
	}
	if now.Before(notBefore) || !now.Before(notOnOrAfter) {
		return "", apperr.Unauthorized("authDigidBased.resolveArtifact.expired")
	}

	bsn, err := extractBSN(assertion.Subject.NameID)
	if err != nil {
		return "", err
	}
	return bsn, nil
}

// bsnNameIDPrefix marks a DigiD NameID as carrying a BSN (spec §4.5.3 step 4).
const bsnNameIDPrefix = "s00000000:"

func extractBSN(nameID string) (string, error) {
	if len(nameID) <= len(bsnNameIDPrefix) || nameID[:len(bsnNameIDPrefix)] != bsnNameIDPrefix {
		return "", apperr.Unauthorized("authDigidBased.resolveArtifact.invalidNameId")
	}
	raw := nameID[len(bsnNameIDPrefix):]
	for len(raw) < 9 {
		raw = "0" + raw
	}
	return raw, nil
}

func (p *DigidProvider) signSOAPEnvelope(kp DigidKeyPair, envelope string) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(envelope); err != nil {
		return "", err
	}
	body := doc.FindElement("//ArtifactResolve")
	if body == nil {
		return "", fmt.Errorf("malformed ArtifactResolve envelope")
	}
	signed, err := signingContext(kp).SignEnveloped(body)
	if err != nil {
		return "", err
	}
	parent := body.Parent()
	parent.RemoveChild(body)
	parent.AddChild(signed)
	return doc.WriteToString()
}

// verifyResponseSignatures verifies every ds:Signature element in the raw
// response against the IdP's public certificate (spec §4.5.3 step 3
// "verify every Signature in the response").
func (p *DigidProvider) verifyResponseSignatures(cfg DigidConfig, raw []byte) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return apperr.Server("authDigidBased.resolveArtifact.parseForVerify", err)
	}

	certStore := dsig.MemoryX509CertificateStore{Roots: []*x509.Certificate{cfg.IdPCertificate}}
	validationCtx := dsig.NewDefaultValidationContext(&certStore)

	signed := doc.FindElements("//Signature/..")
	if len(signed) == 0 {
		return apperr.Unauthorized("authDigidBased.resolveArtifact.unsigned")
	}
	for _, el := range signed {
		if _, err := validationCtx.Validate(el); err != nil {
			return apperr.Unauthorized("authDigidBased.resolveArtifact.invalidSignature")
		}
	}
	return nil
}

func mutualTLSClient(kp DigidKeyPair, rootCAs *x509.CertPool) *http.Client {
	cert := tls.Certificate{Certificate: [][]byte{kp.Certificate.Raw}, PrivateKey: kp.PrivateKey}
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				RootCAs:      rootCAs,
				MinVersion:   tls.VersionTLS12,
			},
		},
		Timeout: 15 * time.Second,
	}
}

// Login finds a user by (tenant, BSN); caller issues a session with
// loginType="digidBased" (spec §4.5.3 "Login").
func (p *DigidProvider) Login(ctx context.Context, tenantID uuid.UUID, bsn string, device *session.Device) (*session.TokenPair, error) {
	var result *session.TokenPair
	err := p.deps.transact(ctx, func(d Deps) error {
		dl, err := d.Queries.GetDigidLoginByTenantAndBSN(ctx, toPGUUID(tenantID), bsn)
		if err != nil {
			return apperr.Validation("authDigidBased.login.unknownBsn", nil)
		}
		userID := uuid.UUID(dl.UserID.Bytes)
		if err := d.Queries.SetUserLastLogin(ctx, dl.UserID); err != nil {
			return apperr.Server("authDigidBased.login.lastLogin", err)
		}

		tokens, err := d.tail(ctx, TailInput{
			UserID:    userID,
			LoginType: session.LoginTypeDigidBased,
			Type:      session.TypeUser,
			Device:    device,
		})
		if err != nil {
			return err
		}
		result = tokens
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Register attaches a DigidLogin to an existing user, inside the caller's
// enclosing transaction.
func (p *DigidProvider) Register(ctx context.Context, d Deps, userID uuid.UUID, bsn string) error {
	if err := d.Queries.CreateDigidLogin(ctx, toPGUUID(userID), bsn); err != nil {
		return apperr.Server("authDigidBased.register.insert", err)
	}
	return d.Jobs.Enqueue(ctx, "auth.digidBased.userRegistered", map[string]any{
		"userId": userID.String(),
	})
}
