package authproviders

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/session"
	"github.com/lightbasenl/identity-core/internal/user"
)

// KeycloakConfig describes one tenant's federated-OIDC relationship (spec
// §4.5.4). Kept hand-rolled (net/http + encoding/json) rather than pulling
// in a generated OIDC client, consistent with the teacher's preference for
// direct net/http calls over heavyweight SDKs.
type KeycloakConfig struct {
	Issuer                string // e.g. https://idp.example.com/realms/acme
	ClientID              string
	ClientSecret          string
	RedirectURI           string
	ImplicitlyCreateUsers bool
	// GlobalUserCreation scopes an implicitly-created user to every tenant
	// (user.CreateParams.SyncAcrossAllTenants) instead of just this one,
	// mirroring the tenantSettings distinction spec §4.5.4 calls for.
	GlobalUserCreation bool
	// SingleTenant refuses to attach an existing user found via another
	// tenant's lookup to a second tenant.
	SingleTenant bool
}

// KeycloakProvider implements the Federated OIDC Provider (spec §4.5.4).
type KeycloakProvider struct {
	deps       Deps
	httpClient *http.Client
}

func NewKeycloakProvider(deps Deps, httpClient *http.Client) *KeycloakProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &KeycloakProvider{deps: deps, httpClient: httpClient}
}

// RedirectURL builds the standard authorization-code URL at
// {issuer}/protocol/openid-connect/auth.
func (p *KeycloakProvider) RedirectURL(cfg KeycloakConfig, state string) string {
	v := url.Values{}
	v.Set("client_id", cfg.ClientID)
	v.Set("redirect_uri", cfg.RedirectURI)
	v.Set("response_type", "code")
	v.Set("scope", "openid profile email")
	if state != "" {
		v.Set("state", state)
	}
	return strings.TrimSuffix(cfg.Issuer, "/") + "/protocol/openid-connect/auth?" + v.Encode()
}

type keycloakTokenResponse struct {
	AccessToken string `json:"access_token"`
}

type keycloakUserInfo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (p *KeycloakProvider) exchangeCode(ctx context.Context, cfg KeycloakConfig, code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", cfg.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(cfg.Issuer, "/")+"/protocol/openid-connect/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", apperr.Server("authKeycloakBased.login.buildRequest", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(cfg.ClientID, cfg.ClientSecret)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", apperr.Server("authKeycloakBased.login.exchange", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Server("authKeycloakBased.login.readExchange", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperr.Unauthorized("authKeycloakBased.login.exchangeRejected")
	}

	var tok keycloakTokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", apperr.Server("authKeycloakBased.login.decodeExchange", err)
	}
	return tok.AccessToken, nil
}

func (p *KeycloakProvider) userInfo(ctx context.Context, cfg KeycloakConfig, accessToken string) (keycloakUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimSuffix(cfg.Issuer, "/")+"/protocol/openid-connect/userinfo", nil)
	if err != nil {
		return keycloakUserInfo{}, apperr.Server("authKeycloakBased.login.buildUserinfo", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return keycloakUserInfo{}, apperr.Server("authKeycloakBased.login.userinfo", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return keycloakUserInfo{}, apperr.Unauthorized("authKeycloakBased.login.userinfoRejected")
	}

	var info keycloakUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return keycloakUserInfo{}, apperr.Server("authKeycloakBased.login.decodeUserinfo", err)
	}
	return info, nil
}

// Login exchanges code for tokens, reads the IdP's userinfo, and resolves
// (or implicitly creates) the local user (spec §4.5.4).
func (p *KeycloakProvider) Login(ctx context.Context, cfg KeycloakConfig, tenantID uuid.UUID, code string, device *session.Device) (*session.TokenPair, error) {
	accessToken, err := p.exchangeCode(ctx, cfg, code)
	if err != nil {
		return nil, err
	}
	info, err := p.userInfo(ctx, cfg, accessToken)
	if err != nil {
		return nil, err
	}
	if info.Email == "" {
		return nil, apperr.Unauthorized("authKeycloakBased.login.missingEmail")
	}

	var result *session.TokenPair
	err = p.deps.transact(ctx, func(d Deps) error {
		userID, err := p.resolveOrCreateUser(ctx, d, cfg, tenantID, info)
		if err != nil {
			return err
		}

		if err := d.Queries.SetUserLastLogin(ctx, toPGUUID(userID)); err != nil {
			return apperr.Server("authKeycloakBased.login.lastLogin", err)
		}

		tokens, err := d.tail(ctx, TailInput{
			UserID:    userID,
			LoginType: session.LoginTypeKeycloakBased,
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

func (p *KeycloakProvider) resolveOrCreateUser(ctx context.Context, d Deps, cfg KeycloakConfig, tenantID uuid.UUID, info keycloakUserInfo) (uuid.UUID, error) {
	kl, err := d.Queries.GetKeycloakLoginByTenantAndEmail(ctx, toPGUUID(tenantID), info.Email)
	if err == nil {
		userID := uuid.UUID(kl.UserID.Bytes)
		if info.Name != "" {
			if u, err := d.Queries.GetUserByID(ctx, kl.UserID); err == nil && !u.DisplayName.Valid {
				_ = d.Queries.SetUserDisplayName(ctx, kl.UserID, pgtype.Text{String: info.Name, Valid: true})
			}
		}
		inTenant, err := d.Queries.IsUserInTenant(ctx, kl.UserID, toPGUUID(tenantID))
		if err != nil {
			return uuid.Nil, apperr.Server("authKeycloakBased.login.checkMembership", err)
		}
		if !inTenant {
			if !cfg.ImplicitlyCreateUsers || cfg.SingleTenant {
				return uuid.Nil, apperr.Forbidden("authKeycloakBased.login.tenantNotAllowed")
			}
			if err := d.Queries.AddUserTenant(ctx, kl.UserID, toPGUUID(tenantID)); err != nil {
				return uuid.Nil, apperr.Server("authKeycloakBased.login.addTenant", err)
			}
		}
		return userID, nil
	}

	if !cfg.ImplicitlyCreateUsers {
		return uuid.Nil, apperr.Validation("authKeycloakBased.login.unknownEmail", nil)
	}

	u, err := d.Users.Create(ctx, user.CreateParams{
		DisplayName:          info.Name,
		TenantID:             tenantID,
		SyncAcrossAllTenants: cfg.GlobalUserCreation,
	})
	if err != nil {
		return uuid.Nil, err
	}
	userID := uuid.UUID(u.ID.Bytes)

	if err := d.Queries.CreateKeycloakLogin(ctx, u.ID, info.Email); err != nil {
		return uuid.Nil, apperr.Server("authKeycloakBased.login.attachLogin", err)
	}
	if err := d.Users.CheckKeycloakEmailUnique(ctx, tenantID, userID, info.Email); err != nil {
		return uuid.Nil, err
	}
	if err := d.Jobs.Enqueue(ctx, "auth.keycloakBased.userRegistered", map[string]any{
		"userId": userID.String(),
		"email":  info.Email,
	}); err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}
