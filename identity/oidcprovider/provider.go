// Package oidcprovider implements identity.Provider against the
// hosted identity backend: OIDC discovery for the token endpoints,
// the standard userinfo endpoint for introspection, and the backend's
// admin API (service-token authenticated) for subject resolution and
// session minting.
package oidcprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-client-portal/identity"
	apperrors "github.com/jrsteele09/go-client-portal/internal/errors"
)

var _ identity.Provider = (*Provider)(nil)

type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string

	// ServiceToken authenticates the portal's administrative calls
	// (resolve, mint). Never exposed to request handlers.
	ServiceToken string

	Scopes     []string
	HTTPClient *http.Client
}

type Provider struct {
	oidcProvider *oidc.Provider
	oauthConfig  *oauth2.Config
	httpClient   *http.Client
	issuerURL    string
	serviceToken string
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("[oidcprovider.New] IssuerURL is required")
	}
	if cfg.ServiceToken == "" {
		return nil, errors.New("[oidcprovider.New] ServiceToken is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	ctx = oidc.ClientContext(ctx, httpClient)

	oidcProvider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[oidcprovider.New] oidc.NewProvider")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}
	}

	return &Provider{
		oidcProvider: oidcProvider,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oidcProvider.Endpoint(),
			Scopes:       scopes,
		},
		httpClient:   httpClient,
		issuerURL:    cfg.IssuerURL,
		serviceToken: cfg.ServiceToken,
	}, nil
}

// backendUser is the admin API's user representation
type backendUser struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	AccountKind string   `json:"account_kind"`
	Roles       []string `json:"roles"`
	Blocked     bool     `json:"blocked"`
}

func (u backendUser) toIdentity() *identity.Identity {
	roles := make([]identity.RoleType, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, identity.RoleType(r))
	}
	return &identity.Identity{
		ID:      u.ID,
		Email:   u.Email,
		Name:    u.Name,
		Kind:    identity.AccountKind(u.AccountKind),
		Roles:   roles,
		Blocked: u.Blocked,
	}
}

func (p *Provider) Resolve(ctx context.Context, subjectID string) (*identity.Identity, error) {
	endpoint := p.issuerURL + "/admin/users/" + url.PathEscape(subjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[oidcprovider.Resolve] NewRequest")
	}
	req.Header.Set("Authorization", "Bearer "+p.serviceToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrIdentityProvider, "resolve %s: %v", subjectID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.ErrIdentityNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Wrapf(apperrors.ErrIdentityProvider, "resolve %s: status %d", subjectID, resp.StatusCode)
	}

	var user backendUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrIdentityProvider, "resolve %s: decode: %v", subjectID, err)
	}
	return user.toIdentity(), nil
}

// MintSession asks the backend's admin API for a session on behalf of
// the identity. This is the administrative capability the autologin
// exchange rests on; the portal never sees a password here.
func (p *Provider) MintSession(ctx context.Context, ident *identity.Identity) (*identity.Session, error) {
	if ident == nil {
		return nil, apperrors.ErrIdentityNotFound
	}

	body, err := json.Marshal(map[string]string{"subject_id": ident.ID})
	if err != nil {
		return nil, errors.Wrap(err, "[oidcprovider.MintSession] Marshal")
	}

	endpoint := p.issuerURL + "/admin/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "[oidcprovider.MintSession] NewRequest")
	}
	req.Header.Set("Authorization", "Bearer "+p.serviceToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrIdentityProvider, "mint session for %s: %v", ident.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, apperrors.Wrapf(apperrors.ErrIdentityProvider, "mint session for %s: status %d", ident.ID, resp.StatusCode)
	}

	var minted struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&minted); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrIdentityProvider, "mint session for %s: decode: %v", ident.ID, err)
	}
	if minted.AccessToken == "" {
		return nil, apperrors.Wrapf(apperrors.ErrIdentityProvider, "mint session for %s: empty access token", ident.ID)
	}

	return &identity.Session{
		AccessToken:  minted.AccessToken,
		RefreshToken: minted.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(minted.ExpiresIn) * time.Second),
	}, nil
}

// Introspect validates an access token via the standard userinfo
// endpoint and maps its claims onto a portal identity.
func (p *Provider) Introspect(ctx context.Context, accessToken string) (*identity.Identity, error) {
	ctx = oidc.ClientContext(ctx, p.httpClient)
	userInfo, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrSessionNotFound, "userinfo: %v", err)
	}

	var claims struct {
		Email       string   `json:"email"`
		Name        string   `json:"name"`
		AccountKind string   `json:"account_kind"`
		Roles       []string `json:"roles"`
		Blocked     bool     `json:"blocked"`
	}
	if err := userInfo.Claims(&claims); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrIdentityProvider, "userinfo claims: %v", err)
	}

	return backendUser{
		ID:          userInfo.Subject,
		Email:       claims.Email,
		Name:        claims.Name,
		AccountKind: claims.AccountKind,
		Roles:       claims.Roles,
		Blocked:     claims.Blocked,
	}.toIdentity(), nil
}

func (p *Provider) Authenticate(ctx context.Context, email, password string) (*identity.Identity, *identity.Session, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.oauthConfig.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: password grant: %v", apperrors.ErrInvalidCredentials, err)
	}

	ident, err := p.Introspect(ctx, token.AccessToken)
	if err != nil {
		return nil, nil, err
	}
	if ident.Blocked {
		return nil, nil, apperrors.ErrInvalidCredentials
	}

	return ident, &identity.Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}
