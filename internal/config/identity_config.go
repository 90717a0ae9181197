package config

type IdentityConfig interface {
	GetOidcIssuerURL() string
	GetOidcClientID() string
	GetOidcClientSecret() string
	GetIdentityServiceToken() string
}

type Identity struct{}

var _ IdentityConfig = Identity{}

// GetOidcIssuerURL returns the issuer URL of the hosted identity
// backend. Empty selects the in-process provider (dev mode).
func (Identity) GetOidcIssuerURL() string {
	return GetEnv("OIDC_ISSUER_URL", "")
}

func (Identity) GetOidcClientID() string {
	return GetEnv("OIDC_CLIENT_ID", "client-portal")
}

func (Identity) GetOidcClientSecret() string {
	return GetEnv("OIDC_CLIENT_SECRET", "")
}

// GetIdentityServiceToken returns the administrative credential used
// for subject resolution and session minting against the backend.
func (Identity) GetIdentityServiceToken() string {
	return GetEnv("IDENTITY_SERVICE_TOKEN", "")
}
