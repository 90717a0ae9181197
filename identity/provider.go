package identity

import "context"

// Provider is the consumed surface of the external identity backend.
// Only resolve/mint/introspect/authenticate are used here; the
// backend's internal session format is opaque to the portal.
type Provider interface {
	// Resolve returns the identity for a subject id
	Resolve(ctx context.Context, subjectID string) (*Identity, error)

	// MintSession creates an authenticated session for an identity.
	// Requires administrative capability on the backend.
	MintSession(ctx context.Context, ident *Identity) (*Session, error)

	// Introspect validates an access token and returns the identity it
	// belongs to. Called per request, never cached locally.
	Introspect(ctx context.Context, accessToken string) (*Identity, error)

	// Authenticate performs a normal credential login
	Authenticate(ctx context.Context, email, password string) (*Identity, *Session, error)
}
