package fakeprovider

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-client-portal/identity"
	apperrors "github.com/jrsteele09/go-client-portal/internal/errors"
)

var _ identity.Provider = (*FakeProvider)(nil)

// FakeProvider is an in-memory identity.Provider for tests. Behaviour
// can be overridden per call via the *Fn fields; unset functions fall
// back to the identity map.
type FakeProvider struct {
	ResolveFn     func(ctx context.Context, subjectID string) (*identity.Identity, error)
	MintSessionFn func(ctx context.Context, ident *identity.Identity) (*identity.Session, error)
	IntrospectFn  func(ctx context.Context, accessToken string) (*identity.Identity, error)

	identities map[string]*identity.Identity
	sessions   map[string]string // access token -> subject ID
	mintCalls  int
	lock       sync.RWMutex
}

func NewFakeProvider(identities ...*identity.Identity) *FakeProvider {
	fp := &FakeProvider{
		identities: make(map[string]*identity.Identity),
		sessions:   make(map[string]string),
	}
	for _, ident := range identities {
		fp.identities[ident.ID] = ident
	}
	return fp
}

func (fp *FakeProvider) Resolve(ctx context.Context, subjectID string) (*identity.Identity, error) {
	if fp.ResolveFn != nil {
		return fp.ResolveFn(ctx, subjectID)
	}
	fp.lock.RLock()
	defer fp.lock.RUnlock()
	ident, ok := fp.identities[subjectID]
	if !ok {
		return nil, apperrors.ErrIdentityNotFound
	}
	return ident, nil
}

func (fp *FakeProvider) MintSession(ctx context.Context, ident *identity.Identity) (*identity.Session, error) {
	fp.lock.Lock()
	fp.mintCalls++
	fp.lock.Unlock()

	if fp.MintSessionFn != nil {
		return fp.MintSessionFn(ctx, ident)
	}

	fp.lock.Lock()
	defer fp.lock.Unlock()
	accessToken := "fake-access-" + ident.ID + "-" + time.Now().Format("150405.000000000")
	fp.sessions[accessToken] = ident.ID
	return &identity.Session{
		AccessToken:  accessToken,
		RefreshToken: "fake-refresh-" + ident.ID,
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (fp *FakeProvider) Introspect(ctx context.Context, accessToken string) (*identity.Identity, error) {
	if fp.IntrospectFn != nil {
		return fp.IntrospectFn(ctx, accessToken)
	}
	fp.lock.RLock()
	defer fp.lock.RUnlock()
	subjectID, ok := fp.sessions[accessToken]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	ident, ok := fp.identities[subjectID]
	if !ok {
		return nil, apperrors.ErrIdentityNotFound
	}
	return ident, nil
}

func (fp *FakeProvider) Authenticate(ctx context.Context, email, password string) (*identity.Identity, *identity.Session, error) {
	fp.lock.RLock()
	var found *identity.Identity
	for _, ident := range fp.identities {
		if ident.Email == email {
			found = ident
			break
		}
	}
	fp.lock.RUnlock()

	if found == nil || password == "" {
		return nil, nil, apperrors.ErrInvalidCredentials
	}
	session, err := fp.MintSession(ctx, found)
	if err != nil {
		return nil, nil, err
	}
	return found, session, nil
}

// MintCalls reports how many sessions were requested, including failed
// mints. Used to assert mint-before-consume ordering.
func (fp *FakeProvider) MintCalls() int {
	fp.lock.RLock()
	defer fp.lock.RUnlock()
	return fp.mintCalls
}
