// Package localprovider is a self-contained identity.Provider used in
// development and tests: accounts with bcrypt-hashed passwords and
// random access/refresh token pairs held in memory. Production
// deployments point the portal at a hosted backend via oidcprovider.
package localprovider

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/go-client-portal/identity"
	apperrors "github.com/jrsteele09/go-client-portal/internal/errors"
)

const sessionTTL = 1 * time.Hour

var _ identity.Provider = (*Provider)(nil)

type account struct {
	ident        identity.Identity
	passwordHash string
}

type sessionEntry struct {
	subjectID string
	expiresAt time.Time
}

type Provider struct {
	accounts map[string]*account // subject ID -> account
	byEmail  map[string]string   // email -> subject ID
	sessions map[string]sessionEntry
	lock     sync.RWMutex
}

func New() *Provider {
	return &Provider{
		accounts: make(map[string]*account),
		byEmail:  make(map[string]string),
		sessions: make(map[string]sessionEntry),
	}
}

// AddAccount registers an identity with a bcrypt-hashed password.
func (p *Provider) AddAccount(ident identity.Identity, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Wrapf(err, "hash password for %s", ident.ID)
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	p.accounts[ident.ID] = &account{ident: ident, passwordHash: string(hash)}
	p.byEmail[ident.Email] = ident.ID
	return nil
}

func (p *Provider) Resolve(ctx context.Context, subjectID string) (*identity.Identity, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()

	acc, ok := p.accounts[subjectID]
	if !ok {
		return nil, apperrors.ErrIdentityNotFound
	}
	ident := acc.ident
	return &ident, nil
}

func (p *Provider) MintSession(ctx context.Context, ident *identity.Identity) (*identity.Session, error) {
	if ident == nil {
		return nil, apperrors.ErrIdentityNotFound
	}

	accessToken := generateRandomString(32)
	refreshToken := generateRandomString(32)
	expiresAt := time.Now().Add(sessionTTL)

	p.lock.Lock()
	defer p.lock.Unlock()
	if _, ok := p.accounts[ident.ID]; !ok {
		return nil, apperrors.ErrIdentityNotFound
	}
	p.sessions[accessToken] = sessionEntry{subjectID: ident.ID, expiresAt: expiresAt}

	return &identity.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

func (p *Provider) Introspect(ctx context.Context, accessToken string) (*identity.Identity, error) {
	p.lock.RLock()
	entry, ok := p.sessions[accessToken]
	p.lock.RUnlock()

	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	if time.Now().After(entry.expiresAt) {
		p.lock.Lock()
		delete(p.sessions, accessToken)
		p.lock.Unlock()
		return nil, apperrors.ErrSessionExpired
	}
	return p.Resolve(ctx, entry.subjectID)
}

func (p *Provider) Authenticate(ctx context.Context, email, password string) (*identity.Identity, *identity.Session, error) {
	p.lock.RLock()
	subjectID, ok := p.byEmail[email]
	var acc *account
	if ok {
		acc = p.accounts[subjectID]
	}
	p.lock.RUnlock()

	if acc == nil {
		return nil, nil, apperrors.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.passwordHash), []byte(password)) != nil {
		return nil, nil, apperrors.ErrInvalidCredentials
	}
	if acc.ident.Blocked {
		return nil, nil, apperrors.ErrInvalidCredentials
	}

	ident := acc.ident
	session, err := p.MintSession(ctx, &ident)
	if err != nil {
		return nil, nil, err
	}
	return &ident, session, nil
}

// generateRandomString creates a random base64url string
func generateRandomString(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
