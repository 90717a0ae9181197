package faketokenrepo

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-client-portal/autologin"
	apperrors "github.com/jrsteele09/go-client-portal/internal/errors"
)

var _ autologin.TokenRepo = (*FakeTokenRepo)(nil)

// FakeTokenRepo is a mutex-guarded in-memory TokenRepo for tests.
// Error injection via CreateErr/FindValidErr/ConsumeErr.
type FakeTokenRepo struct {
	CreateErr    error
	FindValidErr error
	ConsumeErr   error

	tokens      map[string]*autologin.Token // token ID -> token
	values      map[string]string           // value -> token ID
	createCalls int
	lock        sync.Mutex
}

func NewFakeTokenRepo() *FakeTokenRepo {
	return &FakeTokenRepo{
		tokens: make(map[string]*autologin.Token),
		values: make(map[string]string),
	}
}

func (tr *FakeTokenRepo) Create(ctx context.Context, token *autologin.Token) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	tr.createCalls++
	if tr.CreateErr != nil {
		return tr.CreateErr
	}
	if _, exists := tr.values[token.Value]; exists {
		return apperrors.ErrDuplicateValue
	}

	copied := *token
	tr.tokens[token.ID] = &copied
	tr.values[token.Value] = token.ID
	return nil
}

func (tr *FakeTokenRepo) FindValid(ctx context.Context, value string) (*autologin.Token, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if tr.FindValidErr != nil {
		return nil, tr.FindValidErr
	}

	id, ok := tr.values[value]
	if !ok {
		return nil, apperrors.ErrTokenNotValid
	}
	token := tr.tokens[id]
	if !token.IsValid(time.Now()) {
		return nil, apperrors.ErrTokenNotValid
	}
	copied := *token
	return &copied, nil
}

func (tr *FakeTokenRepo) Consume(ctx context.Context, id string) (autologin.ConsumeResult, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if tr.ConsumeErr != nil {
		return autologin.AlreadyConsumed, tr.ConsumeErr
	}

	token, ok := tr.tokens[id]
	if !ok || token.UsedAt != nil {
		return autologin.AlreadyConsumed, nil
	}
	now := time.Now()
	token.UsedAt = &now
	return autologin.Consumed, nil
}

// CreateCalls reports how many inserts were attempted, used to assert
// that policy violations never touch the store.
func (tr *FakeTokenRepo) CreateCalls() int {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	return tr.createCalls
}

// Get returns a stored token by ID for assertions.
func (tr *FakeTokenRepo) Get(id string) (*autologin.Token, bool) {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	token, ok := tr.tokens[id]
	if !ok {
		return nil, false
	}
	copied := *token
	return &copied, true
}
