package autologin

import "context"

// ConsumeResult reports the outcome of an atomic consume attempt.
type ConsumeResult int

const (
	// Consumed means this call transitioned the token to used
	Consumed ConsumeResult = iota
	// AlreadyConsumed means another call won the race first
	AlreadyConsumed
)

// TokenRepo is the durable record of issued tokens. It is the only
// cross-request coordination point of the autologin subsystem: Consume
// acts as the distributed lock for exactly-once redemption.
type TokenRepo interface {
	// Create inserts a new token. A value collision surfaces
	// errors.ErrDuplicateValue so the caller can retry with a fresh
	// value; any other failure wraps errors.ErrStorageUnavailable.
	Create(ctx context.Context, token *Token) error

	// FindValid returns the token for a value only while it is unused
	// and unexpired. Used, expired and unknown values are
	// indistinguishable: all return errors.ErrTokenNotValid.
	FindValid(ctx context.Context, value string) (*Token, error)

	// Consume atomically marks the token used. It must be a single
	// conditional write so concurrent callers cannot both observe the
	// unused state and both proceed.
	Consume(ctx context.Context, id string) (ConsumeResult, error)
}
