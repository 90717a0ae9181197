package errors

import (
	"errors"
	"fmt"
)

// Common error types for the client portal
var (
	// Autologin issuance errors
	ErrPolicyViolation = errors.New("subject not eligible for autologin")
	ErrDuplicateValue  = errors.New("token value already exists")

	// Token storage errors
	ErrStorageUnavailable = errors.New("token storage unavailable")

	// Token redemption errors. Invalid, expired and already-used tokens
	// all collapse into this single error so callers cannot distinguish
	// token lifecycle state.
	ErrTokenNotValid = errors.New("token not valid")

	// Identity provider errors
	ErrIdentityProvider   = errors.New("identity provider error")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
