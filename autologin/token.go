package autologin

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// tokenValueLength is the number of random bytes in a token value.
// 32 bytes = 256 bits of entropy, base64url encoded.
const tokenValueLength = 32

// Token represents a single autologin redemption right. The value is
// the only part that ever leaves the server; id stays internal to the
// store and the consume call.
type Token struct {
	ID        string
	SubjectID string
	Value     string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// IsValid reports whether the token can still be redeemed at now.
func (t *Token) IsValid(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// GenerateValue creates a fresh cryptographically random token value.
func GenerateValue() (string, error) {
	b := make([]byte, tokenValueLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
