package autologin

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// FallbackCodec signs and verifies the structured fallback token
// format (header.payload.signature). It exists for degraded issuance
// only: a token the store could not persist is still redeemable if its
// payload can be trusted, and it can only be trusted with a valid HMAC
// signature. There is no unverified decode path.
//
// Fallback tokens bypass the store, so they carry no at-most-once
// guarantee. Expiry is enforced through the exp claim.
type FallbackCodec struct {
	secret  []byte
	nowTime func() time.Time
}

func NewFallbackCodec(secret string) (*FallbackCodec, error) {
	if secret == "" {
		return nil, errors.New("[NewFallbackCodec] secret is required")
	}
	return &FallbackCodec{secret: []byte(secret), nowTime: time.Now}, nil
}

// Sign produces a signed fallback token for a subject.
func (fc *FallbackCodec) Sign(subjectID string, expiresAt time.Time) (string, error) {
	if subjectID == "" {
		return "", errors.New("[FallbackCodec.Sign] subjectID is required")
	}
	claims := jwt.RegisteredClaims{
		Subject:   subjectID,
		IssuedAt:  jwt.NewNumericDate(fc.nowTime()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(fc.secret)
	if err != nil {
		return "", errors.Wrap(err, "[FallbackCodec.Sign] SignedString")
	}
	return signed, nil
}

// Decode verifies a fallback token and returns the subject it
// authenticates as. Any failure (malformed, bad signature, missing
// sub, expired) is returned as an error; callers treat all of them as
// "not valid".
func (fc *FallbackCodec) Decode(value string) (string, error) {
	parsed, err := jwt.ParseWithClaims(value, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %q", t.Header["alg"])
		}
		return fc.secret, nil
	}, jwt.WithExpirationRequired(), jwt.WithTimeFunc(fc.nowTime))
	if err != nil {
		return "", errors.Wrap(err, "[FallbackCodec.Decode] ParseWithClaims")
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", errors.New("[FallbackCodec.Decode] missing subject claim")
	}
	return claims.Subject, nil
}
