package autologin

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-client-portal/identity"
	apperrors "github.com/jrsteele09/go-client-portal/internal/errors"
)

const (
	// TokenQueryParam is the query parameter carrying a token value
	TokenQueryParam = "session"

	// DefaultTTL is the fixed token lifetime
	DefaultTTL = 7 * 24 * time.Hour

	// maxValueAttempts bounds collision retries on token creation
	maxValueAttempts = 3
)

// IssuedToken is the result of a successful issuance. Persisted is
// false when the store rejected the insert and the link was built in
// degraded mode.
type IssuedToken struct {
	URL       string
	Value     string
	Persisted bool
}

// Issuer mints autologin tokens for eligible subjects. Issuance never
// fails on a storage outage: the operator still receives a link, with
// Persisted=false flagging that only the fallback path can redeem it.
type Issuer struct {
	provider identity.Provider
	repo     TokenRepo // nil when the store is not provisioned
	fallback *FallbackCodec
	baseURL  string
	ttl      time.Duration
	nowTime  func() time.Time // nowTime function (injectable for testing)
}

// IssuerOption defines a function type to modify the Issuer instance.
type IssuerOption func(*Issuer)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowTime = nowFunc
	}
}

// WithFallbackCodec enables signed fallback values for degraded links
func WithFallbackCodec(codec *FallbackCodec) IssuerOption {
	return func(i *Issuer) {
		i.fallback = codec
	}
}

// NewIssuer initializes an Issuer. repo may be nil (store not
// provisioned); every issuance then degrades.
func NewIssuer(provider identity.Provider, repo TokenRepo, baseURL string, ttl time.Duration, options ...IssuerOption) (*Issuer, error) {
	if provider == nil {
		return nil, errors.New("[NewIssuer] identity provider is required")
	}
	if baseURL == "" {
		return nil, errors.New("[NewIssuer] baseURL is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	issuer := &Issuer{
		provider: provider,
		repo:     repo,
		baseURL:  baseURL,
		ttl:      ttl,
		nowTime:  time.Now,
	}

	for _, opt := range options {
		opt(issuer)
	}

	return issuer, nil
}

// Issue mints a one-time login link for subjectID. The subject must
// resolve through the identity provider and pass the eligibility
// policy; violation fails before any persistence. Storage failure is
// absorbed into a degraded (non-persisted) link.
func (i *Issuer) Issue(ctx context.Context, subjectID string) (*IssuedToken, error) {
	ident, err := i.provider.Resolve(ctx, subjectID)
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.Issue] provider.Resolve")
	}
	if !IsEligibleForAutologin(ident) {
		return nil, errors.Wrapf(apperrors.ErrPolicyViolation, "[Issuer.Issue] subject %q", subjectID)
	}

	now := i.nowTime()
	var lastValue string
	var storeErr error

	for attempt := 0; attempt < maxValueAttempts; attempt++ {
		value, err := GenerateValue()
		if err != nil {
			return nil, errors.Wrap(err, "[Issuer.Issue] GenerateValue")
		}
		lastValue = value

		if i.repo == nil {
			storeErr = apperrors.ErrStorageUnavailable
			break
		}

		err = i.repo.Create(ctx, &Token{
			ID:        uuid.New().String(),
			SubjectID: subjectID,
			Value:     value,
			CreatedAt: now,
			ExpiresAt: now.Add(i.ttl),
		})
		if err == nil {
			return &IssuedToken{URL: i.LoginURL(value), Value: value, Persisted: true}, nil
		}
		if apperrors.Is(err, apperrors.ErrDuplicateValue) {
			storeErr = err
			continue
		}
		storeErr = err
		break
	}

	return i.degradedToken(subjectID, lastValue, now, storeErr)
}

// degradedToken builds a usable link without a persisted row. With a
// fallback codec configured the value is a signed fallback token so
// the link stays redeemable; without one the opaque value is returned
// and the link cannot be redeemed until storage recovers.
func (i *Issuer) degradedToken(subjectID, value string, now time.Time, storeErr error) (*IssuedToken, error) {
	if i.fallback != nil {
		signed, err := i.fallback.Sign(subjectID, now.Add(i.ttl))
		if err != nil {
			return nil, errors.Wrap(err, "[Issuer.Issue] fallback.Sign")
		}
		value = signed
	}

	log.Warn().
		Err(storeErr).
		Str("subject_id", subjectID).
		Bool("fallback_signed", i.fallback != nil).
		Msg("autologin token not persisted, issuing degraded link")

	return &IssuedToken{URL: i.LoginURL(value), Value: value, Persisted: false}, nil
}

// LoginURL embeds a token value into a shareable portal URL.
func (i *Issuer) LoginURL(value string) string {
	return i.baseURL + "/?" + TokenQueryParam + "=" + url.QueryEscape(value)
}
