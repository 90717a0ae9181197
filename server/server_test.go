package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-client-portal/autologin"
	faketokenrepo "github.com/jrsteele09/go-client-portal/autologin/repofakes"
	"github.com/jrsteele09/go-client-portal/identity"
	fakeprovider "github.com/jrsteele09/go-client-portal/identity/providerfakes"
	"github.com/jrsteele09/go-client-portal/internal/config"
	apperrors "github.com/jrsteele09/go-client-portal/internal/errors"
	"github.com/jrsteele09/go-client-portal/server"
	"github.com/jrsteele09/go-client-portal/server/loginsession"
)

const (
	sessionCookieName = "portal_session_id"

	testClientSubject   = "client-1"
	testClientEmail     = "client@example.com"
	testOperatorSubject = "operator-1"
	testOperatorEmail   = "operator@example.com"
	testStaffSubject    = "staff-1"
)

type serverFixture struct {
	server   *server.Server
	provider *fakeprovider.FakeProvider
	tokens   *faketokenrepo.FakeTokenRepo
	sessions loginsession.Repo
}

func setupServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	provider := fakeprovider.NewFakeProvider(
		&identity.Identity{ID: testClientSubject, Email: testClientEmail, Name: "Demo Client", Kind: identity.AccountKindClient},
		&identity.Identity{ID: testOperatorSubject, Email: testOperatorEmail, Name: "Portal Operator", Kind: identity.AccountKindOperator},
		&identity.Identity{ID: testStaffSubject, Email: "staff@example.com", Name: "Staff Member", Kind: identity.AccountKindStaff},
	)
	tokens := faketokenrepo.NewFakeTokenRepo()
	sessions := loginsession.NewInMemoryRepo()

	srv, err := server.New(config.New(), provider, tokens, sessions)
	require.NoError(t, err)

	return &serverFixture{server: srv, provider: provider, tokens: tokens, sessions: sessions}
}

// storeToken seeds a redeemable autologin token and returns it.
func (f *serverFixture) storeToken(t *testing.T, subjectID string, expiresAt time.Time) *autologin.Token {
	t.Helper()

	value, err := autologin.GenerateValue()
	require.NoError(t, err)
	token := &autologin.Token{
		ID:        uuid.New().String(),
		SubjectID: subjectID,
		Value:     value,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}
	require.NoError(t, f.tokens.Create(context.Background(), token))
	return token
}

func (f *serverFixture) do(req *http.Request) *http.Response {
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec.Result()
}

func (f *serverFixture) get(target string, cookies ...*http.Cookie) *http.Response {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return f.do(req)
}

func (f *serverFixture) postForm(target string, form url.Values, cookies ...*http.Cookie) *http.Response {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return f.do(req)
}

// login authenticates through the credential flow and returns the
// portal session cookie.
func (f *serverFixture) login(t *testing.T, email string) *http.Cookie {
	t.Helper()

	res := f.postForm(server.RouteAuthLogin, url.Values{
		"email":    {email},
		"password": {"password123"},
	})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	require.Equal(t, server.RouteDashboard, res.Header.Get("Location"))
	return requireSessionCookie(t, res)
}

func requireSessionCookie(t *testing.T, res *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range res.Cookies() {
		if c.Name == sessionCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatalf("response carries no %s cookie", sessionCookieName)
	return nil
}

func autologinTarget(value string) string {
	return "/?" + autologin.TokenQueryParam + "=" + url.QueryEscape(value)
}

func TestSessionBridge(t *testing.T) {
	t.Run("valid token upgrades to an authenticated session", func(t *testing.T) {
		f := setupServerFixture(t)
		token := f.storeToken(t, testClientSubject, time.Now().Add(time.Hour))

		res := f.get(autologinTarget(token.Value))
		require.Equal(t, http.StatusSeeOther, res.StatusCode)
		require.Equal(t, "/", res.Header.Get("Location"))
		cookie := requireSessionCookie(t, res)

		dash := f.get(server.RouteDashboard, cookie)
		require.Equal(t, http.StatusOK, dash.StatusCode)

		var body map[string]any
		require.NoError(t, json.NewDecoder(dash.Body).Decode(&body))
		require.Equal(t, testClientSubject, body["subject"])
	})

	t.Run("redemption consumes the token", func(t *testing.T) {
		f := setupServerFixture(t)
		token := f.storeToken(t, testClientSubject, time.Now().Add(time.Hour))

		first := f.get(autologinTarget(token.Value))
		require.Equal(t, "/", first.Header.Get("Location"))

		second := f.get(autologinTarget(token.Value))
		require.Equal(t, http.StatusSeeOther, second.StatusCode)
		require.Equal(t, server.RouteLogin, second.Header.Get("Location"))
		require.Empty(t, second.Cookies())

		stored, ok := f.tokens.Get(token.ID)
		require.True(t, ok)
		require.NotNil(t, stored.UsedAt)
	})

	t.Run("store failure on lookup falls through to the login redirect", func(t *testing.T) {
		f := setupServerFixture(t)
		token := f.storeToken(t, testClientSubject, time.Now().Add(time.Hour))
		f.tokens.FindValidErr = apperrors.ErrStorageUnavailable

		res := f.get(autologinTarget(token.Value))
		require.Equal(t, http.StatusSeeOther, res.StatusCode)
		require.Equal(t, server.RouteLogin, res.Header.Get("Location"))
		require.Empty(t, res.Cookies())
	})

	t.Run("store failure on consume discards the minted session", func(t *testing.T) {
		f := setupServerFixture(t)
		token := f.storeToken(t, testClientSubject, time.Now().Add(time.Hour))
		f.tokens.ConsumeErr = apperrors.ErrStorageUnavailable

		res := f.get(autologinTarget(token.Value))
		require.Equal(t, http.StatusSeeOther, res.StatusCode)
		require.Equal(t, server.RouteLogin, res.Header.Get("Location"))
		require.Empty(t, res.Cookies())

		// The session was minted before the consume attempt, and the
		// token row stays untouched: redeemable once storage recovers.
		require.Equal(t, 1, f.provider.MintCalls())
		stored, ok := f.tokens.Get(token.ID)
		require.True(t, ok)
		require.Nil(t, stored.UsedAt)

		f.tokens.ConsumeErr = nil
		res = f.get(autologinTarget(token.Value))
		require.Equal(t, "/", res.Header.Get("Location"))
		requireSessionCookie(t, res)
	})

	t.Run("expired token falls through to the login redirect", func(t *testing.T) {
		f := setupServerFixture(t)
		token := f.storeToken(t, testClientSubject, time.Now().Add(-time.Minute))

		res := f.get(autologinTarget(token.Value))
		require.Equal(t, http.StatusSeeOther, res.StatusCode)
		require.Equal(t, server.RouteLogin, res.Header.Get("Location"))
	})

	t.Run("unknown token value falls through to the login redirect", func(t *testing.T) {
		f := setupServerFixture(t)

		res := f.get(autologinTarget("not-a-real-token"))
		require.Equal(t, http.StatusSeeOther, res.StatusCode)
		require.Equal(t, server.RouteLogin, res.Header.Get("Location"))
	})

	t.Run("blocked subject cannot redeem a stored token", func(t *testing.T) {
		f := setupServerFixture(t)
		f.provider.ResolveFn = func(ctx context.Context, subjectID string) (*identity.Identity, error) {
			return &identity.Identity{ID: subjectID, Kind: identity.AccountKindClient, Blocked: true}, nil
		}
		token := f.storeToken(t, testClientSubject, time.Now().Add(time.Hour))

		res := f.get(autologinTarget(token.Value))
		require.Equal(t, server.RouteLogin, res.Header.Get("Location"))
	})

	t.Run("mint failure leaves the token redeemable", func(t *testing.T) {
		f := setupServerFixture(t)
		token := f.storeToken(t, testClientSubject, time.Now().Add(time.Hour))

		f.provider.MintSessionFn = func(ctx context.Context, ident *identity.Identity) (*identity.Session, error) {
			return nil, apperrors.ErrIdentityProvider
		}
		res := f.get(autologinTarget(token.Value))
		require.Equal(t, server.RouteLogin, res.Header.Get("Location"))

		f.provider.MintSessionFn = nil
		res = f.get(autologinTarget(token.Value))
		require.Equal(t, "/", res.Header.Get("Location"))
		requireSessionCookie(t, res)
	})

	t.Run("concurrent redemptions upgrade exactly one request", func(t *testing.T) {
		f := setupServerFixture(t)
		token := f.storeToken(t, testClientSubject, time.Now().Add(time.Hour))

		const redeemers = 8
		responses := make([]*http.Response, redeemers)

		var start, done sync.WaitGroup
		start.Add(1)
		done.Add(redeemers)
		for i := 0; i < redeemers; i++ {
			go func(i int) {
				defer done.Done()
				start.Wait()
				responses[i] = f.get(autologinTarget(token.Value))
			}(i)
		}
		start.Done()
		done.Wait()

		upgraded := 0
		for _, res := range responses {
			require.Equal(t, http.StatusSeeOther, res.StatusCode)
			if res.Header.Get("Location") == "/" {
				upgraded++
			} else {
				require.Equal(t, server.RouteLogin, res.Header.Get("Location"))
			}
		}
		require.Equal(t, 1, upgraded)
	})

	t.Run("redirect strips the token from the original path", func(t *testing.T) {
		f := setupServerFixture(t)
		token := f.storeToken(t, testClientSubject, time.Now().Add(time.Hour))

		res := f.get("/profile?" + autologin.TokenQueryParam + "=" + url.QueryEscape(token.Value))
		require.Equal(t, http.StatusSeeOther, res.StatusCode)
		require.Equal(t, "/profile", res.Header.Get("Location"))
	})

	t.Run("fallback token redeems when the store has no row", func(t *testing.T) {
		t.Setenv("AUTOLOGIN_FALLBACK_SECRET", "bridge-test-secret")
		f := setupServerFixture(t)

		codec, err := autologin.NewFallbackCodec("bridge-test-secret")
		require.NoError(t, err)
		signed, err := codec.Sign(testClientSubject, time.Now().Add(time.Hour))
		require.NoError(t, err)

		res := f.get(autologinTarget(signed))
		require.Equal(t, http.StatusSeeOther, res.StatusCode)
		require.Equal(t, "/", res.Header.Get("Location"))
		requireSessionCookie(t, res)
	})
}

func TestAuthGate(t *testing.T) {
	t.Run("unauthenticated request redirects to login", func(t *testing.T) {
		f := setupServerFixture(t)

		for _, target := range []string{server.RouteDashboard, server.RouteProfile, server.RouteDocuments} {
			res := f.get(target)
			require.Equal(t, http.StatusSeeOther, res.StatusCode)
			require.Equal(t, server.RouteLogin, res.Header.Get("Location"))
		}
	})

	t.Run("login page is reachable without a session", func(t *testing.T) {
		f := setupServerFixture(t)

		res := f.get(server.RouteLogin)
		require.Equal(t, http.StatusOK, res.StatusCode)
	})

	t.Run("expired login session is evicted", func(t *testing.T) {
		f := setupServerFixture(t)
		require.NoError(t, f.sessions.Upsert("stale-session", loginsession.Session{
			SubjectID:   testClientSubject,
			AccessToken: "stale-access",
			ExpiresAt:   time.Now().Add(-time.Minute),
		}))

		res := f.get(server.RouteDashboard, &http.Cookie{Name: sessionCookieName, Value: "stale-session"})
		require.Equal(t, server.RouteLogin, res.Header.Get("Location"))

		_, err := f.sessions.Get("stale-session")
		require.Error(t, err)
	})

	t.Run("provider rejection evicts the session", func(t *testing.T) {
		f := setupServerFixture(t)
		cookie := f.login(t, testClientEmail)

		f.provider.IntrospectFn = func(ctx context.Context, accessToken string) (*identity.Identity, error) {
			return nil, apperrors.ErrSessionExpired
		}
		res := f.get(server.RouteDashboard, cookie)
		require.Equal(t, server.RouteLogin, res.Header.Get("Location"))

		f.provider.IntrospectFn = nil
		res = f.get(server.RouteDashboard, cookie)
		require.Equal(t, server.RouteLogin, res.Header.Get("Location"))
	})
}

func TestLoginFlow(t *testing.T) {
	t.Run("valid credentials establish a session", func(t *testing.T) {
		f := setupServerFixture(t)
		cookie := f.login(t, testClientEmail)

		res := f.get(server.RouteDashboard, cookie)
		require.Equal(t, http.StatusOK, res.StatusCode)
	})

	t.Run("invalid credentials redirect back to login", func(t *testing.T) {
		f := setupServerFixture(t)

		res := f.postForm(server.RouteAuthLogin, url.Values{
			"email":    {"nobody@example.com"},
			"password": {"password123"},
		})
		require.Equal(t, http.StatusSeeOther, res.StatusCode)
		require.True(t, strings.HasPrefix(res.Header.Get("Location"), server.RouteLogin))
		require.Empty(t, res.Cookies())
	})

	t.Run("missing form fields are rejected", func(t *testing.T) {
		f := setupServerFixture(t)

		res := f.postForm(server.RouteAuthLogin, url.Values{"email": {testClientEmail}})
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("logout invalidates the session", func(t *testing.T) {
		f := setupServerFixture(t)
		cookie := f.login(t, testClientEmail)

		res := f.get(server.RouteAuthLogout, cookie)
		require.Equal(t, http.StatusSeeOther, res.StatusCode)
		require.Equal(t, server.RouteLogin, res.Header.Get("Location"))

		res = f.get(server.RouteDashboard, cookie)
		require.Equal(t, server.RouteLogin, res.Header.Get("Location"))
	})
}

func TestAutologinIssueEndpoint(t *testing.T) {
	issuePath := func(subjectID string) string {
		return "/admin/accounts/" + subjectID + "/autologin"
	}

	t.Run("operator issues a persisted link", func(t *testing.T) {
		f := setupServerFixture(t)
		cookie := f.login(t, testOperatorEmail)

		res := f.postForm(issuePath(testClientSubject), url.Values{}, cookie)
		require.Equal(t, http.StatusOK, res.StatusCode)

		var body struct {
			URL         string `json:"url"`
			TokenStored bool   `json:"tokenStored"`
		}
		require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
		require.True(t, body.TokenStored)

		parsed, err := url.Parse(body.URL)
		require.NoError(t, err)
		require.NotEmpty(t, parsed.Query().Get(autologin.TokenQueryParam))
	})

	t.Run("issued link round trips through the bridge", func(t *testing.T) {
		f := setupServerFixture(t)
		cookie := f.login(t, testOperatorEmail)

		res := f.postForm(issuePath(testClientSubject), url.Values{}, cookie)
		require.Equal(t, http.StatusOK, res.StatusCode)

		var body struct {
			URL string `json:"url"`
		}
		require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
		parsed, err := url.Parse(body.URL)
		require.NoError(t, err)

		redeem := f.get("/?" + parsed.RawQuery)
		require.Equal(t, http.StatusSeeOther, redeem.StatusCode)
		require.Equal(t, "/", redeem.Header.Get("Location"))
		requireSessionCookie(t, redeem)
	})

	t.Run("ineligible subject is refused", func(t *testing.T) {
		f := setupServerFixture(t)
		cookie := f.login(t, testOperatorEmail)

		res := f.postForm(issuePath(testStaffSubject), url.Values{}, cookie)
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("storage outage still returns a link", func(t *testing.T) {
		f := setupServerFixture(t)
		cookie := f.login(t, testOperatorEmail)
		f.tokens.CreateErr = apperrors.ErrStorageUnavailable

		res := f.postForm(issuePath(testClientSubject), url.Values{}, cookie)
		require.Equal(t, http.StatusOK, res.StatusCode)

		var body struct {
			URL         string `json:"url"`
			TokenStored bool   `json:"tokenStored"`
		}
		require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
		require.False(t, body.TokenStored)
		require.NotEmpty(t, body.URL)
	})

	t.Run("non-operator is forbidden", func(t *testing.T) {
		f := setupServerFixture(t)
		cookie := f.login(t, testClientEmail)

		res := f.postForm(issuePath(testClientSubject), url.Values{}, cookie)
		require.Equal(t, http.StatusForbidden, res.StatusCode)
	})

	t.Run("unauthenticated caller is redirected", func(t *testing.T) {
		f := setupServerFixture(t)

		res := f.postForm(issuePath(testClientSubject), url.Values{})
		require.Equal(t, http.StatusSeeOther, res.StatusCode)
		require.Equal(t, server.RouteLogin, res.Header.Get("Location"))
	})
}
