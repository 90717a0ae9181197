package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-client-portal/identity"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySubjectID stores the authenticated subject ID
	ContextKeySubjectID ContextKey = "subject_id"
	// ContextKeyIdentity stores the introspected identity
	ContextKeyIdentity ContextKey = "identity"
)

// AuthGate protects every route not explicitly exempted. It asks the
// identity provider whether the request carries a valid session; any
// miss discards the request with a redirect to the login page.
func (s *Server) AuthGate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if isAuthGateExempt(r.URL.Path) {
			next(w, r)
			return
		}

		cookie, err := r.Cookie(portalSessionCookieName)
		if err != nil {
			http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
			return
		}

		session, err := s.loginSessions.Get(cookie.Value)
		if err != nil {
			http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
			return
		}

		if session.ExpiresAt.Before(time.Now()) {
			_ = s.loginSessions.Delete(cookie.Value)
			http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
			return
		}

		// Re-verify with the provider on every request; no local
		// caching of introspection results.
		ident, err := s.provider.Introspect(r.Context(), session.AccessToken)
		if err != nil || ident == nil || ident.Blocked {
			_ = s.loginSessions.Delete(cookie.Value)
			http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeySubjectID, ident.ID)
		ctx = context.WithValue(ctx, ContextKeyIdentity, ident)
		next(w, r.WithContext(ctx))
	}
}

// RequireOperator restricts a route to operator identities. The role
// comes from the gate's introspected identity, never from anything the
// client asserts.
func (s *Server) RequireOperator() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ident, ok := r.Context().Value(ContextKeyIdentity).(*identity.Identity)
			if !ok || !ident.IsOperator() {
				writeJSONError(w, "forbidden", "Operator access required", http.StatusForbidden)
				return
			}
			next(w, r)
		}
	}
}

func isAuthGateExempt(path string) bool {
	for _, prefix := range authGateExemptPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
