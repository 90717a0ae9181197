package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-client-portal/server/loginsession"
)

const loginPageHTML = `<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
  <h1>Sign in</h1>
  <form method="post" action="%s">
    <label>Email <input type="email" name="email" required></label>
    <label>Password <input type="password" name="password" required></label>
    <button type="submit">Sign in</button>
  </form>
</body>
</html>
`

// LoginPageHandler renders the credential login page the auth gate
// redirects to. Expired or already-used autologin links land here.
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentTypeHTML)
		fmt.Fprintf(w, loginPageHTML, RouteAuthLogin)
	}
}

// LoginSubmissionHandler performs the normal credential login against
// the identity provider.
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse form data", http.StatusBadRequest)
			return
		}

		email := r.FormValue("email")
		password := r.FormValue("password")
		if email == "" || password == "" {
			writeJSONError(w, "invalid_request", "email and password are required", http.StatusBadRequest)
			return
		}

		ident, session, err := s.provider.Authenticate(r.Context(), email, password)
		if err != nil {
			http.Redirect(w, r, RouteLogin+"?error=Invalid+credentials", http.StatusSeeOther)
			return
		}

		sessionID := generateRandomString(32)
		if err := s.loginSessions.Upsert(sessionID, loginsession.Session{
			SubjectID:    ident.ID,
			Email:        ident.Email,
			AccessToken:  session.AccessToken,
			RefreshToken: session.RefreshToken,
			ExpiresAt:    session.ExpiresAt,
			CreatedAt:    time.Now(),
		}); err != nil {
			log.Error().Err(err).Str("subject_id", ident.ID).Msg("failed to store login session")
			writeJSONError(w, "server_error", "Failed to create session", http.StatusInternalServerError)
			return
		}

		s.SetPortalSessionCookie(w, sessionID, r, int(time.Until(session.ExpiresAt).Seconds()))
		http.Redirect(w, r, RouteDashboard, http.StatusSeeOther)
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(portalSessionCookieName); err == nil {
			_ = s.loginSessions.Delete(cookie.Value)
		}
		s.ClearPortalSessionCookie(w, r)
		http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
	}
}
