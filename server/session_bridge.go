package server

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-client-portal/autologin"
	"github.com/jrsteele09/go-client-portal/identity"
	"github.com/jrsteele09/go-client-portal/server/loginsession"
)

// SessionBridge intercepts GET requests carrying an autologin token in
// the query string and exchanges it for an authenticated session ahead
// of normal routing. Every failure along the chain is a silent pass
// through: the request continues unauthenticated and the auth gate
// redirects to login. No user-visible error exists on this path.
//
// The token is consumed only after the identity provider has minted a
// session, so a minting failure never burns the token (fail-open: the
// link stays redeemable until expiry). Because consume is an atomic
// conditional write, at most one of N concurrent redemptions of the
// same token reaches the upgraded state.
func (s *Server) SessionBridge(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next(w, r)
			return
		}
		value := r.URL.Query().Get(autologin.TokenQueryParam)
		if value == "" {
			next(w, r)
			return
		}

		ident, session, ok := s.exchangeToken(r.Context(), value)
		if !ok {
			next(w, r)
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
			log.Warn().Err(err).Str("subject_id", ident.ID).Msg("autologin: failed to store login session")
			next(w, r)
			return
		}

		log.Info().Str("subject_id", ident.ID).Msg("autologin: session upgraded")
		s.SetPortalSessionCookie(w, sessionID, r, int(time.Until(session.ExpiresAt).Seconds()))

		// Redirect to the same path with the token parameter stripped
		http.Redirect(w, r, stripTokenParam(r.URL), http.StatusSeeOther)
	}
}

// exchangeToken runs the token-to-session exchange: store lookup (or
// verified fallback decode), subject resolution, session mint, then
// atomic consume. Returns ok=false for any miss, race loss or
// collaborator failure.
func (s *Server) exchangeToken(ctx context.Context, value string) (*identity.Identity, *identity.Session, bool) {
	var subjectID, tokenID string

	if s.tokens != nil {
		token, err := s.tokens.FindValid(ctx, value)
		if err == nil {
			subjectID = token.SubjectID
			tokenID = token.ID
		}
	}

	if subjectID == "" {
		// Store miss. Degraded-issuance links carry a signed fallback
		// token instead of a stored value; honor it only when the
		// signature verifies. Fallback tokens bypass the store and so
		// carry no at-most-once guarantee.
		if s.fallback == nil {
			return nil, nil, false
		}
		sub, err := s.fallback.Decode(value)
		if err != nil {
			log.Debug().Err(err).Msg("autologin: token neither stored nor a valid fallback")
			return nil, nil, false
		}
		subjectID = sub
	}

	ident, err := s.provider.Resolve(ctx, subjectID)
	if err != nil {
		log.Warn().Err(err).Str("subject_id", subjectID).Msg("autologin: subject resolution failed")
		return nil, nil, false
	}
	if ident.Blocked {
		log.Warn().Str("subject_id", subjectID).Msg("autologin: subject is blocked")
		return nil, nil, false
	}

	session, err := s.provider.MintSession(ctx, ident)
	if err != nil {
		// Token not consumed: it stays redeemable until expiry
		log.Warn().Err(err).Str("subject_id", subjectID).Msg("autologin: session mint failed")
		return nil, nil, false
	}

	if tokenID != "" {
		result, err := s.tokens.Consume(ctx, tokenID)
		if err != nil {
			log.Warn().Err(err).Str("token_id", tokenID).Msg("autologin: consume failed, discarding minted session")
			return nil, nil, false
		}
		if result != autologin.Consumed {
			// Lost the redemption race; the winner keeps the session
			return nil, nil, false
		}
	}

	return ident, session, true
}

func stripTokenParam(u *url.URL) string {
	q := u.Query()
	q.Del(autologin.TokenQueryParam)

	stripped := url.URL{Path: u.Path, RawQuery: q.Encode()}
	if stripped.Path == "" {
		stripped.Path = "/"
	}
	return stripped.String()
}
