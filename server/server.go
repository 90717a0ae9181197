package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-client-portal/autologin"
	"github.com/jrsteele09/go-client-portal/identity"
	"github.com/jrsteele09/go-client-portal/internal/config"
	"github.com/jrsteele09/go-client-portal/server/loginsession"
)

// Server wires the portal routes behind the session bridge and the
// auth gate. All collaborators are injected at construction; there is
// no ambient global state.
type Server struct {
	env           string // Environment (e.g., "DEV", "production")
	mux           *http.ServeMux
	routes        []string
	config        config.Config
	provider      identity.Provider
	tokens        autologin.TokenRepo // nil when the store is not provisioned
	issuer        *autologin.Issuer
	fallback      *autologin.FallbackCodec
	loginSessions loginsession.Repo
}

func New(cfg config.Config, provider identity.Provider, tokens autologin.TokenRepo, loginSessionRepo loginsession.Repo) (*Server, error) {
	var issuerOpts []autologin.IssuerOption
	var fallback *autologin.FallbackCodec

	if secret := cfg.GetAutologinFallbackSecret(); secret != "" {
		codec, err := autologin.NewFallbackCodec(secret)
		if err != nil {
			return nil, fmt.Errorf("[Server New] failed to create fallback codec: %w", err)
		}
		fallback = codec
		issuerOpts = append(issuerOpts, autologin.WithFallbackCodec(codec))
	}

	issuer, err := autologin.NewIssuer(provider, tokens, cfg.GetBaseURL(), cfg.GetAutologinTTL(), issuerOpts...)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create token issuer: %w", err)
	}

	s := &Server{
		mux:           http.NewServeMux(),
		config:        cfg,
		provider:      provider,
		tokens:        tokens,
		issuer:        issuer,
		fallback:      fallback,
		loginSessions: loginSessionRepo,
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Printf("[%-7s] %s\n", method, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
