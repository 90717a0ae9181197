package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"

	"github.com/jrsteele09/go-client-portal/autologin"
	"github.com/jrsteele09/go-client-portal/autologin/sqliterepo"
	"github.com/jrsteele09/go-client-portal/identity"
	"github.com/jrsteele09/go-client-portal/identity/localprovider"
	"github.com/jrsteele09/go-client-portal/identity/oidcprovider"
	"github.com/jrsteele09/go-client-portal/internal/config"
	"github.com/jrsteele09/go-client-portal/server"
	"github.com/jrsteele09/go-client-portal/server/loginsession"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	provider, err := buildProvider(c)
	if err != nil {
		return fmt.Errorf("buildProvider: %w", err)
	}

	portalServer, err := server.New(c, provider, buildTokenRepo(c), loginsession.NewInMemoryRepo())
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: portalServer}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

// buildProvider selects the identity backend: a hosted OIDC service
// when configured, otherwise the in-process dev provider seeded with
// an operator and a demo client account.
func buildProvider(c config.Config) (identity.Provider, error) {
	if issuerURL := c.GetOidcIssuerURL(); issuerURL != "" {
		return oidcprovider.New(context.Background(), oidcprovider.Config{
			IssuerURL:    issuerURL,
			ClientID:     c.GetOidcClientID(),
			ClientSecret: c.GetOidcClientSecret(),
			ServiceToken: c.GetIdentityServiceToken(),
		})
	}

	local := localprovider.New()
	if err := seedDevAccounts(local); err != nil {
		return nil, err
	}
	return local, nil
}

func seedDevAccounts(local *localprovider.Provider) error {
	accounts := []struct {
		ident    identity.Identity
		password string
	}{
		{
			ident: identity.Identity{
				ID:    "operator-1",
				Email: "operator@example.com",
				Name:  "Portal Operator",
				Kind:  identity.AccountKindOperator,
				Roles: []identity.RoleType{identity.RoleAdmin},
			},
			password: generatePassword(),
		},
		{
			ident: identity.Identity{
				ID:    "client-1",
				Email: "client@example.com",
				Name:  "Demo Client",
				Kind:  identity.AccountKindClient,
			},
			password: generatePassword(),
		},
	}

	for _, a := range accounts {
		if err := local.AddAccount(a.ident, a.password); err != nil {
			return fmt.Errorf("seed account %s: %w", a.ident.ID, err)
		}
		log.Printf("Dev account %s password: %s\n", a.ident.Email, a.password)
	}
	return nil
}

// buildTokenRepo opens the durable token store. An unreachable store
// is not fatal: issuance degrades to signed fallback links and the
// operator response marks them as not persisted.
func buildTokenRepo(c config.Config) autologin.TokenRepo {
	repo, err := sqliterepo.Open(c.GetTokenDBPath())
	if err != nil {
		log.Printf("Token store unavailable, continuing in degraded mode: %s\n", err)
		return nil
	}
	return repo
}

func generatePassword() string {
	b := make([]byte, 12)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func listenAndServe(server *http.Server) error {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
