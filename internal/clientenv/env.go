// Package clientenv resolves which server a CLI invocation talks to and with
// which token.
package clientenv

import (
	"os"
	"strings"

	"github.com/amonks/issues/internal/config"
	"github.com/amonks/issues/internal/credentials"
)

const (
	// ServerEnvVar overrides the configured server URL.
	ServerEnvVar = "ISSUES_SERVER"
	// TokenEnvVar overrides the saved session token.
	TokenEnvVar = "ISSUES_TOKEN"
)

// Target is a resolved server plus the credentials to use with it.
type Target struct {
	Server string
	Token  string
	// Email is empty when the token came from the environment.
	Email string
}

// ServerURL returns the server implied by the environment, falling back to
// cfg.
func ServerURL(cfg *config.Config) string {
	if value := strings.TrimSpace(os.Getenv(ServerEnvVar)); value != "" {
		return strings.TrimRight(value, "/")
	}
	return cfg.ServerURL()
}

// Resolve picks the server and token. ISSUES_TOKEN wins over the saved
// credentials; with neither, Token is empty.
func Resolve(cfg *config.Config, creds *credentials.Store) (Target, error) {
	return ResolveServer(ServerURL(cfg), creds)
}

// ResolveServer is Resolve for an explicitly chosen server.
func ResolveServer(server string, creds *credentials.Store) (Target, error) {
	target := Target{Server: strings.TrimRight(strings.TrimSpace(server), "/")}
	if token := strings.TrimSpace(os.Getenv(TokenEnvVar)); token != "" {
		target.Token = token
		return target, nil
	}
	entry, ok, err := creds.Get(target.Server)
	if err != nil {
		return Target{}, err
	}
	if ok {
		target.Token = entry.Token
		target.Email = entry.Email
	}
	return target, nil
}
