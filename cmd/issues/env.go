package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/amonks/issues/auth"
	"github.com/amonks/issues/client"
	"github.com/amonks/issues/internal/clientenv"
	"github.com/amonks/issues/internal/config"
	"github.com/amonks/issues/internal/credentials"
	"github.com/amonks/issues/internal/paths"
	"github.com/spf13/cobra"
)

// errNotSignedIn is returned by commands that need a session when none is
// saved for the server.
var errNotSignedIn = errors.New("not signed in (run `issues signin <email>` or set ISSUES_TOKEN)")

func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return config.Load(cwd)
}

func openCredentials() (*credentials.Store, error) {
	dir, err := paths.DefaultStateDir()
	if err != nil {
		return nil, err
	}
	return credentials.NewStore(dir), nil
}

// resolveTarget picks the server and token for this invocation. --server
// beats ISSUES_SERVER, which beats the config file.
func resolveTarget() (clientenv.Target, *credentials.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return clientenv.Target{}, nil, err
	}
	creds, err := openCredentials()
	if err != nil {
		return clientenv.Target{}, nil, err
	}
	var target clientenv.Target
	if override := strings.TrimSpace(serverOverride); override != "" {
		target, err = clientenv.ResolveServer(override, creds)
	} else {
		target, err = clientenv.Resolve(cfg, creds)
	}
	if err != nil {
		return clientenv.Target{}, nil, err
	}
	return target, creds, nil
}

// anonymousClient returns a client without a token, for sign-up and sign-in.
func anonymousClient() (*client.Client, clientenv.Target, *credentials.Store, error) {
	target, creds, err := resolveTarget()
	if err != nil {
		return nil, clientenv.Target{}, nil, err
	}
	return client.New(target.Server, ""), target, creds, nil
}

// signedInClient returns a client carrying the saved or configured token.
func signedInClient() (*client.Client, error) {
	target, _, err := resolveTarget()
	if err != nil {
		return nil, err
	}
	if target.Token == "" {
		return nil, errNotSignedIn
	}
	return client.New(target.Server, target.Token), nil
}

// explainAuthError points at signin when the server rejects the token.
func explainAuthError(err error) error {
	if errors.Is(err, auth.ErrUnauthenticated) {
		return fmt.Errorf("%w (run `issues signin <email>`)", err)
	}
	return err
}

func runWithClient(fn func(cmd *cobra.Command, args []string, api *client.Client) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		api, err := signedInClient()
		if err != nil {
			return err
		}
		return explainAuthError(fn(cmd, args, api))
	}
}
