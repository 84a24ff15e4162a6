package clientenv

import (
	"testing"

	"github.com/amonks/issues/internal/config"
	"github.com/amonks/issues/internal/credentials"
)

func testConfig() *config.Config {
	return &config.Config{Server: config.Server{Addr: "127.0.0.1:9999"}}
}

func TestServerURLUsesConfigByDefault(t *testing.T) {
	t.Setenv(ServerEnvVar, "")

	if got := ServerURL(testConfig()); got != "http://127.0.0.1:9999" {
		t.Fatalf("expected config server, got %q", got)
	}
}

func TestServerURLUsesEnvironmentWhenSet(t *testing.T) {
	t.Setenv(ServerEnvVar, "https://issues.example.com/")

	if got := ServerURL(testConfig()); got != "https://issues.example.com" {
		t.Fatalf("expected env server, got %q", got)
	}
}

func TestResolveUsesSavedCredentials(t *testing.T) {
	t.Setenv(ServerEnvVar, "")
	t.Setenv(TokenEnvVar, "")

	creds := credentials.NewStore(t.TempDir())
	if err := creds.Set("http://127.0.0.1:9999", credentials.Entry{Email: "ann@example.com", Token: "saved"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	target, err := Resolve(testConfig(), creds)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if target.Token != "saved" || target.Email != "ann@example.com" {
		t.Fatalf("unexpected target %+v", target)
	}
}

func TestResolvePrefersTokenEnvironment(t *testing.T) {
	t.Setenv(ServerEnvVar, "")
	t.Setenv(TokenEnvVar, "from-env")

	creds := credentials.NewStore(t.TempDir())
	if err := creds.Set("http://127.0.0.1:9999", credentials.Entry{Email: "ann@example.com", Token: "saved"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	target, err := Resolve(testConfig(), creds)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if target.Token != "from-env" || target.Email != "" {
		t.Fatalf("unexpected target %+v", target)
	}
}

func TestResolveWithoutCredentials(t *testing.T) {
	t.Setenv(ServerEnvVar, "")
	t.Setenv(TokenEnvVar, "")

	target, err := Resolve(testConfig(), credentials.NewStore(t.TempDir()))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if target.Token != "" {
		t.Fatalf("expected no token, got %q", target.Token)
	}
}

func TestResolveServerUsesEntryForThatServer(t *testing.T) {
	t.Setenv(TokenEnvVar, "")

	creds := credentials.NewStore(t.TempDir())
	if err := creds.Set("http://other:1", credentials.Entry{Email: "bo@example.com", Token: "other"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	target, err := ResolveServer(" http://other:1/ ", creds)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if target.Server != "http://other:1" || target.Token != "other" {
		t.Fatalf("unexpected target %+v", target)
	}
}
