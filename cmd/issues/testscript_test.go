package main

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/amonks/issues/auth"
	"github.com/amonks/issues/internal/logging"
	"github.com/amonks/issues/internal/testsupport"
	"github.com/amonks/issues/server"
	"github.com/amonks/issues/store"
	"github.com/rogpeppe/go-internal/testscript"
	"golang.org/x/crypto/bcrypt"
)

func scriptParams(t *testing.T, dir string) testscript.Params {
	return testscript.Params{
		Dir: dir,
		Setup: func(env *testscript.Env) error {
			return testsupport.SetupScriptEnv(t, env)
		},
		Cmds: map[string]func(*testscript.TestScript, bool, []string){
			"startserver": cmdStartServer,
			"envset":      testsupport.CmdEnvSet,
			"issueid":     testsupport.CmdIssueID,
		},
	}
}

// cmdStartServer runs an in-process server backed by $WORK/<name>.db and
// points ISSUES_SERVER at it. The name defaults to "issues".
func cmdStartServer(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("startserver does not support negation")
	}
	if len(args) > 1 {
		ts.Fatalf("usage: startserver [name]")
	}
	name := "issues"
	if len(args) == 1 {
		name = args[0]
	}

	url, stop, err := startTestServer(filepath.Join(ts.Getenv("WORK"), name+".db"))
	ts.Check(err)
	ts.Defer(stop)
	ts.Setenv("ISSUES_SERVER", url)
}

// startTestServer serves the API from a database at path.
func startTestServer(path string) (string, func(), error) {
	logger := logging.Discard()
	st, err := store.Open(path, store.Options{Logger: logger})
	if err != nil {
		return "", nil, err
	}
	authService, err := auth.New(st.DB(), auth.Options{BcryptCost: bcrypt.MinCost, Logger: logger})
	if err != nil {
		st.Close()
		return "", nil, err
	}
	srv, err := server.New(server.Options{Store: st, Auth: authService, Logger: logger})
	if err != nil {
		st.Close()
		return "", nil, err
	}

	httpServer := httptest.NewServer(srv.Handler())
	return httpServer.URL, func() {
		httpServer.Close()
		st.Close()
	}, nil
}

func TestVersionScripts(t *testing.T) {
	testscript.Run(t, scriptParams(t, "testdata/version"))
}

func TestHelpScripts(t *testing.T) {
	testscript.Run(t, scriptParams(t, "testdata/help"))
}

func TestAuthScripts(t *testing.T) {
	testscript.Run(t, scriptParams(t, "testdata/auth"))
}

func TestIssueScripts(t *testing.T) {
	testscript.Run(t, scriptParams(t, "testdata/issues"))
}

func TestTransferScripts(t *testing.T) {
	testscript.Run(t, scriptParams(t, "testdata/transfer"))
}
