package testsupport

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/amonks/issues/issue"
	"github.com/rogpeppe/go-internal/testscript"
)

var (
	buildOnce  sync.Once
	issuesPath string
	buildErr   error
)

// BuildIssues builds the issues binary once and returns its path.
func BuildIssues(t testing.TB) string {
	t.Helper()

	buildOnce.Do(func() {
		moduleRoot, err := findModuleRoot()
		if err != nil {
			buildErr = err
			return
		}

		binDir, err := os.MkdirTemp("", "issues-bin-")
		if err != nil {
			buildErr = err
			return
		}

		issuesPath = filepath.Join(binDir, "issues")
		cmd := exec.Command("go", "build", "-o", issuesPath, "./cmd/issues")
		cmd.Dir = moduleRoot
		output, err := cmd.CombinedOutput()
		if err != nil {
			buildErr = fmt.Errorf("build issues: %w: %s", err, strings.TrimSpace(string(output)))
		}
	})

	if buildErr != nil {
		t.Fatalf("%v", buildErr)
	}

	return issuesPath
}

// SetupScriptEnv configures common environment variables for testscript.
func SetupScriptEnv(t testing.TB, env *testscript.Env) error {
	t.Helper()

	env.Setenv("ISSUES", BuildIssues(t))

	homeDir := filepath.Join(env.WorkDir, "home")
	if err := EnsureHomeDirs(homeDir); err != nil {
		return err
	}
	env.Setenv("HOME", homeDir)
	env.Setenv("NO_COLOR", "1")
	return nil
}

// CmdEnvSet stores the trimmed contents of a file in an env var.
func CmdEnvSet(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("envset does not support negation")
	}
	if len(args) != 2 {
		ts.Fatalf("usage: envset VAR FILE")
	}

	value := strings.TrimSpace(ts.ReadFile(args[1]))
	ts.Setenv(args[0], value)
}

// CmdIssueID finds an issue by title in a `list --json` dump and stores its
// ID in an env var.
func CmdIssueID(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("issueid does not support negation")
	}
	if len(args) != 3 {
		ts.Fatalf("usage: issueid FILE TITLE VAR")
	}

	var items []issue.Issue
	data := ts.ReadFile(args[0])
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		ts.Fatalf("parse issue list: %v", err)
	}

	title := args[1]
	for _, item := range items {
		if item.Title == title {
			ts.Setenv(args[2], item.ID)
			return
		}
	}

	ts.Fatalf("issue with title %q not found", title)
}

func findModuleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find module root (go.mod)")
		}
		dir = parent
	}
}
