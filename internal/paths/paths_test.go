package paths

import (
	"path/filepath"
	"testing"
)

func TestDefaultStateDirUsesHome(t *testing.T) {
	t.Setenv("HOME", filepath.Join("/tmp", "test-home"))

	dir, err := DefaultStateDir()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	expected := filepath.Join("/tmp", "test-home", ".local", "state", "issues")
	if dir != expected {
		t.Fatalf("expected %s, got %s", expected, dir)
	}
}

func TestHomeDirUsesHome(t *testing.T) {
	t.Setenv("HOME", filepath.Join("/tmp", "test-home"))

	home, err := HomeDir()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if home != filepath.Join("/tmp", "test-home") {
		t.Fatalf("expected %s, got %s", filepath.Join("/tmp", "test-home"), home)
	}
}

func TestDefaultConfigDirUsesHome(t *testing.T) {
	t.Setenv("HOME", filepath.Join("/tmp", "test-home"))

	dir, err := DefaultConfigDir()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	expected := filepath.Join("/tmp", "test-home", ".config", "issues")
	if dir != expected {
		t.Fatalf("expected %s, got %s", expected, dir)
	}
}

func TestDefaultDatabasePath(t *testing.T) {
	t.Setenv("HOME", filepath.Join("/tmp", "test-home"))

	path, err := DefaultDatabasePath()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	expected := filepath.Join("/tmp", "test-home", ".local", "state", "issues", "issues.db")
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", filepath.Join("/tmp", "test-home"))

	cases := map[string]string{
		"~/data/issues.db": filepath.Join("/tmp", "test-home", "data", "issues.db"),
		"~":                filepath.Join("/tmp", "test-home"),
		"/var/issues.db":   "/var/issues.db",
		"relative.db":      "relative.db",
		"~user/x":          "~user/x",
	}

	for input, want := range cases {
		got, err := ExpandHome(input)
		if err != nil {
			t.Fatalf("ExpandHome(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("ExpandHome(%q) = %q, want %q", input, got, want)
		}
	}
}
