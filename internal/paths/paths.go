package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HomeDir returns the current user's home directory.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return home, nil
}

// DefaultStateDir returns the default issues state directory.
func DefaultStateDir() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, ".local", "state", "issues"), nil
}

// DefaultConfigDir returns the directory holding the global config file.
func DefaultConfigDir() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, ".config", "issues"), nil
}

// DefaultDatabasePath returns where the server keeps its database.
func DefaultDatabasePath() (string, error) {
	dir, err := DefaultStateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "issues.db"), nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
