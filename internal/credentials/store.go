// Package credentials persists sign-in tokens per server on disk.
package credentials

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// Entry is the saved sign-in for one server.
type Entry struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// File is the on-disk credentials document, keyed by server base URL.
type File struct {
	Servers map[string]Entry `json:"servers"`
}

// Store manages the credentials file with locking.
type Store struct {
	dir string
}

// NewStore creates a credentials store in the given directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path() string {
	return filepath.Join(s.dir, "credentials.json")
}

func (s *Store) lockPath() string {
	return filepath.Join(s.dir, "credentials.lock")
}

// Load reads the credentials file. A missing file yields an empty document.
func (s *Store) Load() (*File, error) {
	data, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		return &File{Servers: make(map[string]Entry)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal credentials: %w", err)
	}
	if f.Servers == nil {
		f.Servers = make(map[string]Entry)
	}
	return &f, nil
}

// Save writes the credentials file atomically. Tokens are secrets, so the
// file is only readable by its owner.
func (s *Store) Save(f *File) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	if existing, err := os.ReadFile(s.path()); err == nil {
		if bytes.Equal(existing, data) {
			return nil
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read credentials file: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.dir, filepath.Base(s.path())+".tmp")
	if err != nil {
		return fmt.Errorf("create temp credentials file: %w", err)
	}
	name := tmpFile.Name()
	if err := tmpFile.Chmod(0o600); err != nil {
		tmpFile.Close()
		os.Remove(name)
		return fmt.Errorf("chmod temp credentials file: %w", err)
	}
	_, err = tmpFile.Write(data)
	if err1 := tmpFile.Close(); err1 != nil && err == nil {
		err = err1
	}
	if err != nil {
		os.Remove(name)
		return fmt.Errorf("write temp credentials file: %w", err)
	}

	if err := os.Rename(name, s.path()); err != nil {
		os.Remove(name)
		return fmt.Errorf("rename credentials file: %w", err)
	}
	return nil
}

// Update reads, modifies, and writes the credentials under an exclusive lock.
func (s *Store) Update(fn func(f *File) error) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	lockFile, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)

	f, err := s.Load()
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		return err
	}
	return s.Save(f)
}

// Get returns the saved entry for server.
func (s *Store) Get(server string) (Entry, bool, error) {
	f, err := s.Load()
	if err != nil {
		return Entry{}, false, err
	}
	entry, ok := f.Servers[Key(server)]
	return entry, ok, nil
}

// Set records a sign-in for server, replacing any previous one.
func (s *Store) Set(server string, entry Entry) error {
	return s.Update(func(f *File) error {
		f.Servers[Key(server)] = entry
		return nil
	})
}

// Remove forgets the sign-in for server. It reports whether one existed.
func (s *Store) Remove(server string) (bool, error) {
	var removed bool
	err := s.Update(func(f *File) error {
		key := Key(server)
		if _, ok := f.Servers[key]; ok {
			delete(f.Servers, key)
			removed = true
		}
		return nil
	})
	return removed, err
}

// Key normalizes a server URL so trailing slashes and case in the scheme and
// host do not produce separate entries.
func Key(server string) string {
	server = strings.TrimRight(strings.TrimSpace(server), "/")
	scheme, rest, ok := strings.Cut(server, "://")
	if !ok {
		return server
	}
	host, path, _ := strings.Cut(rest, "/")
	key := strings.ToLower(scheme) + "://" + strings.ToLower(host)
	if path != "" {
		key += "/" + path
	}
	return key
}
