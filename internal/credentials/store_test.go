package credentials

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestStore_LoadEmpty(t *testing.T) {
	store := NewStore(t.TempDir())

	f, err := store.Load()
	if err != nil {
		t.Fatalf("failed to load empty credentials: %v", err)
	}
	if f == nil || f.Servers == nil {
		t.Fatal("expected initialized credentials")
	}
	if len(f.Servers) != 0 {
		t.Errorf("expected 0 servers, got %d", len(f.Servers))
	}
}

func TestStore_SetGetRemove(t *testing.T) {
	store := NewStore(t.TempDir())

	if err := store.Set("http://Example.com:8089/", Entry{Email: "ann@example.com", Token: "tok"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	entry, ok, err := store.Get("http://example.com:8089")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected saved entry")
	}
	if entry.Email != "ann@example.com" || entry.Token != "tok" {
		t.Fatalf("unexpected entry %+v", entry)
	}

	removed, err := store.Remove("http://example.com:8089")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Fatal("expected entry to be removed")
	}
	removed, err = store.Remove("http://example.com:8089")
	if err != nil {
		t.Fatalf("remove again: %v", err)
	}
	if removed {
		t.Fatal("expected second remove to report nothing removed")
	}
	if _, ok, _ := store.Get("http://example.com:8089"); ok {
		t.Fatal("expected entry to be gone")
	}
}

func TestStore_SaveIsOwnerOnly(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	if err := store.Set("http://localhost:8089", Entry{Email: "a@b.c", Token: "secret"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "credentials.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}
}

func TestStore_SaveSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	f := &File{Servers: map[string]Entry{"http://localhost:8089": {Email: "a@b.c", Token: "t"}}}
	if err := store.Save(f); err != nil {
		t.Fatalf("save: %v", err)
	}
	path := filepath.Join(dir, "credentials.json")
	before, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if err := store.Save(f); err != nil {
		t.Fatalf("save again: %v", err)
	}
	after, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !os.SameFile(before, after) {
		t.Fatal("expected unchanged save to keep the existing file")
	}
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	store := NewStore(t.TempDir())

	var wg sync.WaitGroup
	servers := []string{"http://a", "http://b", "http://c", "http://d", "http://e"}
	for _, server := range servers {
		wg.Add(1)
		go func(server string) {
			defer wg.Done()
			if err := store.Set(server, Entry{Token: server}); err != nil {
				t.Errorf("set %s: %v", server, err)
			}
		}(server)
	}
	wg.Wait()

	f, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(f.Servers) != len(servers) {
		t.Fatalf("expected %d servers, got %d", len(servers), len(f.Servers))
	}
}

func TestKey(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8089":  "http://localhost:8089",
		"http://LOCALHOST:8089/": "http://localhost:8089",
		" HTTPS://Host/Base/ ":   "https://host/Base",
		"localhost:8089":         "localhost:8089",
	}
	for in, want := range cases {
		if got := Key(in); got != want {
			t.Errorf("Key(%q) = %q, want %q", in, got, want)
		}
	}
}
