package relay_test

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"signalcore/internal/relay"
)

func TestLoadOrCreateTrustRootPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "root.json")

	first, err := relay.LoadOrCreateTrustRoot(path, rand.Reader)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm = %o, want 600", perm)
	}

	second, err := relay.LoadOrCreateTrustRoot(path, rand.Reader)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !first.PublicKey.Equal(second.PublicKey) {
		t.Fatal("reloaded trust root differs from the generated one")
	}
}

func TestLoadOrCreateTrustRootRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "root.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := relay.LoadOrCreateTrustRoot(path, rand.Reader); err == nil {
		t.Fatal("expected parse error")
	}
}
