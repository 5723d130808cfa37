package whatsapp

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCredentialStoreFreshDirectory(t *testing.T) {
	store, err := NewCredentialStore(filepath.Join(t.TempDir(), "auth_info"))
	if err != nil {
		t.Fatalf("NewCredentialStore: %v", err)
	}

	creds, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(creds) != 0 {
		t.Errorf("fresh store loaded %d files, want 0", len(creds))
	}
}

func TestCredentialStoreSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	store, err := NewCredentialStore(dir)
	if err != nil {
		t.Fatalf("NewCredentialStore: %v", err)
	}

	if err := store.Save("creds.json", []byte(`{"me":"device"}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save("app-state-sync-key-1.json", []byte(`{"key":"abc"}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	creds, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(creds) != 2 {
		t.Fatalf("loaded %d files, want 2", len(creds))
	}
	if string(creds["creds.json"]) != `{"me":"device"}` {
		t.Errorf("creds.json = %q", creds["creds.json"])
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestCredentialStoreRejectsBadNames(t *testing.T) {
	store, err := NewCredentialStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewCredentialStore: %v", err)
	}

	for _, name := range []string{"", "../escape.json", "a/b.json", ".hidden"} {
		if err := store.Save(name, []byte("x")); err == nil {
			t.Errorf("Save(%q) succeeded, want error", name)
		}
	}
}

func TestCredentialStoreOverwriteIsAtomicReplace(t *testing.T) {
	store, err := NewCredentialStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewCredentialStore: %v", err)
	}

	if err := store.Save("creds.json", []byte("v1")); err != nil {
		t.Fatalf("Save v1: %v", err)
	}
	if err := store.Save("creds.json", []byte("v2")); err != nil {
		t.Fatalf("Save v2: %v", err)
	}

	creds, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(creds["creds.json"]) != "v2" {
		t.Errorf("creds.json = %q, want v2", creds["creds.json"])
	}
}
