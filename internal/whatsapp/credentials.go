package whatsapp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CredentialStore persists the session's credential material as a
// directory of per-session files. Writes go through a temp file and
// rename so a crash mid-write never corrupts existing material.
type CredentialStore struct {
	dir string
}

// NewCredentialStore creates the credential directory if needed.
func NewCredentialStore(dir string) (*CredentialStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create credential directory: %w", err)
	}
	return &CredentialStore{dir: dir}, nil
}

// Load reads all persisted credential files. An empty map means no
// material exists yet and a fresh pairing flow is required.
func (c *CredentialStore) Load() (Credentials, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read credential directory: %w", err)
	}

	creds := make(Credentials, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read credential file %s: %w", e.Name(), err)
		}
		creds[e.Name()] = data
	}
	return creds, nil
}

// Save durably writes one credential file.
func (c *CredentialStore) Save(name string, data []byte) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid credential file name %q", name)
	}

	tmp := filepath.Join(c.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write credential temp file: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(c.dir, name)); err != nil {
		return fmt.Errorf("rename credential file: %w", err)
	}
	return nil
}
