// Package store persists the balance ledger as a single encrypted file.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ZakatSentinel/internal/ledger"

	log "github.com/sirupsen/logrus"
)

// FileStore reads and writes the encrypted ledger at Path.
type FileStore struct {
	Path string
}

// NewFileStore creates a store for the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load decrypts and decodes the ledger. A missing file is a fresh start and
// yields an empty ledger; decryption and schema failures are returned as
// model.ErrDecryptionFailed and model.ErrCorruptHistory.
func (s *FileStore) Load(key []byte) (*ledger.Ledger, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Infof("history file %s not found, starting fresh", s.Path)
			return ledger.New(), nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}
	plaintext, err := open(key, data)
	if err != nil {
		return nil, err
	}
	l, err := ledger.Deserialize(plaintext)
	if err != nil {
		return nil, err
	}
	log.Debugf("loaded %d history entries from %s", len(l.Entries), s.Path)
	return l, nil
}

// Save encrypts the ledger and replaces the file atomically: the previous
// file stays intact until the new one is fully on disk.
func (s *FileStore) Save(key []byte, l *ledger.Ledger) error {
	plaintext, err := ledger.Serialize(l)
	if err != nil {
		return fmt.Errorf("serialize history: %w", err)
	}
	envelope, err := seal(key, plaintext)
	if err != nil {
		return err
	}
	if err := WriteAtomic(s.Path, envelope); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	log.Debugf("saved %d history entries to %s", len(l.Entries), s.Path)
	return nil
}

// Exists reports whether a persisted ledger is present.
func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}

// Reset deletes the persisted ledger. This is the only way history is dropped.
func (s *FileStore) Reset() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove history: %w", err)
	}
	return nil
}

// WriteAtomic replaces path with data through a synced temp file and a
// rename, so readers see either the old or the new content. The file mode is 0600.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
