// Package cas persists incremental cache entries, one JSON file per key.
package cas

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var (
	_ ports.StateStore        = (*Store)(nil)
	_ ports.StateStoreFactory = Factory{}
)

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Store implements ports.StateStore on top of a directory.
type Store struct {
	dir string
}

// NewStore creates a Store writing below dir. The directory is created lazily.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory holding the entries.
func (s *Store) Dir() string {
	return s.dir
}

// Load retrieves the entry stored for key.
func (s *Store) Load(key string) (*domain.CacheEntry, error) {
	filename := s.Path(key)
	//nolint:gosec // Path is constructed from trusted directory and hashed filename
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, storeError(domain.ErrStoreReadFailed, err, filename)
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, storeError(domain.ErrStoreUnmarshalFailed, err, filename)
	}
	return &entry, nil
}

// Save stores the entry. The file is replaced atomically.
func (s *Store) Save(entry *domain.CacheEntry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return storeError(domain.ErrStoreMarshalFailed, err, entry.Key)
	}

	if err := os.MkdirAll(s.dir, domain.DirPerm); err != nil {
		return storeError(domain.ErrStoreCreateFailed, err, s.dir)
	}

	filename := s.Path(entry.Key)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(filename)+".*.tmp")
	if err != nil {
		return storeError(domain.ErrStoreWriteFailed, err, filename)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // Gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return storeError(domain.ErrStoreWriteFailed, err, filename)
	}
	if err := tmp.Chmod(domain.FilePerm); err != nil {
		_ = tmp.Close()
		return storeError(domain.ErrStoreWriteFailed, err, filename)
	}
	if err := tmp.Close(); err != nil {
		return storeError(domain.ErrStoreWriteFailed, err, filename)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return storeError(domain.ErrStoreWriteFailed, err, filename)
	}
	return nil
}

// Delete removes the entry for key.
func (s *Store) Delete(key string) error {
	filename := s.Path(key)
	if err := os.Remove(filename); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storeError(domain.ErrStoreDeleteFailed, err, filename)
	}
	return nil
}

// Lock takes an exclusive lock on the key's lock file, waiting until it is
// free or ctx is done.
func (s *Store) Lock(ctx context.Context, key string) (func() error, error) {
	if err := os.MkdirAll(s.dir, domain.DirPerm); err != nil {
		return nil, storeError(domain.ErrStoreCreateFailed, err, s.dir)
	}

	filename := s.Path(key) + ".lock"
	unlock, err := lockFile(ctx, filename)
	if err != nil {
		return nil, storeError(domain.ErrStoreLockFailed, err, filename)
	}
	return unlock, nil
}

// Clean removes the whole state directory.
func (s *Store) Clean() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return storeError(domain.ErrStoreDeleteFailed, err, s.dir)
	}
	return nil
}

// Path returns the file an entry for key is stored in. The name keeps the
// key readable and adds a hash of the key and the state format version, so
// distinct keys never collide and format changes start from scratch.
func (s *Store) Path(key string) string {
	hash := sha256.Sum256(fmt.Appendf(nil, "%s\nstate format version: %d", key, domain.StateFormatVersion))
	name := unsafeKeyChars.ReplaceAllString(key, "_") + "-" + hex.EncodeToString(hash[:])[:10] + ".json"
	return filepath.Join(s.dir, name)
}

func storeError(sentinel, err error, path string) error {
	return zerr.With(fmt.Errorf("%w: %w", sentinel, err), "path", path)
}

// Factory opens the Store of a project root.
type Factory struct{}

// Open returns the store below root/.kiln/incremental.
func (Factory) Open(root string) (ports.StateStore, error) {
	return NewStore(filepath.Join(root, domain.DefaultStatePath())), nil
}

// Clean removes the state directory below root.
func (Factory) Clean(root string) error {
	return NewStore(filepath.Join(root, domain.DefaultStatePath())).Clean()
}
