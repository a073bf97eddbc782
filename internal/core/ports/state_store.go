package ports

import (
	"context"

	"go.trai.ch/kiln/internal/core/domain"
)

// StateStore persists incremental cache entries.
//
//go:generate mockgen -source=state_store.go -destination=mocks/mock_state_store.go -package=mocks
type StateStore interface {
	// Load returns the entry stored for key.
	// Returns nil, nil if not found.
	Load(key string) (*domain.CacheEntry, error)

	// Save stores the entry under entry.Key.
	Save(entry *domain.CacheEntry) error

	// Delete removes the entry for key. Deleting a missing entry is not an error.
	Delete(key string) error

	// Lock acquires an exclusive lock on key shared with other processes.
	// The returned function releases it.
	Lock(ctx context.Context, key string) (unlock func() error, err error)
}

// StateStoreFactory opens the StateStore belonging to a project root.
type StateStoreFactory interface {
	// Open returns the store for root. It does not touch the disk.
	Open(root string) (StateStore, error)
	// Clean removes every entry stored for root.
	Clean(root string) error
}
