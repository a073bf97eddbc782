//go:build !unix

package cas

import (
	"context"
	"sync"
)

var (
	locksMu sync.Mutex
	locks   = make(map[string]chan struct{})
)

// lockFile serialises access to path within this process only.
func lockFile(ctx context.Context, path string) (func() error, error) {
	locksMu.Lock()
	ch, ok := locks[path]
	if !ok {
		ch = make(chan struct{}, 1)
		locks[path] = ch
	}
	locksMu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}

	var once sync.Once
	return func() error {
		once.Do(func() { <-ch })
		return nil
	}, nil
}
