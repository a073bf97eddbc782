package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.trai.ch/kiln/internal/core/domain"
)

// PostRunHook runs once after every task of a run reached a final state.
type PostRunHook func(ctx context.Context) error

type hookKey struct{}

type hookSet struct {
	mu    sync.Mutex
	hooks []PostRunHook
}

func withHooks(ctx context.Context, h *hookSet) context.Context {
	return context.WithValue(ctx, hookKey{}, h)
}

// AddPostRunHook registers fn to run after the current run finishes, even if
// it failed. It reports false when ctx does not belong to a run.
func AddPostRunHook(ctx context.Context, fn PostRunHook) bool {
	h, ok := ctx.Value(hookKey{}).(*hookSet)
	if !ok {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, fn)
	return true
}

// run executes the hooks in registration order and joins their errors.
func (h *hookSet) run(ctx context.Context) error {
	h.mu.Lock()
	hooks := h.hooks
	h.hooks = nil
	h.mu.Unlock()

	var errs []error
	for _, fn := range hooks {
		if err := fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", domain.ErrPostRunHookFailed, err))
		}
	}
	return errors.Join(errs...)
}
