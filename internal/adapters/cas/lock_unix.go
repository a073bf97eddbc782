//go:build unix

package cas

import (
	"context"
	"errors"
	"os"
	"time"

	"go.trai.ch/kiln/internal/core/domain"
	"golang.org/x/sys/unix"
)

const lockPollInterval = 10 * time.Millisecond

// lockFile takes an exclusive flock on path, polling until it is available.
func lockFile(ctx context.Context, path string) (func() error, error) {
	//nolint:gosec // Path is constructed from trusted directory and hashed filename
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, domain.FilePerm)
	if err != nil {
		return nil, err
	}
	fd := int(f.Fd()) //nolint:gosec // File descriptors fit in an int

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			_ = f.Close()
			return nil, err
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, context.Cause(ctx)
		case <-ticker.C:
		}
	}

	return func() error {
		err := unix.Flock(fd, unix.LOCK_UN)
		return errors.Join(err, f.Close())
	}, nil
}
