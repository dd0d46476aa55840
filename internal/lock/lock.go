// Package lock serializes sync runs against the same destination tree with
// an advisory file lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileName is the lock file created in the destination root. Indexing skips
// it.
const FileName = ".hashsync.lock"

const pollInterval = 100 * time.Millisecond

// ErrLocked is returned when the lock is still held by another run after
// the timeout.
var ErrLocked = errors.New("destination is locked by another run")

// Lock is a held destination lock.
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes the lock of dir, polling until it is free, ctx is done or
// timeout elapsed. A zero timeout tries exactly once.
func Acquire(ctx context.Context, dir string, timeout time.Duration) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		locked, err := tryLock(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		if locked {
			return &Lock{f: f, path: path}, nil
		}

		if !time.Now().Before(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("%s: %w", path, ErrLocked)
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock. The lock file stays in place.
func (l *Lock) Release() error {
	unlockErr := unlock(l.f)
	closeErr := l.f.Close()
	if unlockErr != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.path, unlockErr)
	}
	return closeErr
}

// IsLockFile reports whether a root-relative name is the lock file.
func IsLockFile(name string) bool {
	return name == FileName
}
