package runlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("lock is held by another process")

const retryDelay = 250 * time.Millisecond

// Locker hands out named file locks under one directory.
type Locker struct {
	dir  string
	wait time.Duration
}

// New creates a locker storing lock files in dir. With a positive wait, Acquire retries
// until the lock frees up or wait elapses.
func New(dir string, wait time.Duration) *Locker {
	return &Locker{dir: dir, wait: wait}
}

// Handle is a held lock.
type Handle struct {
	path string
	lock *flock.Flock
}

// Path returns the lock file path.
func (h *Handle) Path() string { return h.path }

// Release unlocks the file. It is safe to call more than once.
func (h *Handle) Release() error {
	if h == nil || h.lock == nil {
		return nil
	}
	if err := h.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", h.path, err)
	}
	return nil
}

// Acquire takes the lock called name.
func (l *Locker) Acquire(ctx context.Context, name string) (*Handle, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	path := filepath.Join(l.dir, name+".lock")
	fl := flock.New(path)

	var (
		ok  bool
		err error
	)
	if l.wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, l.wait)
		defer cancel()
		ok, err = fl.TryLockContext(waitCtx, retryDelay)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			ok, err = false, nil
		}
	} else {
		ok, err = fl.TryLock()
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return &Handle{path: path, lock: fl}, nil
}
