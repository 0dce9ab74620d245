// Package runlock keeps two monitoring runs from touching the same history
// at once.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked means another process holds the lock.
var ErrLocked = errors.New("another run holds the lock")

// Lock is a held advisory lock.
type Lock struct {
	fl *flock.Flock
}

// PathFor returns the lock file used for a history path.
func PathFor(historyPath string) string {
	return filepath.Clean(historyPath) + ".lock"
}

// Acquire takes the lock without blocking. It returns ErrLocked when another
// process holds it.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("runlock: %w", err)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("runlock %s: %w", path, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &Lock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.fl.Path() }

// Release drops the lock. The lock file is left in place; removing it would
// race with a process that just opened it.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
