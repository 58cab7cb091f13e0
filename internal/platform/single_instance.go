package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning indicates another instance already holds the lock.
var ErrAlreadyRunning = errors.New("instance already running")

// InstanceGuard holds the single-instance lock.
type InstanceGuard struct {
	lock *flock.Flock
	path string
}

// AcquireSingleInstance takes an exclusive lock file in the user cache dir.
func AcquireSingleInstance(appName string) (*InstanceGuard, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return AcquireLockFile(filepath.Join(dir, appName, appName+".lock"))
}

// AcquireLockFile takes an exclusive lock on path without blocking.
func AcquireLockFile(path string) (*InstanceGuard, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return &InstanceGuard{lock: lock, path: path}, nil
}

// Release frees the single instance lock.
func (guard *InstanceGuard) Release() error {
	if guard == nil || guard.lock == nil {
		return nil
	}
	return guard.lock.Unlock()
}

// Path returns the lock file location.
func (guard *InstanceGuard) Path() string {
	if guard == nil {
		return ""
	}
	return guard.path
}
