package build

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	rberrors "github.com/Aman-CERP/rowbulk/internal/errors"
)

// BuildLock is a cross-process lock that keeps two builds from writing the
// same index at once. The lock file lives at <dataDir>/locks/<target>.lock.
type BuildLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewBuildLock creates the lock for one target index.
func NewBuildLock(dataDir, target string) *BuildLock {
	path := filepath.Join(dataDir, "locks", lockName(target)+".lock")
	return &BuildLock{
		path:  path,
		flock: flock.New(path),
	}
}

// Acquire takes the lock without blocking. It returns an ERR_202_LOCK_HELD
// error when another process is building the same target.
func (l *BuildLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return rberrors.New(rberrors.ErrCodeLockHeld, "another build is running for this index", nil).
			WithDetail("lock", l.path).
			WithSuggestion("Wait for the running build to finish, or remove the lock file if no build is running")
	}

	l.locked = true
	return nil
}

// Release releases the lock. Calling it on an unlocked BuildLock is a no-op.
func (l *BuildLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *BuildLock) Path() string { return l.path }

// IsLocked reports whether this process holds the lock.
func (l *BuildLock) IsLocked() bool { return l.locked }

// lockName keeps the target usable as a single file name.
func lockName(target string) string {
	out := []byte(target)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			out[i] = '_'
		}
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}
