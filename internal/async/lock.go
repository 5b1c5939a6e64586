package async

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileGuard is a cross-process lock for one job type, held in
// <dir>/<jobType>.lock. It keeps a CLI rebuild and a server rebuild from
// overlapping.
type FileGuard struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileGuard creates the guard for jobType under dir.
func NewFileGuard(dir, jobType string) *FileGuard {
	path := filepath.Join(dir, jobType+".lock")
	return &FileGuard{path: path, flock: flock.New(path)}
}

// TryLock acquires the lock without blocking. It returns false when
// another process holds it.
func (g *FileGuard) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := g.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire %s: %w", g.path, err)
	}
	g.locked = ok
	return ok, nil
}

// Unlock releases the lock. Safe to call when not held.
func (g *FileGuard) Unlock() error {
	if !g.locked {
		return nil
	}
	g.locked = false
	if err := g.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release %s: %w", g.path, err)
	}
	return nil
}

// Path returns the lock file path.
func (g *FileGuard) Path() string {
	return g.path
}

// release is Unlock on a possibly nil guard.
func (g *FileGuard) release() error {
	if g == nil {
		return nil
	}
	return g.Unlock()
}
