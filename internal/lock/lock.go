// internal/lock/lock.go
package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrHeld is returned by Acquire when another process already holds the
// lock for the same config path — spec.md §8 scenario 6: "the second exits
// non-zero without starting any watcher."
var ErrHeld = fmt.Errorf("lock: another instance is already running against this config")

// Guard is the process-wide single-instance lock. spec.md §4.6: "lock name
// derived from the absolute config path." The teacher only carries
// gofrs/flock as an indirect dependency (no single-instance guard of its
// own); this promotes it to the direct use spec.md calls for.
type Guard struct {
	flock *flock.Flock
	path  string
}

// Acquire derives a lock file path from a hash of the absolute config path
// (so two different configs never contend, and the same config from any
// cwd always maps to the same lock) and takes a non-blocking exclusive
// lock. Returns ErrHeld if another process holds it.
func Acquire(configPath string) (*Guard, error) {
	absCfg, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("lock: resolving config path: %w", err)
	}

	sum := sha256.Sum256([]byte(absCfg))
	lockPath := filepath.Join(os.TempDir(), "spyrun-"+hex.EncodeToString(sum[:8])+".lock")

	g := &Guard{flock: flock.New(lockPath), path: lockPath}

	ok, err := g.flock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock: acquiring %s: %w", lockPath, err)
	}
	if !ok {
		return nil, ErrHeld
	}

	return g, nil
}

// Release drops the lock. Safe to call on a nil Guard (no-op), so callers
// can defer it unconditionally even when Acquire failed. spec.md §7: "the
// single-instance lock is released on any exit path."
func (g *Guard) Release() error {
	if g == nil || g.flock == nil {
		return nil
	}
	return g.flock.Unlock()
}

// Path returns the underlying lock file path, mainly for logging.
func (g *Guard) Path() string {
	if g == nil {
		return ""
	}
	return g.path
}
