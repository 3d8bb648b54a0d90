// internal/spyevent/notifier.go
package spyevent

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// missingDirBackoff is how long the FsNotifier waits between existence
// checks when input hasn't been created yet. spec.md §4.2: "existence is
// not a fatal error — directories may be created by other spies."
const missingDirBackoff = 1 * time.Second

// waitForInput blocks (politely) until dir exists or ctx is cancelled,
// logging each failed attempt at debug level — spec.md's PathMissing is a
// recoverable, retried error kind, never fatal.
func waitForInput(ctx context.Context, dir string, logger *slog.Logger) error {
	for {
		if _, err := os.Stat(dir); err == nil {
			return nil
		} else if logger != nil {
			logger.Debug("spy input does not exist yet, retrying", "dir", dir, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(missingDirBackoff):
		}
	}
}
