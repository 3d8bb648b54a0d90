// internal/spyevent/walker.go
package spyevent

import (
	"context"
	"io/fs"
	"log/slog"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/spyrun/spyrun/internal/config"
)

// Walker enumerates a spy's input directory once at startup (after an
// optional delay) and emits a synthetic Walk event per matching entry —
// the mechanism that lets a freshly started spy react to files that were
// already present before it began watching, rather than only to changes
// that happen from that point on.
type Walker struct {
	logger *slog.Logger
}

func NewWalker(logger *slog.Logger) *Walker {
	return &Walker{logger: logger}
}

// Run is a no-op unless spy.WalkCfg is set. It blocks for the startup delay
// (interruptibly) and then performs exactly one walk.
func (w *Walker) Run(ctx context.Context, spy *config.Spy, out chan<- Event) error {
	if spy.WalkCfg == nil {
		return nil
	}

	if err := waitForInput(ctx, spy.Input, w.logger); err != nil {
		return err
	}

	if d := SampleDelay(spy.WalkCfg.Delay); d > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}

	walkCfg := spy.WalkCfg
	rootDepth := strings.Count(filepath.Clean(spy.Input), string(filepath.Separator))

	return filepath.WalkDir(spy.Input, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return nil // best-effort: skip unreadable subtrees
		}

		depth := strings.Count(filepath.Clean(path), string(filepath.Separator)) - rootDepth

		if d.IsDir() {
			if walkCfg.MaxDepth != 0 && depth >= walkCfg.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		if !walkCfg.FollowSymlinks && d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if depth < walkCfg.MinDepth {
			return nil
		}
		if walkCfg.MaxDepth != 0 && depth > walkCfg.MaxDepth {
			return nil
		}
		if walkCfg.Compiled != nil && !walkCfg.Compiled.MatchString(path) {
			return nil
		}

		ev := New(spy.Name, config.Walk, path)
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
}

// SampleDelay resolves a Delay to a concrete duration: a single value is
// fixed, a [lo, hi] pair is a uniform random sample in milliseconds. Shared
// by the Walker's startup delay and the worker pool's per-dispatch delay.
func SampleDelay(d config.Delay) time.Duration {
	switch len(d) {
	case 0:
		return 0
	case 1:
		return time.Duration(d[0]) * time.Millisecond
	default:
		lo, hi := d[0], d[1]
		if hi <= lo {
			return time.Duration(lo) * time.Millisecond
		}
		sample := lo + rand.Intn(hi-lo+1)
		return time.Duration(sample) * time.Millisecond
	}
}
