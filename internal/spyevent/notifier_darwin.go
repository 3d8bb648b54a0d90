//go:build darwin

// internal/spyevent/notifier_darwin.go
package spyevent

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsevents"

	"github.com/spyrun/spyrun/internal/config"
)

// isDirectChild reports whether path's parent directory is exactly dir,
// used to emulate non-recursive watching on top of FSEvents' always-
// recursive stream.
func isDirectChild(dir, path string) bool {
	return filepath.Clean(filepath.Dir(path)) == filepath.Clean(dir)
}

// FsNotifier watches a spy's input directory using native macOS FSEvents.
// FSEvents watches path strings rather than file descriptors, so it follows
// volume mount/unmount and recreated paths without the tree-walk-and-re-add
// dance the fsnotify backend needs. It always watches recursively; the
// spy's Recursive flag instead filters which reported paths are accepted.
//
// Debounce and throttle are not applied here — spec.md's Coalescer is the
// single point where that coalescing happens, so this notifier (like its
// fsnotify sibling) only ever emits raw, one-to-one events.
type FsNotifier struct {
	logger *slog.Logger
}

func NewFsNotifier(logger *slog.Logger) *FsNotifier {
	return &FsNotifier{logger: logger}
}

func (n *FsNotifier) Run(ctx context.Context, spy *config.Spy, out chan<- Event) error {
	if err := waitForInput(ctx, spy.Input, n.logger); err != nil {
		return err
	}

	stream := &fsevents.EventStream{
		Paths:   []string{spy.Input},
		Latency: 0,
		Flags:   fsevents.FileEvents | fsevents.WatchRoot | fsevents.NoDefer,
	}
	stream.Start()
	defer stream.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-stream.Events:
			if !ok {
				return nil
			}
			for _, ev := range batch {
				n.handle(ctx, spy, ev, out)
			}
		}
	}
}

func (n *FsNotifier) handle(ctx context.Context, spy *config.Spy, ev fsevents.Event, out chan<- Event) {
	if ev.Flags&fsevents.MustScanSubDirs != 0 ||
		ev.Flags&fsevents.KernelDropped != 0 ||
		ev.Flags&fsevents.UserDropped != 0 {
		if n.logger != nil {
			n.logger.Warn("fsevents queue overflow, events may have been lost",
				"spy", spy.Name, "path", ev.Path, "flags", ev.Flags)
		}
		return
	}
	if ev.Flags&fsevents.Mount != 0 || ev.Flags&fsevents.Unmount != 0 ||
		ev.Flags&fsevents.RootChanged != 0 {
		return
	}

	var kind config.EventKind
	switch {
	case ev.Flags&fsevents.ItemRemoved != 0:
		kind = config.Remove
	case ev.Flags&fsevents.ItemCreated != 0:
		kind = config.Create
	case ev.Flags&fsevents.ItemModified != 0:
		kind = config.Modify
	case ev.Flags&fsevents.ItemInodeMetaMod != 0:
		kind = config.Access
	default:
		// Bare rename-source with no create/remove flag: the path no longer
		// exists at this location, nothing to report.
		return
	}

	if !spy.Recursive && !isDirectChild(spy.Input, ev.Path) {
		return
	}

	if !spy.WantsEvent(kind) {
		return
	}

	out2 := New(spy.Name, kind, ev.Path)
	select {
	case out <- out2:
	case <-ctx.Done():
	}
}
