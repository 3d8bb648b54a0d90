//go:build !darwin

// internal/spyevent/notifier_fsnotify.go
package spyevent

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/spyrun/spyrun/internal/config"
)

// FsNotifier watches a spy's input directory using fsnotify, the
// cross-platform OS notification backend the teacher uses for its
// hot-reload watcher (internal/daemon/daemon.go's startHotReload) and its
// non-darwin filesystem trigger stub. Unlike macOS FSEvents, fsnotify only
// watches the directories it is explicitly told about, so recursive mode
// walks the tree at startup and adds newly created subdirectories as they
// appear.
type FsNotifier struct {
	logger *slog.Logger
}

// NewFsNotifier creates a notifier that logs retries/errors through logger
// (nil is fine — logging is then skipped).
func NewFsNotifier(logger *slog.Logger) *FsNotifier {
	return &FsNotifier{logger: logger}
}

// Run blocks, emitting events into out, until ctx is cancelled.
func (n *FsNotifier) Run(ctx context.Context, spy *config.Spy, out chan<- Event) error {
	if err := waitForInput(ctx, spy.Input, n.logger); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := n.addTree(watcher, spy); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fsEvent, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			n.handle(ctx, watcher, spy, fsEvent, out)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if n.logger != nil {
				n.logger.Debug("fsnotify watch error", "spy", spy.Name, "error", err)
			}
		}
	}
}

func (n *FsNotifier) addTree(watcher *fsnotify.Watcher, spy *config.Spy) error {
	if !spy.Recursive {
		return watcher.Add(spy.Input)
	}
	return filepath.WalkDir(spy.Input, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort: skip unreadable subtrees
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func (n *FsNotifier) handle(ctx context.Context, watcher *fsnotify.Watcher, spy *config.Spy, fsEvent fsnotify.Event, out chan<- Event) {
	var kind config.EventKind
	switch {
	case fsEvent.Op&fsnotify.Create != 0:
		kind = config.Create
		if spy.Recursive {
			if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() {
				watcher.Add(fsEvent.Name)
			}
		}
	case fsEvent.Op&fsnotify.Write != 0:
		kind = config.Modify
	case fsEvent.Op&fsnotify.Remove != 0, fsEvent.Op&fsnotify.Rename != 0:
		kind = config.Remove
	case fsEvent.Op&fsnotify.Chmod != 0:
		kind = config.Access
	default:
		return
	}

	if !spy.WantsEvent(kind) {
		return
	}

	ev := New(spy.Name, kind, fsEvent.Name)
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
