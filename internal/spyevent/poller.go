// internal/spyevent/poller.go
package spyevent

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spyrun/spyrun/internal/config"
)

// Poller complements the OS notifier by periodically re-enumerating a spy's
// input directory and diffing the result against the previous snapshot.
// spec.md calls this out explicitly because OS notification backends can
// silently drop events (overflowed kernel queues, unsupported network
// filesystems); the poller is the fallback sweep that eventually catches
// what the notifier missed.
type Poller struct {
	logger *slog.Logger
}

func NewPoller(logger *slog.Logger) *Poller {
	return &Poller{logger: logger}
}

type snapshotEntry struct {
	modTime time.Time
	size    int64
}

// Run blocks until ctx is cancelled. It is a no-op unless spy.Poll is set.
func (p *Poller) Run(ctx context.Context, spy *config.Spy, out chan<- Event) error {
	if spy.Poll == nil || spy.Poll.IntervalMs <= 0 {
		return nil
	}

	if err := waitForInput(ctx, spy.Input, p.logger); err != nil {
		return err
	}

	interval := time.Duration(spy.Poll.IntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev, err := p.snapshot(spy)
	if err != nil && p.logger != nil {
		p.logger.Debug("poller baseline scan failed", "spy", spy.Name, "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cur, err := p.snapshot(spy)
			if err != nil {
				if p.logger != nil {
					p.logger.Debug("poller scan failed", "spy", spy.Name, "error", err)
				}
				continue
			}
			p.diff(ctx, spy, prev, cur, out)
			prev = cur
		}
	}
}

// snapshot walks the input tree (bounded to top level unless spy.Recursive)
// and records each regular file's mtime/size.
func (p *Poller) snapshot(spy *config.Spy) (map[string]snapshotEntry, error) {
	entries := make(map[string]snapshotEntry)

	if !spy.Recursive {
		dirEntries, err := os.ReadDir(spy.Input)
		if err != nil {
			return nil, err
		}
		for _, de := range dirEntries {
			if de.IsDir() {
				continue
			}
			info, err := de.Info()
			if err != nil {
				continue
			}
			entries[filepath.Join(spy.Input, de.Name())] = snapshotEntry{
				modTime: info.ModTime(),
				size:    info.Size(),
			}
		}
		return entries, nil
	}

	err := filepath.WalkDir(spy.Input, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries[path] = snapshotEntry{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	return entries, err
}

// diff emits Create for paths new in cur, Remove for paths missing from cur,
// and Modify for paths present in both with a changed mtime or size.
func (p *Poller) diff(ctx context.Context, spy *config.Spy, prev, cur map[string]snapshotEntry, out chan<- Event) {
	for path, entry := range cur {
		prevEntry, existed := prev[path]
		if !existed {
			p.emit(ctx, spy, config.Create, path, out)
			continue
		}
		if prevEntry.modTime != entry.modTime || prevEntry.size != entry.size {
			p.emit(ctx, spy, config.Modify, path, out)
		}
	}
	for path := range prev {
		if _, stillPresent := cur[path]; !stillPresent {
			p.emit(ctx, spy, config.Remove, path, out)
		}
	}
}

func (p *Poller) emit(ctx context.Context, spy *config.Spy, kind config.EventKind, path string, out chan<- Event) {
	if !spy.WantsEvent(kind) {
		return
	}
	ev := New(spy.Name, kind, path)
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
