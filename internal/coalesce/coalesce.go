// internal/coalesce/coalesce.go
package coalesce

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/spyrun/spyrun/internal/spyevent"
)

// KeyFunc computes the coalescing key for an event. The supervisor builds
// this from the spy's limitkey template when one is configured, or from the
// pattern router's default (the resolved command's display form) otherwise.
type KeyFunc func(ev spyevent.Event) string

type debounceEntry struct {
	event     spyevent.Event
	timer     *time.Timer
	touchedAt time.Time
}

type throttleEntry struct {
	lastEmitAt time.Time
}

// Coalescer is the single consumer of a spy's event channel. It applies
// debounce (hold the latest event per key until the key goes quiet) and
// throttle (suppress further emissions for a key shortly after one fires),
// composed debounce-then-throttle per spec: the debounced output passes
// through the throttle gate, and anything that loses that race is dropped,
// never queued.
//
// Grounded in the teacher's trigger package: the per-path pendingEvent/timer
// pattern from internal/trigger/filesystem_darwin.go's debounce, generalized
// from a fixed per-path key to an arbitrary caller-computed key, and split
// from "only debounce" into the full debounce+throttle composition.
type Coalescer struct {
	spyName  string
	debounce time.Duration
	throttle time.Duration
	keyFunc  KeyFunc
	out      chan<- spyevent.Event
	logger   *slog.Logger

	mu        sync.Mutex
	debounced map[string]*debounceEntry
	throttled map[string]*throttleEntry
	stopped   bool
	done      chan struct{}

	gc *cron.Cron
}

// New builds a Coalescer for one spy. debounce/throttle of 0 disable that
// stage. out receives the coalesced events in arrival order per key.
func New(spyName string, debounce, throttle time.Duration, keyFunc KeyFunc, out chan<- spyevent.Event, logger *slog.Logger) *Coalescer {
	return &Coalescer{
		spyName:   spyName,
		debounce:  debounce,
		throttle:  throttle,
		keyFunc:   keyFunc,
		out:       out,
		logger:    logger,
		debounced: make(map[string]*debounceEntry),
		throttled: make(map[string]*throttleEntry),
		done:      make(chan struct{}),
	}
}

// quietPeriod is how long an idle key's bookkeeping survives before the GC
// sweep reclaims it — spec.md §4.3: max(debounce, throttle) * 4.
func (c *Coalescer) quietPeriod() time.Duration {
	d := c.debounce
	if c.throttle > d {
		d = c.throttle
	}
	if d == 0 {
		return 0
	}
	return d * 4
}

// Run consumes in until it closes or ctx is cancelled, starts the GC sweep
// (a robfig/cron @every job — this spec has no cron-scheduled spy type, so
// the library's only remaining home is this periodic map cleanup), and
// cancels all pending timers on exit, discarding events still held for
// debounce.
func (c *Coalescer) Run(ctx context.Context, in <-chan spyevent.Event) error {
	if quiet := c.quietPeriod(); quiet > 0 {
		c.gc = cron.New()
		spec := "@every " + quiet.String()
		if _, err := c.gc.AddFunc(spec, c.sweep); err != nil {
			if c.logger != nil {
				c.logger.Error("coalescer gc schedule failed", "spy", c.spyName, "error", err)
			}
		} else {
			c.gc.Start()
			defer c.gc.Stop()
		}
	}

	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			c.admit(ev)
		}
	}
}

func (c *Coalescer) admit(ev spyevent.Event) {
	key := c.keyFunc(ev)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}

	if c.debounce == 0 {
		c.mu.Unlock()
		c.gate(key, ev)
		return
	}

	if entry, exists := c.debounced[key]; exists {
		entry.timer.Stop()
		entry.event = ev
		entry.touchedAt = time.Now()
		entry.timer = time.AfterFunc(c.debounce, func() {
			c.fireDebounced(key)
		})
		c.mu.Unlock()
		return
	}

	entry := &debounceEntry{event: ev, touchedAt: time.Now()}
	entry.timer = time.AfterFunc(c.debounce, func() {
		c.fireDebounced(key)
	})
	c.debounced[key] = entry
	c.mu.Unlock()
}

func (c *Coalescer) fireDebounced(key string) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	entry, exists := c.debounced[key]
	if !exists {
		c.mu.Unlock()
		return
	}
	delete(c.debounced, key)
	ev := entry.event
	c.mu.Unlock()

	c.gate(key, ev)
}

// gate applies the throttle stage and, if the event survives, sends it to
// out. Events that lose the throttle race are dropped, not queued.
func (c *Coalescer) gate(key string, ev spyevent.Event) {
	now := time.Now()

	if c.throttle > 0 {
		c.mu.Lock()
		entry, tracked := c.throttled[key]
		if tracked && now.Sub(entry.lastEmitAt) < c.throttle {
			c.mu.Unlock()
			if c.logger != nil {
				c.logger.Debug("coalescer throttled event", "spy", c.spyName, "key", key)
			}
			return
		}
		if !tracked {
			entry = &throttleEntry{}
			c.throttled[key] = entry
		}
		entry.lastEmitAt = now
		c.mu.Unlock()
	}

	// A debounce timer can fire concurrently with shutdown: by the time
	// this goroutine reaches the send, Run may have already returned and
	// the supervisor's deferred close(coalesced) may have run. Racing the
	// send against done (closed under the same lock that sets stopped)
	// turns that into a dropped event instead of a send-on-closed-channel
	// panic.
	select {
	case c.out <- ev:
	case <-c.done:
		if c.logger != nil {
			c.logger.Debug("coalescer dropped event after shutdown", "spy", c.spyName, "key", key)
		}
	}
}

func (c *Coalescer) sweep() {
	quiet := c.quietPeriod()
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.debounced {
		if now.Sub(entry.touchedAt) > quiet {
			entry.timer.Stop()
			delete(c.debounced, key)
		}
	}
	for key, entry := range c.throttled {
		if now.Sub(entry.lastEmitAt) > quiet {
			delete(c.throttled, key)
		}
	}
}

func (c *Coalescer) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	close(c.done)
	for key, entry := range c.debounced {
		entry.timer.Stop()
		delete(c.debounced, key)
	}
}
