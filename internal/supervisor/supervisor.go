// internal/supervisor/supervisor.go
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/spyrun/spyrun/internal/coalesce"
	"github.com/spyrun/spyrun/internal/config"
	"github.com/spyrun/spyrun/internal/logging"
	"github.com/spyrun/spyrun/internal/pool"
	"github.com/spyrun/spyrun/internal/router"
	"github.com/spyrun/spyrun/internal/shutdown"
	"github.com/spyrun/spyrun/internal/spyevent"
	"github.com/spyrun/spyrun/internal/template"
)

// Supervisor loads a config, runs init once, constructs every spy's
// pipeline (sources → coalescer → router → pool), and owns the shutdown
// controller. Grounded on the teacher's Daemon (internal/daemon/daemon.go):
// its single `for { select { case event := <-d.events: ...; case
// <-ctx.Done(): d.wg.Wait(); return d.shutdown() } }` loop is the template
// for this package's two-context graceful/force split, generalized from one
// shared event channel across all rules to one channel per spy.
type Supervisor struct {
	cfg    *config.Config
	engine *template.Engine
	logger *slog.Logger

	wg sync.WaitGroup
}

// New creates a Supervisor over an already-loaded, already-validated
// config and its template engine (see internal/config.Load).
func New(cfg *config.Config, engine *template.Engine, logger *slog.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, engine: engine, logger: logger}
}

// Run blocks until the shutdown controller decides a Mode (or ctx is
// cancelled from outside, e.g. in tests) and every started goroutine has
// wound down. It always returns nil: init command failures are logged, not
// returned (spec.md §4.6: "non-zero exit does not abort startup").
func (s *Supervisor) Run(ctx context.Context) error {
	s.runInit()

	// sourceCtx gates every producer, the coalescer, and new submissions
	// into the pool — cancelled on both Graceful and Force, since neither
	// mode keeps admitting new work. execCtx additionally gates the pool's
	// running child processes — cancelled ONLY on Force, so Graceful can
	// let in-flight commands finish (spec.md §4.6, §5 "Cancellation").
	sourceCtx, sourceCancel := context.WithCancel(ctx)
	defer sourceCancel()
	execCtx, execCancel := context.WithCancel(ctx)
	defer execCancel()

	p := pool.New(s.cfg.Cfg.MaxThreads, s.logger)
	p.Start(execCtx)

	for _, spy := range s.cfg.Spys {
		s.wg.Add(1)
		go s.runSpy(sourceCtx, spy, p)
	}

	ctrl := shutdown.New(s.logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := ctrl.Run(ctx, s.cfg.Cfg.StopFlg, s.cfg.Cfg.StopForceFlg); err != nil && s.logger != nil {
			s.logger.Debug("shutdown controller stopped", "error", err)
		}
	}()

	select {
	case mode := <-ctrl.Signal():
		if s.logger != nil {
			s.logger.Info("shutting down", "mode", mode.String())
		}
		sourceCancel()
		if mode == shutdown.Force {
			execCancel()
		}
	case <-ctx.Done():
		sourceCancel()
		execCancel()
	}

	// Every spy's runSpy goroutine (tracked in s.wg) can be inside p.Submit,
	// selecting on a send to the pool's submission channel. Closing that
	// channel (p.Stop) while one of those is still selecting on it would
	// race a send-on-closed-channel panic against ctx.Done() winning the
	// select. sourceCancel/execCancel above only signal those goroutines to
	// stop; they must actually finish submitting before the channel closes.
	s.wg.Wait()
	p.Stop()

	return nil
}

// runInit runs cfg.Init.Cmd synchronously and blocks until it exits.
// spec.md §4.6: non-zero exit is logged, never fatal to startup.
func (s *Supervisor) runInit() {
	if s.cfg.Init.Cmd == "" {
		return
	}

	cmd := exec.Command(s.cfg.Init.Cmd, s.cfg.Init.Arg...)
	if err := cmd.Run(); err != nil {
		if s.logger != nil {
			s.logger.Warn("init command failed", "cmd", s.cfg.Init.Cmd, "error", err)
		}
		return
	}
	if s.logger != nil {
		s.logger.Info("init command completed", "cmd", s.cfg.Init.Cmd)
	}
}

// runSpy wires one spy's producers → coalescer → router → pool dispatch.
// It returns once ctx is cancelled and every stage it started has drained.
func (s *Supervisor) runSpy(ctx context.Context, spy *config.Spy, p *pool.Pool) {
	defer s.wg.Done()

	spyLogger := logging.WithSpy(s.logger, spy.Name)
	rt := router.New(s.engine)

	raw := spyevent.NewChan()

	var producers sync.WaitGroup
	producers.Add(3)
	go func() {
		defer producers.Done()
		if err := spyevent.NewFsNotifier(spyLogger).Run(ctx, spy, raw.In()); err != nil && spyLogger != nil {
			spyLogger.Debug("fs notifier stopped", "error", err)
		}
	}()
	go func() {
		defer producers.Done()
		if err := spyevent.NewPoller(spyLogger).Run(ctx, spy, raw.In()); err != nil && spyLogger != nil {
			spyLogger.Debug("poller stopped", "error", err)
		}
	}()
	go func() {
		defer producers.Done()
		if err := spyevent.NewWalker(spyLogger).Run(ctx, spy, raw.In()); err != nil && spyLogger != nil {
			spyLogger.Debug("walker stopped", "error", err)
		}
	}()

	// Close the unbounded buffer's send side once every producer has
	// returned, so the coalescer's range over raw.Out() terminates instead
	// of blocking forever on a channel nothing will ever write to again.
	go func() {
		producers.Wait()
		raw.Close()
	}()

	coalesced := make(chan spyevent.Event)
	keyFn := s.keyFunc(spy, rt)
	debounce := time.Duration(spy.DebounceMs) * time.Millisecond
	throttle := time.Duration(spy.ThrottleMs) * time.Millisecond
	c := coalesce.New(spy.Name, debounce, throttle, keyFn, coalesced, spyLogger)

	var coalescerDone sync.WaitGroup
	coalescerDone.Add(1)
	go func() {
		defer coalescerDone.Done()
		defer close(coalesced)
		if err := c.Run(ctx, raw.Out()); err != nil && spyLogger != nil {
			spyLogger.Debug("coalescer stopped", "error", err)
		}
	}()

	for ev := range coalesced {
		specs, errs := rt.Match(spy, ev)
		for _, err := range errs {
			if spyLogger != nil {
				spyLogger.Error("template resolve failed, dropping dispatch", "error", err)
			}
		}
		for _, spec := range specs {
			p.Submit(ctx, pool.Task{
				Spec:      spec,
				SpyName:   spy.Name,
				EventStem: ev.Stem,
				Delay:     spy.Delay,
			})
		}
	}

	coalescerDone.Wait()
}

// keyFunc builds the per-spy coalescing key function: the templated
// limitkey when configured, or the router's default (first matching
// command's display form) otherwise — spec.md §3's Spy.limitkey default.
func (s *Supervisor) keyFunc(spy *config.Spy, rt *router.Router) coalesce.KeyFunc {
	if spy.LimitKey == "" {
		return func(ev spyevent.Event) string {
			return rt.DefaultKey(spy, ev)
		}
	}

	site := fmt.Sprintf("spy %s limitkey", spy.Name)
	return func(ev spyevent.Event) string {
		key, err := s.engine.Expand(spy.LimitKey, site, ev.TemplateContext())
		if err != nil {
			if s.logger != nil {
				s.logger.Error("limitkey template resolve failed, falling back to default key", "spy", spy.Name, "error", err)
			}
			return rt.DefaultKey(spy, ev)
		}
		return key
	}
}
