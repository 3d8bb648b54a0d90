// internal/pool/pool.go
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/spyrun/spyrun/internal/config"
	"github.com/spyrun/spyrun/internal/router"
	"github.com/spyrun/spyrun/internal/spyevent"
)

// Task is one dispatch: a resolved command plus the per-spy delay range and
// logging identity needed to run and record it.
type Task struct {
	Spec      router.CommandSpec
	SpyName   string
	EventStem string
	Delay     config.Delay
}

// Pool is the fixed-size worker pool that executes every spy's dispatched
// commands. Grounded in the teacher's Daemon.handleEvent/executeRule split
// (internal/daemon/daemon.go) and executor.Execute's exec.CommandContext +
// CombinedOutput pattern (internal/executor/claude.go), generalized from a
// single hardcoded "claude" binary to an arbitrary CommandSpec and from a
// per-rule timeout to the interruptible random-delay scheduling this spec
// calls for.
type Pool struct {
	size   int
	logger *slog.Logger

	in    chan Task // Submit sends here
	tasks chan Task // workers receive here, fed by buffer()
	wg    sync.WaitGroup
}

// New creates a pool sized to cfg.max_threads, defaulting to the logical
// CPU count when max_threads <= 0 (spec.md's explicit Open Question
// resolution).
func New(maxThreads int, logger *slog.Logger) *Pool {
	if maxThreads <= 0 {
		maxThreads = runtime.NumCPU()
	}
	return &Pool{
		size:   maxThreads,
		logger: logger,
		in:     make(chan Task),
		tasks:  make(chan Task),
	}
}

// Start launches the buffering goroutine and the worker goroutines. They
// run until ctx is cancelled and the task channel is closed, or Stop is
// called.
func (p *Pool) Start(ctx context.Context) {
	go p.buffer()
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Submit hands a task to the pool's unbounded backlog. It blocks only
// until the buffering goroutine accepts it, never until a worker is free
// — spec.md §4.5: the dispatch loop queues "without back-pressure to the
// source; bounded only by memory." Grounded on spyevent.Chan, which needs
// the same unbounded-MPSC shape for the same reason on the producer side.
func (p *Pool) Submit(ctx context.Context, t Task) {
	select {
	case p.in <- t:
	case <-ctx.Done():
	}
}

// buffer drains Submit's unbounded backlog into tasks, one task ahead of
// whatever a worker is ready to pull. It exits once Stop closes p.in and
// the backlog is empty, closing tasks so the workers return.
func (p *Pool) buffer() {
	defer close(p.tasks)

	var queue []Task
	in := p.in

	for in != nil || len(queue) > 0 {
		if len(queue) == 0 {
			t, ok := <-in
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, t)
			continue
		}

		select {
		case t, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, t)
		case p.tasks <- queue[0]:
			queue = queue[1:]
		}
	}
}

// Stop closes the submission side and blocks until every worker returns.
// While the ctx passed to Start is live (graceful shutdown), workers run the
// remaining backlog and their in-flight commands to completion before
// returning. Once that ctx is cancelled (force shutdown), workers return
// without starting queued tasks and exec.CommandContext kills running
// children.
func (p *Pool) Stop() {
	close(p.in)
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(ctx, id, t)
		case <-ctx.Done():
			return
		}
	}
}

// run never lets a single task's failure — bad command, write error, panic
// in logging — take the worker down; the pool must keep serving the other
// spies.
func (p *Pool) run(ctx context.Context, workerID int, t Task) {
	defer func() {
		if r := recover(); r != nil {
			if p.logger != nil {
				p.logger.Error("worker recovered from panic", "worker", workerID, "spy", t.SpyName, "panic", r)
			}
		}
	}()

	if d := spyevent.SampleDelay(t.Delay); d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return
		}
	}

	if ctx.Err() != nil {
		return
	}

	logFile, closeLog, err := p.openOutputLog(t)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("failed to open output log", "spy", t.SpyName, "error", err)
		}
		return
	}
	defer closeLog()

	cmd := exec.CommandContext(ctx, t.Spec.Cmd, t.Spec.Args...)
	cmd.Dir = t.Spec.Cwd
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	switch {
	case ctx.Err() != nil:
		if p.logger != nil {
			p.logger.Info("command aborted by shutdown", "spy", t.SpyName, "cmd", t.Spec.Display(), "duration", duration)
		}
	case runErr != nil:
		if p.logger != nil {
			p.logger.Warn("command exited non-zero", "spy", t.SpyName, "cmd", t.Spec.Display(), "duration", duration, "error", runErr)
		}
	default:
		if p.logger != nil {
			p.logger.Info("command completed", "spy", t.SpyName, "cmd", t.Spec.Display(), "duration", duration)
		}
	}
}

// openOutputLog creates <output_file>/<unix-nano>.log, making parent
// directories as needed. spec.md §6: "<output>/<spy>/<event_stem>/<ts>.log".
func (p *Pool) openOutputLog(t Task) (*os.File, func(), error) {
	if err := os.MkdirAll(t.Spec.OutputFile, 0o755); err != nil {
		return nil, func() {}, fmt.Errorf("pool: creating output dir: %w", err)
	}
	path := filepath.Join(t.Spec.OutputFile, fmt.Sprintf("%d.log", time.Now().UnixNano()))
	f, err := os.Create(path)
	if err != nil {
		return nil, func() {}, fmt.Errorf("pool: creating output log: %w", err)
	}
	return f, func() { f.Close() }, nil
}
