// internal/pool/pool_test.go
package pool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spyrun/spyrun/internal/config"
	"github.com/spyrun/spyrun/internal/router"
)

func waitForFile(t *testing.T, dir string, timeout time.Duration) []os.DirEntry {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) > 0 {
			return entries
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no output file appeared under %s", dir)
	return nil
}

func TestPoolRunsCommandAndCapturesOutput(t *testing.T) {
	outDir := t.TempDir()
	p := New(2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	outputFile := filepath.Join(outDir, "spy", "stem")
	p.Submit(ctx, Task{
		Spec: router.CommandSpec{
			Cmd:        "echo",
			Args:       []string{"hello"},
			Cwd:        outDir,
			OutputFile: outputFile,
		},
		SpyName: "spy",
	})

	entries := waitForFile(t, outputFile, time.Second)
	require.Len(t, entries, 1)

	// The log file is created before the command starts; Stop waits for the
	// running task to finish, so its output is complete before it is read.
	p.Stop()

	content, err := os.ReadFile(filepath.Join(outputFile, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(content), "hello")
}

func TestPoolDefaultsSizeToNumCPU(t *testing.T) {
	p := New(0, nil)
	assert.Greater(t, p.size, 0)
}

func TestPoolSurvivesFailingCommand(t *testing.T) {
	outDir := t.TempDir()
	p := New(1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	outputFile := filepath.Join(outDir, "spy", "stem")
	p.Submit(ctx, Task{
		Spec: router.CommandSpec{
			Cmd:        "false",
			Cwd:        outDir,
			OutputFile: outputFile,
		},
		SpyName: "spy",
	})

	// the pool itself must still be usable after a failing command
	outputFile2 := filepath.Join(outDir, "spy2", "stem")
	p.Submit(ctx, Task{
		Spec: router.CommandSpec{
			Cmd:        "echo",
			Args:       []string{"still alive"},
			Cwd:        outDir,
			OutputFile: outputFile2,
		},
		SpyName: "spy2",
	})

	waitForFile(t, outputFile2, time.Second)
	p.Stop()
}

func TestPoolAppliesDelayBeforeRunning(t *testing.T) {
	outDir := t.TempDir()
	p := New(1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	outputFile := filepath.Join(outDir, "spy", "stem")
	start := time.Now()
	p.Submit(ctx, Task{
		Spec: router.CommandSpec{
			Cmd:        "echo",
			Args:       []string{"delayed"},
			Cwd:        outDir,
			OutputFile: outputFile,
		},
		SpyName: "spy",
		Delay:   config.Delay{60},
	})

	waitForFile(t, outputFile, time.Second)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestPoolSubmitDoesNotBlockOnSaturatedPool(t *testing.T) {
	outDir := t.TempDir()
	p := New(1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	// One worker, busy for a while on the first task, should not make a
	// second Submit block — the backlog absorbs it, bounded only by
	// memory, not by the number of idle workers.
	p.Submit(ctx, Task{
		Spec: router.CommandSpec{
			Cmd:        "sleep",
			Args:       []string{"1"},
			Cwd:        outDir,
			OutputFile: filepath.Join(outDir, "spy1", "stem"),
		},
		SpyName: "spy1",
	})

	done := make(chan struct{})
	go func() {
		p.Submit(ctx, Task{
			Spec: router.CommandSpec{
				Cmd:        "echo",
				Args:       []string{"queued"},
				Cwd:        outDir,
				OutputFile: filepath.Join(outDir, "spy2", "stem"),
			},
			SpyName: "spy2",
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Submit blocked on a saturated pool")
	}
}

func TestPoolAbortsDelayOnShutdown(t *testing.T) {
	outDir := t.TempDir()
	p := New(1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	outputFile := filepath.Join(outDir, "spy", "stem")
	p.Submit(ctx, Task{
		Spec: router.CommandSpec{
			Cmd:        "echo",
			Args:       []string{"never"},
			Cwd:        outDir,
			OutputFile: outputFile,
		},
		SpyName: "spy",
		Delay:   config.Delay{5000},
	})

	time.Sleep(20 * time.Millisecond)
	cancel()
	p.Stop()

	_, err := os.ReadDir(outputFile)
	assert.True(t, os.IsNotExist(err))
}
