// internal/shutdown/shutdown_test.go
package shutdown

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGracefulOnStopFlag(t *testing.T) {
	dir := t.TempDir()
	stopFlg := filepath.Join(dir, "stop")
	forceFlg := filepath.Join(dir, "stop-force")

	ctrl := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() { _ = ctrl.Run(ctx, stopFlg, forceFlg) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(stopFlg, []byte("x"), 0o644))

	select {
	case mode := <-ctrl.Signal():
		require.Equal(t, Graceful, mode)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for graceful signal")
	}
}

func TestForceOnStopForceFlag(t *testing.T) {
	dir := t.TempDir()
	stopFlg := filepath.Join(dir, "stop")
	forceFlg := filepath.Join(dir, "stop-force")

	ctrl := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() { _ = ctrl.Run(ctx, stopFlg, forceFlg) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(forceFlg, []byte("x"), 0o644))

	select {
	case mode := <-ctrl.Signal():
		require.Equal(t, Force, mode)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for force signal")
	}
}

func TestDecideOnlyFiresOnce(t *testing.T) {
	ctrl := New(nil)
	ctrl.decide(Graceful)
	ctrl.decide(Force) // no-op: decide only acts on its first call

	select {
	case mode := <-ctrl.Signal():
		require.Equal(t, Graceful, mode)
	default:
		t.Fatal("expected a buffered signal")
	}

	select {
	case <-ctrl.Signal():
		t.Fatal("expected no second signal")
	default:
	}
}
