package watcher_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/proxyguard/core/watcher"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startWatcher(t *testing.T, rulesFile string, reload func(context.Context) error) context.CancelFunc {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	w := watcher.New(watcher.Config{
		RulesFile: rulesFile,
		Settle:    50 * time.Millisecond,
	}, reload, discardLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the fsnotify watch a moment to attach before events fire.
	time.Sleep(100 * time.Millisecond)
	return cancel
}

func TestRunReloadsOnRulesChange(t *testing.T) {
	dir := t.TempDir()
	rulesFile := filepath.Join(dir, "proxy_rules.conf")
	require.NoError(t, os.WriteFile(rulesFile, []byte("# rules\n"), 0o644))

	var reloads atomic.Int32
	startWatcher(t, rulesFile, func(context.Context) error {
		reloads.Add(1)
		return nil
	})

	require.NoError(t, os.WriteFile(rulesFile, []byte("# updated\n"), 0o644))

	require.Eventually(t, func() bool {
		return reloads.Load() == 1
	}, 3*time.Second, 20*time.Millisecond, "expected exactly one reload after a settled write")
}

func TestRunDebouncesWriteBursts(t *testing.T) {
	dir := t.TempDir()
	rulesFile := filepath.Join(dir, "proxy_rules.conf")
	require.NoError(t, os.WriteFile(rulesFile, []byte("# rules\n"), 0o644))

	var reloads atomic.Int32
	startWatcher(t, rulesFile, func(context.Context) error {
		reloads.Add(1)
		return nil
	})

	// Several writes in quick succession must collapse into one reload.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(rulesFile, []byte("# burst\n"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return reloads.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)

	// No further reloads may trail in after the settle window.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), reloads.Load())
}

func TestRunIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	rulesFile := filepath.Join(dir, "proxy_rules.conf")
	require.NoError(t, os.WriteFile(rulesFile, []byte("# rules\n"), 0o644))

	var reloads atomic.Int32
	startWatcher(t, rulesFile, func(context.Context) error {
		reloads.Add(1)
		return nil
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.conf"), []byte("x"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), reloads.Load())
}

func TestRunSurvivesReloadFailure(t *testing.T) {
	dir := t.TempDir()
	rulesFile := filepath.Join(dir, "proxy_rules.conf")
	require.NoError(t, os.WriteFile(rulesFile, []byte("# rules\n"), 0o644))

	var reloads atomic.Int32
	startWatcher(t, rulesFile, func(context.Context) error {
		if reloads.Add(1) == 1 {
			return errors.New("validation failed")
		}
		return nil
	})

	require.NoError(t, os.WriteFile(rulesFile, []byte("# bad edit\n"), 0o644))
	require.Eventually(t, func() bool { return reloads.Load() == 1 }, 3*time.Second, 20*time.Millisecond)

	// The watcher must keep watching after a failed reload.
	require.NoError(t, os.WriteFile(rulesFile, []byte("# fixed\n"), 0o644))
	require.Eventually(t, func() bool { return reloads.Load() == 2 }, 3*time.Second, 20*time.Millisecond)
}

func TestRunReturnsOnCancellation(t *testing.T) {
	dir := t.TempDir()
	rulesFile := filepath.Join(dir, "proxy_rules.conf")
	require.NoError(t, os.WriteFile(rulesFile, []byte("# rules\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	w := watcher.New(watcher.Config{RulesFile: rulesFile, Settle: 50 * time.Millisecond},
		func(context.Context) error { return nil }, discardLogger())

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not observe cancellation")
	}
}
