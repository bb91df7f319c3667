package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/logging"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yml")
	require.NoError(t, os.WriteFile(path, []byte("whitelist:\n  commands: [say]\n"), 0o644))

	var reloads atomic.Int32
	cw, err := New(path, 50*time.Millisecond, func() error {
		reloads.Add(1)
		return nil
	}, logging.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = cw.Run(ctx) }()

	// Give the watcher time to establish before writing.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("whitelist:\n  commands: [say, list]\n"), 0o644))

	assert.Eventually(t, func() bool {
		return reloads.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))

	var reloads atomic.Int32
	cw, err := New(path, 150*time.Millisecond, func() error {
		reloads.Add(1)
		return nil
	}, logging.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = cw.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		return reloads.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)

	// The burst must have collapsed into far fewer reloads than writes.
	assert.LessOrEqual(t, reloads.Load(), int32(2))
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))

	var reloads atomic.Int32
	cw, err := New(path, 50*time.Millisecond, func() error {
		reloads.Add(1)
		return nil
	}, logging.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = cw.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yml"), []byte("b: 1\n"), 0o644))
	time.Sleep(300 * time.Millisecond)

	assert.Zero(t, reloads.Load())
}
