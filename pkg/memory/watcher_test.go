package memory

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setDebounce shortens the settle window for tests; schedule reads the field
// under the same lock.
func setDebounce(w *Watcher, d time.Duration) {
	w.mu.Lock()
	w.debounce = d
	w.mu.Unlock()
}

func TestWatcher_FiresOnNoteChange(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, EnsureNoteDirs(workspace))

	var fired atomic.Int64
	w, err := NewWatcher(zerolog.Nop(), func() { fired.Add(1) })
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop() })
	setDebounce(w, 50*time.Millisecond)

	require.NoError(t, w.Watch(workspace))

	require.NoError(t, os.WriteFile(filepath.Join(workspace, "MEMORY.md"), []byte("note"), 0o644))

	require.Eventually(t, func() bool {
		return fired.Load() >= 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresNonNoteFiles(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, EnsureNoteDirs(workspace))

	var fired atomic.Int64
	w, err := NewWatcher(zerolog.Nop(), func() { fired.Add(1) })
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop() })
	setDebounce(w, 50*time.Millisecond)

	require.NoError(t, w.Watch(workspace))

	require.NoError(t, os.WriteFile(filepath.Join(workspace, "scratch.txt"), []byte("junk"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, EnsureNoteDirs(workspace))

	var fired atomic.Int64
	w, err := NewWatcher(zerolog.Nop(), func() { fired.Add(1) })
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop() })
	setDebounce(w, 200*time.Millisecond)

	require.NoError(t, w.Watch(workspace))

	path := filepath.Join(workspace, "memory", "daily.md")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("rev"), 0o644))
		time.Sleep(20 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return fired.Load() >= 1
	}, 5*time.Second, 10*time.Millisecond)

	// The burst collapsed into a single sync pass.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int64(1), fired.Load())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(zerolog.Nop(), func() {})
	require.NoError(t, err)
	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
