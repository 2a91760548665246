package execution

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handled struct {
	mu    sync.Mutex
	paths []string
}

func (h *handled) names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.paths))
	for i, p := range h.paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func startWatcher(t *testing.T, dir string, fn InboxHandler) *handled {
	t.Helper()

	h := &handled{}
	w := NewWatcher(dir, []string{"csv", ".ZIP"}, 50*time.Millisecond, func(ctx context.Context, path string) error {
		h.mu.Lock()
		h.paths = append(h.paths, path)
		h.mu.Unlock()
		return fn(ctx, path)
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	// Wait until the inbox subdirectories exist, i.e. Run has started.
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, FailedDir))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	return h
}

func TestWatcher_ExistingFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ventas.csv"), []byte("a\n1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notas.txt"), []byte("x"), 0o644))

	h := startWatcher(t, dir, func(context.Context, string) error { return nil })

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, ProcessedDir, "ventas.csv"))
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{"ventas.csv"}, h.names())
	assert.FileExists(t, filepath.Join(dir, "notas.txt"), "other extensions are ignored")
}

func TestWatcher_NewFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	h := startWatcher(t, dir, func(_ context.Context, path string) error {
		if filepath.Ext(path) == ".zip" {
			return errors.New("bad package")
		}
		return nil
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "clientes.csv"), []byte("a\n1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "envio.zip"), []byte("PK"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".oculto.csv"), []byte("a"), 0o644))

	require.Eventually(t, func() bool {
		_, errOK := os.Stat(filepath.Join(dir, ProcessedDir, "clientes.csv"))
		_, errBad := os.Stat(filepath.Join(dir, FailedDir, "envio.zip"))
		return errOK == nil && errBad == nil
	}, 3*time.Second, 20*time.Millisecond)

	assert.ElementsMatch(t, []string{"clientes.csv", "envio.zip"}, h.names())
	assert.FileExists(t, filepath.Join(dir, ".oculto.csv"))
}

func TestWatcher_SameNameTwice(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	h := startWatcher(t, dir, func(context.Context, string) error { return nil })
	processed := filepath.Join(dir, ProcessedDir)

	inbox := filepath.Join(dir, "ventas.csv")
	require.NoError(t, os.WriteFile(inbox, []byte("a\n1\n"), 0o644))
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(processed, "ventas.csv"))
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(inbox, []byte("a\n2\n"), 0o644))
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(processed)
		return err == nil && len(entries) == 2
	}, 3*time.Second, 20*time.Millisecond)

	first, err := os.ReadFile(filepath.Join(processed, "ventas.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a\n1\n", string(first), "the earlier file is kept")

	entries, err := os.ReadDir(processed)
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, strings.HasPrefix(e.Name(), "ventas") && strings.HasSuffix(e.Name(), ".csv"), e.Name())
	}
	assert.Len(t, h.names(), 2)
}

func TestMoveTarget(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, "ventas.csv"), moveTarget(dir, "ventas.csv"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ventas.csv"), nil, 0o644))
	got := moveTarget(dir, "ventas.csv")
	assert.NotEqual(t, filepath.Join(dir, "ventas.csv"), got)
	assert.Regexp(t, `ventas-[0-9a-f]{8}\.csv$`, got)
}

func TestWatcher_Matches(t *testing.T) {
	t.Parallel()

	w := NewWatcher(t.TempDir(), []string{".csv", " xlsx ", ""}, 0, nil, nil)

	assert.True(t, w.matches("a.csv"))
	assert.True(t, w.matches("A.CSV"))
	assert.True(t, w.matches("libro.xlsx"))
	assert.False(t, w.matches("libro.xls"))
	assert.False(t, w.matches(".tmp.csv"))

	assert.False(t, w.accepts(fsnotify.Event{Name: "a.csv", Op: fsnotify.Chmod}))
	assert.False(t, w.accepts(fsnotify.Event{Name: "a.csv", Op: fsnotify.Remove}))
	assert.True(t, w.accepts(fsnotify.Event{Name: "a.csv", Op: fsnotify.Write}))
}

func TestWatcher_RunTwice(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := NewWatcher(dir, []string{".csv"}, 0, func(context.Context, string) error { return nil }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.running
	}, time.Second, 5*time.Millisecond)

	require.Error(t, w.Run(ctx))
	cancel()
	require.NoError(t, <-done)
}
