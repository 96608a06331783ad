package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) record(paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, paths)
}

func (r *recorder) seen(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		for _, p := range c {
			if p == path {
				return true
			}
		}
	}
	return false
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		out = append(out, c...)
	}
	return out
}

func isSol(p string) bool { return strings.HasSuffix(p, ".sol") }

// startWatcher runs a watcher in the background and stops it at cleanup.
func startWatcher(t *testing.T, root string, opts ...Option) (*Watcher, *recorder) {
	t.Helper()
	rec := &recorder{}
	w, err := New(root, rec.record, append([]Option{WithDebounce(20 * time.Millisecond)}, opts...)...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errc
	})
	require.Eventually(t, func() bool { return w.WatchedDirs() > 0 }, 2*time.Second, 10*time.Millisecond)
	return w, rec
}

// writeUntilSeen rewrites path until the recorder reports it, which rides
// out the gap between Run starting and the watches being in place.
func writeUntilSeen(t *testing.T, rec *recorder, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("contract A {}\n"), 0o644)
		return rec.seen(path)
	}, 5*time.Second, 50*time.Millisecond)
}

// =============================================================================
// Change detection
// =============================================================================

func TestWatcher_ReportsFilteredFiles(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	_, rec := startWatcher(t, root, WithFilter(isSol))

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	writeUntilSeen(t, rec, filepath.Join(root, "A.sol"))

	for _, p := range rec.all() {
		assert.True(t, isSol(p), p)
	}
}

func TestWatcher_NewDirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	_, rec := startWatcher(t, root, WithFilter(isSol))

	writeUntilSeen(t, rec, filepath.Join(root, "src", "nested", "B.sol"))
}

func TestWatcher_Removal(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	path := filepath.Join(root, "C.sol")
	require.NoError(t, os.WriteFile(path, []byte("contract C {}\n"), 0o644))
	_, rec := startWatcher(t, root, WithFilter(isSol))

	// Make sure the watch is live before removing.
	writeUntilSeen(t, rec, filepath.Join(root, "Touched.sol"))
	require.NoError(t, os.Remove(path))
	assert.Eventually(t, func() bool { return rec.seen(path) }, 5*time.Second, 20*time.Millisecond)
}

// =============================================================================
// Ignore rules
// =============================================================================

func TestWatcher_Ignored(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	w, err := New(root, nil, WithIgnore("node_modules/**", "lib"))
	require.NoError(t, err)
	defer w.Stop()

	tests := []struct {
		dir  string
		want bool
	}{
		{"node_modules", true},
		{"lib", true},
		{".git", true},
		{"src/.cache", true},
		{"src", false},
		{"src/lib", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.ignored(filepath.Join(root, tt.dir)), tt.dir)
	}
}

func TestWatcher_IgnoredDirectoryNotWatched(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))

	w, _ := startWatcher(t, root, WithIgnore("node_modules/**"))
	require.Eventually(t, func() bool { return w.WatchedDirs() == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, w.WatchedDirs(), "root and src only")
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	w, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	w.Stop()
	w.Stop()
}
