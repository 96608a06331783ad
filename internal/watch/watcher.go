// Package watch reports file system changes under a project root, batched
// with a debounce so a burst of writes becomes one notification.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before pending changes are flushed.
const DefaultDebounce = 200 * time.Millisecond

// OnChangeFunc receives the absolute paths created, modified, removed or
// renamed since the previous call, sorted.
type OnChangeFunc func(paths []string)

// Watcher watches a directory tree.
type Watcher struct {
	root     string
	debounce time.Duration
	ignore   []string
	filter   func(path string) bool
	onChange OnChangeFunc
	logger   *slog.Logger
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Zero flushes on every event.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithIgnore adds doublestar globs, relative to the root, for directories
// that are never watched. A trailing "/**" is implied.
func WithIgnore(globs ...string) Option {
	return func(w *Watcher) { w.ignore = append(w.ignore, globs...) }
}

// WithFilter keeps only file paths for which keep returns true.
func WithFilter(keep func(path string) bool) Option {
	return func(w *Watcher) { w.filter = keep }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a watcher for root. Nothing is watched until Run.
func New(root string, onChange OnChangeFunc, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve root: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		root:     abs,
		debounce: DefaultDebounce,
		onChange: onChange,
		logger:   slog.New(slog.DiscardHandler),
		fsw:      fsw,
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches until ctx is cancelled or Stop is called. It returns ctx.Err()
// on cancellation and nil after Stop.
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := w.walk(w.root); err != nil {
		w.Stop()
		return fmt.Errorf("watch: %w", err)
	}

	w.wg.Add(1)
	go w.loop(ctx)

	select {
	case <-ctx.Done():
		w.Stop()
		return ctx.Err()
	case <-w.done:
		return nil
	}
}

// Stop ends watching. Pending changes are dropped. Stop is idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		w.fsw.Close()

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.pending = make(map[string]struct{})
		w.mu.Unlock()
	})
}

// WatchedDirs returns the number of directories being watched.
func (w *Watcher) WatchedDirs() int {
	return len(w.fsw.WatchList())
}

// walk watches dir and every directory below it that is not ignored. It
// returns the files found so a directory that appeared with content already
// in it can be reported.
func (w *Watcher) walk(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Debug("watch: skipping unreadable path", "path", path, "err", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, path)
			return nil
		}
		if path != w.root && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("watch: cannot watch directory", "path", path, "err", err)
		}
		return nil
	})
	return files, err
}

// ignored reports whether a directory is hidden or matches an ignore glob.
func (w *Watcher) ignored(dir string) bool {
	if strings.HasPrefix(filepath.Base(dir), ".") {
		return true
	}
	rel, err := filepath.Rel(w.root, dir)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	for _, g := range w.ignore {
		g = strings.TrimSuffix(g, "/**")
		if ok, err := doublestar.Match(g, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch: fsnotify error", "err", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	paths := []string{ev.Name}
	if ev.Op.Has(fsnotify.Create) {
		// A new directory: watch it and report whatever landed in it before
		// the watch was in place.
		if files, err := w.walk(ev.Name); err == nil && len(files) > 0 {
			paths = files
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	added := false
	for _, p := range paths {
		if w.filter != nil && !w.filter(p) {
			continue
		}
		w.pending[p] = struct{}{}
		added = true
	}
	if !added {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.timer = nil
	w.mu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}
	sort.Strings(paths)
	w.logger.Debug("watch: changes", "paths", len(paths))
	if w.onChange != nil {
		w.onChange(paths)
	}
}
