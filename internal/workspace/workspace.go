// Package workspace tracks the files of a project: which source files exist
// on disk, and which are open in the editor with unsaved text.
package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/jward/solidex/internal/adapter"
)

// Default globs, relative to the project root.
var (
	DefaultInclude = []string{"**/*.sol"}
	DefaultExclude = []string{"node_modules/**", "lib/**", "out/**", "cache/**"}
)

// Overlay is the editor's copy of an open document.
type Overlay struct {
	Text    string
	Version int32
}

// Workspace is safe for concurrent use.
type Workspace struct {
	root      string
	include   []string
	exclude   []string
	readLimit int
	logger    *slog.Logger

	mu       sync.Mutex
	disk     map[string]bool
	overlays map[string]Overlay
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithInclude replaces the include globs.
func WithInclude(globs ...string) Option {
	return func(w *Workspace) { w.include = globs }
}

// WithExclude replaces the exclude globs.
func WithExclude(globs ...string) Option {
	return func(w *Workspace) { w.exclude = globs }
}

// WithReadLimit bounds how many files are read concurrently.
func WithReadLimit(n int) Option {
	return func(w *Workspace) { w.readLimit = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) { w.logger = l }
}

// New creates a workspace rooted at root. Nothing is read until Discover.
func New(root string, opts ...Option) *Workspace {
	w := &Workspace{
		root:      filepath.Clean(root),
		include:   DefaultInclude,
		exclude:   DefaultExclude,
		readLimit: 16,
		logger:    slog.New(slog.DiscardHandler),
		disk:      make(map[string]bool),
		overlays:  make(map[string]Overlay),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.readLimit < 1 {
		w.readLimit = 1
	}
	return w
}

// Root returns the project root.
func (w *Workspace) Root() string { return w.root }

// Match reports whether an absolute path belongs to the project: under the
// root, matched by an include glob and by no exclude glob.
func (w *Workspace) Match(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	rel = filepath.ToSlash(rel)
	return matchAny(w.include, rel) && !matchAny(w.exclude, rel)
}

func matchAny(globs []string, rel string) bool {
	for _, g := range globs {
		if g == "" {
			continue
		}
		if ok, err := doublestar.Match(g, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// Discover replaces the known disk files with a fresh listing. Inside a git
// checkout, git ls-files is used so ignored files stay out; otherwise the
// root is walked, skipping hidden directories.
func (w *Workspace) Discover(ctx context.Context) error {
	paths, err := w.gitListFiles(ctx)
	if err != nil {
		w.logger.Debug("git listing unavailable, walking", "root", w.root, "err", err)
		paths, err = w.walkListFiles()
		if err != nil {
			return err
		}
	}

	disk := make(map[string]bool, len(paths))
	for _, p := range paths {
		if w.Match(p) {
			disk[p] = true
		}
	}
	w.mu.Lock()
	w.disk = disk
	w.mu.Unlock()
	w.logger.Debug("workspace discovered", "root", w.root, "files", len(disk))
	return nil
}

func (w *Workspace) gitListFiles(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = w.root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		paths = append(paths, filepath.Join(w.root, line))
	}
	return paths, nil
}

func (w *Workspace) walkListFiles() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != w.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("workspace: walk: %w", err)
	}
	return paths, nil
}

// Open records or replaces the editor text of a document.
func (w *Workspace) Open(path, text string, version int32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.overlays[filepath.Clean(path)] = Overlay{Text: text, Version: version}
}

// Close drops a document's overlay; the disk copy, if any, takes over. It
// reports whether an overlay existed.
func (w *Workspace) Close(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	path = filepath.Clean(path)
	_, ok := w.overlays[path]
	delete(w.overlays, path)
	return ok
}

// Overlay returns the open-document state of path.
func (w *Workspace) Overlay(path string) (Overlay, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	o, ok := w.overlays[filepath.Clean(path)]
	return o, ok
}

// Apply re-stats paths reported as added, removed or modified on disk and
// reports whether the project's file set or contents may have changed.
func (w *Workspace) Apply(paths []string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := false
	for _, p := range paths {
		p = filepath.Clean(p)
		if !w.Match(p) {
			continue
		}
		info, err := os.Stat(p)
		switch {
		case err == nil && info.Mode().IsRegular():
			w.disk[p] = true
			changed = true
		case w.disk[p]:
			delete(w.disk, p)
			changed = true
		}
	}
	return changed
}

// Files returns every project path, on disk or open, sorted.
func (w *Workspace) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filesLocked()
}

func (w *Workspace) filesLocked() []string {
	set := make(map[string]bool, len(w.disk)+len(w.overlays))
	for p := range w.disk {
		set[p] = true
	}
	for p := range w.overlays {
		set[p] = true
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Capture freezes the current file list and overlay texts. Edits made after
// Capture returns do not affect it.
func (w *Workspace) Capture() *Capture {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := &Capture{
		root:      w.root,
		paths:     w.filesLocked(),
		overlays:  make(map[string]Overlay, len(w.overlays)),
		readLimit: w.readLimit,
	}
	for p, o := range w.overlays {
		c.overlays[p] = o
	}
	return c
}

// Capture is a frozen view of the workspace for one rebuild.
type Capture struct {
	root      string
	paths     []string
	overlays  map[string]Overlay
	readLimit int
}

// Load produces the analysis request: overlay text for open documents and
// disk contents for the rest, read concurrently. Files deleted since the
// capture are skipped.
func (c *Capture) Load(ctx context.Context) (adapter.Project, error) {
	files := make([]*adapter.SourceFile, len(c.paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.readLimit)
	for i, p := range c.paths {
		if o, ok := c.overlays[p]; ok {
			files[i] = &adapter.SourceFile{Path: p, Text: o.Text, Version: o.Version}
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(p)
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("workspace: read %s: %w", p, err)
			}
			files[i] = &adapter.SourceFile{Path: p, Text: string(data)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return adapter.Project{}, err
	}

	p := adapter.Project{Root: c.root, Files: make([]adapter.SourceFile, 0, len(files))}
	for _, f := range files {
		if f != nil {
			p.Files = append(p.Files, *f)
		}
	}
	return p, nil
}
