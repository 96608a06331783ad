package solidex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"go.lsp.dev/uri"

	"github.com/jward/solidex/internal/adapter"
	"github.com/jward/solidex/internal/config"
	"github.com/jward/solidex/internal/model"
	"github.com/jward/solidex/internal/runtime"
	"github.com/jward/solidex/internal/snapshot"
	"github.com/jward/solidex/internal/store"
	"github.com/jward/solidex/internal/watch"
	"github.com/jward/solidex/internal/workspace"
)

// Engine keeps one project's snapshot current: it tracks open documents and
// disk changes, schedules rebuilds and hands out query builders.
type Engine struct {
	root      string
	cfg       *config.Config
	logger    *slog.Logger
	scriptsFS fs.FS

	ws       *workspace.Workspace
	adapter  *adapter.Adapter
	runtime  *runtime.Runtime
	snapshot *snapshot.Manager
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration. Load it with config.Load to
// honour .solidex.yaml and the environment.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithScriptsFS loads detector scripts from fsys instead of the configured
// scripts directory. This enables embedding scripts via go:embed.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// New creates an Engine for the project at root. Nothing is analyzed until
// Load or the first change notification.
func New(root string, analyzer adapter.Analyzer, opts ...Option) (*Engine, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("solidex: resolve root: %w", err)
	}
	e := &Engine{
		root:   abs,
		cfg:    config.Default(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("solidex: %w", err)
	}

	e.ws = workspace.New(abs,
		workspace.WithInclude(e.cfg.Include...),
		workspace.WithExclude(e.cfg.Exclude...),
		workspace.WithLogger(e.logger),
	)
	e.adapter = adapter.New(analyzer, adapter.WithLogger(e.logger))

	// Build Runtime with the appropriate script source.
	rtOpts := []runtime.RuntimeOption{runtime.WithLogger(e.logger)}
	scriptsDir := e.cfg.Detectors.ScriptsDir
	if e.scriptsFS != nil {
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.scriptsFS))
	} else if scriptsDir != "" && !filepath.IsAbs(scriptsDir) {
		scriptsDir = filepath.Join(abs, scriptsDir)
	}
	e.runtime = runtime.NewRuntime(scriptsDir, rtOpts...)

	e.snapshot = snapshot.NewManager(e.build,
		snapshot.WithDebounce(e.cfg.Debounce),
		snapshot.WithLogger(e.logger),
	)
	return e, nil
}

// Root returns the absolute project root.
func (e *Engine) Root() string { return e.root }

// Config returns the engine's configuration. Callers must not modify it.
func (e *Engine) Config() *config.Config { return e.cfg }

// build is the rebuild pipeline for one generation.
func (e *Engine) build(ctx context.Context, gen uint64) (*snapshot.Snapshot, error) {
	log := e.logger.With(slog.Uint64("generation", gen))

	p, err := e.ws.Capture().Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("solidex: capture: %w", err)
	}

	m, err := e.adapter.BuildModel(ctx, p)
	if err != nil {
		if errors.Is(err, model.ErrInconsistent) {
			log.Error("analyzer output is internally inconsistent", slog.Any("err", err))
		}
		return nil, fmt.Errorf("solidex: build model: %w", err)
	}

	extra, err := e.runtime.RunDetectors(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("solidex: detectors: %w", err)
	}

	snap := snapshot.Assemble(gen, m, extra, e.cfg.Hierarchy.MaxDepth)
	for _, cycle := range snap.Types.Cycles() {
		log.Error("inheritance cycle", slog.Any("contracts", cycle))
	}
	return snap, nil
}

// Load discovers the project files and builds the first snapshot, waiting
// for it. An analysis failure is returned but leaves the engine usable.
func (e *Engine) Load(ctx context.Context) error {
	if err := e.ws.Discover(ctx); err != nil {
		return fmt.Errorf("solidex: discover: %w", err)
	}
	_, err := e.snapshot.Wait(ctx, e.snapshot.RequestNow())
	return err
}

// OnDocumentChanged records the editor text of a document and schedules a
// debounced rebuild. It returns the generation that will reflect the edit.
func (e *Engine) OnDocumentChanged(u uri.URI, text string, version int32) uint64 {
	path, ok := pathOf(u)
	if !ok {
		return e.snapshot.Target()
	}
	e.ws.Open(path, text, version)
	return e.snapshot.Request()
}

// OnDocumentClosed drops a document's editor text; its disk copy, if any,
// takes over. A rebuild is scheduled only if the document was open.
func (e *Engine) OnDocumentClosed(u uri.URI) uint64 {
	path, ok := pathOf(u)
	if !ok || !e.ws.Close(path) {
		return e.snapshot.Target()
	}
	return e.snapshot.Request()
}

// OnProjectFilesChanged re-checks paths that were added, removed or modified
// on disk and schedules a rebuild when any of them belongs to the project.
func (e *Engine) OnProjectFilesChanged(paths []string) uint64 {
	if !e.ws.Apply(paths) {
		return e.snapshot.Target()
	}
	return e.snapshot.Request()
}

// Watch feeds disk changes under the root into OnProjectFilesChanged until
// ctx is cancelled. Excluded directories are not watched.
func (e *Engine) Watch(ctx context.Context) error {
	w, err := watch.New(e.root,
		func(paths []string) { e.OnProjectFilesChanged(paths) },
		watch.WithFilter(e.ws.Match),
		watch.WithIgnore(e.cfg.Exclude...),
		watch.WithLogger(e.logger),
	)
	if err != nil {
		return fmt.Errorf("solidex: %w", err)
	}
	e.logger.Info("watching for changes", slog.String("root", e.root))
	return w.Run(ctx)
}

// Reanalyze schedules an immediate rebuild regardless of changes.
func (e *Engine) Reanalyze() uint64 {
	return e.snapshot.RequestNow()
}

// Wait blocks until generation gen, or a later one, has settled. See
// snapshot.Manager.Wait.
func (e *Engine) Wait(ctx context.Context, gen uint64) (*Snapshot, error) {
	return e.snapshot.Wait(ctx, gen)
}

// Snapshot returns the currently published snapshot.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Current()
}

// LastFailure returns the most recent failed rebuild, or nil.
func (e *Engine) LastFailure() *Failure {
	return e.snapshot.LastFailure()
}

// Query returns a QueryBuilder bound to the current snapshot. Hold on to it
// for the duration of one request so every answer comes from the same
// generation.
func (e *Engine) Query() *QueryBuilder {
	return newQueryBuilder(e.snapshot.Current(), e.cfg.Hierarchy.MaxItems)
}

// Export writes the current snapshot to a SQLite database at dbPath,
// replacing its previous contents.
func (e *Engine) Export(ctx context.Context, dbPath string) (store.ExportStats, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return store.ExportStats{}, fmt.Errorf("solidex: export: %w", err)
	}
	defer s.Close()
	if err := s.Migrate(); err != nil {
		return store.ExportStats{}, fmt.Errorf("solidex: export: %w", err)
	}

	snap := e.snapshot.Current()
	meta := map[string]string{
		"root":       e.root,
		"analyzer":   e.cfg.Analyzer.Name,
		"generation": strconv.FormatUint(snap.Generation, 10),
		"snapshot":   snap.ID.String(),
		"built_at":   snap.BuiltAt.UTC().Format(time.RFC3339),
	}
	if h, err := e.runtime.Hash(); err == nil {
		meta["scripts_hash"] = h
	} else {
		e.logger.Warn("hashing detector scripts", slog.Any("err", err))
	}

	stats, err := s.Export(ctx, snap.Model, snap.Findings.Findings(FindingFilter{}), meta)
	if err != nil {
		return stats, fmt.Errorf("solidex: %w", err)
	}
	return stats, nil
}

// Close stops rebuilding. Any in-flight rebuild is abandoned without
// publishing; the last snapshot stays readable.
func (e *Engine) Close() error {
	e.snapshot.Stop()
	return nil
}
