package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/solidex"
	"github.com/jward/solidex/internal/adapter"
	"github.com/jward/solidex/internal/config"
	"github.com/jward/solidex/scripts"
)

// AnalyzerFactory builds the analyzer for a project root.
type AnalyzerFactory func(cfg *config.Config, root string) (adapter.Analyzer, error)

// app holds the flag values of one command tree.
type app struct {
	root       string
	format     string
	logLevel   string
	analyzer   string
	scriptsDir string

	newAnalyzer AnalyzerFactory

	// errorHandled is set by outputError so main() doesn't double-print.
	errorHandled bool
}

func main() {
	a := &app{newAnalyzer: execAnalyzer}
	if err := newRootCmd(a).Execute(); err != nil {
		if !a.errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "solidex",
		Short:         "Symbol index and cross-reference engine for Solidity",
		Long:          "Solidex runs a Solidity analyzer over a project, builds a symbol graph and answers navigation, hierarchy and findings queries against it.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateFormat(a.format)
		},
		// No Run: prints help by default.
	}

	root.PersistentFlags().StringVar(&a.root, "root", "", "project root (default: git root above the current directory)")
	root.PersistentFlags().StringVar(&a.format, "format", "json", "output format: json|text")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error (default from config)")
	root.PersistentFlags().StringVar(&a.analyzer, "analyzer", "", "analyzer command line, overriding the config")
	root.PersistentFlags().StringVar(&a.scriptsDir, "scripts-dir", "", "load detector scripts from disk path instead of embedded")

	root.AddCommand(a.analyzeCmd())
	root.AddCommand(a.exportCmd())
	root.AddCommand(a.watchCmd())
	root.AddCommand(a.queryCmd())
	return root
}

// --- Engine setup ---

// execAnalyzer runs the configured analyzer command as a subprocess.
func execAnalyzer(cfg *config.Config, root string) (adapter.Analyzer, error) {
	if len(cfg.Analyzer.Command) == 0 {
		return nil, fmt.Errorf("no analyzer command configured (set analyzer.command in %s, %s or --analyzer)",
			config.FileName, config.EnvAnalyzer)
	}
	return adapter.NewExecAnalyzer(cfg.Analyzer.Command, root, cfg.Analyzer.Timeout), nil
}

// projectRoot returns the absolute project root from --root, args, or the
// repository containing the working directory.
func (a *app) projectRoot(args []string) (string, error) {
	if len(args) > 0 {
		return resolveTargetDir(args)
	}
	if a.root != "" {
		return resolveTargetDir([]string{a.root})
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}
	return findRepoRoot(cwd), nil
}

// loadConfig reads the project config and applies flag overrides.
func (a *app) loadConfig(root string) (*config.Config, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if a.analyzer != "" {
		cfg.Analyzer.Command = strings.Fields(a.analyzer)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.scriptsDir != "" {
		dir, err := filepath.Abs(a.scriptsDir)
		if err != nil {
			return nil, fmt.Errorf("resolving scripts dir: %w", err)
		}
		cfg.Detectors.ScriptsDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openEngine creates an engine for the project root and waits for its first
// snapshot. The engine is closed again when that first analysis fails.
func (a *app) openEngine(ctx context.Context, cmd *cobra.Command, root string) (*solidex.Engine, error) {
	cfg, err := a.loadConfig(root)
	if err != nil {
		return nil, err
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	analyzer, err := a.newAnalyzer(cfg, root)
	if err != nil {
		return nil, err
	}

	opts := []solidex.Option{solidex.WithConfig(cfg), solidex.WithLogger(logger)}
	if cfg.Detectors.ScriptsDir == "" {
		opts = append(opts, solidex.WithScriptsFS(scripts.FS))
	}
	e, err := solidex.New(root, analyzer, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	start := time.Now()
	if err := e.Load(ctx); err != nil {
		e.Close()
		return nil, fmt.Errorf("analyzing %s: %w", root, err)
	}
	logger.Debug("analysis complete",
		slog.String("root", root),
		slog.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	return e, nil
}

// --- analyze ---

func (a *app) analyzeCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "analyze [path]",
		Short: "Analyze a project and print a summary",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := a.projectRoot(args)
			if err != nil {
				return a.outputError(cmd, "analyze", err)
			}
			e, err := a.openEngine(cmd.Context(), cmd, root)
			if err != nil {
				return a.outputError(cmd, "analyze", err)
			}
			defer e.Close()

			q := e.Query()
			return a.outputResult(cmd, CLIResult{
				Command:    "analyze",
				Generation: q.Generation(),
				Results:    q.ProjectSummary(top),
			})
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of most-called functions to list")
	return cmd
}

// --- export ---

func (a *app) exportCmd() *cobra.Command {
	var dbFlag string
	cmd := &cobra.Command{
		Use:   "export [path]",
		Short: "Analyze a project and write the snapshot to SQLite",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := a.projectRoot(args)
			if err != nil {
				return a.outputError(cmd, "export", err)
			}
			dbPath := resolveDBPath(root, dbFlag)
			if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
				return a.outputError(cmd, "export", fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err))
			}

			e, err := a.openEngine(cmd.Context(), cmd, root)
			if err != nil {
				return a.outputError(cmd, "export", err)
			}
			defer e.Close()

			stats, err := e.Export(cmd.Context(), dbPath)
			if err != nil {
				return a.outputError(cmd, "export", err)
			}
			return a.outputResult(cmd, CLIResult{
				Command:    "export",
				Generation: e.Snapshot().Generation,
				Results: CLIExport{
					Database:   dbPath,
					Files:      stats.Files,
					Symbols:    stats.Symbols,
					References: stats.References,
					Calls:      stats.Calls,
					Findings:   stats.Findings,
				},
			})
		},
	}
	cmd.Flags().StringVar(&dbFlag, "db", "", "database path (default: .solidex/index.db under the project root)")
	return cmd
}

// --- watch ---

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [path]",
		Short: "Re-analyze on every change and log each new snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root, err := a.projectRoot(args)
			if err != nil {
				return a.outputError(cmd, "watch", err)
			}
			e, err := a.openEngine(ctx, cmd, root)
			if err != nil {
				return a.outputError(cmd, "watch", err)
			}
			defer e.Close()

			go a.reportGenerations(ctx, cmd.ErrOrStderr(), e)
			if err := e.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return a.outputError(cmd, "watch", err)
			}
			return nil
		},
	}
}

// reportGenerations prints one line per settled rebuild until ctx ends.
func (a *app) reportGenerations(ctx context.Context, w io.Writer, e *solidex.Engine) {
	gen := e.Snapshot().Generation
	for {
		snap, err := e.Wait(ctx, gen+1)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			fmt.Fprintf(w, "analysis failed: %s\n", err)
		} else {
			st := snap.Model.Stats()
			fmt.Fprintf(w, "generation %d: %d files, %d symbols, %d findings\n",
				snap.Generation, st.Files, st.Symbols, snap.Findings.Len())
		}
		gen++
		if snap != nil && snap.Generation > gen {
			gen = snap.Generation
		}
	}
}

// --- Paths ---

// resolveTargetDir returns the absolute path of the project directory.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding .git.
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag or the default.
func resolveDBPath(root, flag string) string {
	if flag != "" {
		if filepath.IsAbs(flag) {
			return flag
		}
		return filepath.Join(root, flag)
	}
	return filepath.Join(root, ".solidex", "index.db")
}
