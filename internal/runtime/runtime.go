// Package runtime runs user detector scripts written in Risor against a
// built model. Scripts read the symbol graph through host functions and
// raise findings with report().
package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/solidex/internal/model"
)

// Runtime loads detector scripts from a directory or an fs.FS. The zero
// configuration (no directory, no FS) has no scripts.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
	logger     *slog.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS loads scripts, and resolves import statements, from fsys
// instead of scriptsDir.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithLogger sets the logger used for script failures and the scripts' own
// log global.
func WithLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates a Runtime reading scripts from scriptsDir, which may be
// empty when WithRuntimeFS is used or when no detectors are configured.
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		scriptsDir: scriptsDir,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Scripts lists the detector scripts: every top-level .risor file, sorted.
// A missing scripts directory means no detectors.
func (r *Runtime) Scripts() ([]string, error) {
	var entries []fs.DirEntry
	var err error
	switch {
	case r.fsys != nil:
		entries, err = fs.ReadDir(r.fsys, ".")
	case r.scriptsDir != "":
		entries, err = os.ReadDir(r.scriptsDir)
		if os.IsNotExist(err) {
			return nil, nil
		}
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("runtime: list scripts: %w", err)
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".risor") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Hash returns a hex SHA-256 over the detector scripts' names and contents,
// in sorted order. It identifies the detector set a snapshot was built with.
func (r *Runtime) Hash() (string, error) {
	scripts, err := r.Scripts()
	if err != nil {
		return "", err
	}
	h := sha256.New()
	for _, name := range scripts {
		src, err := r.LoadScript(name)
		if err != nil {
			return "", err
		}
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(src))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// RunDetectors runs every script against m and returns the findings they
// reported. A failing script is logged and its findings discarded; the
// remaining scripts still run. Only cancellation aborts the run.
func (r *Runtime) RunDetectors(ctx context.Context, m *model.Model) ([]model.Finding, error) {
	scripts, err := r.Scripts()
	if err != nil {
		return nil, err
	}

	var all []model.Finding
	for _, name := range scripts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := r.RunScript(ctx, m, name, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("detector script failed", "script", name, "err", err)
			continue
		}
		all = append(all, found...)
	}
	if len(scripts) > 0 {
		r.logger.Debug("detector scripts ran", "scripts", len(scripts), "findings", len(all))
	}
	return all, nil
}

// RunScript loads and executes one script against m.
func (r *Runtime) RunScript(ctx context.Context, m *model.Model, scriptPath string, extraGlobals map[string]any) ([]model.Finding, error) {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return nil, err
	}
	return r.eval(ctx, m, src, scriptPath, extraGlobals)
}

// RunSource executes Risor source directly against m. Useful for testing
// without script files.
func (r *Runtime) RunSource(ctx context.Context, m *model.Model, source string, extraGlobals map[string]any) ([]model.Finding, error) {
	return r.eval(ctx, m, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, m *model.Model, source, label string, extraGlobals map[string]any) ([]model.Finding, error) {
	rep := &reporter{detector: strings.TrimSuffix(filepath.Base(label), ".risor")}
	globals := r.buildGlobals(m, rep, label, extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return nil, fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return rep.findings, nil
}

// buildImporter lets scripts import helper modules that sit next to them.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file relative to the script source.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the globals exposed to one script run.
func (r *Runtime) buildGlobals(m *model.Model, rep *reporter, label string, extra map[string]any) map[string]any {
	globals := map[string]any{
		"symbols":    makeSymbolsFn(m),
		"symbol":     makeSymbolFn(m),
		"children":   makeChildrenFn(m),
		"supertypes": makeSupertypesFn(m),
		"callees":    makeCalleesFn(m),
		"references": makeReferencesFn(m),
		"report":     makeReportFn(m, rep),
		"log":        mustProxy(&logObject{logger: r.logger.With("script", label)}),
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
