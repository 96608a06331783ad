// Package adapter turns one external-analyzer run over a whole project into
// a validated symbol model.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jward/solidex/internal/model"
)

// Analyzer is the external static analyzer. Implementations must honour ctx
// cancellation where the underlying tool allows it.
type Analyzer interface {
	Analyze(ctx context.Context, p Project) (*Result, error)
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, p Project) (*Result, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, p Project) (*Result, error) { return f(ctx, p) }

// Diagnostic is a file-scoped problem reported by the analyzer. An empty
// Path means the problem concerns the project as a whole.
type Diagnostic struct {
	Path      string `json:"path,omitempty"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
	Message   string `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Path == "" {
		return d.Message
	}
	return fmt.Sprintf("%s:%d:%d: %s", d.Path, d.Line+1, d.Character+1, d.Message)
}

// AnalyzerError is returned by Analyzer implementations when the tool ran
// but rejected the project, typically because of a syntax error.
type AnalyzerError struct {
	Diagnostics []Diagnostic
	Err         error
}

func (e *AnalyzerError) Error() string {
	if len(e.Diagnostics) == 0 {
		return fmt.Sprintf("analyzer: %v", e.Err)
	}
	return fmt.Sprintf("analyzer: %s", e.Diagnostics[0])
}

func (e *AnalyzerError) Unwrap() error { return e.Err }

// AnalysisFailure is the adapter's error for a rebuild that produced no model
// because the analyzer failed or its output could not be used.
type AnalysisFailure struct {
	Diagnostics []Diagnostic
	Err         error
}

func (f *AnalysisFailure) Error() string {
	return fmt.Sprintf("analysis failed: %v", f.Err)
}

func (f *AnalysisFailure) Unwrap() error { return f.Err }

// ByFile groups the failure's diagnostics by path. Project-wide diagnostics
// are keyed by the empty string.
func (f *AnalysisFailure) ByFile() map[string][]Diagnostic {
	out := make(map[string][]Diagnostic)
	for _, d := range f.Diagnostics {
		out[d.Path] = append(out[d.Path], d)
	}
	return out
}

// Adapter invokes the analyzer once per rebuild and maps its result.
type Adapter struct {
	analyzer Analyzer
	logger   *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// New creates an Adapter around an analyzer.
func New(analyzer Analyzer, opts ...Option) *Adapter {
	a := &Adapter{
		analyzer: analyzer,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BuildModel runs the analyzer over p and translates the result.
//
// Errors:
//   - *AnalysisFailure when the analyzer fails or returns unusable output;
//   - an error wrapping model.ErrInconsistent when the records contradict
//     each other;
//   - ctx.Err() when the build was cancelled.
func (a *Adapter) BuildModel(ctx context.Context, p Project) (*model.Model, error) {
	start := time.Now()
	res, err := a.analyzer.Analyze(ctx, p)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		var ae *AnalyzerError
		if errors.As(err, &ae) {
			return nil, &AnalysisFailure{Diagnostics: ae.Diagnostics, Err: err}
		}
		return nil, &AnalysisFailure{
			Diagnostics: []Diagnostic{{Message: err.Error()}},
			Err:         err,
		}
	}
	if res == nil {
		err := errors.New("analyzer returned no result")
		return nil, &AnalysisFailure{Diagnostics: []Diagnostic{{Message: err.Error()}}, Err: err}
	}

	p = a.withDependencies(p, res)
	m, err := Translate(p, res)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("model built",
		slog.Int("files", len(p.Files)),
		slog.Int("symbols", m.Len()),
		slog.Int("unresolved_calls", m.UnresolvedCalls()),
		slog.Duration("duration", time.Since(start)),
	)
	return m, nil
}

// Translate maps an analyzer result onto the captured project. It is pure:
// the same inputs always yield a model with the same symbol ids.
//
// Malformed values (unknown kinds, files outside the project, stale versions)
// yield an *AnalysisFailure. Dangling keys surface from model validation as
// model.ErrInconsistent.
func Translate(p Project, res *Result) (*model.Model, error) {
	var diags []Diagnostic
	bad := func(path, format string, args ...any) {
		diags = append(diags, Diagnostic{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	b := model.NewBuilder()
	files := make([]SourceFile, len(p.Files))
	copy(files, p.Files)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	for _, f := range files {
		b.AddFile(f.Path, f.Version, f.Text)
	}

	results := make([]FileResult, len(res.Files))
	copy(results, res.Files)
	sort.SliceStable(results, func(i, j int) bool { return results[i].Path < results[j].Path })

	// Pass 1: declarations, so keys from any file resolve in pass 2.
	keys := make(map[string]model.SymbolID)
	for _, fr := range results {
		f, ok := b.File(fr.Path)
		if !ok {
			bad(fr.Path, "analyzer reported a file that is not part of the project")
			continue
		}
		if fr.Version != nil && *fr.Version != f.Version {
			bad(fr.Path, "analyzer saw version %d, project has version %d", *fr.Version, f.Version)
			continue
		}
		for _, d := range fr.Declarations {
			kind, err := model.ParseKind(d.Kind)
			if err != nil {
				bad(fr.Path, "declaration %q: %v", d.Key, err)
				continue
			}
			if _, dup := keys[d.Key]; dup {
				bad(fr.Path, "duplicate declaration key %q", d.Key)
				continue
			}
			qn := d.QualifiedName
			if qn == "" {
				qn = d.Name
			}
			keys[d.Key] = b.AddSymbol(model.Symbol{
				Kind:          kind,
				Name:          d.Name,
				QualifiedName: qn,
				Signature:     d.Signature,
				Path:          fr.Path,
				NameLoc:       f.Location(span(d.NameSpan)),
				DeclLoc:       f.Location(span(d.DeclSpan)),
				Visibility:    d.Visibility,
				Mutability:    d.Mutability,
				Implemented:   d.Implemented,
				Abstract:      d.Abstract,
			})
		}
	}

	resolve := func(key string) model.SymbolID {
		if id, ok := keys[key]; ok {
			return id
		}
		return model.SymbolID("unresolved:" + key)
	}

	// Pass 2: edges.
	for _, fr := range results {
		f, ok := b.File(fr.Path)
		if !ok || (fr.Version != nil && *fr.Version != f.Version) {
			continue
		}
		for _, d := range fr.Declarations {
			if d.Parent == "" {
				continue
			}
			if id, ok := keys[d.Key]; ok {
				b.SetParent(id, resolve(d.Parent))
			}
		}
		for _, r := range fr.References {
			kind, err := model.ParseRefKind(r.Kind)
			if err != nil {
				bad(fr.Path, "reference to %q: %v", r.Target, err)
				continue
			}
			b.AddReference(resolve(r.Target), model.Reference{Location: f.Location(span(r.Span)), Kind: kind})
		}
		for _, c := range fr.Calls {
			if c.Callee == "" {
				b.AddUnresolvedCall()
				continue
			}
			b.AddCall(model.CallSite{
				Caller:   resolve(c.Caller),
				Callee:   resolve(c.Callee),
				Location: f.Location(span(c.Span)),
			})
		}
		for _, inh := range fr.Inheritance {
			bases := make([]model.SymbolID, 0, len(inh.Bases))
			for _, k := range inh.Bases {
				bases = append(bases, resolve(k))
			}
			b.AddInheritance(resolve(inh.Contract), bases)
		}
	}

	for i, fr := range res.Findings {
		sev, err := model.ParseSeverity(fr.Impact)
		if err != nil {
			bad("", "finding %d (%s): %v", i, fr.Check, err)
			continue
		}
		conf, err := model.ParseConfidence(fr.Confidence)
		if err != nil {
			bad("", "finding %d (%s): %v", i, fr.Check, err)
			continue
		}
		fd := model.Finding{
			Detector:   fr.Check,
			Severity:   sev,
			Confidence: conf,
			Message:    strings.TrimSpace(fr.Description),
		}
		for _, el := range fr.Elements {
			if f, ok := b.File(el.Path); ok {
				fd.Locations = append(fd.Locations, f.Location(span(el.Span)))
			} else {
				fd.Locations = append(fd.Locations, model.Location{Path: el.Path, Span: span(el.Span)})
			}
			if el.Symbol != "" {
				fd.Symbols = append(fd.Symbols, resolve(el.Symbol))
			}
		}
		b.AddFinding(fd)
	}

	if len(diags) > 0 {
		return nil, &AnalysisFailure{
			Diagnostics: diags,
			Err:         fmt.Errorf("malformed analyzer output: %s", diags[0]),
		}
	}
	m, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("adapter: build model: %w", err)
	}
	return m, nil
}

func span(w WireSpan) model.Span {
	return model.Span{Start: w.Start, End: w.End}
}
