// Package fixture builds synthetic analyzer output for tests. Spans are
// located by searching the source text for whole words, so fixtures stay
// readable and survive edits to the sample sources.
package fixture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/jward/solidex/internal/adapter"
	"github.com/jward/solidex/internal/model"
)

// Builder assembles a Project and the matching analyzer Result.
type Builder struct {
	root     string
	docs     []*Doc
	findings []adapter.FindingResult
}

// NewBuilder starts an empty project rooted at root.
func NewBuilder(root string) *Builder {
	return &Builder{root: root}
}

// Doc is one source file under construction.
type Doc struct {
	Path    string
	Text    string
	Version int32
	res     adapter.FileResult
}

// File adds a source file. name is relative to the project root.
func (b *Builder) File(name, text string, version int32) *Doc {
	d := &Doc{Path: filepath.Join(b.root, name), Text: text, Version: version}
	d.res.Path = d.Path
	b.docs = append(b.docs, d)
	return d
}

// Word returns the span of the nth (0-based) whole-word occurrence of w.
// It panics when the occurrence does not exist.
func (d *Doc) Word(w string, nth int) adapter.WireSpan {
	from := 0
	for i := 0; ; i++ {
		off := findWord(d.Text, w, from)
		if off < 0 {
			panic(fmt.Sprintf("fixture: %s: occurrence %d of %q not found", d.Path, nth, w))
		}
		if i == nth {
			return adapter.WireSpan{Start: off, End: off + len(w)}
		}
		from = off + len(w)
	}
}

// Offset returns the start offset of the nth occurrence of w.
func (d *Doc) Offset(w string, nth int) int {
	return d.Word(w, nth).Start
}

// Decl records a declaration. anchor is the text the declaration starts
// with, e.g. "function transfer"; its nth occurrence fixes the start. The
// declaration ends at the first ';' when one precedes any '{', otherwise at
// the matching '}'. Local variables end with the anchor itself.
func (d *Doc) Decl(key, kind, qualifiedName, anchor string, nth int, opts ...DeclOption) *Doc {
	start := nthIndex(d.Text, anchor, nth)
	if start < 0 {
		panic(fmt.Sprintf("fixture: %s: anchor %q #%d not found", d.Path, anchor, nth))
	}
	end := start + len(anchor)
	if kind != "local_variable" {
		end = declEnd(d.Text, start)
	}
	name := qualifiedName
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	nameOff := findWord(d.Text, name, start)
	decl := adapter.Declaration{
		Key:           key,
		Kind:          kind,
		Name:          name,
		QualifiedName: qualifiedName,
		NameSpan:      adapter.WireSpan{Start: nameOff, End: nameOff + len(name)},
		DeclSpan:      adapter.WireSpan{Start: start, End: end},
		Visibility:    "public",
	}
	for _, opt := range opts {
		opt(&decl)
	}
	d.res.Declarations = append(d.res.Declarations, decl)
	return d
}

// DeclOption tweaks a declaration.
type DeclOption func(*adapter.Declaration)

func Parent(key string) DeclOption {
	return func(d *adapter.Declaration) { d.Parent = key }
}

func Signature(sig string) DeclOption {
	return func(d *adapter.Declaration) { d.Signature = sig }
}

func Visibility(v string) DeclOption {
	return func(d *adapter.Declaration) { d.Visibility = v }
}

// Implemented marks a function as having a body.
func Implemented() DeclOption {
	return func(d *adapter.Declaration) { d.Implemented = true }
}

// Abstract marks a contract as abstract.
func Abstract() DeclOption {
	return func(d *adapter.Declaration) { d.Abstract = true }
}

// Ref records a use-site of target at the nth occurrence of word.
func (d *Doc) Ref(target, kind, word string, nth int) *Doc {
	d.res.References = append(d.res.References, adapter.ReferenceResult{
		Target: target, Kind: kind, Span: d.Word(word, nth),
	})
	return d
}

// Call records a call site. An empty callee marks an unresolved call.
func (d *Doc) Call(caller, callee, word string, nth int) *Doc {
	d.res.Calls = append(d.res.Calls, adapter.CallResult{
		Caller: caller, Callee: callee, Span: d.Word(word, nth),
	})
	return d
}

// Inherit records the ordered bases of a contract.
func (d *Doc) Inherit(contract string, bases ...string) *Doc {
	d.res.Inheritance = append(d.res.Inheritance, adapter.InheritanceResult{
		Contract: contract, Bases: bases,
	})
	return d
}

// Finding records a detector result anchored at the nth occurrence of word.
func (b *Builder) Finding(check, impact, confidence, description string, d *Doc, word string, nth int, symbol string) {
	b.findings = append(b.findings, adapter.FindingResult{
		Check:       check,
		Impact:      impact,
		Confidence:  confidence,
		Description: description,
		Elements: []adapter.FindingElement{{
			Path: d.Path, Span: d.Word(word, nth), Symbol: symbol,
		}},
	})
}

// Project returns the analysis request for the built files.
func (b *Builder) Project() adapter.Project {
	p := adapter.Project{Root: b.root}
	for _, d := range b.docs {
		p.Files = append(p.Files, adapter.SourceFile{Path: d.Path, Text: d.Text, Version: d.Version})
	}
	return p
}

// Result returns a fresh copy of the analyzer output.
func (b *Builder) Result() *adapter.Result {
	res := &adapter.Result{}
	for _, d := range b.docs {
		fr := d.res
		fr.Declarations = append([]adapter.Declaration(nil), fr.Declarations...)
		fr.References = append([]adapter.ReferenceResult(nil), fr.References...)
		fr.Calls = append([]adapter.CallResult(nil), fr.Calls...)
		fr.Inheritance = append([]adapter.InheritanceResult(nil), fr.Inheritance...)
		res.Files = append(res.Files, fr)
	}
	res.Findings = append([]adapter.FindingResult(nil), b.findings...)
	return res
}

// WriteFiles writes every source file to disk and returns the paths.
func (b *Builder) WriteFiles(t testing.TB) []string {
	t.Helper()
	paths := make([]string, 0, len(b.docs))
	for _, d := range b.docs {
		if err := os.MkdirAll(filepath.Dir(d.Path), 0o755); err != nil {
			t.Fatalf("fixture: mkdir: %v", err)
		}
		if err := os.WriteFile(d.Path, []byte(d.Text), 0o644); err != nil {
			t.Fatalf("fixture: write %s: %v", d.Path, err)
		}
		paths = append(paths, d.Path)
	}
	return paths
}

// Model translates the built project, failing the test on error.
func (b *Builder) Model(t testing.TB) *model.Model {
	t.Helper()
	m, err := adapter.Translate(b.Project(), b.Result())
	if err != nil {
		t.Fatalf("fixture: translate: %v", err)
	}
	return m
}

// ID looks up a symbol by qualified name, failing the test when absent.
func ID(t testing.TB, m *model.Model, qualifiedName string) model.SymbolID {
	t.Helper()
	for _, s := range m.Symbols() {
		if s.QualifiedName == qualifiedName {
			return s.ID
		}
	}
	t.Fatalf("fixture: no symbol %q", qualifiedName)
	return ""
}

// Names maps ids to qualified names, preserving order.
func Names(m *model.Model, ids []model.SymbolID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.Symbol(id); ok {
			out = append(out, s.QualifiedName)
		} else {
			out = append(out, string(id))
		}
	}
	return out
}

// Analyzer is a scriptable in-memory analyzer. By default it answers with the
// builder's result for every request.
type Analyzer struct {
	mu      sync.Mutex
	calls   int
	Respond func(ctx context.Context, call int, p adapter.Project) (*adapter.Result, error)
}

// StaticAnalyzer always returns b's result.
func StaticAnalyzer(b *Builder) *Analyzer {
	return &Analyzer{Respond: func(context.Context, int, adapter.Project) (*adapter.Result, error) {
		return b.Result(), nil
	}}
}

func (a *Analyzer) Analyze(ctx context.Context, p adapter.Project) (*adapter.Result, error) {
	a.mu.Lock()
	a.calls++
	call := a.calls
	a.mu.Unlock()
	return a.Respond(ctx, call, p)
}

// Calls returns how many times Analyze ran.
func (a *Analyzer) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// SortedPaths returns the project paths in order.
func SortedPaths(p adapter.Project) []string {
	out := make([]string, 0, len(p.Files))
	for _, f := range p.Files {
		out = append(out, f.Path)
	}
	sort.Strings(out)
	return out
}

func isIdent(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func findWord(text, w string, from int) int {
	for from <= len(text) {
		i := strings.Index(text[from:], w)
		if i < 0 {
			return -1
		}
		off := from + i
		end := off + len(w)
		if (off == 0 || !isIdent(text[off-1])) && (end == len(text) || !isIdent(text[end])) {
			return off
		}
		from = off + 1
	}
	return -1
}

func nthIndex(text, sub string, nth int) int {
	from := 0
	for i := 0; ; i++ {
		j := strings.Index(text[from:], sub)
		if j < 0 {
			return -1
		}
		if i == nth {
			return from + j
		}
		from += j + len(sub)
	}
}

func declEnd(text string, start int) int {
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case ';':
			if depth == 0 {
				return i + 1
			}
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(text)
}
