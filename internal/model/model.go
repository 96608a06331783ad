// Package model holds the symbol graph produced from one analyzer run:
// files, symbols, containment, inheritance, call sites, use-sites and
// findings. A Model is immutable once built.
package model

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// SymbolID identifies a declaration. It is derived from the declaring file,
// the qualified name and the kind, so re-analysing an unchanged declaration
// yields the same id.
type SymbolID string

// NewSymbolID computes the id for a declaration.
func NewSymbolID(path, qualifiedName string, kind Kind) SymbolID {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(qualifiedName))
	h.Write([]byte{0})
	h.Write([]byte(kind.String()))
	return SymbolID(fmt.Sprintf("%s:%x", kind, h.Sum(nil)[:8]))
}

// Symbol is a declared entity.
type Symbol struct {
	ID            SymbolID `json:"id"`
	Kind          Kind     `json:"kind"`
	Name          string   `json:"name"`
	QualifiedName string   `json:"qualified_name"`
	// Signature is the canonical parameter signature used to match
	// overrides, e.g. "transfer(address,uint256)".
	Signature   string   `json:"signature,omitempty"`
	Path        string   `json:"path"`
	NameLoc     Location `json:"name_location"`
	DeclLoc     Location `json:"decl_location"`
	Parent      SymbolID `json:"parent,omitempty"`
	Visibility  string   `json:"visibility,omitempty"`
	Mutability  string   `json:"mutability,omitempty"`
	Implemented bool     `json:"implemented"`
	Abstract    bool     `json:"abstract"`

	// Depth is the containment depth; top-level declarations have depth 0.
	Depth int `json:"depth"`
	// Order is the declaration's position in the model, used for stable
	// tie-breaking.
	Order int `json:"order"`
}

// File is one source file as seen by the analyzer run.
type File struct {
	Path    string
	Version int32
	Lines   *LineIndex
	// Symbols lists the top-level declarations in declaration order.
	Symbols []SymbolID
}

// Location builds a Location for a span of this file.
func (f *File) Location(s Span) Location {
	return Location{Path: f.Path, Span: s, Range: f.Lines.Range(s)}
}

// Reference is one use-site of a symbol.
type Reference struct {
	Location Location `json:"location"`
	Kind     RefKind  `json:"kind"`
}

// CallSite records one call expression.
type CallSite struct {
	Caller   SymbolID `json:"caller"`
	Callee   SymbolID `json:"callee"`
	Location Location `json:"location"`
}

// Model is the validated symbol graph. All accessors return shared slices
// that callers must not modify.
type Model struct {
	files      map[string]*File
	paths      []string
	symbols    map[SymbolID]*Symbol
	order      []*Symbol
	children   map[SymbolID][]SymbolID
	refs       map[SymbolID][]Reference
	supers     map[SymbolID][]SymbolID
	calls      []CallSite
	findings   []Finding
	unresolved int
}

// File returns the file at path.
func (m *Model) File(path string) (*File, bool) {
	f, ok := m.files[path]
	return f, ok
}

// Files returns all files ordered by path.
func (m *Model) Files() []*File {
	out := make([]*File, 0, len(m.paths))
	for _, p := range m.paths {
		out = append(out, m.files[p])
	}
	return out
}

// Symbol returns the symbol with the given id.
func (m *Model) Symbol(id SymbolID) (*Symbol, bool) {
	s, ok := m.symbols[id]
	return s, ok
}

// Symbols returns every symbol in declaration order.
func (m *Model) Symbols() []*Symbol { return m.order }

// Len returns the number of symbols.
func (m *Model) Len() int { return len(m.order) }

// Children returns the direct children of id in declaration order.
func (m *Model) Children(id SymbolID) []SymbolID { return m.children[id] }

// References returns the raw use-sites recorded for id.
func (m *Model) References(id SymbolID) []Reference { return m.refs[id] }

// DirectSupertypes returns the declared bases of a contract in declaration order.
func (m *Model) DirectSupertypes(id SymbolID) []SymbolID { return m.supers[id] }

// CallSites returns every resolved call site.
func (m *Model) CallSites() []CallSite { return m.calls }

// Findings returns the analyzer's findings.
func (m *Model) Findings() []Finding { return m.findings }

// UnresolvedCalls counts call sites whose callee the analyzer could not resolve.
func (m *Model) UnresolvedCalls() int { return m.unresolved }

// Ancestors walks the containment chain of id from its parent upward.
func (m *Model) Ancestors(id SymbolID) []SymbolID {
	var out []SymbolID
	s, ok := m.symbols[id]
	for ok && s.Parent != "" {
		out = append(out, s.Parent)
		s, ok = m.symbols[s.Parent]
	}
	return out
}

// Stats summarizes a model.
type Stats struct {
	Files           int            `json:"files"`
	Symbols         int            `json:"symbols"`
	References      int            `json:"references"`
	CallSites       int            `json:"call_sites"`
	UnresolvedCalls int            `json:"unresolved_calls"`
	Findings        int            `json:"findings"`
	Kinds           map[string]int `json:"kinds"`
}

// Stats computes summary counts.
func (m *Model) Stats() Stats {
	st := Stats{
		Files:           len(m.files),
		Symbols:         len(m.order),
		CallSites:       len(m.calls),
		UnresolvedCalls: m.unresolved,
		Findings:        len(m.findings),
		Kinds:           make(map[string]int),
	}
	for _, s := range m.order {
		st.Kinds[s.Kind.String()]++
		st.References += len(m.refs[s.ID])
	}
	return st
}

func sortedKeys(files map[string]*File) []string {
	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
