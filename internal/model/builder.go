package model

import (
	"errors"
	"fmt"
)

// ErrInconsistent marks a model whose records contradict each other, such as
// an edge naming a symbol that was never declared. It always indicates a
// defect in whatever produced the records.
var ErrInconsistent = errors.New("model: inconsistent")

// Builder accumulates records for one Model. It is not safe for concurrent use.
type Builder struct {
	files      map[string]*File
	symbols    map[SymbolID]*Symbol
	order      []*Symbol
	refs       map[SymbolID][]Reference
	supers     map[SymbolID][]SymbolID
	superOrder []SymbolID
	calls      []CallSite
	findings   []Finding
	unresolved int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		files:   make(map[string]*File),
		symbols: make(map[SymbolID]*Symbol),
		refs:    make(map[SymbolID][]Reference),
		supers:  make(map[SymbolID][]SymbolID),
	}
}

// AddFile registers a file and its text. Adding the same path twice replaces
// the earlier entry.
func (b *Builder) AddFile(path string, version int32, text string) *File {
	f := &File{Path: path, Version: version, Lines: NewLineIndex(text)}
	b.files[path] = f
	return f
}

// File returns a previously added file.
func (b *Builder) File(path string) (*File, bool) {
	f, ok := b.files[path]
	return f, ok
}

// AddSymbol records a declaration and returns its id. The id is computed
// from the symbol's path, qualified name and kind; a collision with an
// earlier declaration gets a "#n" suffix in declaration order.
func (b *Builder) AddSymbol(s Symbol) SymbolID {
	base := NewSymbolID(s.Path, s.QualifiedName, s.Kind)
	id := base
	for n := 2; ; n++ {
		if _, taken := b.symbols[id]; !taken {
			break
		}
		id = SymbolID(fmt.Sprintf("%s#%d", base, n))
	}
	s.ID = id
	s.Order = len(b.order)
	sym := &s
	b.symbols[id] = sym
	b.order = append(b.order, sym)
	return id
}

// SetParent records a containment edge.
func (b *Builder) SetParent(child, parent SymbolID) {
	if s, ok := b.symbols[child]; ok {
		s.Parent = parent
	}
}

// AddReference records a use-site of target.
func (b *Builder) AddReference(target SymbolID, ref Reference) {
	b.refs[target] = append(b.refs[target], ref)
}

// AddInheritance records the ordered direct supertypes of a contract.
func (b *Builder) AddInheritance(contract SymbolID, bases []SymbolID) {
	if _, seen := b.supers[contract]; !seen {
		b.superOrder = append(b.superOrder, contract)
	}
	b.supers[contract] = append(b.supers[contract], bases...)
}

// AddCall records a resolved call site.
func (b *Builder) AddCall(c CallSite) {
	b.calls = append(b.calls, c)
}

// AddUnresolvedCall counts a call whose callee is unknown.
func (b *Builder) AddUnresolvedCall() {
	b.unresolved++
}

// AddFinding records a detector result.
func (b *Builder) AddFinding(f Finding) {
	b.findings = append(b.findings, f)
}

// Build validates the accumulated records and freezes them into a Model.
// Every fault is reported; the returned error wraps ErrInconsistent.
func (b *Builder) Build() (*Model, error) {
	var faults []error
	fault := func(format string, args ...any) {
		faults = append(faults, fmt.Errorf(format, args...))
	}
	checkLoc := func(what string, loc Location) {
		f, ok := b.files[loc.Path]
		if !ok {
			fault("%s: unknown file %q", what, loc.Path)
			return
		}
		if !loc.Span.Valid(f.Lines.Size()) {
			fault("%s: span %s outside %s (%d bytes)", what, loc.Span, loc.Path, f.Lines.Size())
		}
	}

	m := &Model{
		files:      b.files,
		paths:      sortedKeys(b.files),
		symbols:    b.symbols,
		order:      b.order,
		children:   make(map[SymbolID][]SymbolID),
		refs:       b.refs,
		supers:     b.supers,
		calls:      b.calls,
		findings:   b.findings,
		unresolved: b.unresolved,
	}
	for _, f := range m.files {
		f.Symbols = nil
	}

	for _, s := range b.order {
		checkLoc(fmt.Sprintf("symbol %s name", s.ID), s.NameLoc)
		checkLoc(fmt.Sprintf("symbol %s declaration", s.ID), s.DeclLoc)
		if s.Parent == "" {
			if f, ok := m.files[s.Path]; ok {
				f.Symbols = append(f.Symbols, s.ID)
			}
			continue
		}
		p, ok := b.symbols[s.Parent]
		if !ok {
			fault("symbol %s: unknown parent %s", s.ID, s.Parent)
			continue
		}
		if p.Path != s.Path {
			fault("symbol %s: parent %s declared in another file", s.ID, s.Parent)
		}
		m.children[s.Parent] = append(m.children[s.Parent], s.ID)
	}

	// Containment must be a forest; compute depths while checking.
	for _, s := range b.order {
		depth := 0
		cur := s
		for cur.Parent != "" {
			next, ok := b.symbols[cur.Parent]
			if !ok {
				break
			}
			depth++
			if depth > len(b.order) {
				fault("symbol %s: containment cycle", s.ID)
				depth = 0
				break
			}
			cur = next
		}
		s.Depth = depth
	}

	for target, refs := range b.refs {
		if _, ok := b.symbols[target]; !ok {
			fault("reference: unknown target %s", target)
			continue
		}
		for _, r := range refs {
			checkLoc(fmt.Sprintf("reference to %s", target), r.Location)
		}
	}

	for _, c := range b.superOrder {
		cs, ok := b.symbols[c]
		if !ok {
			fault("inheritance: unknown contract %s", c)
			continue
		}
		if !cs.Kind.IsContractLike() {
			fault("inheritance: %s is a %s", c, cs.Kind)
		}
		for _, base := range b.supers[c] {
			bs, ok := b.symbols[base]
			if !ok {
				fault("inheritance: %s: unknown base %s", c, base)
				continue
			}
			if !bs.Kind.IsContractLike() {
				fault("inheritance: %s: base %s is a %s", c, base, bs.Kind)
			}
		}
	}

	for _, c := range b.calls {
		caller, ok := b.symbols[c.Caller]
		if !ok {
			fault("call: unknown caller %s", c.Caller)
		} else if !caller.Kind.IsCallable() {
			fault("call: caller %s is a %s", c.Caller, caller.Kind)
		}
		if _, ok := b.symbols[c.Callee]; !ok {
			fault("call: unknown callee %s", c.Callee)
		}
		checkLoc(fmt.Sprintf("call %s -> %s", c.Caller, c.Callee), c.Location)
	}

	for i, f := range b.findings {
		for _, loc := range f.Locations {
			checkLoc(fmt.Sprintf("finding %d (%s)", i, f.Detector), loc)
		}
		for _, id := range f.Symbols {
			if _, ok := b.symbols[id]; !ok {
				fault("finding %d (%s): unknown symbol %s", i, f.Detector, id)
			}
		}
	}

	if len(faults) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInconsistent, errors.Join(faults...))
	}
	return m, nil
}
