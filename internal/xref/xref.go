// Package xref indexes definitions, use-sites and declaration spans of a
// model for position lookups and reference queries.
package xref

import (
	"sort"
	"strings"

	"github.com/jward/solidex/internal/model"
)

// Index is built once per model and is read-only afterwards.
type Index struct {
	m      *model.Model
	refs   map[model.SymbolID][]model.Location
	byFile map[string][]entry
}

// entry is one span that resolves to a symbol.
type entry struct {
	span  model.Span
	id    model.SymbolID
	ident bool
	depth int
	order int
}

// Build indexes m.
func Build(m *model.Model) *Index {
	x := &Index{
		m:      m,
		refs:   make(map[model.SymbolID][]model.Location),
		byFile: make(map[string][]entry),
	}

	for _, s := range m.Symbols() {
		x.add(s.NameLoc, s, true)
		x.add(s.DeclLoc, s, false)

		// Use-sites, deduplicated and sorted; the declaration itself is
		// kept out so ReferencesOf can place it exactly once.
		raw := m.References(s.ID)
		locs := make([]model.Location, 0, len(raw))
		for _, r := range raw {
			locs = append(locs, r.Location)
			if !r.Location.SameSpan(s.NameLoc) {
				x.add(r.Location, s, true)
			}
		}
		sort.Slice(locs, func(i, j int) bool { return locs[i].Less(locs[j]) })
		out := make([]model.Location, 0, len(locs))
		for _, l := range locs {
			if l.SameSpan(s.NameLoc) {
				continue
			}
			if n := len(out); n > 0 && l.SameSpan(out[n-1]) {
				continue
			}
			out = append(out, l)
		}
		if len(out) > 0 {
			x.refs[s.ID] = out
		}
	}

	for path, entries := range x.byFile {
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].span.Start < entries[j].span.Start })
		x.byFile[path] = entries
	}
	return x
}

func (x *Index) add(loc model.Location, s *model.Symbol, ident bool) {
	x.byFile[loc.Path] = append(x.byFile[loc.Path], entry{
		span:  loc.Span,
		id:    s.ID,
		ident: ident,
		depth: s.Depth,
		order: s.Order,
	})
}

// DefinitionOf returns the location of the symbol's name token.
func (x *Index) DefinitionOf(id model.SymbolID) (model.Location, bool) {
	s, ok := x.m.Symbol(id)
	if !ok {
		return model.Location{}, false
	}
	return s.NameLoc, true
}

// ReferencesOf returns the use-sites of id ordered by path then offset.
// With includeDeclaration the definition appears exactly once, in its
// sorted position, even when the analyzer also reported it as a use.
func (x *Index) ReferencesOf(id model.SymbolID, includeDeclaration bool) []model.Location {
	s, ok := x.m.Symbol(id)
	if !ok {
		return []model.Location{}
	}
	refs := x.refs[id]
	out := make([]model.Location, 0, len(refs)+1)
	if !includeDeclaration {
		return append(out, refs...)
	}
	def := s.NameLoc
	placed := false
	for _, r := range refs {
		if !placed && def.Less(r) {
			out = append(out, def)
			placed = true
		}
		out = append(out, r)
	}
	if !placed {
		out = append(out, def)
	}
	return out
}

// SymbolAt resolves a byte offset to the innermost symbol whose name,
// use-site or declaration span contains it. Identifier spans also match
// when the cursor sits right after the last character.
//
// Candidates are ranked by: smallest span, then deepest declaration, then
// identifier spans over declaration spans, then earliest declaration.
func (x *Index) SymbolAt(path string, offset int) (model.SymbolID, bool) {
	entries := x.byFile[path]
	// Entries are sorted by start; nothing after the first start > offset
	// can contain it.
	limit := sort.Search(len(entries), func(i int) bool { return entries[i].span.Start > offset })

	var best *entry
	for i := 0; i < limit; i++ {
		e := &entries[i]
		hit := e.span.Contains(offset)
		if e.ident && offset == e.span.End {
			hit = true
		}
		if !hit {
			continue
		}
		if best == nil || better(e, best) {
			best = e
		}
	}
	if best == nil {
		return "", false
	}
	return best.id, true
}

func better(a, b *entry) bool {
	if a.span.Len() != b.span.Len() {
		return a.span.Len() < b.span.Len()
	}
	if a.depth != b.depth {
		return a.depth > b.depth
	}
	if a.ident != b.ident {
		return a.ident
	}
	return a.order < b.order
}

// OutlineNode is one entry of a file outline.
type OutlineNode struct {
	Symbol   *model.Symbol
	Children []OutlineNode
}

// Outline returns the declaration tree of a file. Local variables are left
// out, matching what editors show in a document outline.
func (x *Index) Outline(path string) []OutlineNode {
	f, ok := x.m.File(path)
	if !ok {
		return []OutlineNode{}
	}
	return x.outline(f.Symbols)
}

func (x *Index) outline(ids []model.SymbolID) []OutlineNode {
	out := make([]OutlineNode, 0, len(ids))
	for _, id := range ids {
		s, ok := x.m.Symbol(id)
		if !ok || s.Kind == model.KindLocalVariable {
			continue
		}
		out = append(out, OutlineNode{Symbol: s, Children: x.outline(x.m.Children(id))})
	}
	return out
}

// Search returns symbols whose name contains query, case-insensitively,
// optionally restricted to kinds. Exact matches come first, then prefix
// matches, then the rest; each group keeps declaration order.
func (x *Index) Search(query string, kinds ...model.Kind) []*model.Symbol {
	q := strings.ToLower(query)
	allowed := make(map[model.Kind]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}

	var exact, prefix, rest []*model.Symbol
	for _, s := range x.m.Symbols() {
		if len(allowed) > 0 && !allowed[s.Kind] {
			continue
		}
		name := strings.ToLower(s.Name)
		switch {
		case name == q:
			exact = append(exact, s)
		case strings.HasPrefix(name, q):
			prefix = append(prefix, s)
		case strings.Contains(name, q):
			rest = append(rest, s)
		}
	}
	out := make([]*model.Symbol, 0, len(exact)+len(prefix)+len(rest))
	out = append(out, exact...)
	out = append(out, prefix...)
	return append(out, rest...)
}
