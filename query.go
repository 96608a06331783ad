package solidex

import (
	"errors"
	"fmt"

	"github.com/jward/solidex/internal/model"
)

// ErrUnknownSymbol is returned for a SymbolID that does not belong to the
// queried snapshot. Misses of any other kind return empty results.
var ErrUnknownSymbol = errors.New("solidex: unknown symbol")

// QueryBuilder answers navigation queries against one snapshot.
type QueryBuilder struct {
	snap     *Snapshot
	maxItems int
}

func newQueryBuilder(snap *Snapshot, maxItems int) *QueryBuilder {
	return &QueryBuilder{snap: snap, maxItems: maxItems}
}

// Generation returns the generation of the snapshot this builder reads.
func (q *QueryBuilder) Generation() uint64 { return q.snap.Generation }

// Snapshot returns the snapshot this builder reads.
func (q *QueryBuilder) Snapshot() *Snapshot { return q.snap }

func (q *QueryBuilder) lookup(op string, id SymbolID) (*Symbol, error) {
	s, ok := q.snap.Model.Symbol(id)
	if !ok {
		return nil, fmt.Errorf("%s %q: %w", op, id, ErrUnknownSymbol)
	}
	return s, nil
}

// Symbol returns the symbol with the given id.
func (q *QueryBuilder) Symbol(id SymbolID) (*Symbol, error) {
	return q.lookup("symbol", id)
}

// Offset converts a line/character position to a byte offset in path. It
// reports false when the file is not part of the snapshot.
func (q *QueryBuilder) Offset(path string, pos Position) (int, bool) {
	f, ok := q.snap.Model.File(path)
	if !ok {
		return 0, false
	}
	return f.Lines.Offset(pos), true
}

// SymbolAt resolves a byte offset in path to the innermost symbol whose name,
// use-site or declaration span contains it. No match is not an error.
func (q *QueryBuilder) SymbolAt(path string, offset int) (SymbolID, bool) {
	return q.snap.XRef.SymbolAt(path, offset)
}

// SymbolAtPosition is SymbolAt for a line/character position.
func (q *QueryBuilder) SymbolAtPosition(path string, pos Position) (SymbolID, bool) {
	off, ok := q.Offset(path, pos)
	if !ok {
		return "", false
	}
	return q.SymbolAt(path, off)
}

// DefinitionOf returns the location of a symbol's name token.
func (q *QueryBuilder) DefinitionOf(id SymbolID) (Location, error) {
	loc, ok := q.snap.XRef.DefinitionOf(id)
	if !ok {
		return Location{}, fmt.Errorf("definition of %q: %w", id, ErrUnknownSymbol)
	}
	return loc, nil
}

// ReferencesOf returns the use-sites of a symbol ordered by path then
// offset. With includeDeclaration the definition is included exactly once.
func (q *QueryBuilder) ReferencesOf(id SymbolID, includeDeclaration bool) ([]Location, error) {
	if _, err := q.lookup("references of", id); err != nil {
		return nil, err
	}
	return q.snap.XRef.ReferencesOf(id, includeDeclaration), nil
}

// ImplementationsOf returns, for a function, the implemented functions with
// the same name and signature declared in subtypes of its contract. For an
// interface or abstract contract it returns the concrete subcontracts.
// Results follow the breadth-first subtype order. Any other symbol has no
// implementations.
func (q *QueryBuilder) ImplementationsOf(id SymbolID) ([]SymbolID, error) {
	s, err := q.lookup("implementations of", id)
	if err != nil {
		return nil, err
	}
	m := q.snap.Model
	out := []SymbolID{}

	switch s.Kind {
	case model.KindFunction:
		if s.Parent == "" {
			return out, nil
		}
		for _, sub := range q.snap.Types.Subtypes(s.Parent).IDs {
			for _, child := range m.Children(sub) {
				c, ok := m.Symbol(child)
				if ok && c.Kind == model.KindFunction && c.Implemented &&
					c.Name == s.Name && c.Signature == s.Signature {
					out = append(out, c.ID)
				}
			}
		}
	case model.KindInterface, model.KindContract:
		if s.Kind == model.KindContract && !s.Abstract {
			return out, nil
		}
		for _, sub := range q.snap.Types.Subtypes(id).IDs {
			c, ok := m.Symbol(sub)
			if ok && c.Kind == model.KindContract && !c.Abstract {
				out = append(out, c.ID)
			}
		}
	case model.KindUnknown, model.KindLibrary, model.KindModifier, model.KindStateVariable,
		model.KindLocalVariable, model.KindEvent, model.KindStruct, model.KindEnum:
	}
	return out, nil
}
