package solidex

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"

	"github.com/jward/solidex/internal/model"
)

// SymbolDetail bundles a symbol with its surroundings. One call replaces the
// handful of lookups a hover or a CLI listing would otherwise make.
// Enclosing is the containment chain, innermost first.
type SymbolDetail struct {
	Symbol     *Symbol   `json:"symbol"`
	Container  *Symbol   `json:"container,omitempty"`
	Enclosing  []*Symbol `json:"enclosing"`
	Children   []*Symbol `json:"children"`
	Bases      []*Symbol `json:"bases"`
	References int       `json:"references"`
	Callers    int       `json:"callers"`
	Callees    int       `json:"callees"`
	Findings   []Finding `json:"findings"`
	Definition Location  `json:"definition"`
}

// SymbolDetail returns the detail view of a symbol. Findings lists those
// that name the symbol.
func (q *QueryBuilder) SymbolDetail(id SymbolID) (*SymbolDetail, error) {
	s, err := q.lookup("symbol detail", id)
	if err != nil {
		return nil, err
	}
	m := q.snap.Model
	d := &SymbolDetail{
		Symbol:     s,
		Enclosing:  q.symbols(m.Ancestors(id)),
		Children:   q.symbols(m.Children(id)),
		Bases:      q.symbols(q.snap.Types.DirectSupertypes(id)),
		References: len(q.snap.XRef.ReferencesOf(id, false)),
		Callers:    len(q.snap.Calls.Incoming(id)),
		Callees:    len(q.snap.Calls.Outgoing(id)),
		Findings:   []Finding{},
		Definition: s.NameLoc,
	}
	if s.Parent != "" {
		d.Container, _ = m.Symbol(s.Parent)
	}
	for _, f := range q.snap.Findings.Findings(FindingFilter{}) {
		for _, sid := range f.Symbols {
			if sid == id {
				d.Findings = append(d.Findings, f)
				break
			}
		}
	}
	return d, nil
}

// SymbolDetailAt resolves the symbol at a position and returns its detail.
// It returns nil with no error when no symbol is there.
func (q *QueryBuilder) SymbolDetailAt(path string, pos Position) (*SymbolDetail, error) {
	id, ok := q.SymbolAtPosition(path, pos)
	if !ok {
		return nil, nil
	}
	return q.SymbolDetail(id)
}

func (q *QueryBuilder) symbols(ids []SymbolID) []*Symbol {
	out := make([]*Symbol, 0, len(ids))
	for _, id := range ids {
		if s, ok := q.snap.Model.Symbol(id); ok {
			out = append(out, s)
		}
	}
	return out
}

// Selector is the ABI function selector of an externally callable function:
// the first four bytes of keccak256 over its canonical signature.
type Selector struct {
	Symbol *Symbol `json:"symbol"`
	Value  uint32  `json:"value"`
}

// FunctionSelectors lists the selectors of the public and external functions
// whose names lie inside within, in declaration order. Functions without a
// signature are skipped.
func (q *QueryBuilder) FunctionSelectors(path string, within Span) []Selector {
	var out []Selector
	for _, s := range q.snap.Model.Symbols() {
		if s.Path != path || s.Kind != model.KindFunction || s.Signature == "" {
			continue
		}
		if s.Visibility != "public" && s.Visibility != "external" {
			continue
		}
		if !within.Covers(s.NameLoc.Span) {
			continue
		}
		out = append(out, Selector{Symbol: s, Value: selectorOf(s.Signature)})
	}
	return out
}

func selectorOf(signature string) uint32 {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return binary.BigEndian.Uint32(h.Sum(nil)[:4])
}
