package solidex

import (
	"fmt"
)

// CallHop is one caller/callee pair found while expanding the call
// hierarchy. Sites lists every call location of the pair in source order.
type CallHop struct {
	Depth  int
	Caller SymbolID
	Callee SymbolID
	Sites  []Location
}

// OutgoingCalls expands the callees of id breadth-first, one level at a time,
// down to maxDepth levels. maxDepth is clamped to [1, configured maximum] and
// the result is capped at the configured item count. Recursion is not
// collapsed: a function calling itself appears once per level.
func (q *QueryBuilder) OutgoingCalls(id SymbolID, maxDepth int) ([]CallHop, error) {
	if _, err := q.lookup("outgoing calls", id); err != nil {
		return nil, err
	}
	out := []CallHop{}
	for hop := range q.snap.Calls.OutgoingCalls(id, maxDepth) {
		if q.maxItems > 0 && len(out) >= q.maxItems {
			break
		}
		out = append(out, CallHop{Depth: hop.Depth, Caller: hop.Edge.Caller, Callee: hop.Edge.Callee, Sites: hop.Edge.Sites})
	}
	return out, nil
}

// IncomingCalls expands the callers of id breadth-first like OutgoingCalls.
func (q *QueryBuilder) IncomingCalls(id SymbolID, maxDepth int) ([]CallHop, error) {
	if _, err := q.lookup("incoming calls", id); err != nil {
		return nil, err
	}
	out := []CallHop{}
	for hop := range q.snap.Calls.IncomingCalls(id, maxDepth) {
		if q.maxItems > 0 && len(out) >= q.maxItems {
			break
		}
		out = append(out, CallHop{Depth: hop.Depth, Caller: hop.Edge.Caller, Callee: hop.Edge.Callee, Sites: hop.Edge.Sites})
	}
	return out, nil
}

// Supertypes returns the direct and transitive supertypes of a contract,
// breadth-first, each once. Cyclic is set when the walk touched an
// inheritance cycle; the result is then best-effort.
func (q *QueryBuilder) Supertypes(id SymbolID) (Traversal, error) {
	if _, err := q.lookup("supertypes", id); err != nil {
		return Traversal{}, err
	}
	return q.snap.Types.Supertypes(id), nil
}

// Subtypes returns the direct and transitive subtypes of a contract.
func (q *QueryBuilder) Subtypes(id SymbolID) (Traversal, error) {
	if _, err := q.lookup("subtypes", id); err != nil {
		return Traversal{}, err
	}
	return q.snap.Types.Subtypes(id), nil
}

// DirectSupertypes returns the bases a contract lists, in declaration order.
func (q *QueryBuilder) DirectSupertypes(id SymbolID) ([]SymbolID, error) {
	if _, err := q.lookup("direct supertypes", id); err != nil {
		return nil, err
	}
	return nonNil(q.snap.Types.DirectSupertypes(id)), nil
}

// DirectSubtypes returns the contracts listing id as a base.
func (q *QueryBuilder) DirectSubtypes(id SymbolID) ([]SymbolID, error) {
	if _, err := q.lookup("direct subtypes", id); err != nil {
		return nil, err
	}
	return nonNil(q.snap.Types.DirectSubtypes(id)), nil
}

// Linearization returns the C3 linearization of a contract, most derived
// first. It is empty for symbols that do not take part in inheritance and
// fails when the hierarchy is cyclic or cannot be linearized.
func (q *QueryBuilder) Linearization(id SymbolID) ([]SymbolID, error) {
	s, err := q.lookup("linearization", id)
	if err != nil {
		return nil, err
	}
	if !s.Kind.IsContractLike() {
		return []SymbolID{}, nil
	}
	lin, err := q.snap.Types.Linearize(id)
	if err != nil {
		return nil, fmt.Errorf("linearization of %s: %w", s.QualifiedName, err)
	}
	return lin, nil
}

// InheritanceCycles returns the contracts of every inheritance cycle found
// when the snapshot was built.
func (q *QueryBuilder) InheritanceCycles() [][]SymbolID {
	cycles := q.snap.Types.Cycles()
	if cycles == nil {
		return [][]SymbolID{}
	}
	return cycles
}

func nonNil(ids []SymbolID) []SymbolID {
	if ids == nil {
		return []SymbolID{}
	}
	return ids
}
