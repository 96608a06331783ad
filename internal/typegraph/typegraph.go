// Package typegraph derives the inheritance graph of a model and walks it.
package typegraph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/jward/solidex/internal/model"
)

// ErrCycle is returned by Linearize when inheritance loops back on itself.
var ErrCycle = errors.New("typegraph: inheritance cycle")

// ErrInconsistentHierarchy is returned by Linearize when no C3 order exists.
var ErrInconsistentHierarchy = errors.New("typegraph: linearization impossible")

// Traversal is the result of a transitive walk. Cyclic is set when the walk
// touched a malformed cycle; IDs is then a best-effort partial answer.
type Traversal struct {
	IDs    []model.SymbolID
	Cyclic bool
}

// Graph holds direct supertypes and the reverse subtype index.
type Graph struct {
	supers  map[model.SymbolID][]model.SymbolID
	subs    map[model.SymbolID][]model.SymbolID
	cycles  [][]model.SymbolID
	inCycle map[model.SymbolID]bool
}

// Build derives the inheritance graph of m and detects cycles once.
func Build(m *model.Model) *Graph {
	g := &Graph{
		supers:  make(map[model.SymbolID][]model.SymbolID),
		subs:    make(map[model.SymbolID][]model.SymbolID),
		inCycle: make(map[model.SymbolID]bool),
	}
	for _, s := range m.Symbols() {
		if !s.Kind.IsContractLike() {
			continue
		}
		bases := m.DirectSupertypes(s.ID)
		if len(bases) == 0 {
			continue
		}
		g.supers[s.ID] = bases
		for _, b := range bases {
			if !slices.Contains(g.subs[b], s.ID) {
				g.subs[b] = append(g.subs[b], s.ID)
			}
		}
	}
	g.detectCycles(m)
	return g
}

func (g *Graph) detectCycles(m *model.Model) {
	const (
		white = iota
		grey
		black
	)
	color := make(map[model.SymbolID]int)
	var stack []model.SymbolID

	var visit func(id model.SymbolID)
	visit = func(id model.SymbolID) {
		color[id] = grey
		stack = append(stack, id)
		for _, b := range g.supers[id] {
			switch color[b] {
			case white:
				visit(b)
			case grey:
				i := slices.Index(stack, b)
				cycle := slices.Clone(stack[i:])
				g.cycles = append(g.cycles, cycle)
				for _, c := range cycle {
					g.inCycle[c] = true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}
	for _, s := range m.Symbols() {
		if _, ok := g.supers[s.ID]; ok && color[s.ID] == white {
			visit(s.ID)
		}
	}
}

// Cycles returns every inheritance cycle found at build time.
func (g *Graph) Cycles() [][]model.SymbolID { return g.cycles }

// DirectSupertypes returns the declared bases in declaration order.
func (g *Graph) DirectSupertypes(id model.SymbolID) []model.SymbolID { return g.supers[id] }

// DirectSubtypes returns the contracts that list id as a base, in
// declaration order.
func (g *Graph) DirectSubtypes(id model.SymbolID) []model.SymbolID { return g.subs[id] }

// Supertypes returns direct and transitive supertypes breadth-first. Each
// symbol appears once even when reachable along several paths.
func (g *Graph) Supertypes(id model.SymbolID) Traversal {
	return g.walk(id, g.supers)
}

// Subtypes returns direct and transitive subtypes breadth-first.
func (g *Graph) Subtypes(id model.SymbolID) Traversal {
	return g.walk(id, g.subs)
}

func (g *Graph) walk(id model.SymbolID, next map[model.SymbolID][]model.SymbolID) Traversal {
	t := Traversal{IDs: []model.SymbolID{}, Cyclic: g.inCycle[id]}
	visited := map[model.SymbolID]bool{id: true}
	queue := []model.SymbolID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range next[cur] {
			if g.inCycle[n] {
				t.Cyclic = true
			}
			if visited[n] {
				continue
			}
			visited[n] = true
			t.IDs = append(t.IDs, n)
			queue = append(queue, n)
		}
	}
	return t
}

// Linearize computes the C3 linearization of a contract, most derived first.
// Solidity lists bases from most base-like to most derived, so bases are
// merged in reverse declaration order.
func (g *Graph) Linearize(id model.SymbolID) ([]model.SymbolID, error) {
	memo := make(map[model.SymbolID][]model.SymbolID)
	return g.linearize(id, memo, map[model.SymbolID]bool{})
}

func (g *Graph) linearize(id model.SymbolID, memo map[model.SymbolID][]model.SymbolID, active map[model.SymbolID]bool) ([]model.SymbolID, error) {
	if l, ok := memo[id]; ok {
		return l, nil
	}
	if active[id] {
		return nil, fmt.Errorf("%w at %s", ErrCycle, id)
	}
	active[id] = true
	defer delete(active, id)

	bases := g.supers[id]
	var seqs [][]model.SymbolID
	for i := len(bases) - 1; i >= 0; i-- {
		l, err := g.linearize(bases[i], memo, active)
		if err != nil {
			return nil, err
		}
		seqs = append(seqs, slices.Clone(l))
	}
	direct := slices.Clone(bases)
	slices.Reverse(direct)
	seqs = append(seqs, direct)

	out := []model.SymbolID{id}
	for {
		seqs = slices.DeleteFunc(seqs, func(s []model.SymbolID) bool { return len(s) == 0 })
		if len(seqs) == 0 {
			break
		}
		var head model.SymbolID
		found := false
		for _, s := range seqs {
			cand := s[0]
			if !inTail(seqs, cand) {
				head, found = cand, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w for %s", ErrInconsistentHierarchy, id)
		}
		out = append(out, head)
		for i, s := range seqs {
			if s[0] == head {
				seqs[i] = s[1:]
			}
		}
	}
	memo[id] = out
	return out, nil
}

func inTail(seqs [][]model.SymbolID, id model.SymbolID) bool {
	for _, s := range seqs {
		if slices.Contains(s[1:], id) {
			return true
		}
	}
	return false
}
