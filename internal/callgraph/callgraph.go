// Package callgraph derives caller/callee edges from a model's call sites.
package callgraph

import (
	"iter"
	"sort"

	"github.com/jward/solidex/internal/model"
)

// DefaultMaxDepth bounds depth-limited expansion when no limit is configured.
const DefaultMaxDepth = 16

// Edge joins one caller to one callee. Multiple calls between the same pair
// share an edge; Sites keeps every call location in source order.
type Edge struct {
	Caller model.SymbolID
	Callee model.SymbolID
	Sites  []model.Location
}

// Hop is one step of a depth-limited expansion. Depth 1 holds the root's
// direct callees.
type Hop struct {
	Depth int
	Edge  *Edge
}

// Graph holds forward and reverse adjacency for one model.
type Graph struct {
	out      map[model.SymbolID][]*Edge
	in       map[model.SymbolID][]*Edge
	edges    int
	maxDepth int
}

// Build derives the call graph. maxDepth caps OutgoingCalls; values below 1
// select DefaultMaxDepth.
func Build(m *model.Model, maxDepth int) *Graph {
	if maxDepth < 1 {
		maxDepth = DefaultMaxDepth
	}
	g := &Graph{
		out:      make(map[model.SymbolID][]*Edge),
		in:       make(map[model.SymbolID][]*Edge),
		maxDepth: maxDepth,
	}

	type pair struct{ caller, callee model.SymbolID }
	byPair := make(map[pair]*Edge)
	var edges []*Edge
	for _, c := range m.CallSites() {
		k := pair{c.Caller, c.Callee}
		e, ok := byPair[k]
		if !ok {
			e = &Edge{Caller: c.Caller, Callee: c.Callee}
			byPair[k] = e
			edges = append(edges, e)
		}
		e.Sites = append(e.Sites, c.Location)
	}

	for _, e := range edges {
		sort.Slice(e.Sites, func(i, j int) bool { return e.Sites[i].Less(e.Sites[j]) })
	}
	// Edges from one caller are listed by their first call site.
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Sites[0].Less(edges[j].Sites[0]) })
	for _, e := range edges {
		g.out[e.Caller] = append(g.out[e.Caller], e)
		g.in[e.Callee] = append(g.in[e.Callee], e)
	}
	g.edges = len(edges)
	return g
}

// Len returns the number of distinct caller/callee edges.
func (g *Graph) Len() int { return g.edges }

// MaxDepth returns the configured expansion cap.
func (g *Graph) MaxDepth() int { return g.maxDepth }

// Outgoing returns the direct callees of id.
func (g *Graph) Outgoing(id model.SymbolID) []*Edge { return g.out[id] }

// Incoming returns the direct callers of id.
func (g *Graph) Incoming(id model.SymbolID) []*Edge { return g.in[id] }

// OutgoingCalls expands callees breadth-first, one level at a time, down to
// maxDepth levels (clamped to [1, MaxDepth()]). Nothing is materialized
// ahead of the consumer. Recursion is not collapsed: a function calling
// itself appears once per level, and the depth cap guarantees termination.
func (g *Graph) OutgoingCalls(id model.SymbolID, maxDepth int) iter.Seq[Hop] {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > g.maxDepth {
		maxDepth = g.maxDepth
	}
	return func(yield func(Hop) bool) {
		frontier := []model.SymbolID{id}
		for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
			var next []model.SymbolID
			for _, caller := range frontier {
				for _, e := range g.out[caller] {
					if !yield(Hop{Depth: depth, Edge: e}) {
						return
					}
					next = append(next, e.Callee)
				}
			}
			frontier = next
		}
	}
}

// IncomingCalls expands callers breadth-first like OutgoingCalls, walking
// the reverse index.
func (g *Graph) IncomingCalls(id model.SymbolID, maxDepth int) iter.Seq[Hop] {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > g.maxDepth {
		maxDepth = g.maxDepth
	}
	return func(yield func(Hop) bool) {
		frontier := []model.SymbolID{id}
		for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
			var next []model.SymbolID
			for _, callee := range frontier {
				for _, e := range g.in[callee] {
					if !yield(Hop{Depth: depth, Edge: e}) {
						return
					}
					next = append(next, e.Caller)
				}
			}
			frontier = next
		}
	}
}
