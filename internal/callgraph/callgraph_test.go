package callgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/solidex/internal/fixture"
	"github.com/jward/solidex/internal/model"
)

func collect(seq func(func(Hop) bool)) []Hop {
	var out []Hop
	for h := range seq {
		out = append(out, h)
	}
	return out
}

func TestBuild_DeduplicatesPairsKeepsSites(t *testing.T) {
	t.Parallel()
	m := fixture.Sample().Model(t)
	g := Build(m, 0)

	assert.Equal(t, 3, g.Len())
	assert.Equal(t, DefaultMaxDepth, g.MaxDepth())

	mid1 := fixture.ID(t, m, "Mid1.transfer")
	out := g.Outgoing(mid1)
	require.Len(t, out, 1)
	assert.Equal(t, fixture.ID(t, m, "Base._bump"), out[0].Callee)
	require.Len(t, out[0].Sites, 2)
	assert.True(t, out[0].Sites[0].Less(out[0].Sites[1]))
}

func TestIncoming_ReverseIndex(t *testing.T) {
	t.Parallel()
	m := fixture.Sample().Model(t)
	g := Build(m, 0)

	bump := fixture.ID(t, m, "Base._bump")
	in := g.Incoming(bump)
	require.Len(t, in, 1)
	assert.Equal(t, fixture.ID(t, m, "Mid1.transfer"), in[0].Caller)

	assert.Empty(t, g.Incoming(fixture.ID(t, m, "Leaf.transfer")))
}

func TestOutgoingCalls_RecursionDepthOne(t *testing.T) {
	t.Parallel()
	m := fixture.Sample().Model(t)
	g := Build(m, 0)
	fact := fixture.ID(t, m, "Mid2.fact")

	hops := collect(g.OutgoingCalls(fact, 1))
	require.Len(t, hops, 1)
	assert.Equal(t, fact, hops[0].Edge.Callee)
	assert.Equal(t, 1, hops[0].Depth)
}

func TestOutgoingCalls_RecursionDepthCapped(t *testing.T) {
	t.Parallel()
	m := fixture.Sample().Model(t)
	fact := fixture.ID(t, m, "Mid2.fact")

	hops := collect(Build(m, 0).OutgoingCalls(fact, 5))
	require.Len(t, hops, 5)
	for i, h := range hops {
		assert.Equal(t, i+1, h.Depth)
		assert.Equal(t, fact, h.Edge.Callee)
	}

	capped := collect(Build(m, 3).OutgoingCalls(fact, 1000))
	assert.Len(t, capped, 3)
}

func TestOutgoingCalls_Transitive(t *testing.T) {
	t.Parallel()
	m := fixture.Sample().Model(t)
	g := Build(m, 0)
	leaf := fixture.ID(t, m, "Leaf.transfer")

	hops := collect(g.OutgoingCalls(leaf, 10))
	require.Len(t, hops, 2)
	assert.Equal(t, fixture.ID(t, m, "Mid1.transfer"), hops[0].Edge.Callee)
	assert.Equal(t, 1, hops[0].Depth)
	assert.Equal(t, fixture.ID(t, m, "Base._bump"), hops[1].Edge.Callee)
	assert.Equal(t, 2, hops[1].Depth)
}

func TestOutgoingCalls_StopsWhenConsumerStops(t *testing.T) {
	t.Parallel()
	m := fixture.Sample().Model(t)
	fact := fixture.ID(t, m, "Mid2.fact")

	n := 0
	for range Build(m, 100).OutgoingCalls(fact, 100) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestIncomingCalls_Transitive(t *testing.T) {
	t.Parallel()
	m := fixture.Sample().Model(t)
	bump := fixture.ID(t, m, "Base._bump")

	hops := collect(Build(m, 0).IncomingCalls(bump, 5))
	require.Len(t, hops, 2)
	assert.Equal(t, fixture.ID(t, m, "Mid1.transfer"), hops[0].Edge.Caller)
	assert.Equal(t, fixture.ID(t, m, "Leaf.transfer"), hops[1].Edge.Caller)
}

func TestOutgoingCalls_MutualRecursion(t *testing.T) {
	t.Parallel()
	const src = "contract C { function a() public { b(); } function b() public { a(); } }"
	fb := fixture.NewBuilder("/p")
	fb.File("C.sol", src, 0).
		Decl("C", "contract", "C", "contract C", 0).
		Decl("C.a", "function", "C.a", "function a", 0, fixture.Parent("C"), fixture.Implemented()).
		Decl("C.b", "function", "C.b", "function b", 0, fixture.Parent("C"), fixture.Implemented()).
		Call("C.a", "C.b", "b", 0).
		Call("C.b", "C.a", "a", 1)
	m := fb.Model(t)
	a := fixture.ID(t, m, "C.a")

	hops := collect(Build(m, 0).OutgoingCalls(a, 4))
	require.Len(t, hops, 4)
	want := []model.SymbolID{fixture.ID(t, m, "C.b"), a, fixture.ID(t, m, "C.b"), a}
	for i, h := range hops {
		assert.Equal(t, want[i], h.Edge.Callee)
	}
}
