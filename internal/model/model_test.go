package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenSrc = "contract Token {\n  uint256 total;\n  function mint() public {}\n}\n"

// =============================================================================
// LineIndex
// =============================================================================

func TestLineIndex_PositionAndOffset(t *testing.T) {
	t.Parallel()
	x := NewLineIndex("ab\ncd\r\nef\rgh")

	tests := []struct {
		off  int
		want Position
	}{
		{0, Position{0, 0}},
		{2, Position{0, 2}},
		{3, Position{1, 0}},
		{4, Position{1, 1}},
		{7, Position{2, 0}},
		{10, Position{3, 0}},
		{12, Position{3, 2}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, x.Position(tt.off), "offset %d", tt.off)
		assert.Equal(t, tt.off, x.Offset(tt.want), "position %v", tt.want)
	}
	assert.Equal(t, 4, x.LineCount())
}

func TestLineIndex_UTF16Columns(t *testing.T) {
	t.Parallel()
	// "é" is two bytes and one UTF-16 unit; "𝄞" is four bytes and two units.
	x := NewLineIndex("é𝄞x")

	assert.Equal(t, Position{0, 1}, x.Position(2))
	assert.Equal(t, Position{0, 3}, x.Position(6))
	assert.Equal(t, 6, x.Offset(Position{0, 3}))
	assert.Equal(t, 7, x.Offset(Position{0, 99}))
}

func TestLineIndex_ClampsOutOfRange(t *testing.T) {
	t.Parallel()
	x := NewLineIndex("abc\n")

	assert.Equal(t, Position{0, 0}, x.Position(-5))
	assert.Equal(t, Position{1, 0}, x.Position(100))
	assert.Equal(t, 4, x.Offset(Position{Line: 10}))
	assert.Equal(t, 3, x.Offset(Position{Line: 0, Character: 50}))
}

// =============================================================================
// Kinds and identifiers
// =============================================================================

func TestParseKind(t *testing.T) {
	t.Parallel()
	for k := KindContract; k <= KindEnum; k++ {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("unknown")
	assert.Error(t, err)
	_, err = ParseKind("class")
	assert.Error(t, err)
}

func TestKindPredicates(t *testing.T) {
	t.Parallel()
	assert.True(t, KindInterface.IsContractLike())
	assert.False(t, KindStruct.IsContractLike())
	assert.True(t, KindModifier.IsCallable())
	assert.False(t, KindEvent.IsCallable())
	assert.True(t, KindEnum.IsType())
	assert.True(t, KindLocalVariable.IsVariable())
}

func TestParseSeverityAndConfidence(t *testing.T) {
	t.Parallel()
	sev, err := ParseSeverity("high")
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, sev)
	assert.True(t, SeverityMedium > SeverityLow)
	assert.True(t, SeverityInformational > SeverityOptimization)

	conf, err := ParseConfidence("Medium")
	require.NoError(t, err)
	assert.Equal(t, ConfidenceMedium, conf)

	_, err = ParseSeverity("critical")
	assert.Error(t, err)
}

func TestNewSymbolID_Deterministic(t *testing.T) {
	t.Parallel()
	a := NewSymbolID("/p/Token.sol", "Token.mint", KindFunction)
	b := NewSymbolID("/p/Token.sol", "Token.mint", KindFunction)
	assert.Equal(t, a, b)
	assert.Contains(t, string(a), "function:")

	assert.NotEqual(t, a, NewSymbolID("/p/Token.sol", "Token.mint", KindModifier))
	assert.NotEqual(t, a, NewSymbolID("/p/Other.sol", "Token.mint", KindFunction))
}

// =============================================================================
// Builder
// =============================================================================

func buildToken(t *testing.T) (*Builder, SymbolID, SymbolID, SymbolID) {
	t.Helper()
	b := NewBuilder()
	f := b.AddFile("/p/Token.sol", 3, tokenSrc)

	token := b.AddSymbol(Symbol{
		Kind: KindContract, Name: "Token", QualifiedName: "Token", Path: f.Path,
		NameLoc: f.Location(Span{9, 14}), DeclLoc: f.Location(Span{0, len(tokenSrc) - 1}),
	})
	total := b.AddSymbol(Symbol{
		Kind: KindStateVariable, Name: "total", QualifiedName: "Token.total", Path: f.Path,
		NameLoc: f.Location(Span{27, 32}), DeclLoc: f.Location(Span{19, 33}),
	})
	mint := b.AddSymbol(Symbol{
		Kind: KindFunction, Name: "mint", QualifiedName: "Token.mint", Signature: "mint()", Path: f.Path,
		NameLoc: f.Location(Span{45, 49}), DeclLoc: f.Location(Span{36, 61}), Implemented: true,
	})
	b.SetParent(total, token)
	b.SetParent(mint, token)
	return b, token, total, mint
}

func TestBuilder_Build(t *testing.T) {
	t.Parallel()
	b, token, total, mint := buildToken(t)
	f, _ := b.File("/p/Token.sol")
	b.AddReference(total, Reference{Location: f.Location(Span{27, 32}), Kind: RefWrite})
	b.AddCall(CallSite{Caller: mint, Callee: mint, Location: f.Location(Span{45, 49})})
	b.AddUnresolvedCall()

	m, err := b.Build()
	require.NoError(t, err)

	file, ok := m.File("/p/Token.sol")
	require.True(t, ok)
	assert.Equal(t, int32(3), file.Version)
	assert.Equal(t, []SymbolID{token}, file.Symbols)
	assert.Equal(t, []SymbolID{total, mint}, m.Children(token))

	sym, ok := m.Symbol(mint)
	require.True(t, ok)
	assert.Equal(t, 1, sym.Depth)
	assert.Equal(t, 2, sym.Order)
	assert.Equal(t, Position{Line: 2, Character: 11}, sym.NameLoc.Range.Start)
	assert.Equal(t, []SymbolID{token}, m.Ancestors(mint))

	st := m.Stats()
	assert.Equal(t, 3, st.Symbols)
	assert.Equal(t, 1, st.References)
	assert.Equal(t, 1, st.UnresolvedCalls)
	assert.Equal(t, 1, st.Kinds["function"])
}

func TestBuilder_DuplicateQualifiedNames(t *testing.T) {
	t.Parallel()
	b := NewBuilder()
	f := b.AddFile("/p/A.sol", 0, "contract A {}")
	first := b.AddSymbol(Symbol{Kind: KindContract, Name: "A", QualifiedName: "A", Path: f.Path,
		NameLoc: f.Location(Span{9, 10}), DeclLoc: f.Location(Span{0, 13})})
	second := b.AddSymbol(Symbol{Kind: KindContract, Name: "A", QualifiedName: "A", Path: f.Path,
		NameLoc: f.Location(Span{9, 10}), DeclLoc: f.Location(Span{0, 13})})

	assert.NotEqual(t, first, second)
	assert.Equal(t, first+"#2", second)
}

func TestBuilder_UnknownEdgeEndpoints(t *testing.T) {
	t.Parallel()
	b, token, _, mint := buildToken(t)
	f, _ := b.File("/p/Token.sol")
	b.AddReference("function:missing", Reference{Location: f.Location(Span{0, 1})})
	b.AddCall(CallSite{Caller: mint, Callee: "function:gone", Location: f.Location(Span{0, 1})})
	b.AddInheritance(token, []SymbolID{"contract:nope"})

	m, err := b.Build()
	require.Error(t, err)
	assert.Nil(t, m)
	assert.True(t, errors.Is(err, ErrInconsistent))
	assert.Contains(t, err.Error(), "function:missing")
	assert.Contains(t, err.Error(), "function:gone")
	assert.Contains(t, err.Error(), "contract:nope")
}

func TestBuilder_SpanOutsideFile(t *testing.T) {
	t.Parallel()
	b, _, total, _ := buildToken(t)
	b.AddReference(total, Reference{Location: Location{Path: "/p/Token.sol", Span: Span{10, 500}}})

	_, err := b.Build()
	require.ErrorIs(t, err, ErrInconsistent)
	assert.Contains(t, err.Error(), "outside")
}

func TestBuilder_UnknownFile(t *testing.T) {
	t.Parallel()
	b, _, total, _ := buildToken(t)
	b.AddReference(total, Reference{Location: Location{Path: "/p/Missing.sol", Span: Span{0, 1}}})

	_, err := b.Build()
	require.ErrorIs(t, err, ErrInconsistent)
	assert.Contains(t, err.Error(), "unknown file")
}

func TestBuilder_ContainmentCycle(t *testing.T) {
	t.Parallel()
	b, token, _, mint := buildToken(t)
	b.SetParent(token, mint)

	_, err := b.Build()
	require.ErrorIs(t, err, ErrInconsistent)
	assert.Contains(t, err.Error(), "containment cycle")
}

func TestBuilder_ParentInOtherFile(t *testing.T) {
	t.Parallel()
	b, token, _, _ := buildToken(t)
	g := b.AddFile("/p/Other.sol", 0, "function free() {}")
	free := b.AddSymbol(Symbol{Kind: KindFunction, Name: "free", QualifiedName: "free", Path: g.Path,
		NameLoc: g.Location(Span{9, 13}), DeclLoc: g.Location(Span{0, 18})})
	b.SetParent(free, token)

	_, err := b.Build()
	require.ErrorIs(t, err, ErrInconsistent)
	assert.Contains(t, err.Error(), "another file")
}

func TestBuilder_InheritanceRequiresContracts(t *testing.T) {
	t.Parallel()
	b, token, total, _ := buildToken(t)
	b.AddInheritance(token, []SymbolID{total})

	_, err := b.Build()
	require.ErrorIs(t, err, ErrInconsistent)
	assert.Contains(t, err.Error(), "state_variable")
}
