package solidex

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/jward/solidex/internal/adapter"
	"github.com/jward/solidex/internal/fixture"
	"github.com/jward/solidex/internal/model"
)

type dispatchFixture struct {
	d *Dispatcher
	e *Engine
	p *sampleProject
	m *model.Model
}

func newTestDispatcher(t *testing.T) *dispatchFixture {
	t.Helper()
	e, p := newLoadedEngine(t)
	d, err := NewDispatcher(e)
	require.NoError(t, err)
	return &dispatchFixture{d: d, e: e, p: p, m: e.Snapshot().Model}
}

// at returns request params pointing at the name of the symbol.
func (f *dispatchFixture) at(t *testing.T, qualifiedName string) protocol.TextDocumentPositionParams {
	t.Helper()
	s, ok := f.m.Symbol(fixture.ID(t, f.m, qualifiedName))
	require.True(t, ok)
	return positionParams(s.NameLoc)
}

func positionParams(loc Location) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri.File(loc.Path))},
		Position: protocol.Position{
			Line:      uint32(loc.Range.Start.Line),
			Character: uint32(loc.Range.Start.Character),
		},
	}
}

func itemNames(items []HierarchyItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Detail)
	}
	return out
}

// =============================================================================
// Navigation
// =============================================================================

func TestDispatcher_Definition(t *testing.T) {
	t.Parallel()
	f := newTestDispatcher(t)

	// The call site inside Mid2.fact resolves to the declaration.
	fact, _ := f.m.Symbol(fixture.ID(t, f.m, "Mid2.fact"))
	sites := f.e.Snapshot().Calls.Outgoing(fact.ID)[0].Sites
	params := &protocol.DefinitionParams{TextDocumentPositionParams: positionParams(sites[0])}

	locs, err := f.d.Definition(params)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, protocol.DocumentURI(uri.File(f.p.tokenPath)), locs[0].URI)
	assert.Equal(t, toRange(fact.NameLoc.Range), locs[0].Range)
}

func TestDispatcher_DefinitionNoSymbol(t *testing.T) {
	t.Parallel()
	f := newTestDispatcher(t)

	params := &protocol.DefinitionParams{TextDocumentPositionParams: protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri.File(f.p.tokenPath))},
		Position:     protocol.Position{Line: 400},
	}}
	locs, err := f.d.Definition(params)
	require.NoError(t, err)
	assert.Empty(t, locs)
	assert.NotNil(t, locs)

	params.TextDocument.URI = protocol.DocumentURI("untitled:Untitled-1")
	locs, err = f.d.Definition(params)
	require.NoError(t, err)
	assert.Empty(t, locs)
}

func TestDispatcher_References(t *testing.T) {
	t.Parallel()
	f := newTestDispatcher(t)

	params := &protocol.ReferenceParams{
		TextDocumentPositionParams: f.at(t, "Base"),
		Context:                    protocol.ReferenceContext{IncludeDeclaration: true},
	}
	locs, err := f.d.References(params)
	require.NoError(t, err)
	require.Len(t, locs, 3)
	assert.Equal(t, protocol.DocumentURI(uri.File(f.p.basePath)), locs[0].URI)

	params.Context.IncludeDeclaration = false
	locs, err = f.d.References(params)
	require.NoError(t, err)
	assert.Len(t, locs, 2)
}

func TestDispatcher_Implementation(t *testing.T) {
	t.Parallel()
	f := newTestDispatcher(t)
	params := f.at(t, "IToken.transfer")

	locs, err := f.d.Implementation(&params)
	require.NoError(t, err)
	require.Len(t, locs, 2)
	mid1, _ := f.m.Symbol(fixture.ID(t, f.m, "Mid1.transfer"))
	assert.Equal(t, toLocation(mid1.NameLoc), locs[0])
}

// =============================================================================
// Hierarchies
// =============================================================================

func TestDispatcher_CallHierarchy(t *testing.T) {
	t.Parallel()
	f := newTestDispatcher(t)
	params := f.at(t, "Mid1.transfer")

	items, err := f.d.PrepareCallHierarchy(&params)
	require.NoError(t, err)
	require.Len(t, items, 1)
	item := items[0]
	assert.Equal(t, "transfer", item.Name)
	assert.Equal(t, protocol.SymbolKindMethod, item.Kind)
	assert.Equal(t, fixture.ID(t, f.m, "Mid1.transfer"), item.Data)

	in, err := f.d.IncomingCalls(item)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "Leaf.transfer", in[0].From.Detail)
	assert.Len(t, in[0].FromRanges, 1)

	out, err := f.d.OutgoingCalls(item)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Base._bump", out[0].To.Detail)
	assert.Len(t, out[0].FromRanges, 2)
}

func TestDispatcher_PrepareCallHierarchyOnContract(t *testing.T) {
	t.Parallel()
	f := newTestDispatcher(t)
	params := f.at(t, "Leaf")

	items, err := f.d.PrepareCallHierarchy(&params)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDispatcher_TypeHierarchy(t *testing.T) {
	t.Parallel()
	f := newTestDispatcher(t)
	params := f.at(t, "Base")

	items, err := f.d.PrepareTypeHierarchy(&params)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, protocol.SymbolKindClass, items[0].Kind)

	supers, err := f.d.Supertypes(items[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"IToken"}, itemNames(supers))

	subs, err := f.d.Subtypes(items[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"Mid1", "Mid2"}, itemNames(subs))

	fn := f.at(t, "Base._bump")
	items, err = f.d.PrepareTypeHierarchy(&fn)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDispatcher_StaleItemFails(t *testing.T) {
	t.Parallel()
	f := newTestDispatcher(t)

	_, err := f.d.IncomingCalls(HierarchyItem{Data: "function:gone"})
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

// =============================================================================
// Symbols
// =============================================================================

func TestDispatcher_DocumentSymbols(t *testing.T) {
	t.Parallel()
	f := newTestDispatcher(t)

	syms, err := f.d.DocumentSymbols(&protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri.File(f.p.basePath))},
	})
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "IToken", syms[0].Name)
	assert.Equal(t, protocol.SymbolKindInterface, syms[0].Kind)
	require.Len(t, syms[1].Children, 3)
	assert.Equal(t, protocol.SymbolKindField, syms[1].Children[0].Kind)
	assert.Equal(t, "transfer(address,uint256)", syms[1].Children[1].Detail)
}

func TestDispatcher_WorkspaceSymbols(t *testing.T) {
	t.Parallel()
	f := newTestDispatcher(t)

	syms, err := f.d.WorkspaceSymbols(&protocol.WorkspaceSymbolParams{Query: "fact"})
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "fact", syms[0].Name)
	assert.Equal(t, "Mid2", syms[0].ContainerName)
	assert.Equal(t, protocol.SymbolKindMethod, syms[0].Kind)
}

// =============================================================================
// Inlay hints
// =============================================================================

func TestDispatcher_InlayHints(t *testing.T) {
	t.Parallel()
	f := newTestDispatcher(t)
	doc := protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri.File(f.p.basePath))}
	whole := protocol.Range{End: protocol.Position{Line: 100}}

	hints, err := f.d.InlayHints(&InlayHintParams{TextDocument: doc, Range: whole})
	require.NoError(t, err)
	require.Len(t, hints, 2)
	assert.Equal(t, ": 0xa9059cbb", hints[0].Label)
	assert.Equal(t, protocol.Position{Line: 1, Character: 21}, hints[0].Position)

	firstLines := protocol.Range{End: protocol.Position{Line: 2}}
	hints, err = f.d.InlayHints(&InlayHintParams{TextDocument: doc, Range: firstLines})
	require.NoError(t, err)
	assert.Len(t, hints, 1)

	untitled := protocol.TextDocumentIdentifier{URI: "untitled:Untitled-1"}
	hints, err = f.d.InlayHints(&InlayHintParams{TextDocument: untitled, Range: whole})
	require.NoError(t, err)
	assert.NotNil(t, hints)
	assert.Empty(t, hints)
}

// =============================================================================
// Findings
// =============================================================================

func TestDispatcher_Diagnostics(t *testing.T) {
	t.Parallel()
	f := newTestDispatcher(t)

	params := f.d.Diagnostics()
	require.Len(t, params, 2)
	assert.Equal(t, protocol.DocumentURI(uri.File(f.p.basePath)), params[0].URI)
	require.Len(t, params[0].Diagnostics, 1)
	assert.Len(t, params[1].Diagnostics, 2)

	medium := params[1].Diagnostics[0]
	assert.Equal(t, protocol.DiagnosticSeverityWarning, medium.Severity)
	assert.Equal(t, "incorrect-equality", medium.Code)
	assert.Equal(t, "slither", medium.Source)
	assert.Equal(t, "[MEDIUM] Mid2.fact(uint256) uses a dangerous strict equality: n == 0", medium.Message)

	info := params[0].Diagnostics[0]
	assert.Equal(t, protocol.DiagnosticSeverityHint, info.Severity)
	assert.Empty(t, info.RelatedInformation)
}

func TestDispatcher_DiagnosticsIncludeAnalysisFailure(t *testing.T) {
	t.Parallel()
	f := newTestDispatcher(t)
	newPath := filepath.Join(f.p.root, "New.sol")
	good := f.p.analyzer.Respond
	f.p.analyzer.Respond = func(context.Context, int, adapter.Project) (*adapter.Result, error) {
		return nil, &adapter.AnalyzerError{
			Diagnostics: []adapter.Diagnostic{
				{Path: f.p.tokenPath, Line: 3, Character: 10, Message: "ParserError: expected ';'"},
				{Path: newPath, Message: "ParserError: unexpected end of source"},
				{Message: "solc exited with status 1"},
			},
			Err: errors.New("exit status 1"),
		}
	}
	_, err := f.e.Wait(waitCtx(t), f.e.Reanalyze())
	require.Error(t, err)

	params := f.d.Diagnostics()
	require.Len(t, params, 3)
	assert.Len(t, params[0].Diagnostics, 1, "base keeps its finding")

	token := params[1]
	assert.Equal(t, protocol.DocumentURI(uri.File(f.p.tokenPath)), token.URI)
	require.Len(t, token.Diagnostics, 3)
	parse := token.Diagnostics[0]
	assert.Equal(t, protocol.DiagnosticSeverityError, parse.Severity)
	assert.Equal(t, "ParserError: expected ';'", parse.Message)
	assert.Equal(t, protocol.Position{Line: 3, Character: 10}, parse.Range.Start)
	assert.Equal(t, "slither", parse.Source)

	assert.Equal(t, protocol.DocumentURI(uri.File(newPath)), params[2].URI)
	require.Len(t, params[2].Diagnostics, 1)

	msgs := f.d.ShowMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.MessageTypeError, msgs[0].Type)
	assert.Contains(t, msgs[0].Message, "solc exited with status 1")

	f.p.analyzer.Respond = good
	_, err = f.e.Wait(waitCtx(t), f.e.Reanalyze())
	require.NoError(t, err)

	params = f.d.Diagnostics()
	require.Len(t, params, 2)
	assert.Len(t, params[1].Diagnostics, 2)
	assert.Empty(t, f.d.ShowMessages())
}

func TestDispatcher_DetectorSettings(t *testing.T) {
	t.Parallel()
	f := newTestDispatcher(t)

	f.d.SetDetectorSettings(true, []string{"naming-convention"})
	params := f.d.Diagnostics()
	require.Len(t, params, 2)
	assert.Empty(t, params[0].Diagnostics, "file without findings still gets an entry")
	assert.NotNil(t, params[0].Diagnostics)
	assert.Len(t, f.d.Findings(), 2)

	f.d.SetDetectorSettings(false, nil)
	assert.Empty(t, f.d.Findings())
	for _, p := range f.d.Diagnostics() {
		assert.Empty(t, p.Diagnostics)
	}

	f.d.SetFindingFilter(FindingFilter{MinSeverity: model.SeverityLow})
	assert.Len(t, f.d.Findings(), 2)
	assert.Equal(t, model.SeverityLow, f.d.FindingFilter().MinSeverity)
	assert.Len(t, f.d.Detectors(), 3)
}

func TestDispatcher_FilterFromConfig(t *testing.T) {
	t.Parallel()
	p := newSampleProject(t)
	e := p.engine(t)
	e.cfg.Findings.MinSeverity = "medium"
	e.cfg.Findings.Hidden = []string{"incorrect-equality"}

	d, err := NewDispatcher(e)
	require.NoError(t, err)
	flt := d.FindingFilter()
	assert.Equal(t, model.SeverityMedium, flt.MinSeverity)
	assert.Equal(t, []string{"incorrect-equality"}, flt.Hidden)

	e.cfg.Findings.MinSeverity = "catastrophic"
	_, err = NewDispatcher(e)
	assert.Error(t, err)
}

func TestDiagnosticSeverity(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   Severity
		want protocol.DiagnosticSeverity
	}{
		{model.SeverityHigh, protocol.DiagnosticSeverityError},
		{model.SeverityMedium, protocol.DiagnosticSeverityWarning},
		{model.SeverityLow, protocol.DiagnosticSeverityInformation},
		{model.SeverityInformational, protocol.DiagnosticSeverityHint},
		{model.SeverityOptimization, protocol.DiagnosticSeverityHint},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, diagnosticSeverity(tt.in), tt.in.String())
	}
}
