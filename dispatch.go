package solidex

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/jward/solidex/internal/adapter"
	"github.com/jward/solidex/internal/model"
)

// HierarchyItem is one node of a call or type hierarchy view. Data carries
// the symbol id so expanding the node needs no position lookup.
type HierarchyItem struct {
	Name           string               `json:"name"`
	Kind           protocol.SymbolKind  `json:"kind"`
	Detail         string               `json:"detail,omitempty"`
	URI            protocol.DocumentURI `json:"uri"`
	Range          protocol.Range       `json:"range"`
	SelectionRange protocol.Range       `json:"selectionRange"`
	Data           SymbolID             `json:"data"`
}

// IncomingCall is a caller of the expanded item and the ranges of its calls.
type IncomingCall struct {
	From       HierarchyItem    `json:"from"`
	FromRanges []protocol.Range `json:"fromRanges"`
}

// OutgoingCall is a callee of the expanded item and the ranges, inside the
// item, that call it.
type OutgoingCall struct {
	To         HierarchyItem    `json:"to"`
	FromRanges []protocol.Range `json:"fromRanges"`
}

// Dispatcher maps language server requests onto queries. Each request reads
// one snapshot and runs exactly one query. Requests whose position resolves
// to no symbol get an empty result, never an error.
//
// The finding filter is per-client view state and lives here rather than in
// the snapshot.
type Dispatcher struct {
	engine *Engine
	source string

	mu     sync.RWMutex
	filter FindingFilter
}

// NewDispatcher returns a dispatcher whose initial finding filter comes from
// the engine's configuration.
func NewDispatcher(e *Engine) (*Dispatcher, error) {
	cfg := e.Config()
	sev, err := cfg.MinSeverity()
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	conf, err := cfg.MinConfidence()
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	return &Dispatcher{
		engine: e,
		source: cfg.Analyzer.Name,
		filter: FindingFilter{
			MinSeverity:   sev,
			MinConfidence: conf,
			Hidden:        append([]string(nil), cfg.Findings.Hidden...),
		},
	}, nil
}

// SetFindingFilter replaces the client's finding filter.
func (d *Dispatcher) SetFindingFilter(flt FindingFilter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filter = flt
}

// SetDetectorSettings applies a client's detector toggle: findings are
// suppressed entirely when enabled is false, and hidden detector ids are
// never shown. Severity and confidence thresholds are kept.
func (d *Dispatcher) SetDetectorSettings(enabled bool, hidden []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filter.Disabled = !enabled
	d.filter.Hidden = append([]string(nil), hidden...)
}

// FindingFilter returns the client's current finding filter.
func (d *Dispatcher) FindingFilter() FindingFilter {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filter
}

// Definition answers textDocument/definition.
func (d *Dispatcher) Definition(params *protocol.DefinitionParams) ([]protocol.Location, error) {
	q := d.engine.Query()
	id, ok := symbolAt(q, params.TextDocument, params.Position)
	if !ok {
		return []protocol.Location{}, nil
	}
	loc, err := q.DefinitionOf(id)
	if err != nil {
		return nil, err
	}
	return []protocol.Location{toLocation(loc)}, nil
}

// References answers textDocument/references.
func (d *Dispatcher) References(params *protocol.ReferenceParams) ([]protocol.Location, error) {
	q := d.engine.Query()
	id, ok := symbolAt(q, params.TextDocument, params.Position)
	if !ok {
		return []protocol.Location{}, nil
	}
	locs, err := q.ReferencesOf(id, params.Context.IncludeDeclaration)
	if err != nil {
		return nil, err
	}
	return toLocations(locs), nil
}

// Implementation answers textDocument/implementation with the name
// locations of the implementing symbols.
func (d *Dispatcher) Implementation(params *protocol.TextDocumentPositionParams) ([]protocol.Location, error) {
	q := d.engine.Query()
	id, ok := symbolAt(q, params.TextDocument, params.Position)
	if !ok {
		return []protocol.Location{}, nil
	}
	impls, err := q.ImplementationsOf(id)
	if err != nil {
		return nil, err
	}
	out := make([]protocol.Location, 0, len(impls))
	for _, impl := range impls {
		loc, err := q.DefinitionOf(impl)
		if err != nil {
			return nil, err
		}
		out = append(out, toLocation(loc))
	}
	return out, nil
}

// --- Call hierarchy ---

// PrepareCallHierarchy answers textDocument/prepareCallHierarchy. Only
// functions and modifiers produce an item.
func (d *Dispatcher) PrepareCallHierarchy(params *protocol.TextDocumentPositionParams) ([]HierarchyItem, error) {
	q := d.engine.Query()
	id, ok := symbolAt(q, params.TextDocument, params.Position)
	if !ok {
		return []HierarchyItem{}, nil
	}
	s, err := q.Symbol(id)
	if err != nil {
		return nil, err
	}
	if !s.Kind.IsCallable() {
		return []HierarchyItem{}, nil
	}
	return []HierarchyItem{toItem(s)}, nil
}

// IncomingCalls answers callHierarchy/incomingCalls, one level deep.
func (d *Dispatcher) IncomingCalls(item HierarchyItem) ([]IncomingCall, error) {
	q := d.engine.Query()
	hops, err := q.IncomingCalls(item.Data, 1)
	if err != nil {
		return nil, err
	}
	out := make([]IncomingCall, 0, len(hops))
	for _, h := range hops {
		caller, err := q.Symbol(h.Caller)
		if err != nil {
			return nil, err
		}
		out = append(out, IncomingCall{From: toItem(caller), FromRanges: toRanges(h.Sites)})
	}
	return out, nil
}

// OutgoingCalls answers callHierarchy/outgoingCalls, one level deep.
func (d *Dispatcher) OutgoingCalls(item HierarchyItem) ([]OutgoingCall, error) {
	q := d.engine.Query()
	hops, err := q.OutgoingCalls(item.Data, 1)
	if err != nil {
		return nil, err
	}
	out := make([]OutgoingCall, 0, len(hops))
	for _, h := range hops {
		callee, err := q.Symbol(h.Callee)
		if err != nil {
			return nil, err
		}
		out = append(out, OutgoingCall{To: toItem(callee), FromRanges: toRanges(h.Sites)})
	}
	return out, nil
}

// --- Type hierarchy ---

// PrepareTypeHierarchy answers textDocument/prepareTypeHierarchy. Only
// contracts, interfaces and libraries produce an item.
func (d *Dispatcher) PrepareTypeHierarchy(params *protocol.TextDocumentPositionParams) ([]HierarchyItem, error) {
	q := d.engine.Query()
	id, ok := symbolAt(q, params.TextDocument, params.Position)
	if !ok {
		return []HierarchyItem{}, nil
	}
	s, err := q.Symbol(id)
	if err != nil {
		return nil, err
	}
	if !s.Kind.IsContractLike() {
		return []HierarchyItem{}, nil
	}
	return []HierarchyItem{toItem(s)}, nil
}

// Supertypes answers typeHierarchy/supertypes with the direct bases.
func (d *Dispatcher) Supertypes(item HierarchyItem) ([]HierarchyItem, error) {
	q := d.engine.Query()
	ids, err := q.DirectSupertypes(item.Data)
	if err != nil {
		return nil, err
	}
	return toItems(q, ids), nil
}

// Subtypes answers typeHierarchy/subtypes with the direct subcontracts.
func (d *Dispatcher) Subtypes(item HierarchyItem) ([]HierarchyItem, error) {
	q := d.engine.Query()
	ids, err := q.DirectSubtypes(item.Data)
	if err != nil {
		return nil, err
	}
	return toItems(q, ids), nil
}

// --- Symbols ---

// DocumentSymbols answers textDocument/documentSymbol.
func (d *Dispatcher) DocumentSymbols(params *protocol.DocumentSymbolParams) ([]protocol.DocumentSymbol, error) {
	path, ok := pathOf(uri.URI(params.TextDocument.URI))
	if !ok {
		return []protocol.DocumentSymbol{}, nil
	}
	return toDocumentSymbols(d.engine.Query().Outline(path)), nil
}

// WorkspaceSymbols answers workspace/symbol.
func (d *Dispatcher) WorkspaceSymbols(params *protocol.WorkspaceSymbolParams) ([]protocol.SymbolInformation, error) {
	q := d.engine.Query()
	syms := q.SearchSymbols(params.Query)
	out := make([]protocol.SymbolInformation, 0, len(syms))
	for _, s := range syms {
		info := protocol.SymbolInformation{
			Name:     s.Name,
			Kind:     symbolKind(s),
			Location: toLocation(s.NameLoc),
		}
		if s.Parent != "" {
			if p, err := q.Symbol(s.Parent); err == nil {
				info.ContainerName = p.QualifiedName
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// --- Inlay hints ---

// InlayHintParams is a textDocument/inlayHint request.
type InlayHintParams struct {
	TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
	Range        protocol.Range                  `json:"range"`
}

// InlayHint is a label rendered inline at a position.
type InlayHint struct {
	Position protocol.Position `json:"position"`
	Label    string            `json:"label"`
}

// InlayHints answers textDocument/inlayHint with the function selector after
// the name of each public or external function in the requested range.
func (d *Dispatcher) InlayHints(params *InlayHintParams) ([]InlayHint, error) {
	path, ok := pathOf(uri.URI(params.TextDocument.URI))
	if !ok {
		return []InlayHint{}, nil
	}
	q := d.engine.Query()
	start, ok := q.Offset(path, fromProtocol(params.Range.Start))
	if !ok {
		return []InlayHint{}, nil
	}
	end, _ := q.Offset(path, fromProtocol(params.Range.End))

	sels := q.FunctionSelectors(path, Span{Start: start, End: end})
	out := make([]InlayHint, 0, len(sels))
	for _, sel := range sels {
		after := sel.Symbol.NameLoc.Range.End
		out = append(out, InlayHint{
			Position: protocol.Position{Line: uint32(after.Line), Character: uint32(after.Character)},
			Label:    fmt.Sprintf(": 0x%08x", sel.Value),
		})
	}
	return out, nil
}

// --- Findings ---

// Findings returns the current snapshot's findings through the client's
// filter.
func (d *Dispatcher) Findings() []Finding {
	return d.engine.Query().Findings(d.FindingFilter())
}

// Detectors lists the detector ids that reported in the current snapshot.
func (d *Dispatcher) Detectors() []string {
	return d.engine.Query().Detectors()
}

// Diagnostics renders the filtered findings as one publish notification per
// project file, grouped by each finding's first location. Files without
// findings get an empty list so clients clear stale entries.
//
// While the latest rebuild has failed, the failure's file-scoped analyzer
// diagnostics are published ahead of the findings as errors, including for
// files the last good snapshot does not know yet.
func (d *Dispatcher) Diagnostics() []protocol.PublishDiagnosticsParams {
	q := d.engine.Query()
	byFile := q.FindingsByFile(d.FindingFilter())
	failed := d.failureByFile()

	files := q.Snapshot().Model.Files()
	out := make([]protocol.PublishDiagnosticsParams, 0, len(files))
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f.Path] = true
		diags := make([]protocol.Diagnostic, 0, len(failed[f.Path])+len(byFile[f.Path]))
		for _, ad := range failed[f.Path] {
			diags = append(diags, d.failureDiagnostic(ad))
		}
		for _, fd := range byFile[f.Path] {
			diags = append(diags, d.toDiagnostic(fd))
		}
		out = append(out, protocol.PublishDiagnosticsParams{
			URI:         protocol.DocumentURI(uri.File(f.Path)),
			Diagnostics: diags,
		})
	}

	var extra []string
	for path := range failed {
		if path != "" && !seen[path] {
			extra = append(extra, path)
		}
	}
	sort.Strings(extra)
	for _, path := range extra {
		diags := make([]protocol.Diagnostic, 0, len(failed[path]))
		for _, ad := range failed[path] {
			diags = append(diags, d.failureDiagnostic(ad))
		}
		out = append(out, protocol.PublishDiagnosticsParams{
			URI:         protocol.DocumentURI(uri.File(path)),
			Diagnostics: diags,
		})
	}
	return out
}

// ShowMessages returns the project-wide part of the latest rebuild failure
// as window/showMessage notifications. It is empty once a rebuild succeeds.
func (d *Dispatcher) ShowMessages() []protocol.ShowMessageParams {
	project := d.failureByFile()[""]
	out := make([]protocol.ShowMessageParams, 0, len(project))
	for _, ad := range project {
		out = append(out, protocol.ShowMessageParams{
			Type:    protocol.MessageTypeError,
			Message: fmt.Sprintf("%s: analysis failed: %s", d.source, ad.Message),
		})
	}
	return out
}

func (d *Dispatcher) failureByFile() map[string][]adapter.Diagnostic {
	f := d.engine.LastFailure()
	if f == nil {
		return nil
	}
	var af *adapter.AnalysisFailure
	if !errors.As(f, &af) {
		return map[string][]adapter.Diagnostic{"": {{Message: f.Err.Error()}}}
	}
	return af.ByFile()
}

func (d *Dispatcher) failureDiagnostic(ad adapter.Diagnostic) protocol.Diagnostic {
	pos := protocol.Position{Line: uint32(ad.Line), Character: uint32(ad.Character)}
	return protocol.Diagnostic{
		Range:    protocol.Range{Start: pos, End: pos},
		Severity: protocol.DiagnosticSeverityError,
		Source:   d.source,
		Message:  ad.Message,
	}
}

func (d *Dispatcher) toDiagnostic(f Finding) protocol.Diagnostic {
	primary, _ := f.Primary()
	diag := protocol.Diagnostic{
		Range:    toRange(primary.Range),
		Severity: diagnosticSeverity(f.Severity),
		Code:     f.Detector,
		Source:   d.source,
		Message:  fmt.Sprintf("[%s] %s", strings.ToUpper(f.Severity.String()), f.Message),
	}
	for i := 1; i < len(f.Locations); i++ {
		loc := f.Locations[i]
		diag.RelatedInformation = append(diag.RelatedInformation, protocol.DiagnosticRelatedInformation{
			Location: toLocation(loc),
			Message:  "related",
		})
	}
	return diag
}

func diagnosticSeverity(s Severity) protocol.DiagnosticSeverity {
	switch s {
	case model.SeverityHigh:
		return protocol.DiagnosticSeverityError
	case model.SeverityMedium:
		return protocol.DiagnosticSeverityWarning
	case model.SeverityLow:
		return protocol.DiagnosticSeverityInformation
	case model.SeverityInformational, model.SeverityOptimization:
		return protocol.DiagnosticSeverityHint
	}
	return protocol.DiagnosticSeverityHint
}

// --- Conversion helpers ---

// pathOf converts a file URI to a path. Other schemes have no path.
func pathOf(u uri.URI) (string, bool) {
	if !strings.HasPrefix(string(u), uri.FileScheme+"://") {
		return "", false
	}
	return u.Filename(), true
}

func symbolAt(q *QueryBuilder, doc protocol.TextDocumentIdentifier, pos protocol.Position) (SymbolID, bool) {
	path, ok := pathOf(uri.URI(doc.URI))
	if !ok {
		return "", false
	}
	return q.SymbolAtPosition(path, fromProtocol(pos))
}

func fromProtocol(p protocol.Position) Position {
	return Position{Line: int(p.Line), Character: int(p.Character)}
}

func toRange(r Range) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: uint32(r.Start.Line), Character: uint32(r.Start.Character)},
		End:   protocol.Position{Line: uint32(r.End.Line), Character: uint32(r.End.Character)},
	}
}

func toRanges(locs []Location) []protocol.Range {
	out := make([]protocol.Range, 0, len(locs))
	for _, l := range locs {
		out = append(out, toRange(l.Range))
	}
	return out
}

func toLocation(l Location) protocol.Location {
	return protocol.Location{URI: protocol.DocumentURI(uri.File(l.Path)), Range: toRange(l.Range)}
}

func toLocations(locs []Location) []protocol.Location {
	out := make([]protocol.Location, 0, len(locs))
	for _, l := range locs {
		out = append(out, toLocation(l))
	}
	return out
}

func toItem(s *Symbol) HierarchyItem {
	return HierarchyItem{
		Name:           s.Name,
		Kind:           symbolKind(s),
		Detail:         s.QualifiedName,
		URI:            protocol.DocumentURI(uri.File(s.Path)),
		Range:          toRange(s.DeclLoc.Range),
		SelectionRange: toRange(s.NameLoc.Range),
		Data:           s.ID,
	}
}

func toItems(q *QueryBuilder, ids []SymbolID) []HierarchyItem {
	out := make([]HierarchyItem, 0, len(ids))
	for _, s := range q.symbols(ids) {
		out = append(out, toItem(s))
	}
	return out
}

func toDocumentSymbols(nodes []OutlineNode) []protocol.DocumentSymbol {
	out := make([]protocol.DocumentSymbol, 0, len(nodes))
	for _, n := range nodes {
		detail := n.Symbol.Signature
		if detail == "" {
			detail = n.Symbol.Kind.String()
		}
		out = append(out, protocol.DocumentSymbol{
			Name:           n.Symbol.Name,
			Detail:         detail,
			Kind:           symbolKind(n.Symbol),
			Range:          toRange(n.Symbol.DeclLoc.Range),
			SelectionRange: toRange(n.Symbol.NameLoc.Range),
			Children:       toDocumentSymbols(n.Children),
		})
	}
	return out
}

func symbolKind(s *Symbol) protocol.SymbolKind {
	switch s.Kind {
	case model.KindContract:
		return protocol.SymbolKindClass
	case model.KindInterface:
		return protocol.SymbolKindInterface
	case model.KindLibrary:
		return protocol.SymbolKindModule
	case model.KindFunction, model.KindModifier:
		if s.Parent != "" {
			return protocol.SymbolKindMethod
		}
		return protocol.SymbolKindFunction
	case model.KindStateVariable:
		return protocol.SymbolKindField
	case model.KindLocalVariable:
		return protocol.SymbolKindVariable
	case model.KindEvent:
		return protocol.SymbolKindEvent
	case model.KindStruct:
		return protocol.SymbolKindStruct
	case model.KindEnum:
		return protocol.SymbolKindEnum
	case model.KindUnknown:
	}
	return protocol.SymbolKindVariable
}
