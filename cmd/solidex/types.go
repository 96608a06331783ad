package main

import (
	"github.com/jward/solidex"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Generation uint64 `json:"generation,omitempty"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLISymbol is a JSON-friendly symbol representation. Lines and columns are
// 0-based and point at the symbol's name.
type CLISymbol struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	QualifiedName string `json:"qualified_name"`
	Kind          string `json:"kind"`
	Signature     string `json:"signature,omitempty"`
	Visibility    string `json:"visibility,omitempty"`
	File          string `json:"file"`
	Line          int    `json:"line"`
	Col           int    `json:"col"`
}

// CLILocation is a JSON-friendly source range.
type CLILocation struct {
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

// CLICallHop is one caller/callee pair of a call hierarchy expansion.
type CLICallHop struct {
	Depth      int           `json:"depth"`
	CallerID   string        `json:"caller_id"`
	CallerName string        `json:"caller_name"`
	CalleeID   string        `json:"callee_id"`
	CalleeName string        `json:"callee_name"`
	Sites      []CLILocation `json:"sites"`
}

// CLIFinding is a JSON-friendly detector result.
type CLIFinding struct {
	Detector   string        `json:"detector"`
	Severity   string        `json:"severity"`
	Confidence string        `json:"confidence"`
	Message    string        `json:"message"`
	Locations  []CLILocation `json:"locations"`
}

// CLIOutlineNode is one entry of a file outline.
type CLIOutlineNode struct {
	Symbol   CLISymbol        `json:"symbol"`
	Children []CLIOutlineNode `json:"children,omitempty"`
}

// CLISymbolDetail is the detail view of one symbol.
type CLISymbolDetail struct {
	Symbol     CLISymbol    `json:"symbol"`
	Container  *CLISymbol   `json:"container,omitempty"`
	Enclosing  []CLISymbol  `json:"enclosing"`
	Children   []CLISymbol  `json:"children"`
	Bases      []CLISymbol  `json:"bases"`
	References int          `json:"references"`
	Callers    int          `json:"callers"`
	Callees    int          `json:"callees"`
	Findings   []CLIFinding `json:"findings"`
}

// CLIExport reports what an export wrote.
type CLIExport struct {
	Database   string `json:"database"`
	Files      int    `json:"files"`
	Symbols    int    `json:"symbols"`
	References int    `json:"references"`
	Calls      int    `json:"calls"`
	Findings   int    `json:"findings"`
}

// --- Conversions ---

func symbolToCLI(s *solidex.Symbol) CLISymbol {
	return CLISymbol{
		ID:            string(s.ID),
		Name:          s.Name,
		QualifiedName: s.QualifiedName,
		Kind:          s.Kind.String(),
		Signature:     s.Signature,
		Visibility:    s.Visibility,
		File:          s.Path,
		Line:          s.NameLoc.Range.Start.Line,
		Col:           s.NameLoc.Range.Start.Character,
	}
}

func symbolsToCLI(syms []*solidex.Symbol) []CLISymbol {
	out := make([]CLISymbol, 0, len(syms))
	for _, s := range syms {
		out = append(out, symbolToCLI(s))
	}
	return out
}

func locationToCLI(loc solidex.Location) CLILocation {
	return CLILocation{
		File:      loc.Path,
		StartLine: loc.Range.Start.Line,
		StartCol:  loc.Range.Start.Character,
		EndLine:   loc.Range.End.Line,
		EndCol:    loc.Range.End.Character,
	}
}

func locationsToCLI(locs []solidex.Location) []CLILocation {
	out := make([]CLILocation, 0, len(locs))
	for _, l := range locs {
		out = append(out, locationToCLI(l))
	}
	return out
}

func findingToCLI(f solidex.Finding) CLIFinding {
	return CLIFinding{
		Detector:   f.Detector,
		Severity:   f.Severity.String(),
		Confidence: f.Confidence.String(),
		Message:    f.Message,
		Locations:  locationsToCLI(f.Locations),
	}
}

func findingsToCLI(fs []solidex.Finding) []CLIFinding {
	out := make([]CLIFinding, 0, len(fs))
	for _, f := range fs {
		out = append(out, findingToCLI(f))
	}
	return out
}

func outlineToCLI(nodes []solidex.OutlineNode) []CLIOutlineNode {
	out := make([]CLIOutlineNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, CLIOutlineNode{
			Symbol:   symbolToCLI(n.Symbol),
			Children: outlineToCLI(n.Children),
		})
	}
	return out
}
