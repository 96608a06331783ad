package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/jward/solidex"
)

// formatLocationsText formats CLILocation results as "file:line:col" lines.
func formatLocationsText(w io.Writer, locs []CLILocation) {
	for _, loc := range locs {
		fmt.Fprintf(w, "%s:%d:%d\n", loc.File, loc.StartLine, loc.StartCol)
	}
}

// formatSymbolsText formats CLISymbol results as aligned columns.
func formatSymbolsText(w io.Writer, syms []CLISymbol) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tFILE\tLINE\tID")
	for _, s := range syms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.QualifiedName, s.Kind, s.File, s.Line, s.ID)
	}
	tw.Flush()
}

func formatCallHopsText(w io.Writer, hops []CLICallHop) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPTH\tCALLER\tCALLEE\tSITES")
	for _, h := range hops {
		sites := make([]string, 0, len(h.Sites))
		for _, s := range h.Sites {
			sites = append(sites, fmt.Sprintf("%d:%d", s.StartLine, s.StartCol))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", h.Depth, h.CallerName, h.CalleeName, strings.Join(sites, ","))
	}
	tw.Flush()
}

func formatFindingsText(w io.Writer, fs []CLIFinding) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tCONFIDENCE\tDETECTOR\tLOCATION\tMESSAGE")
	for _, f := range fs {
		loc := "-"
		if len(f.Locations) > 0 {
			loc = fmt.Sprintf("%s:%d:%d", f.Locations[0].File, f.Locations[0].StartLine, f.Locations[0].StartCol)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", f.Severity, f.Confidence, f.Detector, loc, f.Message)
	}
	tw.Flush()
}

func formatOutlineText(w io.Writer, nodes []CLIOutlineNode, depth int) {
	for _, n := range nodes {
		fmt.Fprintf(w, "%s%s %s (line %d)\n", strings.Repeat("  ", depth), n.Symbol.Kind, n.Symbol.Name, n.Symbol.Line)
		formatOutlineText(w, n.Children, depth+1)
	}
}

func formatDetailText(w io.Writer, d CLISymbolDetail) {
	fmt.Fprintf(w, "%s %s\n", d.Symbol.Kind, d.Symbol.QualifiedName)
	fmt.Fprintf(w, "Defined at: %s:%d:%d\n", d.Symbol.File, d.Symbol.Line, d.Symbol.Col)
	if d.Container != nil {
		fmt.Fprintf(w, "Container: %s\n", d.Container.QualifiedName)
	}
	fmt.Fprintf(w, "References: %d  Callers: %d  Callees: %d\n", d.References, d.Callers, d.Callees)
	if len(d.Bases) > 0 {
		names := make([]string, 0, len(d.Bases))
		for _, b := range d.Bases {
			names = append(names, b.Name)
		}
		fmt.Fprintf(w, "Bases: %s\n", strings.Join(names, ", "))
	}
	if len(d.Children) > 0 {
		fmt.Fprintln(w)
		formatSymbolsText(w, d.Children)
	}
	if len(d.Findings) > 0 {
		fmt.Fprintln(w)
		formatFindingsText(w, d.Findings)
	}
}

// formatDiagnosticsText prints one "file:line:col severity code message" line
// per diagnostic. Files without diagnostics are skipped.
func formatDiagnosticsText(w io.Writer, params []protocol.PublishDiagnosticsParams) {
	for _, p := range params {
		for _, d := range p.Diagnostics {
			fmt.Fprintf(w, "%s:%d:%d %s %v %s\n",
				uri.URI(p.URI).Filename(), d.Range.Start.Line, d.Range.Start.Character,
				d.Severity, d.Code, d.Message)
		}
	}
}

// formatSummaryText formats a project summary as readable text.
func formatSummaryText(w io.Writer, sum *solidex.ProjectSummary) {
	fmt.Fprintln(w, "Project Summary")
	fmt.Fprintln(w, "===============")
	fmt.Fprintf(w, "Generation: %d\n", sum.Generation)
	fmt.Fprintf(w, "Files: %d  Symbols: %d  References: %d\n", sum.Stats.Files, sum.Stats.Symbols, sum.Stats.References)
	fmt.Fprintf(w, "Call sites: %d (%d unresolved)  Call edges: %d\n", sum.Stats.CallSites, sum.Stats.UnresolvedCalls, sum.CallEdges)
	fmt.Fprintf(w, "Findings: %d  Inheritance cycles: %d  Uncalled functions: %d\n", sum.Stats.Findings, sum.Cycles, sum.Uncalled)
	fmt.Fprintln(w)

	if len(sum.Files) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "FILE\tSYMBOLS\tFINDINGS")
		for _, f := range sum.Files {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", f.Path, f.Symbols, f.Findings)
		}
		tw.Flush()
		fmt.Fprintln(w)
	}

	if len(sum.TopCalled) > 0 {
		fmt.Fprintln(w, "Most called:")
		for _, s := range sum.TopCalled {
			fmt.Fprintf(w, "  %s (%s)\n", s.QualifiedName, s.Kind)
		}
	}
}

// writeText dispatches to the text formatter for the result type.
func writeText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLILocation:
		formatLocationsText(w, v)
	case []CLISymbol:
		formatSymbolsText(w, v)
	case CLISymbol:
		formatSymbolsText(w, []CLISymbol{v})
	case []CLICallHop:
		formatCallHopsText(w, v)
	case []CLIFinding:
		formatFindingsText(w, v)
	case []CLIOutlineNode:
		formatOutlineText(w, v, 0)
	case CLISymbolDetail:
		formatDetailText(w, v)
	case *solidex.ProjectSummary:
		formatSummaryText(w, v)
	case []protocol.PublishDiagnosticsParams:
		formatDiagnosticsText(w, v)
	case CLIExport:
		fmt.Fprintf(w, "Exported %d files, %d symbols, %d references, %d calls, %d findings to %s\n",
			v.Files, v.Symbols, v.References, v.Calls, v.Findings, v.Database)
	case []string:
		for _, s := range v {
			fmt.Fprintln(w, s)
		}
	case nil:
		// No output for nil results (e.g., symbol-at with no match).
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	if result.TotalCount != nil {
		shown := resultLen(result.Results)
		if shown < *result.TotalCount {
			fmt.Fprintf(w, "\nShowing %d of %d results\n", shown, *result.TotalCount)
		}
	}
	return nil
}

// resultLen returns the length of a result slice, or 1 for a single value.
func resultLen(v any) int {
	switch r := v.(type) {
	case []CLILocation:
		return len(r)
	case []CLISymbol:
		return len(r)
	case []CLICallHop:
		return len(r)
	case []CLIFinding:
		return len(r)
	case []CLIOutlineNode:
		return len(r)
	case []string:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

func writeJSON(w io.Writer, result CLIResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
