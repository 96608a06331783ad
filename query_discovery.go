package solidex

import (
	"sort"

	"github.com/jward/solidex/internal/model"
)

// Outline returns the declaration tree of a file, local variables left out.
// A file outside the snapshot has an empty outline.
func (q *QueryBuilder) Outline(path string) []OutlineNode {
	return q.snap.XRef.Outline(path)
}

// SearchSymbols returns symbols whose name contains query, case-insensitively,
// optionally restricted to kinds. Exact matches come first, then prefix
// matches, then the rest. The result is capped at the configured item count.
func (q *QueryBuilder) SearchSymbols(query string, kinds ...Kind) []*Symbol {
	out := q.snap.XRef.Search(query, kinds...)
	if q.maxItems > 0 && len(out) > q.maxItems {
		out = out[:q.maxItems]
	}
	return out
}

// Findings returns the snapshot's findings matching flt, ordered by severity
// descending, then path, offset and detector id.
func (q *QueryBuilder) Findings(flt FindingFilter) []Finding {
	return q.snap.Findings.Findings(flt)
}

// FindingsByFile groups the findings matching flt by the file of their first
// location. Findings without a location are left out.
func (q *QueryBuilder) FindingsByFile(flt FindingFilter) map[string][]Finding {
	return q.snap.Findings.ByFile(flt)
}

// Detectors returns the sorted ids of every detector that reported in this
// snapshot.
func (q *QueryBuilder) Detectors() []string {
	return q.snap.Findings.Detectors()
}

// --- Digest ---

// FileSummary counts the symbols one file declares.
type FileSummary struct {
	Path     string `json:"path"`
	Version  int32  `json:"version"`
	Symbols  int    `json:"symbols"`
	Findings int    `json:"findings"`
}

// ProjectSummary is a high-level overview of one snapshot.
type ProjectSummary struct {
	Generation uint64        `json:"generation"`
	Stats      model.Stats   `json:"stats"`
	CallEdges  int           `json:"call_edges"`
	Cycles     int           `json:"inheritance_cycles"`
	Detectors  []string      `json:"detectors"`
	Files      []FileSummary `json:"files"`
	TopCalled  []*Symbol     `json:"top_called"`
	Uncalled   int           `json:"uncalled_functions"`
}

// ProjectSummary returns counts for the snapshot plus the topN most called
// functions, by number of distinct callers.
func (q *QueryBuilder) ProjectSummary(topN int) *ProjectSummary {
	m := q.snap.Model
	sum := &ProjectSummary{
		Generation: q.snap.Generation,
		Stats:      m.Stats(),
		CallEdges:  q.snap.Calls.Len(),
		Cycles:     len(q.snap.Types.Cycles()),
		Detectors:  q.Detectors(),
		Files:      []FileSummary{},
		TopCalled:  []*Symbol{},
	}

	perFile := make(map[string]int)
	for _, s := range m.Symbols() {
		perFile[s.Path]++
	}
	byFile := q.snap.Findings.ByFile(FindingFilter{})
	for _, f := range m.Files() {
		sum.Files = append(sum.Files, FileSummary{
			Path:     f.Path,
			Version:  f.Version,
			Symbols:  perFile[f.Path],
			Findings: len(byFile[f.Path]),
		})
	}

	var called []*Symbol
	for _, s := range m.Symbols() {
		if !s.Kind.IsCallable() {
			continue
		}
		if len(q.snap.Calls.Incoming(s.ID)) == 0 {
			sum.Uncalled++
			continue
		}
		called = append(called, s)
	}
	sort.SliceStable(called, func(i, j int) bool {
		return len(q.snap.Calls.Incoming(called[i].ID)) > len(q.snap.Calls.Incoming(called[j].ID))
	})
	if topN > 0 && len(called) > topN {
		called = called[:topN]
	}
	if topN > 0 {
		sum.TopCalled = append(sum.TopCalled, called...)
	}
	return sum
}
