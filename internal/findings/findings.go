// Package findings holds the detector results of one snapshot and answers
// filtered queries over them.
package findings

import (
	"slices"
	"sort"
	"strings"

	"github.com/jward/solidex/internal/model"
)

// Filter narrows a findings query. The zero value matches everything.
type Filter struct {
	MinSeverity   model.Severity
	MinConfidence model.Confidence
	// Detectors, when non-empty, is an allow-list of detector ids.
	Detectors []string
	// Hidden lists detector ids that are never returned.
	Hidden []string
	// Path restricts results to findings whose primary location is in path.
	Path string
	// Disabled suppresses all results.
	Disabled bool
}

// Match reports whether f passes the filter.
func (flt Filter) Match(f model.Finding) bool {
	if flt.Disabled {
		return false
	}
	if f.Severity < flt.MinSeverity || f.Confidence < flt.MinConfidence {
		return false
	}
	if len(flt.Detectors) > 0 && !slices.Contains(flt.Detectors, f.Detector) {
		return false
	}
	if slices.Contains(flt.Hidden, f.Detector) {
		return false
	}
	if flt.Path != "" {
		loc, ok := f.Primary()
		if !ok || loc.Path != flt.Path {
			return false
		}
	}
	return true
}

// Store is immutable once built.
type Store struct {
	all       []model.Finding
	detectors []string
}

// New sorts fs into the canonical order: severity descending, then primary
// path, offset and detector id.
func New(fs []model.Finding) *Store {
	all := slices.Clone(fs)
	sort.SliceStable(all, func(i, j int) bool { return less(all[i], all[j]) })

	seen := make(map[string]bool)
	var detectors []string
	for _, f := range all {
		if !seen[f.Detector] {
			seen[f.Detector] = true
			detectors = append(detectors, f.Detector)
		}
	}
	sort.Strings(detectors)
	return &Store{all: all, detectors: detectors}
}

func less(a, b model.Finding) bool {
	if a.Severity != b.Severity {
		return a.Severity > b.Severity
	}
	la, _ := a.Primary()
	lb, _ := b.Primary()
	if la.Path != lb.Path {
		return la.Path < lb.Path
	}
	if la.Span.Start != lb.Span.Start {
		return la.Span.Start < lb.Span.Start
	}
	return strings.Compare(a.Detector, b.Detector) < 0
}

// Len returns the number of stored findings.
func (s *Store) Len() int { return len(s.all) }

// Findings returns the findings matching flt in canonical order.
func (s *Store) Findings(flt Filter) []model.Finding {
	out := make([]model.Finding, 0, len(s.all))
	for _, f := range s.all {
		if flt.Match(f) {
			out = append(out, f)
		}
	}
	return out
}

// Detectors returns the sorted ids of every detector that reported.
func (s *Store) Detectors() []string {
	if s.detectors == nil {
		return []string{}
	}
	return s.detectors
}

// ByFile groups matching findings by the path of their primary location.
// Findings without a location are dropped.
func (s *Store) ByFile(flt Filter) map[string][]model.Finding {
	out := make(map[string][]model.Finding)
	for _, f := range s.Findings(flt) {
		loc, ok := f.Primary()
		if !ok {
			continue
		}
		out[loc.Path] = append(out[loc.Path], f)
	}
	return out
}
