package model

import (
	"fmt"
	"strings"
)

// Severity is a detector's impact classification, ordered from least to
// most severe.
type Severity uint8

const (
	SeverityOptimization Severity = iota
	SeverityInformational
	SeverityLow
	SeverityMedium
	SeverityHigh
)

var severityNames = [...]string{
	SeverityOptimization:  "Optimization",
	SeverityInformational: "Informational",
	SeverityLow:           "Low",
	SeverityMedium:        "Medium",
	SeverityHigh:          "High",
}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return fmt.Sprintf("severity(%d)", uint8(s))
}

// ParseSeverity accepts the analyzer's impact names in any case.
func ParseSeverity(s string) (Severity, error) {
	for i, name := range severityNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return Severity(i), nil
		}
	}
	return SeverityOptimization, fmt.Errorf("unknown severity %q", s)
}

// Confidence is a detector's certainty, ordered from least to most certain.
type Confidence uint8

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

var confidenceNames = [...]string{
	ConfidenceLow:    "Low",
	ConfidenceMedium: "Medium",
	ConfidenceHigh:   "High",
}

func (c Confidence) String() string {
	if int(c) < len(confidenceNames) {
		return confidenceNames[c]
	}
	return fmt.Sprintf("confidence(%d)", uint8(c))
}

// ParseConfidence accepts the analyzer's confidence names in any case.
func ParseConfidence(s string) (Confidence, error) {
	for i, name := range confidenceNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return Confidence(i), nil
		}
	}
	return ConfidenceLow, fmt.Errorf("unknown confidence %q", s)
}

// Finding is one detector result.
type Finding struct {
	Detector   string     `json:"detector"`
	Severity   Severity   `json:"severity"`
	Confidence Confidence `json:"confidence"`
	Message    string     `json:"message"`
	Locations  []Location `json:"locations"`
	Symbols    []SymbolID `json:"symbols,omitempty"`
}

// Primary returns the first related location, which anchors the finding
// for per-file grouping.
func (f Finding) Primary() (Location, bool) {
	if len(f.Locations) == 0 {
		return Location{}, false
	}
	return f.Locations[0], true
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (c Confidence) MarshalText() ([]byte, error) { return []byte(c.String()), nil }
