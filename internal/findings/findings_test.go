package findings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/solidex/internal/fixture"
	"github.com/jward/solidex/internal/model"
)

func detectors(fs []model.Finding) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Detector)
	}
	return out
}

func sampleStore(t *testing.T) *Store {
	t.Helper()
	return New(fixture.Sample().Model(t).Findings())
}

func TestFindings_CanonicalOrder(t *testing.T) {
	t.Parallel()
	s := sampleStore(t)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"incorrect-equality", "missing-zero-check", "naming-convention"},
		detectors(s.Findings(Filter{})))
}

func TestFindings_SamePathOrderedByOffset(t *testing.T) {
	t.Parallel()
	at := func(det string, start int) model.Finding {
		return model.Finding{Detector: det, Severity: model.SeverityLow,
			Locations: []model.Location{{Path: "/a.sol", Span: model.Span{Start: start, End: start + 1}}}}
	}
	s := New([]model.Finding{at("b", 10), at("a", 10), at("c", 2)})
	assert.Equal(t, []string{"c", "a", "b"}, detectors(s.Findings(Filter{})))
}

func TestFindings_Filter(t *testing.T) {
	t.Parallel()
	s := sampleStore(t)
	token := filepath.Join(fixture.Root, "Token.sol")

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"min severity", Filter{MinSeverity: model.SeverityLow}, []string{"incorrect-equality", "missing-zero-check"}},
		{"min confidence", Filter{MinConfidence: model.ConfidenceHigh}, []string{"incorrect-equality", "naming-convention"}},
		{"allow list", Filter{Detectors: []string{"naming-convention"}}, []string{"naming-convention"}},
		{"hidden", Filter{Hidden: []string{"incorrect-equality"}}, []string{"missing-zero-check", "naming-convention"}},
		{"path", Filter{Path: token}, []string{"incorrect-equality", "missing-zero-check"}},
		{"disabled", Filter{Disabled: true}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, detectors(s.Findings(tt.filter)))
		})
	}
}

func TestDetectors(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"incorrect-equality", "missing-zero-check", "naming-convention"},
		sampleStore(t).Detectors())
	assert.NotNil(t, New(nil).Detectors())
	assert.Empty(t, New(nil).Findings(Filter{}))
}

func TestByFile(t *testing.T) {
	t.Parallel()
	groups := sampleStore(t).ByFile(Filter{})

	require.Len(t, groups, 2)
	assert.Len(t, groups[filepath.Join(fixture.Root, "Token.sol")], 2)
	assert.Len(t, groups[filepath.Join(fixture.Root, "Base.sol")], 1)
}
