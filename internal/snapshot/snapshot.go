// Package snapshot holds the immutable, published index and the manager that
// rebuilds it as the project changes.
package snapshot

import (
	"time"

	"github.com/google/uuid"

	"github.com/jward/solidex/internal/callgraph"
	"github.com/jward/solidex/internal/findings"
	"github.com/jward/solidex/internal/model"
	"github.com/jward/solidex/internal/typegraph"
	"github.com/jward/solidex/internal/xref"
)

// Snapshot is one generation of project state. Every index is derived from
// the same Model, and nothing in a Snapshot changes after Assemble returns.
type Snapshot struct {
	Generation uint64
	ID         uuid.UUID
	BuiltAt    time.Time

	Model    *model.Model
	XRef     *xref.Index
	Calls    *callgraph.Graph
	Types    *typegraph.Graph
	Findings *findings.Store
}

// Assemble derives all indices from m. extra holds findings produced outside
// the analyzer (scripted detectors); they are merged with the model's own.
func Assemble(gen uint64, m *model.Model, extra []model.Finding, maxDepth int) *Snapshot {
	all := make([]model.Finding, 0, len(m.Findings())+len(extra))
	all = append(all, m.Findings()...)
	all = append(all, extra...)

	return &Snapshot{
		Generation: gen,
		ID:         uuid.New(),
		BuiltAt:    time.Now(),
		Model:      m,
		XRef:       xref.Build(m),
		Calls:      callgraph.Build(m, maxDepth),
		Types:      typegraph.Build(m),
		Findings:   findings.New(all),
	}
}

// Empty returns the generation-0 snapshot served before the first build.
func Empty() *Snapshot {
	m, err := model.NewBuilder().Build()
	if err != nil {
		panic("snapshot: empty model: " + err.Error())
	}
	return Assemble(0, m, nil, callgraph.DefaultMaxDepth)
}
