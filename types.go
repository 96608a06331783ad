package solidex

import (
	"github.com/jward/solidex/internal/callgraph"
	"github.com/jward/solidex/internal/findings"
	"github.com/jward/solidex/internal/model"
	"github.com/jward/solidex/internal/snapshot"
	"github.com/jward/solidex/internal/typegraph"
	"github.com/jward/solidex/internal/xref"
)

// Public type aliases for internal types used in the QueryBuilder API.
// These are Go type aliases (=) and identical to the internal types at
// compile time. External consumers use these names; no conversion is needed.

type SymbolID = model.SymbolID
type Symbol = model.Symbol
type Kind = model.Kind
type Location = model.Location
type Position = model.Position
type Range = model.Range
type Span = model.Span
type Finding = model.Finding
type Severity = model.Severity
type Confidence = model.Confidence
type FindingFilter = findings.Filter
type CallEdge = callgraph.Edge
type OutlineNode = xref.OutlineNode
type Traversal = typegraph.Traversal
type Snapshot = snapshot.Snapshot
type Failure = snapshot.Failure
