// Package solidex is the symbol index and cross-reference engine behind a
// Solidity editor integration. It turns whole-project analyzer output into an
// immutable, queryable snapshot and keeps that snapshot current as documents
// change.
//
// # Pipeline
//
// Every rebuild runs the same steps:
//
//  1. Capture: freeze the project file list and the text of open documents,
//     then read the remaining files from disk.
//  2. Analyze: hand the project to the external analyzer once and translate
//     its declarations, references, call sites, inheritance lists and
//     findings into a validated symbol model.
//  3. Detect: run the project's Risor detector scripts over the model.
//  4. Index: derive the cross-reference, call hierarchy, type hierarchy and
//     findings indices from that one model and publish them together.
//
// Rebuilds are debounced and stamped with a generation number. A rebuild
// publishes only if no newer one was requested while it ran; a failed rebuild
// leaves the previous snapshot in place.
//
// # Usage
//
//	e, err := solidex.New("path/to/project", adapter.NewExecAnalyzer(argv, dir, timeout))
//	if err != nil { ... }
//	defer e.Close()
//
//	if err := e.Load(ctx); err != nil { ... }
//
//	q := e.Query()
//	id, ok := q.SymbolAt("path/to/project/Token.sol", offset)
//	refs, err := q.ReferencesOf(id, true)
//
// # Query API
//
// A [QueryBuilder] reads exactly one snapshot, so every answer it gives is
// consistent with every other:
//
//   - [QueryBuilder.SymbolAt] resolves a cursor to the innermost symbol.
//   - [QueryBuilder.DefinitionOf] and [QueryBuilder.ReferencesOf] navigate
//     declarations and use-sites.
//   - [QueryBuilder.ImplementationsOf] finds overriding functions and
//     concrete subcontracts.
//   - [QueryBuilder.OutgoingCalls] and [QueryBuilder.IncomingCalls] walk the
//     call graph one level at a time.
//   - [QueryBuilder.Supertypes], [QueryBuilder.Subtypes] and
//     [QueryBuilder.Linearization] walk inheritance.
//   - [QueryBuilder.Findings] filters detector results.
//
// A query that finds nothing returns an empty result. The only query error is
// [ErrUnknownSymbol], for an id that does not belong to the snapshot.
//
// The [Dispatcher] adapts these queries to go.lsp.dev/protocol request and
// response types for a language server front end.
package solidex
