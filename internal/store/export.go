package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/jward/solidex/internal/model"
)

// ExportStats counts the rows written by Export.
type ExportStats struct {
	Files      int `json:"files"`
	Symbols    int `json:"symbols"`
	References int `json:"references"`
	Calls      int `json:"calls"`
	Findings   int `json:"findings"`
}

// Export replaces the database contents with m, the given findings and the
// metadata pairs, in a single transaction.
//
// Insert order respects FK dependencies:
//  1. Files
//  2. Symbols, shallowest first so parents precede children
//  3. References, inheritance, call sites
//  4. Findings
//  5. Metadata
func (s *Store) Export(ctx context.Context, m *model.Model, findings []model.Finding, meta map[string]string) (ExportStats, error) {
	var stats ExportStats
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("export: begin: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM findings",
		"DELETE FROM call_graph",
		"DELETE FROM inheritance",
		"DELETE FROM references_",
		"DELETE FROM symbols",
		"DELETE FROM files",
		"DELETE FROM metadata",
	} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return stats, fmt.Errorf("export: clear: %w", err)
		}
	}

	// 1. Files
	fileIDs := make(map[string]int64)
	for _, f := range m.Files() {
		id, err := insertFileTx(tx, f)
		if err != nil {
			return stats, fmt.Errorf("export: file %s: %w", f.Path, err)
		}
		fileIDs[f.Path] = id
		stats.Files++
	}

	// 2. Symbols
	syms := append([]*model.Symbol(nil), m.Symbols()...)
	sort.SliceStable(syms, func(i, j int) bool { return syms[i].Depth < syms[j].Depth })
	for _, sym := range syms {
		if err := insertSymbolTx(tx, fileIDs[sym.Path], sym); err != nil {
			return stats, fmt.Errorf("export: symbol %s: %w", sym.QualifiedName, err)
		}
		stats.Symbols++
	}

	// 3. References, inheritance, call sites
	for _, sym := range m.Symbols() {
		for _, r := range m.References(sym.ID) {
			if err := insertReferenceTx(tx, fileIDs[r.Location.Path], sym.ID, r); err != nil {
				return stats, fmt.Errorf("export: reference to %s: %w", sym.QualifiedName, err)
			}
			stats.References++
		}
		for i, base := range m.DirectSupertypes(sym.ID) {
			if _, err := tx.Exec(
				`INSERT INTO inheritance (contract_id, base_id, ordinal) VALUES (?, ?, ?)`,
				string(sym.ID), string(base), i,
			); err != nil {
				return stats, fmt.Errorf("export: inheritance of %s: %w", sym.QualifiedName, err)
			}
		}
	}
	for _, c := range m.CallSites() {
		if err := insertCallTx(tx, fileIDs[c.Location.Path], c); err != nil {
			return stats, fmt.Errorf("export: call site: %w", err)
		}
		stats.Calls++
	}

	// 4. Findings
	for _, f := range findings {
		if err := insertFindingTx(tx, fileIDs, f); err != nil {
			return stats, fmt.Errorf("export: finding %s: %w", f.Detector, err)
		}
		stats.Findings++
	}

	// 5. Metadata
	for k, v := range meta {
		if err := setMetadata(tx, k, v); err != nil {
			return stats, fmt.Errorf("export: metadata %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("export: commit: %w", err)
	}
	return stats, nil
}

// --- Transaction-scoped insert helpers ---

func insertFileTx(tx *sql.Tx, f *model.File) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO files (path, version, line_count) VALUES (?, ?, ?)`,
		f.Path, f.Version, f.Lines.LineCount(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertSymbolTx(tx *sql.Tx, fileID int64, sym *model.Symbol) error {
	var parent any
	if sym.Parent != "" {
		parent = string(sym.Parent)
	}
	decl := sym.DeclLoc.Range
	name := sym.NameLoc.Range.Start
	_, err := tx.Exec(
		`INSERT INTO symbols (id, file_id, name, qualified_name, kind, signature, visibility, mutability,
			implemented, abstract, start_offset, end_offset, start_line, start_col, end_line, end_col,
			name_line, name_col, parent_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(sym.ID), fileID, sym.Name, sym.QualifiedName, sym.Kind.String(), sym.Signature,
		sym.Visibility, sym.Mutability, sym.Implemented, sym.Abstract,
		sym.DeclLoc.Span.Start, sym.DeclLoc.Span.End,
		decl.Start.Line, decl.Start.Character, decl.End.Line, decl.End.Character,
		name.Line, name.Character, parent,
	)
	return err
}

func insertReferenceTx(tx *sql.Tx, fileID int64, target model.SymbolID, r model.Reference) error {
	rng := r.Location.Range
	_, err := tx.Exec(
		`INSERT INTO references_ (symbol_id, file_id, kind, start_offset, end_offset,
			start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(target), fileID, r.Kind.String(), r.Location.Span.Start, r.Location.Span.End,
		rng.Start.Line, rng.Start.Character, rng.End.Line, rng.End.Character,
	)
	return err
}

func insertCallTx(tx *sql.Tx, fileID int64, c model.CallSite) error {
	start := c.Location.Range.Start
	_, err := tx.Exec(
		`INSERT INTO call_graph (caller_id, callee_id, file_id, start_offset, end_offset, line, col)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(c.Caller), string(c.Callee), fileID, c.Location.Span.Start, c.Location.Span.End,
		start.Line, start.Character,
	)
	return err
}

func insertFindingTx(tx *sql.Tx, fileIDs map[string]int64, f model.Finding) error {
	var fileID, start, end, line, symbol any
	if loc, ok := f.Primary(); ok {
		if id, ok := fileIDs[loc.Path]; ok {
			fileID = id
		}
		start, end, line = loc.Span.Start, loc.Span.End, loc.Range.Start.Line
	}
	if len(f.Symbols) > 0 {
		symbol = string(f.Symbols[0])
	}
	_, err := tx.Exec(
		`INSERT INTO findings (detector, severity, confidence, message, file_id, start_offset, end_offset, line, symbol_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Detector, f.Severity.String(), f.Confidence.String(), f.Message,
		fileID, start, end, line, symbol,
	)
	return err
}
