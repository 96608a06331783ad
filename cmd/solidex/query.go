package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/solidex"
)

func (a *app) queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query a freshly analyzed project",
		Long:  "Analyze the project, then run one query against the resulting snapshot. All line and column numbers are 0-based; columns count UTF-16 code units.",
	}

	cmd.AddCommand(a.symbolAtCmd())
	cmd.AddCommand(a.definitionCmd())
	cmd.AddCommand(a.referencesCmd())
	cmd.AddCommand(a.implementationsCmd())
	cmd.AddCommand(a.callsCmd("callers", "Find the callers of a function, transitively"))
	cmd.AddCommand(a.callsCmd("callees", "Find the callees of a function, transitively"))
	cmd.AddCommand(a.typesCmd("supertypes", "List the inherited contracts of a contract, breadth-first"))
	cmd.AddCommand(a.typesCmd("subtypes", "List the contracts inheriting from a contract, breadth-first"))
	cmd.AddCommand(a.linearizationCmd())
	cmd.AddCommand(a.detailCmd())
	cmd.AddCommand(a.outlineCmd())
	cmd.AddCommand(a.searchCmd())
	cmd.AddCommand(a.findingsCmd())
	cmd.AddCommand(a.detectorsCmd())
	cmd.AddCommand(a.diagnosticsCmd())
	return cmd
}

// --- Helpers ---

// runQuery analyzes the project and hands the query builder of the resulting
// snapshot to fn. Errors from either step are reported under command.
func (a *app) runQuery(cmd *cobra.Command, command string, fn func(e *solidex.Engine, q *solidex.QueryBuilder) (any, error)) error {
	root, err := a.projectRoot(nil)
	if err != nil {
		return a.outputError(cmd, command, err)
	}
	e, err := a.openEngine(cmd.Context(), cmd, root)
	if err != nil {
		return a.outputError(cmd, command, err)
	}
	defer e.Close()

	q := e.Query()
	results, err := fn(e, q)
	if err != nil {
		return a.outputError(cmd, command, err)
	}
	result := CLIResult{
		Command:    command,
		Generation: q.Generation(),
		Results:    results,
	}
	if isSlice(results) {
		n := resultLen(results)
		result.TotalCount = &n
	}
	return a.outputResult(cmd, result)
}

func isSlice(v any) bool {
	switch v.(type) {
	case []CLILocation, []CLISymbol, []CLICallHop, []CLIFinding, []CLIOutlineNode, []string:
		return true
	}
	return false
}

// resolveFilePath converts a file argument to an absolute path.
// If the path is already absolute, it's returned as-is.
// Otherwise, it's resolved relative to the current working directory.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return filepath.Clean(file), nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

// parseIntArg parses a positional argument as an integer with a clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}

// parsePosition parses <file> <line> <col> arguments.
func parsePosition(args []string) (string, solidex.Position, error) {
	if len(args) < 3 {
		return "", solidex.Position{}, fmt.Errorf("requires <file> <line> <col> arguments")
	}
	file, err := resolveFilePath(args[0])
	if err != nil {
		return "", solidex.Position{}, err
	}
	line, err := parseIntArg(args[1], "line")
	if err != nil {
		return "", solidex.Position{}, err
	}
	col, err := parseIntArg(args[2], "col")
	if err != nil {
		return "", solidex.Position{}, err
	}
	return file, solidex.Position{Line: line, Character: col}, nil
}

// resolveSymbolID resolves a symbol ID from either positional args
// (<file> <line> <col>) or the --symbol flag.
func resolveSymbolID(cmd *cobra.Command, args []string, q *solidex.QueryBuilder) (solidex.SymbolID, error) {
	if symbolFlag, _ := cmd.Flags().GetString("symbol"); symbolFlag != "" {
		return solidex.SymbolID(symbolFlag), nil
	}
	if len(args) < 3 {
		return "", fmt.Errorf("requires either <file> <line> <col> arguments or --symbol flag")
	}
	file, pos, err := parsePosition(args)
	if err != nil {
		return "", err
	}
	id, ok := q.SymbolAtPosition(file, pos)
	if !ok {
		return "", fmt.Errorf("no symbol found at %s:%d:%d", file, pos.Line, pos.Character)
	}
	return id, nil
}

// outputResult writes a CLIResult to the command's stdout in the selected
// format.
func (a *app) outputResult(cmd *cobra.Command, result CLIResult) error {
	if a.format == "text" {
		return writeText(cmd.OutOrStdout(), result)
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func (a *app) outputError(cmd *cobra.Command, command string, err error) error {
	a.errorHandled = true
	if a.format == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	_ = writeJSON(cmd.OutOrStdout(), CLIResult{
		Command: command,
		Error:   err.Error(),
	})
	return err
}

// symbolArgs is the Args validator for commands taking a position or --symbol.
func symbolArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 0 && len(args) != 3 {
		return fmt.Errorf("accepts <file> <line> <col> or no arguments with --symbol, received %d", len(args))
	}
	return nil
}

// --- Position-Based Commands ---

func (a *app) symbolAtCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "symbol-at <file> <line> <col>",
		Short: "Find the symbol at a position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, "symbol-at", func(_ *solidex.Engine, q *solidex.QueryBuilder) (any, error) {
				file, pos, err := parsePosition(args)
				if err != nil {
					return nil, err
				}
				id, ok := q.SymbolAtPosition(file, pos)
				if !ok {
					return nil, nil
				}
				s, err := q.Symbol(id)
				if err != nil {
					return nil, err
				}
				return symbolToCLI(s), nil
			})
		},
	}
}

func (a *app) definitionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "definition [<file> <line> <col>]",
		Short: "Find the definition of a symbol",
		Long:  "Accepts either <file> <line> <col> positional args or --symbol <id>.",
		Args:  symbolArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, "definition", func(_ *solidex.Engine, q *solidex.QueryBuilder) (any, error) {
				id, err := resolveSymbolID(cmd, args, q)
				if err != nil {
					return nil, err
				}
				loc, err := q.DefinitionOf(id)
				if err != nil {
					return nil, err
				}
				return []CLILocation{locationToCLI(loc)}, nil
			})
		},
	}
	cmd.Flags().String("symbol", "", "symbol ID to query")
	return cmd
}

// --- Symbol ID or Position Commands ---

func (a *app) referencesCmd() *cobra.Command {
	var includeDecl bool
	cmd := &cobra.Command{
		Use:   "references [<file> <line> <col>]",
		Short: "Find all references to a symbol",
		Long:  "Accepts either <file> <line> <col> positional args or --symbol <id>.",
		Args:  symbolArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, "references", func(_ *solidex.Engine, q *solidex.QueryBuilder) (any, error) {
				id, err := resolveSymbolID(cmd, args, q)
				if err != nil {
					return nil, err
				}
				locs, err := q.ReferencesOf(id, includeDecl)
				if err != nil {
					return nil, err
				}
				return locationsToCLI(locs), nil
			})
		},
	}
	cmd.Flags().String("symbol", "", "symbol ID to query")
	cmd.Flags().BoolVar(&includeDecl, "include-declaration", false, "include the declaration's name")
	return cmd
}

func (a *app) implementationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "implementations [<file> <line> <col>]",
		Short: "Find implementations of an interface, abstract contract or function",
		Long:  "Accepts either <file> <line> <col> positional args or --symbol <id>.",
		Args:  symbolArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, "implementations", func(_ *solidex.Engine, q *solidex.QueryBuilder) (any, error) {
				id, err := resolveSymbolID(cmd, args, q)
				if err != nil {
					return nil, err
				}
				ids, err := q.ImplementationsOf(id)
				if err != nil {
					return nil, err
				}
				return idsToCLI(q, ids)
			})
		},
	}
	cmd.Flags().String("symbol", "", "symbol ID to query")
	return cmd
}

// callsCmd builds "callers" or "callees".
func (a *app) callsCmd(name, short string) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   name + " [<file> <line> <col>]",
		Short: short,
		Long:  "Accepts either <file> <line> <col> positional args or --symbol <id>. Depth is clamped to the configured maximum.",
		Args:  symbolArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, name, func(_ *solidex.Engine, q *solidex.QueryBuilder) (any, error) {
				id, err := resolveSymbolID(cmd, args, q)
				if err != nil {
					return nil, err
				}
				var hops []solidex.CallHop
				if name == "callers" {
					hops, err = q.IncomingCalls(id, depth)
				} else {
					hops, err = q.OutgoingCalls(id, depth)
				}
				if err != nil {
					return nil, err
				}
				return hopsToCLI(q, hops), nil
			})
		},
	}
	cmd.Flags().String("symbol", "", "symbol ID to query")
	cmd.Flags().IntVar(&depth, "depth", 1, "levels to expand")
	return cmd
}

// typesCmd builds "supertypes" or "subtypes".
func (a *app) typesCmd(name, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " [<file> <line> <col>]",
		Short: short,
		Long:  "Accepts either <file> <line> <col> positional args or --symbol <id>.",
		Args:  symbolArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, name, func(_ *solidex.Engine, q *solidex.QueryBuilder) (any, error) {
				id, err := resolveSymbolID(cmd, args, q)
				if err != nil {
					return nil, err
				}
				var tr solidex.Traversal
				if name == "supertypes" {
					tr, err = q.Supertypes(id)
				} else {
					tr, err = q.Subtypes(id)
				}
				if err != nil {
					return nil, err
				}
				if tr.Cyclic {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: inheritance cycle reached from %s\n", id)
				}
				return idsToCLI(q, tr.IDs)
			})
		},
	}
	cmd.Flags().String("symbol", "", "symbol ID to query")
	return cmd
}

func (a *app) linearizationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "linearization [<file> <line> <col>]",
		Short: "Show a contract's C3 method resolution order, most derived first",
		Long:  "Accepts either <file> <line> <col> positional args or --symbol <id>.",
		Args:  symbolArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, "linearization", func(_ *solidex.Engine, q *solidex.QueryBuilder) (any, error) {
				id, err := resolveSymbolID(cmd, args, q)
				if err != nil {
					return nil, err
				}
				ids, err := q.Linearization(id)
				if err != nil {
					return nil, err
				}
				return idsToCLI(q, ids)
			})
		},
	}
	cmd.Flags().String("symbol", "", "symbol ID to query")
	return cmd
}

func (a *app) detailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detail [<file> <line> <col>]",
		Short: "Show a symbol with its container, members, bases, counts and findings",
		Long:  "Accepts either <file> <line> <col> positional args or --symbol <id>.",
		Args:  symbolArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, "detail", func(_ *solidex.Engine, q *solidex.QueryBuilder) (any, error) {
				id, err := resolveSymbolID(cmd, args, q)
				if err != nil {
					return nil, err
				}
				d, err := q.SymbolDetail(id)
				if err != nil {
					return nil, err
				}
				return detailToCLI(d), nil
			})
		},
	}
	cmd.Flags().String("symbol", "", "symbol ID to query")
	return cmd
}

// --- Conversions needing the snapshot ---

func idsToCLI(q *solidex.QueryBuilder, ids []solidex.SymbolID) ([]CLISymbol, error) {
	out := make([]CLISymbol, 0, len(ids))
	for _, id := range ids {
		s, err := q.Symbol(id)
		if err != nil {
			return nil, err
		}
		out = append(out, symbolToCLI(s))
	}
	return out, nil
}

// symbolName returns the qualified name of id, or the id itself when the
// snapshot does not know it.
func symbolName(q *solidex.QueryBuilder, id solidex.SymbolID) string {
	if s, err := q.Symbol(id); err == nil {
		return s.QualifiedName
	}
	return string(id)
}

func hopsToCLI(q *solidex.QueryBuilder, hops []solidex.CallHop) []CLICallHop {
	out := make([]CLICallHop, 0, len(hops))
	for _, h := range hops {
		out = append(out, CLICallHop{
			Depth:      h.Depth,
			CallerID:   string(h.Caller),
			CallerName: symbolName(q, h.Caller),
			CalleeID:   string(h.Callee),
			CalleeName: symbolName(q, h.Callee),
			Sites:      locationsToCLI(h.Sites),
		})
	}
	return out
}

func detailToCLI(d *solidex.SymbolDetail) CLISymbolDetail {
	out := CLISymbolDetail{
		Symbol:     symbolToCLI(d.Symbol),
		Enclosing:  symbolsToCLI(d.Enclosing),
		Children:   symbolsToCLI(d.Children),
		Bases:      symbolsToCLI(d.Bases),
		References: d.References,
		Callers:    d.Callers,
		Callees:    d.Callees,
		Findings:   findingsToCLI(d.Findings),
	}
	if d.Container != nil {
		c := symbolToCLI(d.Container)
		out.Container = &c
	}
	return out
}
