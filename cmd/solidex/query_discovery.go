package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/solidex"
	"github.com/jward/solidex/internal/model"
)

func (a *app) outlineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "outline <file>",
		Short: "Show the declaration tree of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, "outline", func(_ *solidex.Engine, q *solidex.QueryBuilder) (any, error) {
				file, err := resolveFilePath(args[0])
				if err != nil {
					return nil, err
				}
				return outlineToCLI(q.Outline(file)), nil
			})
		},
	}
}

func (a *app) searchCmd() *cobra.Command {
	var kinds string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search symbols by name, case-insensitively",
		Long:  "Exact matches come first, then prefix matches, then names containing the query.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, "search", func(_ *solidex.Engine, q *solidex.QueryBuilder) (any, error) {
				ks, err := parseKinds(kinds)
				if err != nil {
					return nil, err
				}
				return symbolsToCLI(q.SearchSymbols(args[0], ks...)), nil
			})
		},
	}
	cmd.Flags().StringVar(&kinds, "kind", "", "comma-separated kind filter (e.g. contract,function)")
	return cmd
}

func (a *app) findingsCmd() *cobra.Command {
	var (
		minSeverity   string
		minConfidence string
		detectors     []string
		file          string
		all           bool
	)
	cmd := &cobra.Command{
		Use:   "findings",
		Short: "List detector findings, most severe first",
		Long:  "Thresholds and hidden detectors default to the project config; flags override them.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, "findings", func(e *solidex.Engine, q *solidex.QueryBuilder) (any, error) {
				d, err := solidex.NewDispatcher(e)
				if err != nil {
					return nil, err
				}
				flt := d.FindingFilter()
				if all {
					flt = solidex.FindingFilter{}
				}
				if minSeverity != "" {
					if flt.MinSeverity, err = model.ParseSeverity(minSeverity); err != nil {
						return nil, err
					}
				}
				if minConfidence != "" {
					if flt.MinConfidence, err = model.ParseConfidence(minConfidence); err != nil {
						return nil, err
					}
				}
				flt.Detectors = detectors
				if file != "" {
					if flt.Path, err = resolveFilePath(file); err != nil {
						return nil, err
					}
				}
				return findingsToCLI(q.Findings(flt)), nil
			})
		},
	}
	cmd.Flags().StringVar(&minSeverity, "min-severity", "", "minimum severity: optimization|informational|low|medium|high")
	cmd.Flags().StringVar(&minConfidence, "min-confidence", "", "minimum confidence: low|medium|high")
	cmd.Flags().StringSliceVar(&detectors, "detector", nil, "only these detector ids (repeatable)")
	cmd.Flags().StringVar(&file, "file", "", "only findings whose primary location is in this file")
	cmd.Flags().BoolVar(&all, "all", false, "ignore the configured thresholds and hidden detectors")
	return cmd
}

func (a *app) detectorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detectors",
		Short: "List the detectors that reported findings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, "detectors", func(_ *solidex.Engine, q *solidex.QueryBuilder) (any, error) {
				return q.Detectors(), nil
			})
		},
	}
}

func (a *app) diagnosticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnostics",
		Short: "Render findings as editor diagnostics, one entry per file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, "diagnostics", func(e *solidex.Engine, _ *solidex.QueryBuilder) (any, error) {
				d, err := solidex.NewDispatcher(e)
				if err != nil {
					return nil, err
				}
				return d.Diagnostics(), nil
			})
		},
	}
}

// parseKinds parses a comma-separated list of symbol kinds.
func parseKinds(s string) ([]solidex.Kind, error) {
	if s == "" {
		return nil, nil
	}
	var out []solidex.Kind
	for _, part := range strings.Split(s, ",") {
		k, err := model.ParseKind(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid --kind: %w", err)
		}
		out = append(out, k)
	}
	return out, nil
}
