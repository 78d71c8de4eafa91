package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dshills/lasso-mcp/internal/indexer"
)

func newDetectCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "detect <system> <sources>",
		Short: "Detect the patterns of a Java project and cache them",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup("detect")
			if err != nil {
				return err
			}
			defer env.Close()

			p, err := indexer.New(env.store, env.cfg, env.logger).Project(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			counts := p.Repository.CountByType()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d patterns in %d files\n", args[0], p.Repository.Len(), len(p.Files))
			for _, t := range slices.Sorted(maps.Keys(counts)) {
				fmt.Fprintf(out, "  %-20s %d\n", t, counts[t])
			}

			if output == "" {
				return nil
			}
			f, err := os.Create(filepath.Clean(output))
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer func() { _ = f.Close() }()
			enc := json.NewEncoder(f)
			for _, pt := range p.Repository.Patterns() {
				if err := enc.Encode(pt); err != nil {
					return fmt.Errorf("failed to write pattern %s: %w", pt.ID(), err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "also write the patterns as JSON lines to this file")
	return cmd
}

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index <system> <sources>",
		Short: "Build the pattern index and the baseline indexes of a Java project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup("index")
			if err != nil {
				return err
			}
			defer env.Close()

			stats, err := indexer.New(env.store, env.cfg, env.logger).
				IndexProject(cmd.Context(), args[0], args[1], &indexer.Options{Force: force})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "System:           %s\n", stats.System)
			fmt.Fprintf(out, "Files parsed:     %d\n", stats.FilesParsed)
			fmt.Fprintf(out, "Patterns:         %d (%d indexed)\n", stats.Patterns, stats.IndexedPatterns)
			fmt.Fprintf(out, "Methods:          %d (%d call edges)\n", stats.Methods, stats.CallEdges)
			fmt.Fprintf(out, "Duration:         %s\n", stats.Duration)
			for _, name := range stats.Indexes {
				fmt.Fprintf(out, "  %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "drop cached patterns and indexes first")
	return cmd
}
