package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/lasso-mcp/internal/constraint"
	"github.com/dshills/lasso-mcp/internal/experiment"
	"github.com/dshills/lasso-mcp/internal/indexer"
)

func newEvaluateCmd() *cobra.Command {
	var (
		writeIndividual bool
		outputPath      string
	)

	cmd := &cobra.Command{
		Use:   "evaluate <constraints.csv> <sources-root>",
		Short: "Evaluate Lasso and the baselines against a constraint dataset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup("evaluate")
			if err != nil {
				return err
			}
			defer env.Close()
			if outputPath != "" {
				env.cfg.OutputPath = outputPath
			}

			constraints, err := constraint.NewLoader(env.logger.Named("constraints")).LoadFile(args[0])
			if err != nil {
				return err
			}

			runner := experiment.NewRunner(indexer.New(env.store, env.cfg, env.logger), env.cfg, env.logger)
			report, err := runner.Run(cmd.Context(), constraints, args[1], &experiment.Options{WriteIndividual: writeIndividual})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TECHNIQUE\tQUERIES\tHITS@K\tMAP\tMRR")
			k := env.cfg.HitsAtK[len(env.cfg.HitsAtK)-1]
			for _, row := range report.Summary {
				a := row.Aggregate
				fmt.Fprintf(tw, "%s\t%d\t%.3f (k=%d)\t%.3f\t%.3f\n", row.Technique, a.QueryCount(), a.PercentHits(k), k, a.MAP(), a.MRR())
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			for _, f := range report.Failures {
				fmt.Fprintf(out, "FAILED %s: %v\n", f.Scenario, f.Err)
			}
			fmt.Fprintf(out, "Results written to %s\n", report.Dir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&writeIndividual, "write-individual", false, "also write the top results of every constraint")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "report directory (default from config)")
	return cmd
}

func newWeightsCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "weights <constraints.csv> <sources-root>",
		Short: "Search the Lasso score weights that maximize %HIT@20",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup("weights")
			if err != nil {
				return err
			}
			defer env.Close()
			if outputPath != "" {
				env.cfg.OutputPath = outputPath
			}

			constraints, err := constraint.NewLoader(env.logger.Named("constraints")).LoadFile(args[0])
			if err != nil {
				return err
			}

			runner := experiment.NewRunner(indexer.New(env.store, env.cfg, env.logger), env.cfg, env.logger)
			report, err := runner.SearchWeights(cmd.Context(), constraints, args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Best weights: %s (%%HIT@20 %.3f)\n", report.Best, report.BestPercentHits())
			fmt.Fprintf(out, "Evaluated %d combinations in %s\n", len(report.Results), report.Duration)
			fmt.Fprintf(out, "Results written to %s\n", report.Dir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "report directory (default from config)")
	return cmd
}
