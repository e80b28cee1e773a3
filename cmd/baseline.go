package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cwbudde/goeda/internal/config"
	"github.com/cwbudde/goeda/internal/opt"
)

var (
	baselineConfigPath string
	baselineSeed       uint64
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Run the mayfly optimizer on a configured real-vector problem",
	Long: `Runs the mayfly swarm optimizer on the representation and problem of a
configuration file, using its population size, iteration budget and seed.
The result is a reference point for EDA runs on the same problem.`,
	RunE: runBaseline,
}

func init() {
	baselineCmd.Flags().StringVarP(&baselineConfigPath, "config", "c", "", "Configuration file (required)")
	baselineCmd.Flags().Uint64Var(&baselineSeed, "seed", 0, "Override the configured seed")
	baselineCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(baselineCmd)
}

func runBaseline(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(baselineConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = baselineSeed
	}

	slog.Info("Starting baseline", "problem", cfg.Problem.Type, "population", cfg.PopulationSize, "iterations", cfg.Stopping.MaxIterations)
	start := time.Now()
	res, err := opt.Baseline(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Problem:     %s\n", res.Problem)
	fmt.Fprintf(out, "Evaluations: %s\n", humanize.Comma(res.Evaluations))
	fmt.Fprintf(out, "Best:        %g\n", res.Value)
	fmt.Fprintf(out, "Solution:    %s\n", res.Summary)
	fmt.Fprintf(out, "Elapsed:     %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}
