package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cwbudde/goeda/internal/config"
	"github.com/cwbudde/goeda/internal/runner"
)

var (
	resumeDataDir    string
	resumeStoreKind  string
	resumeIteration  int
	resumeConfigPath string
	resumeSinks      sinkFlags
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a run from its checkpoint",
	Long: `Continues a run from its latest checkpoint, or from the copy saved at
--iteration. The resumed run produces the same results as an uninterrupted
run with the same configuration. A replacement --config may change execution
settings but must describe the same algorithm and components.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeDataDir, "data-dir", "./data", "Base directory of the checkpoint store")
	resumeCmd.Flags().StringVar(&resumeStoreKind, "store", config.StoreFS, "Checkpoint store (fs, badger)")
	resumeCmd.Flags().IntVar(&resumeIteration, "iteration", 0, "Resume from the copy saved at this iteration (0 = latest)")
	resumeCmd.Flags().StringVarP(&resumeConfigPath, "config", "c", "", "Replacement configuration file")
	resumeSinks.register(resumeCmd)
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	id := args[0]
	opts := runner.ResumeOptions{Iteration: resumeIteration}
	if resumeConfigPath != "" {
		cfg, err := config.Load(resumeConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		opts.Config = cfg
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := config.Run{OutputDir: resumeDataDir, Store: resumeStoreKind}
	sess, err := openSession(ctx, run, id, true, resumeSinks)
	if err != nil {
		return err
	}
	defer sess.close()

	slog.Info("Resuming run", "run_id", id, "iteration", resumeIteration, "store", resumeStoreKind)
	res, err := sess.runner.Resume(ctx, id, opts)
	if err != nil {
		return explainInterrupt(ctx, id, err)
	}
	printResult(cmd.OutOrStdout(), res, sess.trace)
	return nil
}
