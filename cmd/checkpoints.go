package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cwbudde/goeda/internal/config"
	"github.com/cwbudde/goeda/internal/store"
)

var (
	checkpointDataDir string
	checkpointStore   string
	keepLast          int
	olderThanDays     int
	keepHistory       int
	forceClean        bool
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Manage run checkpoints",
	Long: `Manage run checkpoints including listing, inspecting and cleaning old runs.
Checkpoints allow resuming interrupted runs with the resume command.`,
}

var listCheckpointsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available checkpoints",
	Long:  `Display the latest checkpoint of every run with its algorithm, progress, best fitness and size.`,
	RunE:  runListCheckpoints,
}

var showCheckpointCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run's checkpoint and its saved iterations",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowCheckpoint,
}

var cleanCheckpointsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old checkpoints",
	Long: `Delete old runs based on a retention policy, or trim the per-iteration history
of every run. You can keep the N most recent runs, delete runs older than N
days, or keep the last N iteration copies of each run.`,
	RunE: runCleanCheckpoints,
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)

	checkpointsCmd.AddCommand(listCheckpointsCmd)
	checkpointsCmd.AddCommand(showCheckpointCmd)
	checkpointsCmd.AddCommand(cleanCheckpointsCmd)

	checkpointsCmd.PersistentFlags().StringVar(&checkpointDataDir, "data-dir", "./data", "Base directory for checkpoint storage")
	checkpointsCmd.PersistentFlags().StringVar(&checkpointStore, "store", config.StoreFS, "Checkpoint store (fs, badger)")

	cleanCheckpointsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the N most recent runs (0 = keep all)")
	cleanCheckpointsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs last saved more than N days ago (0 = no age limit)")
	cleanCheckpointsCmd.Flags().IntVar(&keepHistory, "keep-history", 0, "Keep only the last N iteration copies of every run (0 = keep all)")
	cleanCheckpointsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func openCheckpointStore() (store.Store, error) {
	st, err := store.Open(config.Run{OutputDir: checkpointDataDir, Store: checkpointStore})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	return st, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func runListCheckpoints(cmd *cobra.Command, args []string) error {
	st, err := openCheckpointStore()
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.ListCheckpoints()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No checkpoints found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tALGORITHM\tITERATION\tEVALUATIONS\tBEST\tHISTORY\tSIZE\tSAVED")
	fmt.Fprintln(w, "------\t---------\t---------\t-----------\t----\t-------\t----\t-----")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.6g\t%d\t%s\t%s\n",
			shortID(info.RunID),
			info.AlgorithmID,
			info.Iteration,
			humanize.Comma(info.Evaluations),
			info.BestFitness,
			info.History,
			humanize.Bytes(uint64(info.Size)),
			humanize.Time(info.SavedAt),
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal checkpoints: %d\n", len(infos))
	return nil
}

func runShowCheckpoint(cmd *cobra.Command, args []string) error {
	st, err := openCheckpointStore()
	if err != nil {
		return err
	}
	defer st.Close()

	cp, err := st.LoadCheckpoint(args[0])
	if err != nil {
		return err
	}
	iterations, err := st.ListIterations(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:          %s\n", cp.RunID)
	fmt.Fprintf(out, "Algorithm:    %s\n", cp.AlgorithmID)
	if cp.Config != nil {
		fmt.Fprintf(out, "Problem:      %s (%s)\n", cp.Config.Problem.Type, cp.Sense)
		fmt.Fprintf(out, "Population:   %d\n", cp.Config.PopulationSize)
		fmt.Fprintf(out, "Seed:         %d\n", cp.Config.Seed)
	}
	fmt.Fprintf(out, "Iteration:    %d\n", cp.Iteration)
	fmt.Fprintf(out, "Evaluations:  %s\n", humanize.Comma(cp.Evaluations))
	fmt.Fprintf(out, "Best:         %g\n", cp.BestFitness())
	fmt.Fprintf(out, "Saved:        %s (%s)\n", cp.SavedAt.Format(time.RFC3339), humanize.Time(cp.SavedAt))
	fmt.Fprintf(out, "Location:     %s\n", store.Location(st, cp.RunID))

	hist := make([]string, len(iterations))
	for i, it := range iterations {
		hist[i] = fmt.Sprint(it)
	}
	fmt.Fprintf(out, "History:      %s\n", strings.Join(hist, ", "))
	return nil
}

func runCleanCheckpoints(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 && keepHistory == 0 {
		return fmt.Errorf("must specify --keep-last, --older-than or --keep-history")
	}

	st, err := openCheckpointStore()
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.ListCheckpoints()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No checkpoints to clean.")
		return nil
	}

	toDelete := selectCheckpointsForDeletion(infos, keepLast, olderThanDays, time.Now())

	if len(toDelete) > 0 {
		fmt.Fprintf(out, "Found %d run(s) to delete:\n", len(toDelete))
		for _, info := range toDelete {
			fmt.Fprintf(out, "  - %s (iteration %d, %s)\n",
				shortID(info.RunID),
				info.Iteration,
				humanize.Time(info.SavedAt),
			)
		}
		if !forceClean && !confirm(cmd.InOrStdin(), out) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	} else if keepHistory == 0 {
		fmt.Fprintln(out, "No checkpoints match deletion criteria.")
		return nil
	}

	deleted, failed := 0, 0
	gone := make(map[string]bool)
	for _, info := range toDelete {
		if err := deleteRun(st, info.RunID); err != nil {
			slog.Error("Failed to delete checkpoint", "run_id", info.RunID, "error", err)
			failed++
			continue
		}
		slog.Info("Deleted checkpoint", "run_id", info.RunID)
		gone[info.RunID] = true
		deleted++
	}

	pruned := 0
	if keepHistory > 0 {
		for _, info := range infos {
			if gone[info.RunID] || info.History <= keepHistory {
				continue
			}
			if err := st.PruneHistory(info.RunID, keepHistory); err != nil {
				slog.Error("Failed to prune history", "run_id", info.RunID, "error", err)
				failed++
				continue
			}
			pruned++
		}
	}

	fmt.Fprintf(out, "\nDeleted %d run(s), pruned %d history, %d failed.\n", deleted, pruned, failed)
	return nil
}

func deleteRun(st store.Store, runID string) error {
	if err := st.DeleteCheckpoint(runID); err != nil {
		return err
	}
	if _, ok := st.(*store.FSStore); ok {
		return nil
	}
	return store.DeleteTrace(checkpointDataDir, runID)
}

func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.TrimSpace(line) {
	case "y", "Y", "yes":
		return true
	}
	return false
}

// selectCheckpointsForDeletion applies the age limit and the keep-last
// count; a run matching both is listed once, oldest first.
func selectCheckpointsForDeletion(infos []store.CheckpointInfo, keepLast, olderThanDays int, now time.Time) []store.CheckpointInfo {
	sorted := make([]store.CheckpointInfo, len(infos))
	copy(sorted, infos)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SavedAt.Before(sorted[j].SavedAt) })

	selected := make(map[string]bool)
	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, info := range sorted {
			if info.SavedAt.Before(cutoff) {
				selected[info.RunID] = true
			}
		}
	}
	if keepLast > 0 && len(sorted) > keepLast {
		for _, info := range sorted[:len(sorted)-keepLast] {
			selected[info.RunID] = true
		}
	}

	var toDelete []store.CheckpointInfo
	for _, info := range sorted {
		if selected[info.RunID] {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}
