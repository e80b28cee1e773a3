package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var serverURL string

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Query server status or a specific run",
	Long: `Queries a running server for run status information.
If no run-id is provided, lists all runs.
If run-id is provided, shows detailed status for that run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

// runStatusView is the subset of the server's run JSON shown here.
type runStatusView struct {
	ID          string     `json:"id"`
	State       string     `json:"state"`
	AlgorithmID string     `json:"algorithmId"`
	Iteration   int        `json:"iteration"`
	Evaluations int64      `json:"evaluations"`
	Restarts    int        `json:"restarts"`
	Best        *float64   `json:"best"`
	BestSummary string     `json:"bestSummary"`
	StopReason  string     `json:"stopReason"`
	Checkpoint  string     `json:"checkpoint"`
	Resumed     bool       `json:"resumed"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	Error       string     `json:"error"`
	Elapsed     float64    `json:"elapsed"`
	EvalsPerSec float64    `json:"evalsPerSec"`
	Config      struct {
		Problem struct {
			Type string `json:"type"`
		} `json:"problem"`
		PopulationSize int    `json:"populationSize"`
		Seed           uint64 `json:"seed"`
	} `json:"config"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listRuns(cmd.OutOrStdout(), serverURL+"/api/v1/runs")
	}
	id := args[0]
	return getRunStatus(cmd.OutOrStdout(), fmt.Sprintf("%s/api/v1/runs/%s/status", serverURL, url.PathEscape(id)), id)
}

func getJSON(u string, v any) error {
	resp, err := http.Get(u)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var errNotFound = errors.New("not found")

func listRuns(w io.Writer, u string) error {
	var runs []runStatusView
	if err := getJSON(u, &runs); err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTATE\tALGORITHM\tPROBLEM\tITERATION\tEVALUATIONS\tBEST\tSTARTED")
	for _, r := range runs {
		best := "-"
		if r.Best != nil {
			best = fmt.Sprintf("%.6g", *r.Best)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			shortID(r.ID), r.State, r.AlgorithmID, r.Config.Problem.Type,
			r.Iteration, humanize.Comma(r.Evaluations), best, humanize.Time(r.StartTime))
	}
	tw.Flush()
	fmt.Fprintf(w, "\nFound %d run(s)\n", len(runs))
	return nil
}

func getRunStatus(w io.Writer, u, id string) error {
	var r runStatusView
	if err := getJSON(u, &r); err != nil {
		if errors.Is(err, errNotFound) {
			return fmt.Errorf("run not found: %s", id)
		}
		return err
	}

	fmt.Fprintf(w, "Run: %s\n", r.ID)
	fmt.Fprintf(w, "State: %s\n", r.State)
	if r.Resumed {
		fmt.Fprintln(w, "Resumed: yes")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Algorithm: %s\n", r.AlgorithmID)
	fmt.Fprintf(w, "  Problem: %s\n", r.Config.Problem.Type)
	fmt.Fprintf(w, "  Population: %d\n", r.Config.PopulationSize)
	fmt.Fprintf(w, "  Seed: %d\n", r.Config.Seed)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	fmt.Fprintf(w, "  Iteration: %d\n", r.Iteration)
	fmt.Fprintf(w, "  Evaluations: %s\n", humanize.Comma(r.Evaluations))
	if r.Restarts > 0 {
		fmt.Fprintf(w, "  Restarts: %d\n", r.Restarts)
	}
	if r.Best != nil {
		fmt.Fprintf(w, "  Best: %g\n", *r.Best)
	}
	if r.BestSummary != "" {
		fmt.Fprintf(w, "  Solution: %s\n", r.BestSummary)
	}
	fmt.Fprintf(w, "  Elapsed: %s\n", time.Duration(r.Elapsed*float64(time.Second)).Round(time.Millisecond))
	if r.EvalsPerSec > 0 {
		fmt.Fprintf(w, "  Throughput: %s evals/sec\n", humanize.Commaf(float64(int64(r.EvalsPerSec))))
	}
	if r.StopReason != "" {
		fmt.Fprintf(w, "  Stopped: %s\n", r.StopReason)
	}
	if r.Checkpoint != "" {
		fmt.Fprintf(w, "  Checkpoint: %s\n", r.Checkpoint)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", r.Error)
	}
	return nil
}
