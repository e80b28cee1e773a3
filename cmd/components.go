package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/goeda/internal/registry"
)

var componentsCmd = &cobra.Command{
	Use:   "components",
	Short: "List registered algorithms and component types",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printComponents(cmd.OutOrStdout(), registry.Default())
	},
}

func init() {
	rootCmd.AddCommand(componentsCmd)
}

func printComponents(w io.Writer, reg *registry.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ALGORITHM\tDEFAULT MODEL\tREPRESENTATIONS\tDESCRIPTION")
	for _, a := range reg.Algorithms() {
		reps := "any"
		if len(a.Representations) > 0 {
			names := make([]string, len(a.Representations))
			for i, k := range a.Representations {
				names[i] = string(k)
			}
			reps = strings.Join(names, ",")
		}
		model := a.DefaultModel
		if model == "" {
			model = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.ID, model, reps, a.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, k := range registry.Kinds() {
		if k == registry.KindAlgorithm {
			continue
		}
		fmt.Fprintf(w, "\n%s: %s\n", k, strings.Join(reg.List(k), ", "))
	}
	return nil
}
