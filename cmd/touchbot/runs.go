package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamup/touchbot/internal/db"
)

var (
	runsKind  string
	runsLimit int
	runsJSON  bool
)

var runsCmd = &cobra.Command{
	Use:   "runs [ID]",
	Short: "List recorded runs, or show one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().StringVarP(&runsKind, "kind", "k", "all", "Only show runs of this kind")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "l", 20, "Maximum number of runs to list")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "Print JSON instead of a table")
}

func runRuns(cmd *cobra.Command, args []string) error {
	journal, err := db.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	out := cmd.OutOrStdout()

	if len(args) == 1 {
		run, err := journal.GetRun(args[0])
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run %s not found", args[0])
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}

	runs, err := journal.ListRuns(runsKind, runsLimit, 0)
	if err != nil {
		return err
	}
	if runsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tLABEL\tSTATUS\tSTARTED\tDURATION")
	for _, run := range runs {
		duration := "-"
		if run.CompletedAt != nil {
			duration = run.Duration().Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID,
			run.Kind,
			run.Label,
			run.Status,
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
		)
	}
	return w.Flush()
}
