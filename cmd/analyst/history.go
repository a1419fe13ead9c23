package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/analyst/internal/journal"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past runs recorded in the journal",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd, func(store *journal.Store, _ *journal.ReportIndex) error {
				runs, err := store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "RUN\tSTARTED\tSTATUS\tQUESTION")
				for _, r := range runs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.StartedAt.Format(time.DateTime), r.Status, oneLine(r.Query, 60))
				}
				return w.Flush()
			})
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run with every executed step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd, func(store *journal.Store, _ *journal.ReportIndex) error {
				run, records, err := store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				stdoutf("Run:      %s\nQuestion: %s\nStatus:   %s\nStarted:  %s\n",
					run.ID, run.Query, run.Status, run.StartedAt.Format(time.DateTime))
				if !run.FinishedAt.IsZero() {
					stdoutf("Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
				}
				for _, rec := range records {
					stdoutf("\n[%d] %s\n    %s", rec.Seq, rec.Step, rec.Status)
					if rec.Reused {
						stdoutf(" (reused)")
					} else {
						stdoutf(" after %d attempt(s)", rec.Attempts)
					}
					stdoutf("\n")
					if rec.Error != "" {
						stdoutf("    error: %s\n", oneLine(rec.Error, 200))
					}
					if len(rec.Artifacts) > 0 {
						stdoutf("    files: %s\n", strings.Join(rec.Artifacts, ", "))
					}
				}
				stdoutf("\n")
				switch {
				case run.FinalResponse != "":
					stdoutf("%s\n", run.FinalResponse)
				case run.FailureSummary != "":
					stdoutf("%s\n", run.FailureSummary)
				}
				return nil
			})
		},
	}

	var k int
	search := &cobra.Command{
		Use:   "search <text...>",
		Short: "Full-text search over past questions and answers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd, func(_ *journal.Store, index *journal.ReportIndex) error {
				hits, err := index.Search(strings.Join(args, " "), k)
				if err != nil {
					return err
				}
				if len(hits) == 0 {
					stdoutf("no matches\n")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "RUN\tSCORE\tSTATUS\tQUESTION")
				for _, h := range hits {
					fmt.Fprintf(w, "%s\t%.3f\t%s\t%s\n", h.RunID, h.Score, h.Status, oneLine(h.Query, 60))
				}
				return w.Flush()
			})
		},
	}
	search.Flags().IntVarP(&k, "limit", "n", 10, "Maximum number of matches")

	cmd.AddCommand(list, show, search)
	return cmd
}

func withJournal(cmd *cobra.Command, fn func(*journal.Store, *journal.ReportIndex) error) error {
	newLogger(cmd)
	m, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, index, err := openJournal(cmd.Context(), m, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	defer index.Close()
	return fn(store, index)
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}
