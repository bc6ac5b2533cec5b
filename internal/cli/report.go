package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/basicio/internal/ir"
	"github.com/roach88/basicio/internal/store"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Limit int
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report [batch-id]",
		Short: "Show a saved import report, or list recent runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runShowReport(cmd, opts, args[0])
			}
			return runListReports(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of runs to list (0 for all)")

	return cmd
}

func runShowReport(cmd *cobra.Command, opts *ReportOptions, batchID string) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	runs, err := store.Open(opts.Settings.DBPath)
	if err != nil {
		formatter.Error(ErrCodeStore, "database unavailable", err.Error())
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer runs.Close()

	report, err := runs.LoadReport(cmd.Context(), batchID)
	if errors.Is(err, store.ErrRunNotFound) {
		formatter.Error(ErrCodeNotFound, fmt.Sprintf("no report for batch %s", batchID), nil)
		return WrapExitError(ExitCommandError, "report not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "load report", err)
	}

	if formatter.JSON() {
		return formatter.Success(report)
	}
	writeReportText(formatter.Writer, report, true)
	return nil
}

func runListReports(cmd *cobra.Command, opts *ReportOptions) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	runs, err := store.Open(opts.Settings.DBPath)
	if err != nil {
		formatter.Error(ErrCodeStore, "database unavailable", err.Error())
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer runs.Close()

	summaries, err := runs.ListReports(cmd.Context(), opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "list reports", err)
	}

	if formatter.JSON() {
		return formatter.Success(map[string]any{"runs": summaries})
	}
	if len(summaries) == 0 {
		fmt.Fprintln(formatter.Writer, "No import runs recorded.")
		return nil
	}
	for _, run := range summaries {
		fmt.Fprintf(formatter.Writer, "%s  %-9s  %s\n", run.BatchID, run.Outcome, formatCounts(run.Counts))
	}
	return nil
}

// writeReportText prints a human-readable report. With detail, every record
// line and the resolution summary are included.
func writeReportText(w io.Writer, r *ir.Report, detail bool) {
	fmt.Fprintf(w, "Batch %s: %s\n", r.BatchID, r.Outcome)
	if r.PartialCommit {
		fmt.Fprintln(w, "  some records were committed before the abort and were not rolled back")
	}
	fmt.Fprintf(w, "  %s\n", formatCounts(r.Counts))
	fmt.Fprintf(w, "  mode=%s on_missing=%s on_ambiguous=%s\n", r.Config.Mode, r.Config.OnMissing, r.Config.OnAmbiguous)

	if detail {
		if len(r.CommitWaves) > 0 {
			fmt.Fprintln(w, "Commit waves:")
			for i, wave := range r.CommitWaves {
				fmt.Fprintf(w, "  %d: %s\n", i+1, strings.Join(wave, ", "))
			}
		}
		if len(r.Records) > 0 {
			fmt.Fprintln(w, "Records:")
			for _, rec := range r.Records {
				line := fmt.Sprintf("  %s %s", statusMark(rec.State), rec.OriginalID)
				if rec.PersistedID != "" {
					line += " -> " + rec.PersistedID
				}
				if rec.ErrorCode != "" {
					line += fmt.Sprintf(" [%s]", rec.ErrorCode)
				}
				fmt.Fprintln(w, line)
			}
		}
		s := r.ResolutionSummary
		fmt.Fprintf(w, "Resolutions: resolved=%d ambiguous=%d missing=%d timed_out=%d unavailable=%d\n",
			s.Resolved, s.Ambiguous, s.Missing, s.TimedOut, s.Unavailable)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s\n", e.Error())
		}
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, warn := range r.Warnings {
			if warn.OriginalID != "" {
				fmt.Fprintf(w, "  %s: %s\n", warn.OriginalID, warn.Message)
			} else {
				fmt.Fprintf(w, "  %s\n", warn.Message)
			}
		}
	}
}

func formatCounts(c ir.Counts) string {
	return fmt.Sprintf("attempted=%d succeeded=%d failed=%d skipped=%d", c.Attempted, c.Succeeded, c.Failed, c.Skipped)
}

func statusMark(state ir.RecordState) string {
	switch state {
	case ir.StateCommitted:
		return "✓"
	case ir.StateFailed:
		return "✗"
	default:
		return "-"
	}
}
