package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Kakaur/tensr-signal-agent/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long:  "Commands for listing, viewing, summarizing, and purging pipeline runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs with signal counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		batches, err := st.ListBatches(ctx)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(batches) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatBatchList(os.Stdout, batches)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the latest run's signals, highest score first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		signals, err := st.LatestRunSignals(ctx)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(signals)
	},
}

// -- runs summary --

var runsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the latest run's tier counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		summary, err := st.GetSummary(ctx)
		if err != nil {
			return eris.Wrap(err, "runs summary")
		}
		if summary == nil {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatSummary(os.Stdout, summary)
		return nil
	},
}

// -- runs purge --

var runsPurgeCmd = &cobra.Command{
	Use:   "purge <run-id> [run-id...]",
	Short: "Delete runs and their signals",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return eris.Errorf("invalid run id %q", arg)
			}
			ids = append(ids, id)
		}

		if len(ids) == 1 {
			run, err := st.DeleteBatch(ctx, ids[0])
			if err != nil {
				return eris.Wrap(err, "runs purge")
			}
			if run == nil {
				fmt.Fprintf(os.Stderr, "Run %d not found.\n", ids[0])
				return nil
			}
			fmt.Printf("Deleted run %d (%s) and its signals.\n", run.ID, run.Timestamp)
			return nil
		}

		res, err := st.DeleteRuns(ctx, ids)
		if err != nil {
			return eris.Wrap(err, "runs purge")
		}

		fmt.Printf("Deleted %d runs and %d signals.\n", res.RunsDeleted, res.SignalsDeleted)
		return nil
	},
}

func init() {
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsSummaryCmd)
	runsCmd.AddCommand(runsPurgeCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatBatchList writes a tabular list of runs to w.
func formatBatchList(out io.Writer, batches []store.Batch) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTIMESTAMP\tSIGNALS\tQUERIES\tRESULTS\tREPORT")
	_, _ = fmt.Fprintln(w, "--\t---------\t-------\t-------\t-------\t------")

	for _, b := range batches {
		report := b.OutputFile
		if len(report) > 40 {
			report = report[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%s\n",
			b.ID,
			b.Timestamp,
			b.SignalCount,
			b.QueriesUsed,
			b.ResultsFound,
			report,
		)
	}
	_ = w.Flush()
}

// formatSummary writes tier counts to w.
func formatSummary(out io.Writer, s *store.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%d (%s)\n", s.RunID, s.Timestamp)
	_, _ = fmt.Fprintf(w, "HOT:\t%d\n", s.Hot)
	_, _ = fmt.Fprintf(w, "WARM:\t%d\n", s.Warm)
	_, _ = fmt.Fprintf(w, "NURTURE:\t%d\n", s.Nurture)
	_, _ = fmt.Fprintf(w, "HOLD:\t%d\n", s.Hold)
	_, _ = fmt.Fprintf(w, "Total:\t%d\n", s.Total)
	_ = w.Flush()
}
