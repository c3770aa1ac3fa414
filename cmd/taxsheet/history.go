package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/eargollo/taxsheet/internal/sheet"
	"github.com/eargollo/taxsheet/internal/store"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List past runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, database, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer database.Close()

			runs, err := st.ListRuns(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			total, err := st.CountRuns(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprint(out, renderTable(
				[]string{"ID", "Status", "Started", "Files", "Skipped", "Output"},
				buildRunRows(runs, time.Now()),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				isTerminal(out), terminalWidth(out),
			))
			fmt.Fprintf(out, "%d of %d runs\n", len(runs), total)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Runs to skip")
	return cmd
}

func buildRunRows(runs []store.Run, now time.Time) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, []string{
			id,
			r.Status,
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			fmt.Sprintf("%d/%d", r.ProcessedFiles, r.TotalFiles),
			strconv.Itoa(r.SkippedFiles),
			r.OutputFile,
		})
	}
	return rows
}

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	var taxID string
	cmd := &cobra.Command{
		Use:   "records RUN_ID",
		Short: "Show the records stored for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, database, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer database.Close()

			var records []sheet.Record
			if taxID != "" {
				records, err = st.RecordsByKey(cmd.Context(), taxID, args[0])
			} else {
				records, err = st.RecordsByRun(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No records")
				return nil
			}
			fmt.Fprint(out, renderTable(
				[]string{"Tax ID", "Name", "CGST", "SGST", "CESS", "Year", "Source"},
				buildRecordRows(records),
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
				isTerminal(out), terminalWidth(out),
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&taxID, "tax-id", "", "Only show records for this tax id")
	return cmd
}

func buildRecordRows(records []sheet.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.TaxID,
			r.Name,
			humanize.CommafWithDigits(r.CGST, 2),
			humanize.CommafWithDigits(r.SGST, 2),
			humanize.CommafWithDigits(r.Cess, 2),
			strconv.Itoa(r.Year),
			r.SourceFile,
		})
	}
	return rows
}
