package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/cropsense/farmops/internal/model"
	"github.com/cropsense/farmops/internal/store"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect stored diagnosis reports",
	Long:  "Commands for listing, viewing, summarizing, and exporting diagnosis reports.",
}

// -- reports list --

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored diagnosis reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openReportStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		actor, _ := cmd.Flags().GetInt("actor")
		page, _ := cmd.Flags().GetInt("page")
		pageSize, _ := cmd.Flags().GetInt("page-size")

		summaries, total, err := st.ListReports(ctx, actor, page, pageSize)
		if err != nil {
			return eris.Wrap(err, "reports list")
		}

		if len(summaries) == 0 {
			fmt.Fprintln(os.Stderr, "No reports found.")
			return nil
		}

		formatReportsList(os.Stdout, summaries, total, page)
		return nil
	},
}

// -- reports get --

var reportsGetCmd = &cobra.Command{
	Use:   "get <report-id>",
	Short: "Show a full diagnosis report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openReportStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetReport(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "reports get")
		}
		if rec == nil {
			return eris.Errorf("report not found: %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

// -- reports stats --

var reportsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate diagnosis statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openReportStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		actor, _ := cmd.Flags().GetInt("actor")

		stats, err := st.Stats(ctx, actor)
		if err != nil {
			return eris.Wrap(err, "reports stats")
		}

		formatReportStats(os.Stdout, stats)
		return nil
	},
}

// -- reports export --

var reportsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export report summaries to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openReportStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		actor, _ := cmd.Flags().GetInt("actor")
		limit, _ := cmd.Flags().GetInt("limit")
		output, _ := cmd.Flags().GetString("output")

		summaries, err := fetchReportSummaries(ctx, st, actor, limit)
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Fprintln(os.Stderr, "No reports to export.")
			return nil
		}

		if err := exportReportsXLSX(output, summaries); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Exported %d reports to %s\n", len(summaries), output)
		return nil
	},
}

func init() {
	reportsListCmd.Flags().Int("actor", 0, "filter by farm actor id (0 = all)")
	reportsListCmd.Flags().Int("page", 1, "page number")
	reportsListCmd.Flags().Int("page-size", store.DefaultPageSize, "reports per page")

	reportsStatsCmd.Flags().Int("actor", 0, "scope stats to a farm actor id (0 = all)")

	reportsExportCmd.Flags().Int("actor", 0, "filter by farm actor id (0 = all)")
	reportsExportCmd.Flags().Int("limit", 1000, "max reports to export")
	reportsExportCmd.Flags().String("output", "reports.xlsx", "path of the XLSX workbook to write")

	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsGetCmd)
	reportsCmd.AddCommand(reportsStatsCmd)
	reportsCmd.AddCommand(reportsExportCmd)
	rootCmd.AddCommand(reportsCmd)
}

// openReportStore validates the store config, opens the store, and runs
// migrations. Callers own the returned store and must close it.
func openReportStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("reports"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// fetchReportSummaries pages through the store until limit rows are
// collected or the listing is exhausted.
func fetchReportSummaries(ctx context.Context, st store.Store, actor, limit int) ([]model.ReportSummary, error) {
	var all []model.ReportSummary
	page := 1
	for len(all) < limit {
		summaries, total, err := st.ListReports(ctx, actor, page, store.MaxPageSize)
		if err != nil {
			return nil, eris.Wrap(err, "reports export: list reports")
		}
		all = append(all, summaries...)
		if len(summaries) == 0 || len(all) >= total {
			break
		}
		page++
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// formatReportsList writes a tabular report listing to w.
func formatReportsList(out io.Writer, summaries []model.ReportSummary, total, page int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTITLE\tCROP\tDISEASE\tCONFIDENCE\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-----\t----\t-------\t----------\t-------")

	for _, s := range summaries {
		title := s.Title
		if len(title) > 30 {
			title = title[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
			truncateID(s.ID),
			title,
			s.CropType,
			s.Disease,
			s.Confidence,
			s.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_, _ = fmt.Fprintf(w, "\nShowing %d of %d reports (page %d)\n", len(summaries), total, page)
	_ = w.Flush()
}

// formatReportStats writes aggregate stats to w.
func formatReportStats(out io.Writer, s *model.ReportStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total analyses:\t%d\n", s.TotalAnalyses)
	_, _ = fmt.Fprintf(w, "With images:\t%d\n", s.WithImages)
	_, _ = fmt.Fprintf(w, "With tasks:\t%d\n", s.WithTasks)
	_, _ = fmt.Fprintf(w, "With daily logs:\t%d\n", s.WithLogs)
	_, _ = fmt.Fprintf(w, "Avg confidence:\t%.2f\n", s.AvgConfidence)

	writeCounts(w, "Crops:", s.CropCounts)
	writeCounts(w, "Diseases:", s.DiseaseCounts)
	writeCounts(w, "Severity:", s.SeverityDist)
	_ = w.Flush()
}

// writeCounts writes a labeled count breakdown ordered by descending count.
func writeCounts(w io.Writer, label string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, label)

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", k, counts[k])
	}
}

// exportReportsXLSX writes report summaries to an XLSX workbook at path.
func exportReportsXLSX(path string, summaries []model.ReportSummary) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Reports")
	if err != nil {
		return eris.Wrap(err, "reports export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"ID", "Title", "Crop", "Disease", "Confidence", "Created"} {
		header.AddCell().Value = h
	}

	for _, s := range summaries {
		row := sheet.AddRow()
		row.AddCell().Value = s.ID
		row.AddCell().Value = s.Title
		row.AddCell().Value = s.CropType
		row.AddCell().Value = s.Disease
		row.AddCell().SetFloatWithFormat(s.Confidence, "0.00")
		row.AddCell().Value = s.CreatedAt.Format("2006-01-02 15:04")
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "reports export: save file")
	}
	return nil
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
