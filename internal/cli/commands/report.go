package commands

import (
	"fmt"
	"os"

	"github.com/leapstack-labs/agriflow/internal/report"
	"github.com/leapstack-labs/agriflow/internal/resolve"
	"github.com/spf13/cobra"
)

// ReportOptions holds options for the report command.
type ReportOptions struct {
	From string
	To   string
	XLSX string
}

// Date range used when --from or --to is omitted.
const (
	earliestDateID int64 = 19000101
	latestDateID   int64 = 99991231
)

// NewReportCommand creates the report command.
func NewReportCommand() *cobra.Command {
	opts := &ReportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize loaded harvest facts per day and crop",
		Long: `Summarize the facts in the warehouse per harvest date and crop: lots,
quantities, costs, revenue and profit. Lots without a market price count as
unpriced and are left out of revenue and profit.`,
		Example: `  agriflow report --from 2026-02-01 --to 2026-02-28
  agriflow report --xlsx february.xlsx`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "First harvest date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.To, "to", "", "Last harvest date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.XLSX, "xlsx", "", "Also write the summary to this Excel workbook")

	return cmd
}

func parseBound(date string, fallback int64) (int64, error) {
	if date == "" {
		return fallback, nil
	}
	return resolve.DateID(date)
}

func runReport(cmd *cobra.Command, opts *ReportOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	from, err := parseBound(opts.From, earliestDateID)
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	to, err := parseBound(opts.To, latestDateID)
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}

	wh, err := cc.OpenWarehouse(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = wh.Close() }()

	summary, err := report.Build(ctx, wh, from, to)
	if err != nil {
		return err
	}

	if opts.XLSX != "" {
		f, err := os.Create(opts.XLSX)
		if err != nil {
			return fmt.Errorf("failed to create workbook: %w", err)
		}
		if err := report.WriteXLSX(f, summary); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write workbook: %w", err)
		}
		cc.Logger.Info("wrote workbook", "path", opts.XLSX, "lines", len(summary.Lines))
	}

	if cc.JSONOutput() {
		return cc.JSON(summary)
	}
	report.WriteTable(cc.Out, summary)
	return nil
}
