package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var (
		limit      int
		quarantine string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent pipeline runs",
		Long: `Show recent pipeline runs from the run ledger, newest first.

With --quarantine, show the rows a run held back because their crop or farm
did not resolve.`,
		Example: `  agriflow runs --limit 5
  agriflow runs --quarantine 0f8c2a1e-...`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			ledger, err := cc.OpenLedger(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()

			if quarantine != "" {
				rows, err := ledger.ListQuarantine(ctx, quarantine)
				if err != nil {
					return err
				}
				if cc.JSONOutput() {
					return cc.JSON(rows)
				}
				if len(rows) == 0 {
					cc.Printf("(no quarantined rows)\n")
					return nil
				}
				t := table.NewWriter()
				t.SetOutputMirror(cc.Out)
				t.SetStyle(table.StyleLight)
				t.AppendHeader(table.Row{"Harvest", "Date", "Dimension", "Key"})
				for _, r := range rows {
					t.AppendRow(table.Row{r.HarvestID, r.Date, r.Dimension, r.NaturalKey})
				}
				t.Render()
				return nil
			}

			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			runs, err := ledger.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if cc.JSONOutput() {
				return cc.JSON(toRunViews(runs))
			}
			renderRunsTable(cc.Out, runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	cmd.Flags().StringVar(&quarantine, "quarantine", "", "Show the quarantined rows of this run")
	return cmd
}
