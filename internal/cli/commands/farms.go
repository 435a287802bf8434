package commands

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewFarmsCommand creates the farms command.
func NewFarmsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "farms",
		Short: "Show the version history of dim_farm",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			wh, err := cc.OpenWarehouse(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = wh.Close() }()

			history, err := wh.FarmHistory(ctx)
			if err != nil {
				return err
			}
			if cc.JSONOutput() {
				return cc.JSON(history)
			}

			t := table.NewWriter()
			t.SetOutputMirror(cc.Out)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Key", "Farm", "Name", "Manager", "Current", "Valid from", "Valid to"})
			for _, v := range history {
				to := ""
				if v.ValidTo != nil {
					to = v.ValidTo.Format(time.DateOnly)
				}
				current := ""
				if v.IsCurrent {
					current = "yes"
				}
				t.AppendRow(table.Row{v.FarmKey, v.FarmID, v.Name, v.Manager, current, v.ValidFrom.Format(time.DateOnly), to})
			}
			t.Render()
			return nil
		},
	}
}
