package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the warehouse schema and upgrade the run ledger",
		Long: `Create the dimension and fact tables in the target warehouse if they do not
exist, and apply pending migrations to the run ledger.`,
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
			if err := wh.InitSchema(ctx); err != nil {
				return fmt.Errorf("failed to create warehouse schema: %w", err)
			}

			ledger, err := cc.OpenLedger(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()
			version, err := ledger.MigrationVersion(ctx)
			if err != nil {
				return fmt.Errorf("failed to read ledger version: %w", err)
			}

			cc.Logger.Info("schema ready", "dialect", wh.DialectName(), "ledger_version", version)
			if cc.JSONOutput() {
				return cc.JSON(map[string]any{
					"warehouse":      wh.DialectName(),
					"ledger_version": version,
				})
			}
			cc.Printf("Warehouse schema ready (%s)\nRun ledger at version %d\n", wh.DialectName(), version)
			return nil
		},
	}
}
