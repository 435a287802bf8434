package commands

import (
	"fmt"

	"github.com/leapstack-labs/agriflow/internal/catalog"
	"github.com/spf13/cobra"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand() *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the crop and farm dimensions",
		Long: `Create the warehouse schema if needed and load the crop and farm dimensions
from a catalog. Crops are upserted by code. A farm whose attributes changed gets
a new current version and the previous one is closed.`,
		Example: `  agriflow seed
  agriflow seed --catalog dims.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			cat, err := catalog.Load(catalogPath)
			if err != nil {
				return err
			}

			wh, err := cc.OpenWarehouse(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = wh.Close() }()

			if err := wh.InitSchema(ctx); err != nil {
				return fmt.Errorf("failed to create warehouse schema: %w", err)
			}
			res, err := wh.SeedDimensions(ctx, cat)
			if err != nil {
				return fmt.Errorf("failed to seed dimensions: %w", err)
			}

			if cc.JSONOutput() {
				return cc.JSON(res)
			}
			cc.Printf("Crops inserted: %d\nFarms inserted: %d, versioned: %d\n",
				res.CropsInserted, res.FarmsInserted, res.FarmsVersioned)
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Dimension catalog YAML (default built-in)")
	return cmd
}
