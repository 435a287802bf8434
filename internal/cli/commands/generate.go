package commands

import (
	"time"

	"github.com/leapstack-labs/agriflow/internal/catalog"
	"github.com/leapstack-labs/agriflow/internal/generator"
	"github.com/leapstack-labs/agriflow/internal/staging"
	"github.com/spf13/cobra"
)

// GenerateOptions holds options for the generate command.
type GenerateOptions struct {
	Date               string
	Records            int
	Seed               uint64
	MissingManagerRate float64
	Catalog            string
	Out                string
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand() *cobra.Command {
	opts := &GenerateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic day of harvest logs and prices",
		Long: `Write a synthetic harvest log and market price document for one day into the
staging area. Lots are spread over the farms and crops of the dimension catalog.

The same --seed always produces the same files.`,
		Example: `  agriflow generate --date 2026-02-17 --records 200
  agriflow generate --seed 42 --out ./tmp/raw`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "Harvest date (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&opts.Records, "records", generator.DefaultRecords, "Number of harvest lots")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "Random seed (default derived from the clock)")
	cmd.Flags().Float64Var(&opts.MissingManagerRate, "missing-manager-rate", 0.05, "Share of lots without a manager check")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "Dimension catalog YAML (default built-in)")
	cmd.Flags().StringVar(&opts.Out, "out", "", "Write to this directory instead of the staging area")

	return cmd
}

func runGenerate(cmd *cobra.Command, opts *GenerateOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	cat, err := catalog.Load(opts.Catalog)
	if err != nil {
		return err
	}

	date := opts.Date
	if date == "" {
		date = time.Now().UTC().Format(time.DateOnly)
	}
	seed := opts.Seed
	if !cmd.Flags().Changed("seed") {
		seed = uint64(time.Now().UnixNano())
	}

	out, err := generator.Generate(generator.Options{
		Date:               date,
		Records:            opts.Records,
		Seed:               seed,
		Catalog:            cat,
		MissingManagerRate: opts.MissingManagerRate,
	})
	if err != nil {
		return err
	}

	var dst staging.Source
	if opts.Out != "" {
		dst = staging.NewFSSource(opts.Out)
	} else if dst, err = cc.OpenStaging(ctx); err != nil {
		return err
	}

	harvest, prices, err := generator.Write(ctx, dst, out)
	if err != nil {
		return err
	}
	cc.Logger.Info("generated staging files",
		"location", dst.String(), "harvest", harvest, "prices", prices, "records", len(out.Harvest), "seed", seed)

	if cc.JSONOutput() {
		return cc.JSON(map[string]any{
			"location": dst.String(),
			"harvest":  harvest,
			"prices":   prices,
			"records":  len(out.Harvest),
			"seed":     seed,
		})
	}
	cc.Printf("Wrote %d lots to %s\n  %s\n  %s\n", len(out.Harvest), dst, harvest, prices)
	return nil
}
