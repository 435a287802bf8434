package commands

import (
	"fmt"

	"github.com/leapstack-labs/agriflow/internal/metrics"
	"github.com/leapstack-labs/agriflow/internal/pipeline"
	"github.com/leapstack-labs/agriflow/internal/staging"
	"github.com/leapstack-labs/agriflow/pkg/core"
	"github.com/spf13/cobra"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Date    string
	Harvest string
	Prices  string
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load staged harvest logs into the warehouse",
		Long: `Load every harvest log in the staging area that has a matching price document.

Each day is one run: the files are extracted, cleaned, priced, resolved against
the crop and farm dimensions, and the day's fact partition is replaced in a
single transaction. Rerunning a day gives the same warehouse state.

Rows whose crop or farm is unknown are handled by pipeline.unresolved_keys
(quarantine, null or fail).`,
		Example: `  # Load everything staged
  agriflow run

  # Load one day
  agriflow run --date 2026-02-17

  # Load an explicit pair from the staging area
  agriflow run --harvest harvest_log_2026-02-17.csv --prices market_prices_2026-02-17.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "Only load files for this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Harvest, "harvest", "", "Harvest log to load (requires --prices)")
	cmd.Flags().StringVar(&opts.Prices, "prices", "", "Price document to load (requires --harvest)")
	cmd.MarkFlagsRequiredTogether("harvest", "prices")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cfg := cc.Cfg

	policy, err := pipeline.ParsePolicy(cfg.Pipeline.UnresolvedKeys)
	if err != nil {
		return err
	}

	wh, err := cc.OpenWarehouse(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = wh.Close() }()

	ledger, err := cc.OpenLedger(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	src, err := cc.OpenStaging(ctx)
	if err != nil {
		return err
	}

	p := pipeline.New(wh, ledger, metrics.New(), pipeline.Config{
		Environment:  cfg.Environment,
		Policy:       policy,
		StrictPrices: cfg.Pipeline.StrictPrices,
		Replace: core.ReplaceOptions{
			EnsureDates: cfg.Pipeline.EnsureDateDimension,
			BatchSize:   cfg.Pipeline.InsertBatchSize,
		},
		PushURL: cfg.Metrics.PushURL,
		PushJob: cfg.Metrics.Job,
		Logger:  cc.Logger,
	})

	var (
		runs   []*core.Run
		runErr error
	)
	if opts.Harvest != "" {
		pair := staging.Pair{Date: opts.Date, Harvest: opts.Harvest, Prices: opts.Prices}
		if pair.Date == "" {
			pair.Date, _ = staging.HarvestDate(opts.Harvest)
		}
		var run *core.Run
		run, runErr = p.RunPair(ctx, src, pair)
		if run != nil {
			runs = append(runs, run)
		}
	} else {
		runs, runErr = p.RunAll(ctx, src, opts.Date)
	}

	if cc.JSONOutput() {
		if err := cc.JSON(toRunViews(runs)); err != nil {
			return err
		}
	} else {
		renderRunsTable(cc.Out, runs)
	}

	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}
	return nil
}
