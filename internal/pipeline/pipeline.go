// Package pipeline runs one staging file pair through extraction, transform,
// key resolution and the partition replace, recording the run in the ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/agriflow/internal/extract"
	"github.com/leapstack-labs/agriflow/internal/load"
	"github.com/leapstack-labs/agriflow/internal/metrics"
	"github.com/leapstack-labs/agriflow/internal/resolve"
	"github.com/leapstack-labs/agriflow/internal/staging"
	"github.com/leapstack-labs/agriflow/internal/state"
	"github.com/leapstack-labs/agriflow/internal/transform"
	"github.com/leapstack-labs/agriflow/pkg/adapter"
	"github.com/leapstack-labs/agriflow/pkg/core"
	"golang.org/x/sync/errgroup"
)

// Stage names used in logs and the stage duration metric.
const (
	StageExtract   = "extract"
	StageTransform = "transform"
	StageResolve   = "resolve"
	StageLoad      = "load"
)

// Policy decides what happens to facts whose crop or farm did not resolve.
type Policy string

// Policy values.
const (
	// PolicyQuarantine loads only complete rows and records the rest in the ledger.
	PolicyQuarantine Policy = "quarantine"
	// PolicyNull loads every row, leaving unresolved keys null.
	PolicyNull Policy = "null"
	// PolicyFail aborts the run before any warehouse write.
	PolicyFail Policy = "fail"
)

// Policies lists the accepted policy names.
var Policies = []Policy{PolicyQuarantine, PolicyNull, PolicyFail}

// ParsePolicy validates a policy name. The empty string selects quarantine.
func ParsePolicy(s string) (Policy, error) {
	if s == "" {
		return PolicyQuarantine, nil
	}
	for _, p := range Policies {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown unresolved key policy %q (want quarantine, null or fail)", s)
}

// Warehouse is the part of an adapter the pipeline needs.
type Warehouse interface {
	adapter.DimensionReader
	adapter.FactWriter
}

// Config holds pipeline configuration.
type Config struct {
	Environment  string
	Policy       Policy
	StrictPrices bool
	Replace      core.ReplaceOptions

	// PushURL is the Pushgateway address; empty disables pushing.
	PushURL string
	PushJob string

	Logger *slog.Logger
}

// Pipeline loads staging pairs into a warehouse.
type Pipeline struct {
	warehouse Warehouse
	ledger    state.Store
	metrics   *metrics.Metrics
	resolver  *resolve.Resolver
	loader    *load.Loader
	cfg       Config
	logger    *slog.Logger
}

// New creates a pipeline. ledger and m may be nil.
func New(warehouse Warehouse, ledger state.Store, m *metrics.Metrics, cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyQuarantine
	}
	return &Pipeline{
		warehouse: warehouse,
		ledger:    ledger,
		metrics:   m,
		resolver:  resolve.New(warehouse, logger),
		loader:    load.New(warehouse, cfg.Replace, logger),
		cfg:       cfg,
		logger:    logger,
	}
}

// RunAll discovers the pairs in src and runs each in date order. A failed
// pair does not stop the others; the returned error joins every failure.
func (p *Pipeline) RunAll(ctx context.Context, src staging.Source, date string) ([]*core.Run, error) {
	pairs, orphans, err := staging.Discover(ctx, src, date)
	if err != nil {
		return nil, err
	}
	for _, o := range orphans {
		p.logger.Warn("skipping unpaired staging file", "file", o, "source", src.String())
	}
	if len(pairs) == 0 {
		p.logger.Info("no staging pairs to load", "source", src.String(), "date", date)
		return nil, nil
	}

	var (
		runs []*core.Run
		errs []error
	)
	for _, pair := range pairs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		run, err := p.RunPair(ctx, src, pair)
		if run != nil {
			runs = append(runs, run)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pair.Date, err))
		}
	}
	return runs, errors.Join(errs...)
}

// RunPair runs one harvest log and its price document.
func (p *Pipeline) RunPair(ctx context.Context, src staging.Source, pair staging.Pair) (*core.Run, error) {
	run := &core.Run{
		Environment: p.cfg.Environment,
		HarvestFile: pair.Harvest,
		PriceFile:   pair.Prices,
	}
	if err := p.createRun(ctx, run); err != nil {
		return nil, err
	}
	logger := p.logger.With("run_id", run.ID)
	logger.Info("starting run", "harvest", pair.Harvest, "prices", pair.Prices)

	stats, err := p.process(ctx, logger, run.ID, src, pair)
	run.Stats = stats
	p.finish(ctx, logger, run, err)
	return run, err
}

func (p *Pipeline) createRun(ctx context.Context, run *core.Run) error {
	if p.ledger == nil {
		run.ID = uuid.NewString()
		run.Status = core.RunStatusRunning
		run.StartedAt = time.Now().UTC()
		return nil
	}
	if err := p.ledger.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (p *Pipeline) finish(ctx context.Context, logger *slog.Logger, run *core.Run, runErr error) {
	// The ledger and Pushgateway still hear about runs cut short by cancellation.
	ctx = context.WithoutCancel(ctx)

	finished := time.Now().UTC()
	run.CompletedAt = &finished
	run.Status = core.RunStatusCompleted
	if runErr != nil {
		run.Status = core.RunStatusFailed
		run.Error = runErr.Error()
		logger.Error("run failed", "error", runErr, "stats", run.Stats)
	} else {
		logger.Info("run completed", "stats", run.Stats)
	}

	if p.ledger != nil {
		if err := p.ledger.CompleteRun(ctx, run.ID, run.Status, run.Stats, run.Error); err != nil {
			logger.Error("failed to record run outcome", "error", err)
		}
	}

	p.metrics.ObserveRun(run.Status, run.Stats, finished)
	if err := p.metrics.Push(ctx, p.cfg.PushURL, p.cfg.PushJob); err != nil {
		logger.Warn("metrics push failed", "error", err)
	}
}

func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, runID string, src staging.Source, pair staging.Pair) (core.RunStats, error) {
	var stats core.RunStats

	// Extract both files concurrently; neither is written anywhere on failure.
	var (
		harvest core.HarvestBatch
		prices  core.PriceBatch
	)
	err := p.stage(logger, StageExtract, func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			harvest, err = readHarvest(gctx, src, pair.Harvest)
			return err
		})
		g.Go(func() error {
			var err error
			prices, err = readPrices(gctx, src, pair.Prices)
			return err
		})
		return g.Wait()
	})
	if err != nil {
		return stats, err
	}
	stats.Extracted = harvest.Len()
	stats.Prices = prices.Len()
	if prices.Date != "" && prices.Date != pair.Date {
		logger.Warn("price document date differs from file name", "document_date", prices.Date, "file_date", pair.Date)
	}

	var transformed transform.Result
	err = p.stage(logger, StageTransform, func() error {
		var err error
		transformed, err = transform.Transform(harvest, prices, transform.Options{
			StrictPrices: p.cfg.StrictPrices,
			Logger:       logger,
		})
		return err
	})
	stats.Dropped = transformed.Dropped
	stats.Unpriced = transformed.Unpriced
	stats.Transformed = len(transformed.Facts)
	if err != nil {
		return stats, err
	}

	var resolved resolve.Result
	err = p.stage(logger, StageResolve, func() error {
		var err error
		resolved, err = p.resolver.Resolve(ctx, transformed.Facts)
		return err
	})
	if err != nil {
		return stats, err
	}
	stats.Unresolved = len(resolved.Unresolved)

	// Every date in the batch is purged, including dates whose rows were all
	// held back, so a rerun never leaves rows from an earlier load behind.
	all := resolved.AllRows()
	dateIDs := core.DistinctDateIDs(all)

	rows, err := p.applyPolicy(ctx, logger, runID, resolved, all)
	if err != nil {
		return stats, err
	}
	stats.Quarantined = len(all) - len(rows)

	var res core.ReplaceResult
	err = p.stage(logger, StageLoad, func() error {
		var err error
		res, err = p.loader.Replace(ctx, dateIDs, rows)
		return err
	})
	stats.DateIDs = res.DateIDs
	stats.Purged = res.Purged
	stats.Loaded = res.Inserted
	return stats, err
}

func (p *Pipeline) applyPolicy(ctx context.Context, logger *slog.Logger, runID string, resolved resolve.Result, all []core.FactRow) ([]core.FactRow, error) {
	if len(resolved.Unresolved) == 0 {
		return all, nil
	}
	switch p.cfg.Policy {
	case PolicyFail:
		return nil, &core.UnresolvedKeysError{Keys: resolved.Unresolved}
	case PolicyNull:
		logger.Warn("loading facts with null dimension keys", "unresolved", len(resolved.Unresolved))
		return all, nil
	default:
		if p.ledger != nil {
			if _, err := p.ledger.Quarantine(ctx, runID, resolved.Unresolved); err != nil {
				return nil, fmt.Errorf("failed to quarantine unresolved keys: %w", err)
			}
		}
		rows := resolved.CompleteRows()
		logger.Warn("quarantined facts with unresolved keys",
			"unresolved", len(resolved.Unresolved),
			"held_back", len(all)-len(rows))
		return rows, nil
	}
}

func (p *Pipeline) stage(logger *slog.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	p.metrics.ObserveStage(name, elapsed)
	logger.Debug("stage finished", "stage", name, "elapsed", elapsed, "ok", err == nil)
	return err
}

func readHarvest(ctx context.Context, src staging.Source, name string) (core.HarvestBatch, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return core.HarvestBatch{}, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer func() { _ = rc.Close() }()
	return extract.ReadHarvestCSV(rc, name)
}

func readPrices(ctx context.Context, src staging.Source, name string) (core.PriceBatch, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return core.PriceBatch{}, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer func() { _ = rc.Close() }()
	return extract.ReadPriceJSON(rc, name)
}
