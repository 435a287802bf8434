package transform

import (
	"log/slog"

	"github.com/leapstack-labs/agriflow/pkg/core"
)

// Project reduces enriched records to natural keys and warehouse measures.
func Project(records []core.EnrichedRecord) []core.FactInput {
	out := make([]core.FactInput, len(records))
	for i, r := range records {
		out[i] = core.FactInput{
			HarvestID:           r.HarvestID,
			Date:                r.Date,
			FarmID:              r.FarmID,
			CropCode:            r.CropCode,
			QuantityHarvestedKg: r.QtyHarvestedKg,
			SpoilageKg:          r.SpoilageKg,
			LaborCostZAR:        r.LaborCostZAR,
			LogisticsCostZAR:    r.LogisticsCost,
			RevenueZAR:          r.RevenueZAR,
			ProfitZAR:           r.ProfitZAR,
		}
	}
	return out
}

// Options controls Transform.
type Options struct {
	// StrictPrices rejects price batches that quote a crop more than once.
	// When false, duplicates fan out into one fact per quote.
	StrictPrices bool
	Logger       *slog.Logger
}

// Result is the output of Transform.
type Result struct {
	Facts    []core.FactInput
	Dropped  int
	Unpriced int
}

// Transform runs clean, join, calculate and project over one harvest batch
// and its price batch.
func Transform(harvest core.HarvestBatch, prices core.PriceBatch, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cleaned, dropped := Clean(harvest.Records)
	if dropped > 0 {
		logger.Warn("dropped harvest records with non-positive quantity",
			slog.String("source", harvest.Source), slog.Int("dropped", dropped))
	}

	var enriched []core.EnrichedRecord
	if opts.StrictPrices {
		var err error
		if enriched, err = Enrich(cleaned, prices); err != nil {
			return Result{Dropped: dropped}, err
		}
	} else {
		if _, err := UniquePrices(prices); err != nil {
			logger.Warn("price batch has duplicate quotes; facts fan out", slog.Any("error", err))
		}
		enriched = Join(cleaned, prices.Records)
	}

	calculated := Calculate(enriched)

	res := Result{Facts: Project(calculated), Dropped: dropped}
	for _, r := range calculated {
		if !r.Priced() {
			res.Unpriced++
		}
	}
	if res.Unpriced > 0 {
		logger.Warn("harvest records without a market price", slog.Int("unpriced", res.Unpriced))
	}

	logger.Debug("transformed harvest batch",
		slog.String("source", harvest.Source),
		slog.Int("records", len(harvest.Records)),
		slog.Int("facts", len(res.Facts)),
	)
	return res, nil
}
