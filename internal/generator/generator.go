// Package generator produces synthetic harvest logs and price documents for
// demos and load testing. Output is deterministic for a given seed.
package generator

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/agriflow/internal/extract"
	"github.com/leapstack-labs/agriflow/internal/staging"
	"github.com/leapstack-labs/agriflow/pkg/core"
	"github.com/shopspring/decimal"
)

// DefaultRecords is the number of harvest lots generated per day.
const DefaultRecords = 50

// basePricePerTon is the mid-market ZAR price per ton around which daily
// quotes vary by up to 10%.
var basePricePerTon = map[string]int64{
	"MZ-YEL": 4200,
	"WH-DUR": 6100,
	"SY-BEA": 8300,
	"SF-OIL": 8900,
	"CT-VAL": 7500,
}

const fallbackPricePerTon = 5000

// Options controls Generate.
type Options struct {
	Date    string // YYYY-MM-DD
	Records int
	Seed    uint64
	Catalog core.DimensionCatalog

	// MissingManagerRate is the share of lots without a manager_check.
	MissingManagerRate float64
}

// Output is one generated day.
type Output struct {
	Harvest []core.HarvestRecord
	Prices  extract.PriceDocument
}

// Generate builds a day of harvest lots spread over the catalog's farms and
// crops, plus one price quote per crop.
func Generate(opts Options) (Output, error) {
	if _, err := time.Parse(time.DateOnly, opts.Date); err != nil {
		return Output{}, fmt.Errorf("invalid date %q: %w", opts.Date, err)
	}
	if len(opts.Catalog.Crops) == 0 || len(opts.Catalog.Farms) == 0 {
		return Output{}, fmt.Errorf("catalog needs at least one crop and one farm")
	}
	if opts.Records <= 0 {
		opts.Records = DefaultRecords
	}

	var seed [32]byte
	binary.LittleEndian.PutUint64(seed[:], opts.Seed)
	src := rand.NewChaCha8(seed)
	rng := rand.New(src)

	out := Output{Harvest: make([]core.HarvestRecord, 0, opts.Records)}
	for range opts.Records {
		farm := opts.Catalog.Farms[rng.IntN(len(opts.Catalog.Farms))]
		crop := opts.Catalog.Crops[rng.IntN(len(opts.Catalog.Crops))]

		id, err := uuid.NewRandomFromReader(src)
		if err != nil {
			return Output{}, fmt.Errorf("failed to generate harvest id: %w", err)
		}

		qty := decimal.NewFromFloat(500 + rng.Float64()*4500).Round(2)
		spoilageRate := decimal.NewFromFloat(0.01 + rng.Float64()*0.14)

		rec := core.HarvestRecord{
			HarvestID:      id.String(),
			Date:           opts.Date,
			FarmID:         farm.ID,
			CropCode:       crop.Code,
			QtyHarvestedKg: qty,
			SpoilageKg:     qty.Mul(spoilageRate).Round(2),
			LaborHours:     decimal.NewFromInt(int64(4 + rng.IntN(9))),
		}
		if rng.Float64() >= opts.MissingManagerRate {
			manager := farm.Manager
			rec.ManagerCheck = &manager
		}
		out.Harvest = append(out.Harvest, rec)
	}

	out.Prices = extract.PriceDocument{Date: opts.Date}
	for _, crop := range opts.Catalog.Crops {
		base, ok := basePricePerTon[crop.Code]
		if !ok {
			base = fallbackPricePerTon
		}
		swing := decimal.NewFromFloat(0.9 + rng.Float64()*0.2)
		out.Prices.Prices = append(out.Prices.Prices, extract.PriceQuote{
			CropCode:    crop.Code,
			CropName:    crop.Name,
			PricePerTon: decimal.NewFromInt(base).Mul(swing).Round(2),
		})
	}
	return out, nil
}

// Write stores out in dst under the staging file names for its date and
// returns those names.
func Write(ctx context.Context, dst staging.Source, out Output) (harvestName, priceName string, err error) {
	var hb, pb bytes.Buffer
	if err := extract.WriteHarvestCSV(&hb, out.Harvest); err != nil {
		return "", "", fmt.Errorf("failed to encode harvest log: %w", err)
	}
	if err := extract.WritePriceJSON(&pb, out.Prices); err != nil {
		return "", "", fmt.Errorf("failed to encode price document: %w", err)
	}

	harvestName = staging.HarvestFileName(out.Prices.Date)
	priceName = staging.PriceFileName(out.Prices.Date)
	if err := dst.Put(ctx, harvestName, &hb); err != nil {
		return "", "", err
	}
	if err := dst.Put(ctx, priceName, &pb); err != nil {
		return "", "", err
	}
	return harvestName, priceName, nil
}
