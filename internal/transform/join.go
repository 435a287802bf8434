package transform

import (
	"database/sql"

	"github.com/leapstack-labs/agriflow/pkg/core"
	"github.com/shopspring/decimal"
)

// Join left-joins harvest records to prices on crop_code. A crop quoted n
// times yields n rows per matching harvest record; an unquoted crop yields
// one row with null price fields.
func Join(harvest []core.HarvestRecord, prices []core.MarketPriceRecord) []core.EnrichedRecord {
	byCrop := make(map[string][]core.MarketPriceRecord, len(prices))
	for _, p := range prices {
		byCrop[p.CropCode] = append(byCrop[p.CropCode], p)
	}

	out := make([]core.EnrichedRecord, 0, len(harvest))
	for _, h := range harvest {
		matches := byCrop[h.CropCode]
		if len(matches) == 0 {
			out = append(out, core.EnrichedRecord{HarvestRecord: h})
			continue
		}
		for _, p := range matches {
			out = append(out, priced(h, p))
		}
	}
	return out
}

// Enrich is Join for price batches that quote each crop at most once. A
// duplicate quote fails with *core.DuplicatePriceError before any row is
// produced, so the output has exactly one row per harvest record.
func Enrich(harvest []core.HarvestRecord, prices core.PriceBatch) ([]core.EnrichedRecord, error) {
	index, err := UniquePrices(prices)
	if err != nil {
		return nil, err
	}

	out := make([]core.EnrichedRecord, 0, len(harvest))
	for _, h := range harvest {
		p, ok := index[h.CropCode]
		if !ok {
			out = append(out, core.EnrichedRecord{HarvestRecord: h})
			continue
		}
		out = append(out, priced(h, p))
	}
	return out, nil
}

// UniquePrices indexes a price batch by crop code.
func UniquePrices(prices core.PriceBatch) (map[string]core.MarketPriceRecord, error) {
	counts := make(map[string]int, len(prices.Records))
	for _, p := range prices.Records {
		counts[p.CropCode]++
	}

	index := make(map[string]core.MarketPriceRecord, len(prices.Records))
	for _, p := range prices.Records {
		if n := counts[p.CropCode]; n > 1 {
			return nil, &core.DuplicatePriceError{Source: prices.Source, CropCode: p.CropCode, Count: n}
		}
		index[p.CropCode] = p
	}
	return index, nil
}

func priced(h core.HarvestRecord, p core.MarketPriceRecord) core.EnrichedRecord {
	return core.EnrichedRecord{
		HarvestRecord: h,
		CropName:      sql.NullString{String: p.CropName, Valid: true},
		PricePerTon:   decimal.NewNullDecimal(p.PricePerTon),
	}
}
