package core

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

// FactTable is the warehouse table holding harvest yield facts.
const FactTable = "fact_harvest_yield"

// FactColumns lists the fact table columns in insert order.
var FactColumns = []string{
	"date_id",
	"crop_id",
	"farm_key",
	"quantity_harvested_kg",
	"spoilage_kg",
	"labor_cost_zar",
	"logistics_cost_zar",
	"revenue_zar",
	"profit_zar",
}

// EnrichedRecord is a harvest record left-joined to its market price,
// carrying the derived financial metrics once calculated.
type EnrichedRecord struct {
	HarvestRecord

	// Price side of the join; invalid when no price matched the crop code.
	CropName    sql.NullString
	PricePerTon decimal.NullDecimal

	PricePerKg    decimal.NullDecimal
	RevenueZAR    decimal.NullDecimal
	LaborCostZAR  decimal.Decimal
	LogisticsCost decimal.Decimal
	ProfitZAR     decimal.NullDecimal
}

// Priced reports whether the join found a price row.
func (r EnrichedRecord) Priced() bool { return r.PricePerTon.Valid }

// FactInput is the final projection of the transform stage: natural keys
// plus warehouse measures.
type FactInput struct {
	HarvestID           string
	Date                string
	FarmID              string
	CropCode            string
	QuantityHarvestedKg decimal.Decimal
	SpoilageKg          decimal.Decimal
	LaborCostZAR        decimal.Decimal
	LogisticsCostZAR    decimal.Decimal
	RevenueZAR          decimal.NullDecimal
	ProfitZAR           decimal.NullDecimal
}

// FactRow is one warehouse-bound row of fact_harvest_yield.
type FactRow struct {
	DateID              int64
	CropID              sql.Null[int64]
	FarmKey             sql.Null[int64]
	QuantityHarvestedKg decimal.Decimal
	SpoilageKg          decimal.Decimal
	LaborCostZAR        decimal.Decimal
	LogisticsCostZAR    decimal.Decimal
	RevenueZAR          decimal.NullDecimal
	ProfitZAR           decimal.NullDecimal
}

// Values returns the row in FactColumns order for parameter binding.
func (f FactRow) Values() []any {
	return []any{
		f.DateID,
		f.CropID,
		f.FarmKey,
		f.QuantityHarvestedKg,
		f.SpoilageKg,
		f.LaborCostZAR,
		f.LogisticsCostZAR,
		f.RevenueZAR,
		f.ProfitZAR,
	}
}

// DistinctDateIDs returns the distinct date_id values of rows in first-seen order.
func DistinctDateIDs(rows []FactRow) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, r := range rows {
		if _, ok := seen[r.DateID]; ok {
			continue
		}
		seen[r.DateID] = struct{}{}
		ids = append(ids, r.DateID)
	}
	return ids
}

// ReplaceOptions tunes a partition replace.
type ReplaceOptions struct {
	// EnsureDates inserts missing dim_date rows for the replaced dates
	// inside the same transaction.
	EnsureDates bool
	// BatchSize caps the number of rows per INSERT statement.
	BatchSize int
}

// ReplaceResult reports what a partition replace changed.
type ReplaceResult struct {
	DateIDs  []int64
	Purged   int64
	Inserted int64
}

// FactView is a loaded fact row joined back to its natural keys.
type FactView struct {
	DateID              int64
	CropCode            string
	CropName            string
	FarmID              string
	QuantityHarvestedKg decimal.Decimal
	SpoilageKg          decimal.Decimal
	LaborCostZAR        decimal.Decimal
	LogisticsCostZAR    decimal.Decimal
	RevenueZAR          decimal.NullDecimal
	ProfitZAR           decimal.NullDecimal
}
