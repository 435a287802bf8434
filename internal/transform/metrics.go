package transform

import (
	"github.com/leapstack-labs/agriflow/pkg/core"
	"github.com/shopspring/decimal"
)

// Fixed cost rates in ZAR.
var (
	LaborRatePerHour   = decimal.RequireFromString("150.00")
	LogisticsRatePerKg = decimal.RequireFromString("2.50")
)

// MoneyPlaces is the number of decimal places kept for ZAR amounts.
const MoneyPlaces = 2

// Calculate derives price per kg, revenue, labor and logistics cost and
// profit for each record. Every money amount is rounded half to even at the
// step it is produced. Records without a price keep null revenue and profit.
func Calculate(records []core.EnrichedRecord) []core.EnrichedRecord {
	out := make([]core.EnrichedRecord, len(records))
	for i, r := range records {
		r.LaborCostZAR = r.LaborHours.Mul(LaborRatePerHour).RoundBank(MoneyPlaces)
		r.LogisticsCost = r.QtyHarvestedKg.Mul(LogisticsRatePerKg).RoundBank(MoneyPlaces)

		if r.PricePerTon.Valid {
			perKg := r.PricePerTon.Decimal.Shift(-3)
			revenue := r.QtyHarvestedKg.Sub(r.SpoilageKg).Mul(perKg).RoundBank(MoneyPlaces)
			profit := revenue.Sub(r.LaborCostZAR.Add(r.LogisticsCost)).RoundBank(MoneyPlaces)

			r.PricePerKg = decimal.NewNullDecimal(perKg)
			r.RevenueZAR = decimal.NewNullDecimal(revenue)
			r.ProfitZAR = decimal.NewNullDecimal(profit)
		} else {
			r.PricePerKg = decimal.NullDecimal{}
			r.RevenueZAR = decimal.NullDecimal{}
			r.ProfitZAR = decimal.NullDecimal{}
		}
		out[i] = r
	}
	return out
}
