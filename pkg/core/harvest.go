package core

import "github.com/shopspring/decimal"

// UnknownManager replaces an absent manager_check during cleaning.
const UnknownManager = "Unknown"

// HarvestRecord is one harvested lot on one day at one farm.
type HarvestRecord struct {
	HarvestID      string
	Date           string // ISO calendar date, e.g. 2026-02-17
	FarmID         string
	CropCode       string
	QtyHarvestedKg decimal.Decimal
	SpoilageKg     decimal.Decimal
	LaborHours     decimal.Decimal
	// ManagerCheck is nil when the operator name was absent in the source file.
	ManagerCheck *string
}

// Manager returns the manager name or the empty string when absent.
func (r HarvestRecord) Manager() string {
	if r.ManagerCheck == nil {
		return ""
	}
	return *r.ManagerCheck
}

// HarvestBatch is the harvest relation produced from one staging file.
type HarvestBatch struct {
	Source  string
	Records []HarvestRecord
}

// Len returns the number of records in the batch.
func (b HarvestBatch) Len() int { return len(b.Records) }

// Dates returns the distinct record dates in first-seen order.
func (b HarvestBatch) Dates() []string {
	seen := make(map[string]struct{}, 1)
	var dates []string
	for _, r := range b.Records {
		if _, ok := seen[r.Date]; ok {
			continue
		}
		seen[r.Date] = struct{}{}
		dates = append(dates, r.Date)
	}
	return dates
}

// MarketPriceRecord is the price quoted for a crop on the price document's date.
type MarketPriceRecord struct {
	CropCode    string
	CropName    string
	PricePerTon decimal.Decimal
	// Date is inherited from the enclosing document.
	Date string
}

// PriceBatch is the price relation produced from one staging document.
type PriceBatch struct {
	Source  string
	Date    string
	Records []MarketPriceRecord
}

// Len returns the number of price rows in the batch.
func (b PriceBatch) Len() int { return len(b.Records) }
