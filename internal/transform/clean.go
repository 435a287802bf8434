// Package transform turns extracted harvest and price batches into fact
// inputs: clean, join against prices, derive financial metrics, project.
package transform

import "github.com/leapstack-labs/agriflow/pkg/core"

// Clean fills an absent manager_check with core.UnknownManager and drops
// every record whose quantity is not positive. It returns the kept records
// and the number dropped. The input slice is not modified.
func Clean(records []core.HarvestRecord) ([]core.HarvestRecord, int) {
	kept := make([]core.HarvestRecord, 0, len(records))
	for _, r := range records {
		if !r.QtyHarvestedKg.IsPositive() {
			continue
		}
		if r.ManagerCheck == nil {
			unknown := core.UnknownManager
			r.ManagerCheck = &unknown
		}
		kept = append(kept, r)
	}
	return kept, len(records) - len(kept)
}
