// Package resolve maps natural keys of fact inputs to warehouse surrogate keys.
package resolve

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/agriflow/pkg/adapter"
	"github.com/leapstack-labs/agriflow/pkg/core"
	"golang.org/x/sync/errgroup"
)

var errBadDate = errors.New("not a calendar date")

// DateID turns a date literal such as 2026-02-17, 2026/02/17 or 2026.02.17
// into the integer key 20260217.
func DateID(date string) (int64, error) {
	digits := strings.NewReplacer("-", "", "/", "", ".", "").Replace(strings.TrimSpace(date))
	if len(digits) != 8 {
		return 0, fmt.Errorf("%q: %w", date, errBadDate)
	}
	if _, err := time.Parse("20060102", digits); err != nil {
		return 0, fmt.Errorf("%q: %w", date, errBadDate)
	}
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", date, errBadDate)
	}
	return id, nil
}

// Key is the outcome of one surrogate key lookup.
type Key struct {
	ID      int64
	Natural string
	OK      bool
}

// Null returns the key as a nullable column value.
func (k Key) Null() sql.Null[int64] {
	return sql.Null[int64]{V: k.ID, Valid: k.OK}
}

// Lookup is a snapshot of the crop and current farm dimensions.
type Lookup struct {
	Crops map[string]int64
	Farms map[string]int64
}

// Crop resolves a crop_code.
func (l *Lookup) Crop(code string) Key {
	id, ok := l.Crops[code]
	return Key{ID: id, Natural: code, OK: ok}
}

// Farm resolves a farm_id to its current version.
func (l *Lookup) Farm(farmID string) Key {
	key, ok := l.Farms[farmID]
	return Key{ID: key, Natural: farmID, OK: ok}
}

// Resolved is one fact with its resolved keys.
type Resolved struct {
	Input core.FactInput
	Row   core.FactRow
	Crop  Key
	Farm  Key
}

// Complete reports whether every dimension key resolved.
func (r Resolved) Complete() bool { return r.Crop.OK && r.Farm.OK }

// Result is the output of Resolve.
type Result struct {
	Rows       []Resolved
	Unresolved []core.UnresolvedKey
}

// AllRows returns every fact row; unresolved keys are null.
func (r Result) AllRows() []core.FactRow {
	rows := make([]core.FactRow, len(r.Rows))
	for i, rr := range r.Rows {
		rows[i] = rr.Row
	}
	return rows
}

// CompleteRows returns the fact rows whose keys all resolved.
func (r Result) CompleteRows() []core.FactRow {
	rows := make([]core.FactRow, 0, len(r.Rows))
	for _, rr := range r.Rows {
		if rr.Complete() {
			rows = append(rows, rr.Row)
		}
	}
	return rows
}

// Resolver resolves fact inputs against the warehouse dimensions.
type Resolver struct {
	reader adapter.DimensionReader
	logger *slog.Logger
}

// New creates a Resolver reading from reader.
func New(reader adapter.DimensionReader, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{reader: reader, logger: logger}
}

// Load reads dim_crop and the current dim_farm rows concurrently.
func (r *Resolver) Load(ctx context.Context) (*Lookup, error) {
	var l Lookup
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		crops, err := r.reader.CropKeys(gctx)
		if err != nil {
			return &core.UnresolvedKeyError{Dimension: core.DimCrop, Err: err}
		}
		l.Crops = crops
		return nil
	})
	g.Go(func() error {
		farms, err := r.reader.CurrentFarmKeys(gctx)
		if err != nil {
			return &core.UnresolvedKeyError{Dimension: core.DimFarm, Err: err}
		}
		l.Farms = farms
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Resolve loads the dimensions and resolves every fact. Missing crop or farm
// matches are reported in Result.Unresolved; only a failed dimension read or
// an invalid date is an error.
func (r *Resolver) Resolve(ctx context.Context, facts []core.FactInput) (Result, error) {
	if len(facts) == 0 {
		return Result{}, nil
	}
	lookup, err := r.Load(ctx)
	if err != nil {
		return Result{}, err
	}
	res, err := ResolveWith(lookup, facts)
	if err != nil {
		return res, err
	}
	if len(res.Unresolved) > 0 {
		r.logger.Warn("unresolved dimension keys", slog.Int("count", len(res.Unresolved)))
	}
	return res, nil
}

// ResolveWith resolves facts against an already loaded lookup.
func ResolveWith(lookup *Lookup, facts []core.FactInput) (Result, error) {
	res := Result{Rows: make([]Resolved, 0, len(facts))}
	for _, f := range facts {
		dateID, err := DateID(f.Date)
		if err != nil {
			return res, fmt.Errorf("harvest %s: %w", f.HarvestID, err)
		}
		crop := lookup.Crop(f.CropCode)
		farm := lookup.Farm(f.FarmID)

		if !crop.OK {
			res.Unresolved = append(res.Unresolved, core.UnresolvedKey{
				HarvestID: f.HarvestID, Date: f.Date, Dimension: core.DimCrop, NaturalKey: f.CropCode,
			})
		}
		if !farm.OK {
			res.Unresolved = append(res.Unresolved, core.UnresolvedKey{
				HarvestID: f.HarvestID, Date: f.Date, Dimension: core.DimFarm, NaturalKey: f.FarmID,
			})
		}

		res.Rows = append(res.Rows, Resolved{
			Input: f,
			Crop:  crop,
			Farm:  farm,
			Row: core.FactRow{
				DateID:              dateID,
				CropID:              crop.Null(),
				FarmKey:             farm.Null(),
				QuantityHarvestedKg: f.QuantityHarvestedKg,
				SpoilageKg:          f.SpoilageKg,
				LaborCostZAR:        f.LaborCostZAR,
				LogisticsCostZAR:    f.LogisticsCostZAR,
				RevenueZAR:          f.RevenueZAR,
				ProfitZAR:           f.ProfitZAR,
			},
		})
	}
	return res, nil
}
