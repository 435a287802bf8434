// Package adapter provides the warehouse access contract for the AgriFlow
// loader and the shared database/sql implementation behind it.
//
// Concrete adapters live in pkg/adapters/ subdirectories and register
// themselves with the registry in their init() functions.
package adapter

import (
	"context"

	"github.com/leapstack-labs/agriflow/pkg/core"
)

// Config is an alias for core.AdapterConfig.
type Config = core.AdapterConfig

// DimensionReader is the read contract consumed by key resolution.
type DimensionReader interface {
	// CropKeys maps crop_code to crop_id for every dim_crop row.
	CropKeys(ctx context.Context) (map[string]int64, error)

	// CurrentFarmKeys maps farm_id to farm_key, restricted to is_current rows.
	CurrentFarmKeys(ctx context.Context) (map[string]int64, error)
}

// FactWriter is the write contract used by the idempotent loader.
type FactWriter interface {
	// ReplacePartitions deletes every fact row whose date_id is in dateIDs and
	// inserts rows, as one transaction.
	ReplacePartitions(ctx context.Context, dateIDs []int64, rows []core.FactRow, opts core.ReplaceOptions) (core.ReplaceResult, error)
}

// FactReader reads loaded facts back for reporting.
type FactReader interface {
	// ReadFacts returns fact rows with from <= date_id <= to, joined to their
	// natural keys.
	ReadFacts(ctx context.Context, from, to int64) ([]core.FactView, error)
}

// Adapter defines the interface that all warehouse adapters must implement.
type Adapter interface {
	DimensionReader
	FactWriter
	FactReader

	// Connect establishes a connection to the warehouse using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the connection and releases resources.
	Close() error

	// DialectName returns the SQL dialect of the warehouse.
	DialectName() string

	// InitSchema creates the dimension and fact tables if they do not exist.
	InitSchema(ctx context.Context) error

	// SeedDimensions bootstraps dim_crop and dim_farm from a catalog. Farms
	// whose attributes changed get a new current version.
	SeedDimensions(ctx context.Context, catalog core.DimensionCatalog) (core.SeedResult, error)

	// FarmHistory returns every dim_farm version.
	FarmHistory(ctx context.Context) ([]core.FarmVersion, error)
}
