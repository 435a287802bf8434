// Package core defines the shared language of the AgriFlow loader.
//
// This package contains:
//   - Staging records (HarvestRecord, MarketPriceRecord and their batches)
//   - Pipeline relations (EnrichedRecord, FactInput, FactRow)
//   - Reference dimensions (Crop, Farm, DimensionCatalog)
//   - Run bookkeeping (Run, RunStats, UnresolvedKey)
//   - Typed errors shared by every stage
//   - Warehouse connection settings (AdapterConfig, TargetConfig)
//
// The Golden Rule: pkg/core imports ONLY shopspring/decimal and stdlib.
// All other packages depend on core, not the reverse.
package core
