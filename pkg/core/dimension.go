package core

import "time"

// Crop is a dim_crop entry in the reference catalog.
type Crop struct {
	Code    string `yaml:"code"`
	Name    string `yaml:"name"`
	Variety string `yaml:"variety"`
}

// Farm is a dim_farm entity in the reference catalog. The warehouse keeps
// one row per version; exactly one version is current.
type Farm struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Manager string `yaml:"manager"`
}

// FarmVersion is one row of the type 2 dim_farm history.
type FarmVersion struct {
	FarmKey   int64
	FarmID    string
	Name      string
	Manager   string
	IsCurrent bool
	ValidFrom time.Time
	ValidTo   *time.Time
}

// DimensionCatalog is the reference data used to bootstrap dim_crop and dim_farm.
type DimensionCatalog struct {
	Crops []Crop `yaml:"crops"`
	Farms []Farm `yaml:"farms"`
}

// SeedResult reports what a dimension bootstrap changed.
type SeedResult struct {
	CropsInserted  int `json:"crops_inserted"`
	FarmsInserted  int `json:"farms_inserted"`
	FarmsVersioned int `json:"farms_versioned"`
}

// Dimension names used in key resolution and error reporting.
const (
	DimCrop = "dim_crop"
	DimFarm = "dim_farm"
	DimDate = "dim_date"
)
