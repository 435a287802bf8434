// Package config loads the agriflow CLI configuration.
//
// Layering, lowest to highest precedence: built-in defaults, agriflow.yaml,
// AGRIFLOW_ environment variables, and explicitly set command-line flags.
// A selected environment's target and staging settings merge over the base.
package config

import (
	"github.com/leapstack-labs/agriflow/internal/staging"
	"github.com/leapstack-labs/agriflow/pkg/core"
)

// TargetConfig is an alias for the shared warehouse target configuration.
type TargetConfig = core.TargetConfig

// Config holds all CLI configuration options.
type Config struct {
	StatePath    string               `koanf:"state_path"`
	Environment  string               `koanf:"environment"`
	Verbose      bool                 `koanf:"verbose"`
	LogFormat    string               `koanf:"log_format"`
	OutputFormat string               `koanf:"output"`
	Staging      StagingConfig        `koanf:"staging"`
	Target       *TargetConfig        `koanf:"target"`
	Pipeline     PipelineConfig       `koanf:"pipeline"`
	Metrics      MetricsConfig        `koanf:"metrics"`
	Environments map[string]EnvConfig `koanf:"environments"`

	// ConfigFile is the file the configuration was read from, if any.
	ConfigFile string `koanf:"-"`
}

// StagingConfig locates the raw harvest and price files.
type StagingConfig struct {
	Driver string           `koanf:"driver"` // fs or s3
	Dir    string           `koanf:"dir"`
	S3     staging.S3Config `koanf:"s3"`
}

// PipelineConfig tunes the load.
type PipelineConfig struct {
	UnresolvedKeys      string `koanf:"unresolved_keys"`
	StrictPrices        bool   `koanf:"strict_prices"`
	EnsureDateDimension bool   `koanf:"ensure_date_dimension"`
	InsertBatchSize     int    `koanf:"insert_batch_size"`
}

// MetricsConfig configures the Pushgateway.
type MetricsConfig struct {
	PushURL string `koanf:"push_url"`
	Job     string `koanf:"job"`
}

// EnvConfig holds environment-specific overrides.
type EnvConfig struct {
	Target  *TargetConfig  `koanf:"target"`
	Staging *StagingConfig `koanf:"staging"`
}

// Default configuration values.
const (
	DefaultStateFile   = ".agriflow/state.db"
	DefaultWarehouse   = ".agriflow/warehouse.db"
	DefaultStagingDir  = "data/raw"
	DefaultEnv         = "dev"
	DefaultOutput      = "auto" // TTY: text, otherwise json
	DefaultLogFormat   = "text"
	DefaultTargetType  = "sqlite"
	DefaultPolicy      = "quarantine"
	DefaultMetricsJob  = "agriflow"
	DefaultStagingKind = "fs"
)

// Output formats.
const (
	OutputAuto = "auto"
	OutputText = "text"
	OutputJSON = "json"
)
