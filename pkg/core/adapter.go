package core

import "time"

// AdapterConfig holds configuration for connecting to a warehouse.
type AdapterConfig struct {
	Type     string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
	Options  map[string]string
	Params   map[string]any

	// Pool settings, honoured by network adapters.
	MaxConns    int32
	MinConns    int32
	DialTimeout time.Duration
}

// TargetConfig holds warehouse target configuration as read from agriflow.yaml.
type TargetConfig struct {
	Type string `koanf:"type"` // postgres, duckdb, sqlite

	// File-based databases (DuckDB, SQLite)
	Database string `koanf:"database"` // file path or database name

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	Schema string `koanf:"schema"`

	MaxConns    int32         `koanf:"max_conns"`
	MinConns    int32         `koanf:"min_conns"`
	DialTimeout time.Duration `koanf:"dial_timeout"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`

	// Params holds adapter-specific configuration (e.g., DuckDB settings)
	Params map[string]any `koanf:"params"`
}

// AdapterConfig converts the target into connection settings.
func (t *TargetConfig) AdapterConfig() AdapterConfig {
	return AdapterConfig{
		Type:        t.Type,
		Path:        t.Database,
		Host:        t.Host,
		Port:        t.Port,
		Database:    t.Database,
		Username:    t.User,
		Password:    t.Password,
		Schema:      t.Schema,
		Options:     t.Options,
		Params:      t.Params,
		MaxConns:    t.MaxConns,
		MinConns:    t.MinConns,
		DialTimeout: t.DialTimeout,
	}
}
