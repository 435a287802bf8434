package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Import adapter packages to ensure adapters are registered via init()
	_ "github.com/leapstack-labs/agriflow/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/agriflow/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/agriflow/pkg/adapters/sqlite"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agriflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("state", "", "")
	fs.String("staging-dir", "", "")
	fs.String("policy", "", "")
	fs.String("database", "", "")
	fs.String("push-url", "", "")
	fs.Bool("verbose", false, "")
	fs.String("output", "", "")
	fs.String("config", "", "")
	fs.String("target", "", "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", "", nil)
	require.NoError(t, err)

	assert.Empty(t, cfg.ConfigFile)
	assert.Equal(t, DefaultStateFile, cfg.StatePath)
	assert.Equal(t, DefaultEnv, cfg.Environment)
	assert.Equal(t, "fs", cfg.Staging.Driver)
	assert.Equal(t, DefaultStagingDir, cfg.Staging.Dir)
	assert.Equal(t, "sqlite", cfg.Target.Type)
	assert.Equal(t, DefaultWarehouse, cfg.Target.Database)
	assert.Equal(t, "quarantine", cfg.Pipeline.UnresolvedKeys)
	assert.True(t, cfg.Pipeline.StrictPrices)
	assert.True(t, cfg.Pipeline.EnsureDateDimension)
	assert.Equal(t, DefaultMetricsJob, cfg.Metrics.Job)
}

func TestLoad_FileFindsWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agriflow.yml"), []byte("environment: prod\n"), 0o600))
	t.Chdir(dir)

	cfg, err := Load("", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, filepath.Join(dir, "agriflow.yml"), cfg.ConfigFile)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
state_path: state/ledger.db
log_format: json
staging:
  dir: incoming
target:
  type: duckdb
  database: wh.duckdb
  params:
    settings:
      threads: 2
pipeline:
  unresolved_keys: fail
  strict_prices: false
  insert_batch_size: 250
metrics:
  push_url: http://pushgateway:9091
`)
	base := filepath.Dir(path)

	cfg, err := Load(path, "", nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "state/ledger.db"), cfg.StatePath)
	assert.Equal(t, filepath.Join(base, "incoming"), cfg.Staging.Dir)
	assert.Equal(t, "duckdb", cfg.Target.Type)
	assert.Equal(t, filepath.Join(base, "wh.duckdb"), cfg.Target.Database)
	assert.Contains(t, cfg.Target.Params, "settings")
	assert.Equal(t, "fail", cfg.Pipeline.UnresolvedKeys)
	assert.False(t, cfg.Pipeline.StrictPrices)
	assert.Equal(t, 250, cfg.Pipeline.InsertBatchSize)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "http://pushgateway:9091", cfg.Metrics.PushURL)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "pipeline:\n  unresolved_keys: fail\n")
	t.Setenv("AGRIFLOW_PIPELINE__UNRESOLVED_KEYS", "null")
	t.Setenv("AGRIFLOW_VERBOSE", "true")

	cfg, err := Load(path, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "null", cfg.Pipeline.UnresolvedKeys)
	assert.True(t, cfg.Verbose)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	path := writeConfig(t, "state_path: from-file.db\n")
	t.Setenv("AGRIFLOW_PIPELINE__UNRESOLVED_KEYS", "null")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--policy", "fail", "--state", "flag.db", "--database", "flag-wh.db"}))

	cfg, err := Load(path, "", fs)
	require.NoError(t, err)
	assert.Equal(t, "fail", cfg.Pipeline.UnresolvedKeys)
	assert.Equal(t, "flag.db", cfg.StatePath, "flag paths stay relative to the working directory")
	assert.Equal(t, "flag-wh.db", cfg.Target.Database)
}

func TestLoad_UnsetFlagsIgnored(t *testing.T) {
	path := writeConfig(t, "output: json\n")
	cfg, err := Load(path, "", testFlags())
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.OutputFormat)
}

func TestLoad_SelectorFlagsAreNotConfigValues(t *testing.T) {
	path := writeConfig(t, `
environments:
  prod:
    target:
      type: sqlite
      database: prod.db
`)
	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--config", path, "--target", "prod"}))

	cfg, err := Load(path, "prod", fs)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "prod.db"), cfg.Target.Database)
}

func TestLoad_EnvironmentTarget(t *testing.T) {
	t.Setenv("PG_PASSWORD", "s3cret")
	path := writeConfig(t, `
target:
  type: sqlite
  database: dev.db
staging:
  dir: raw
environments:
  prod:
    target:
      type: postgres
      host: db.internal
      user: loader
      password: ${PG_PASSWORD}
      dial_timeout: 5s
    staging:
      driver: s3
      s3:
        bucket: harvest-prod
        region: af-south-1
`)

	cfg, err := Load(path, "prod", nil)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, "postgres", cfg.Target.Type)
	assert.Equal(t, "db.internal", cfg.Target.Host)
	assert.Equal(t, 5432, cfg.Target.Port)
	assert.Equal(t, "public", cfg.Target.Schema)
	assert.Equal(t, "s3cret", cfg.Target.Password)
	assert.Equal(t, 5*time.Second, cfg.Target.DialTimeout)
	assert.Equal(t, "s3", cfg.Staging.Driver)
	assert.Equal(t, "harvest-prod", cfg.Staging.S3.Bucket)

	_, err = Load(path, "qa", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown target "qa"`)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			LogFormat:    "text",
			OutputFormat: OutputAuto,
			Staging:      StagingConfig{Driver: "fs", Dir: "raw"},
			Target:       &TargetConfig{Type: "sqlite"},
			Pipeline:     PipelineConfig{UnresolvedKeys: "quarantine"},
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		errSubstr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing target", func(c *Config) { c.Target = nil }, "target type is required"},
		{"unknown adapter", func(c *Config) { c.Target.Type = "oracle" }, "unknown adapter type"},
		{"bad policy", func(c *Config) { c.Pipeline.UnresolvedKeys = "drop" }, "unresolved key policy"},
		{"negative batch", func(c *Config) { c.Pipeline.InsertBatchSize = -1 }, "insert_batch_size"},
		{"fs without dir", func(c *Config) { c.Staging.Dir = "" }, "staging.dir"},
		{"s3 without bucket", func(c *Config) { c.Staging.Driver = "s3" }, "staging.s3.bucket"},
		{"unknown driver", func(c *Config) { c.Staging.Driver = "ftp" }, "unknown staging driver"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"bad output", func(c *Config) { c.OutputFormat = "yaml" }, "unknown output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("AGRIFLOW_TEST_HOST", "db.example.com")

	tests := []struct {
		input string
		want  string
	}{
		{"${AGRIFLOW_TEST_HOST}", "db.example.com"},
		{"host=${AGRIFLOW_TEST_HOST}:5432", "host=db.example.com:5432"},
		{"${AGRIFLOW_TEST_UNSET}", "${AGRIFLOW_TEST_UNSET}"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandEnvVars(tt.input), tt.input)
	}
}

func TestApplyTargetDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   TargetConfig
		want TargetConfig
	}{
		{"postgres alias", TargetConfig{Type: "PostgreSQL"}, TargetConfig{Type: "postgres", Port: 5432, Schema: "public"}},
		{"postgres keeps port", TargetConfig{Type: "pg", Port: 6432, Schema: "farm"}, TargetConfig{Type: "postgres", Port: 6432, Schema: "farm"}},
		{"sqlite alias", TargetConfig{Type: "sqlite3"}, TargetConfig{Type: "sqlite", Database: DefaultWarehouse}},
		{"duckdb keeps database", TargetConfig{Type: "DuckDB", Database: "wh.duckdb"}, TargetConfig{Type: "duckdb", Database: "wh.duckdb"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			ApplyTargetDefaults(&got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeTargetConfig(t *testing.T) {
	base := &TargetConfig{
		Type:     "postgres",
		Host:     "localhost",
		Port:     5432,
		User:     "dev",
		Options:  map[string]string{"sslmode": "disable", "application_name": "agriflow"},
		Params:   map[string]any{"a": 1},
		MaxConns: 4,
	}
	override := &TargetConfig{
		Host:    "prod.internal",
		Options: map[string]string{"sslmode": "require"},
		Params:  map[string]any{"b": 2},
	}

	merged := MergeTargetConfig(base, override)
	assert.Equal(t, "postgres", merged.Type)
	assert.Equal(t, "prod.internal", merged.Host)
	assert.Equal(t, "dev", merged.User)
	assert.Equal(t, int32(4), merged.MaxConns)
	assert.Equal(t, map[string]string{"sslmode": "require", "application_name": "agriflow"}, merged.Options)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, merged.Params)
	assert.Equal(t, "disable", base.Options["sslmode"], "base is not modified")

	assert.Same(t, override, MergeTargetConfig(nil, override))
	assert.Same(t, base, MergeTargetConfig(base, nil))
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, GetLogger(ctx))
	assert.Nil(t, FromContext(ctx))

	var buf bytes.Buffer
	logger := NewLogger(&buf, "json", true)
	ctx = WithLogger(ctx, logger)
	GetLogger(ctx).Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	cfg := &Config{Environment: "dev"}
	assert.Same(t, cfg, FromContext(WithConfig(ctx, cfg)))
}
