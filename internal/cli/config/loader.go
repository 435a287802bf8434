package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/leapstack-labs/agriflow/pkg/adapter"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every configuration environment variable. Nested keys
// use a double underscore: AGRIFLOW_TARGET__PASSWORD sets target.password.
const EnvPrefix = "AGRIFLOW_"

type (
	loggerKey struct{}
	configKey struct{}
)

// flagKeys maps flag names whose config key differs from the snake_case name.
var flagKeys = map[string]string{
	"state":       "state_path",
	"staging-dir": "staging.dir",
	"policy":      "pipeline.unresolved_keys",
	"push-url":    "metrics.push_url",
	"database":    "target.database",
}

// selectorFlags choose what to load rather than carrying config values.
var selectorFlags = map[string]bool{
	"config": true,
	"target": true,
}

// findConfigFile returns explicit, or agriflow.yaml / agriflow.yml in dir.
func findConfigFile(explicit, dir string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"agriflow.yaml", "agriflow.yml"} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func defaults() map[string]any {
	return map[string]any{
		"state_path":                     DefaultStateFile,
		"environment":                    DefaultEnv,
		"verbose":                        false,
		"log_format":                     DefaultLogFormat,
		"output":                         DefaultOutput,
		"target.type":                    DefaultTargetType,
		"staging.driver":                 DefaultStagingKind,
		"staging.dir":                    DefaultStagingDir,
		"pipeline.unresolved_keys":       DefaultPolicy,
		"pipeline.strict_prices":         true,
		"pipeline.ensure_date_dimension": true,
		"pipeline.insert_batch_size":     0,
		"metrics.job":                    DefaultMetricsJob,
	}
}

// Load reads the configuration. cfgFile may be empty to search the working
// directory; target selects an entry of environments (empty uses the
// environment key); flags may be nil.
func Load(cfgFile, target string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	cwd, _ := os.Getwd()
	used := findConfigFile(cfgFile, cwd)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			// Only load flags that were explicitly set
			if !f.Changed || selectorFlags[f.Name] {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ConfigFile = used

	envName := cfg.Environment
	if target != "" {
		envName = target
		cfg.Environment = target
	}
	if envCfg, ok := cfg.Environments[envName]; ok {
		if envCfg.Target != nil {
			cfg.Target = MergeTargetConfig(cfg.Target, envCfg.Target)
		}
		if envCfg.Staging != nil {
			cfg.Staging = mergeStaging(cfg.Staging, *envCfg.Staging)
		}
	} else if target != "" {
		return nil, fmt.Errorf("unknown target %q: not defined under environments", target)
	}

	if cfg.Target == nil {
		cfg.Target = &TargetConfig{Type: DefaultTargetType}
	}
	ApplyTargetDefaults(cfg.Target)
	expandTargetEnvVars(cfg.Target)
	cfg.Staging.S3.AccessKeyID = expandEnvVars(cfg.Staging.S3.AccessKeyID)
	cfg.Staging.S3.SecretAccessKey = expandEnvVars(cfg.Staging.S3.SecretAccessKey)

	// Relative paths in a config file are relative to that file.
	if used != "" {
		base := filepath.Dir(used)
		if !flagChanged(flags, "state") {
			cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, base)
		}
		if !flagChanged(flags, "staging-dir") {
			cfg.Staging.Dir = resolvePathRelativeTo(cfg.Staging.Dir, base)
		}
		if isFileTarget(cfg.Target.Type) && !flagChanged(flags, "database") {
			cfg.Target.Database = resolvePathRelativeTo(cfg.Target.Database, base)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func flagChanged(flags *pflag.FlagSet, name string) bool {
	if flags == nil {
		return false
	}
	f := flags.Lookup(name)
	return f != nil && f.Changed
}

func isFileTarget(typ string) bool {
	switch strings.ToLower(typ) {
	case "sqlite", "duckdb":
		return true
	}
	return false
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, in-memory or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ApplyTargetDefaults fills in per-type defaults.
func ApplyTargetDefaults(t *TargetConfig) {
	if t == nil {
		return
	}
	t.Type = adapter.CanonicalName(t.Type)
	switch t.Type {
	case "postgres":
		if t.Port == 0 {
			t.Port = 5432
		}
		if t.Schema == "" {
			t.Schema = "public"
		}
	case "sqlite", "duckdb":
		if t.Database == "" {
			t.Database = DefaultWarehouse
		}
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// expandTargetEnvVars expands environment variables in sensitive target fields.
func expandTargetEnvVars(t *TargetConfig) {
	if t == nil {
		return
	}
	t.Password = expandEnvVars(t.Password)
	t.User = expandEnvVars(t.User)
	t.Host = expandEnvVars(t.Host)
	t.Database = expandEnvVars(t.Database)
}

// MergeTargetConfig merges two target configs, with override taking precedence.
func MergeTargetConfig(base, override *TargetConfig) *TargetConfig {
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}

	merged := *base
	merged.Options = make(map[string]string, len(base.Options)+len(override.Options))
	merged.Params = make(map[string]any, len(base.Params)+len(override.Params))
	maps.Copy(merged.Options, base.Options)
	maps.Copy(merged.Params, base.Params)

	if override.Type != "" {
		merged.Type = override.Type
	}
	if override.Database != "" {
		merged.Database = override.Database
	}
	if override.Host != "" {
		merged.Host = override.Host
	}
	if override.Port != 0 {
		merged.Port = override.Port
	}
	if override.User != "" {
		merged.User = override.User
	}
	if override.Password != "" {
		merged.Password = override.Password
	}
	if override.Schema != "" {
		merged.Schema = override.Schema
	}
	if override.MaxConns != 0 {
		merged.MaxConns = override.MaxConns
	}
	if override.MinConns != 0 {
		merged.MinConns = override.MinConns
	}
	if override.DialTimeout != 0 {
		merged.DialTimeout = override.DialTimeout
	}
	maps.Copy(merged.Options, override.Options)
	maps.Copy(merged.Params, override.Params)

	return &merged
}

func mergeStaging(base, override StagingConfig) StagingConfig {
	if override.Driver != "" {
		base.Driver = override.Driver
	}
	if override.Dir != "" {
		base.Dir = override.Dir
	}
	s3 := override.S3
	if s3.Bucket != "" {
		base.S3.Bucket = s3.Bucket
	}
	if s3.Region != "" {
		base.S3.Region = s3.Region
	}
	if s3.Endpoint != "" {
		base.S3.Endpoint = s3.Endpoint
	}
	if s3.Prefix != "" {
		base.S3.Prefix = s3.Prefix
	}
	if s3.PathStyle {
		base.S3.PathStyle = true
	}
	if s3.AccessKeyID != "" {
		base.S3.AccessKeyID = s3.AccessKeyID
		base.S3.SecretAccessKey = s3.SecretAccessKey
	}
	return base
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// WithConfig stores cfg in ctx.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from the command context, or nil.
func FromContext(ctx context.Context) *Config {
	c, _ := ctx.Value(configKey{}).(*Config)
	return c
}

// NewLogger builds the CLI logger writing to w.
func NewLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
