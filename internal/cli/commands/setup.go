// Package commands implements the agriflow subcommands.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/leapstack-labs/agriflow/internal/cli/config"
	"github.com/leapstack-labs/agriflow/internal/staging"
	"github.com/leapstack-labs/agriflow/internal/state"
	"github.com/leapstack-labs/agriflow/pkg/adapter"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Out    io.Writer
	// Mode is the effective output format: text or json.
	Mode string
}

// NewCommandContext collects the config and logger stored by the root command.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.FromContext(ctx)
	if cfg == nil {
		var err error
		if cfg, err = config.Load("", "", nil); err != nil {
			return nil, err
		}
	}
	out := cmd.OutOrStdout()
	return &CommandContext{
		Cfg:    cfg,
		Logger: config.GetLogger(ctx),
		Out:    out,
		Mode:   effectiveMode(cfg.OutputFormat, out),
	}, nil
}

// effectiveMode resolves auto to text on a terminal and json otherwise.
func effectiveMode(mode string, w io.Writer) string {
	if mode != config.OutputAuto && mode != "" {
		return mode
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return config.OutputText
	}
	return config.OutputJSON
}

// OpenWarehouse connects the configured warehouse adapter.
func (c *CommandContext) OpenWarehouse(ctx context.Context) (adapter.Adapter, error) {
	acfg := c.Cfg.Target.AdapterConfig()
	wh, err := adapter.NewAdapter(acfg, c.Logger)
	if err != nil {
		return nil, err
	}
	if err := wh.Connect(ctx, acfg); err != nil {
		return nil, fmt.Errorf("failed to connect to %s warehouse: %w", acfg.Type, err)
	}
	return wh, nil
}

// OpenLedger opens the run ledger, applying migrations.
func (c *CommandContext) OpenLedger(ctx context.Context) (*state.SQLiteStore, error) {
	store := state.NewSQLiteStore(c.Logger)
	if err := store.Open(ctx, c.Cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return store, nil
}

// OpenStaging returns the configured staging area.
func (c *CommandContext) OpenStaging(ctx context.Context) (staging.Source, error) {
	switch c.Cfg.Staging.Driver {
	case "s3":
		return staging.NewS3Source(ctx, c.Cfg.Staging.S3)
	default:
		return staging.NewFSSource(c.Cfg.Staging.Dir), nil
	}
}

// JSONOutput reports whether commands should print JSON.
func (c *CommandContext) JSONOutput() bool { return c.Mode == config.OutputJSON }

// JSON writes v as indented JSON.
func (c *CommandContext) JSON(v any) error {
	enc := json.NewEncoder(c.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Printf writes text output.
func (c *CommandContext) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.Out, format, args...)
}
