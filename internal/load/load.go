// Package load replaces warehouse fact partitions idempotently.
package load

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/leapstack-labs/agriflow/pkg/adapter"
	"github.com/leapstack-labs/agriflow/pkg/core"
)

// Loader writes fact rows by replacing every date partition they touch.
// Loading the same rows twice leaves the warehouse as loading them once.
type Loader struct {
	writer adapter.FactWriter
	opts   core.ReplaceOptions
	logger *slog.Logger
}

// New creates a Loader on writer.
func New(writer adapter.FactWriter, opts core.ReplaceOptions, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{writer: writer, opts: opts, logger: logger}
}

// Load replaces the partitions of the distinct date_ids in rows.
func (l *Loader) Load(ctx context.Context, rows []core.FactRow) (core.ReplaceResult, error) {
	return l.Replace(ctx, core.DistinctDateIDs(rows), rows)
}

// Replace purges dateIDs and inserts rows in one unit. dateIDs may name
// partitions with no rows, which are left empty. An empty dateIDs is a no-op.
func (l *Loader) Replace(ctx context.Context, dateIDs []int64, rows []core.FactRow) (core.ReplaceResult, error) {
	if len(dateIDs) == 0 {
		l.logger.Debug("nothing to load")
		return core.ReplaceResult{}, nil
	}

	ids := slices.Clone(dateIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	start := time.Now()
	res, err := l.writer.ReplacePartitions(ctx, ids, rows, l.opts)
	if err != nil {
		l.logger.Error("load failed", slog.Any("date_ids", ids), slog.Any("error", err))
		return res, err
	}

	l.logger.Info("loaded facts",
		slog.Any("date_ids", ids),
		slog.Int64("purged", res.Purged),
		slog.Int64("inserted", res.Inserted),
		slog.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}
