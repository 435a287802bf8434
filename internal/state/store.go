// Package state keeps the run ledger: one row per pipeline run with its
// outcome and stage counts, plus the rows quarantined for unresolved keys.
package state

import (
	"context"

	"github.com/leapstack-labs/agriflow/pkg/core"
)

// Store is the run ledger used by the pipeline.
type Store interface {
	// CreateRun records a new running run and fills in its ID and StartedAt.
	CreateRun(ctx context.Context, run *core.Run) error

	// CompleteRun finishes a run with a final status and its stats.
	CompleteRun(ctx context.Context, id string, status core.RunStatus, stats core.RunStats, errMsg string) error

	// GetRun returns one run.
	GetRun(ctx context.Context, id string) (*core.Run, error)

	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]*core.Run, error)

	// Quarantine stores unresolved keys against a run.
	Quarantine(ctx context.Context, runID string, keys []core.UnresolvedKey) (int, error)

	// ListQuarantine returns the quarantined keys of a run.
	ListQuarantine(ctx context.Context, runID string) ([]core.QuarantinedRow, error)

	Close() error
}
