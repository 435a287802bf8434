package core

import (
	"log/slog"
	"time"
)

// RunStatus represents the status of a pipeline run.
type RunStatus string

// RunStatus values.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one invocation of the pipeline over a staging file pair.
type Run struct {
	ID          string
	Environment string
	HarvestFile string
	PriceFile   string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
	Stats       RunStats
}

// RunStats counts rows through each stage of a run.
type RunStats struct {
	Extracted   int     `json:"extracted"`
	Prices      int     `json:"prices"`
	Dropped     int     `json:"dropped"`
	Unpriced    int     `json:"unpriced"`
	Transformed int     `json:"transformed"`
	Unresolved  int     `json:"unresolved"`
	Quarantined int     `json:"quarantined"`
	Purged      int64   `json:"purged"`
	Loaded      int64   `json:"loaded"`
	DateIDs     []int64 `json:"date_ids,omitempty"`
}

// LogValue implements slog.LogValuer for structured logging.
func (s RunStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("extracted", s.Extracted),
		slog.Int("prices", s.Prices),
		slog.Int("dropped", s.Dropped),
		slog.Int("unpriced", s.Unpriced),
		slog.Int("transformed", s.Transformed),
		slog.Int("unresolved", s.Unresolved),
		slog.Int("quarantined", s.Quarantined),
		slog.Int64("purged", s.Purged),
		slog.Int64("loaded", s.Loaded),
	)
}

// UnresolvedKey is a natural key with no matching dimension row.
type UnresolvedKey struct {
	HarvestID  string
	Date       string
	Dimension  string
	NaturalKey string
}

// QuarantinedRow is an unresolved key persisted for later inspection.
type QuarantinedRow struct {
	RunID string
	UnresolvedKey
	CreatedAt time.Time
}
