package state

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/agriflow/pkg/core"
)

// Quarantine stores unresolved keys for a run in one transaction.
func (s *SQLiteStore) Quarantine(ctx context.Context, runID string, keys []core.UnresolvedKey) (int, error) {
	if s.db == nil {
		return 0, errNotOpened
	}
	if len(keys) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin quarantine: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO quarantine (run_id, harvest_id, date, dimension, natural_key, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare quarantine insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	created := formatTime(s.now())
	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, runID, k.HarvestID, k.Date, k.Dimension, k.NaturalKey, created); err != nil {
			return 0, fmt.Errorf("failed to quarantine %s %q: %w", k.Dimension, k.NaturalKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit quarantine: %w", err)
	}
	return len(keys), nil
}

// ListQuarantine returns the quarantined keys of a run in insertion order.
func (s *SQLiteStore) ListQuarantine(ctx context.Context, runID string) ([]core.QuarantinedRow, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, harvest_id, date, dimension, natural_key, created_at FROM quarantine WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quarantine: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.QuarantinedRow
	for rows.Next() {
		var (
			q       core.QuarantinedRow
			created string
		)
		if err := rows.Scan(&q.RunID, &q.HarvestID, &q.Date, &q.Dimension, &q.NaturalKey, &created); err != nil {
			return nil, fmt.Errorf("failed to scan quarantine: %w", err)
		}
		if q.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quarantine: %w", err)
	}
	return out, nil
}
