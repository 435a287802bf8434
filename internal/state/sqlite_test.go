package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/agriflow/internal/testutil"
	"github.com/leapstack-labs/agriflow/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(context.Background(), ":memory:"))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_OpenMigrates(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	for _, table := range []string{"runs", "quarantine"} {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		require.NoError(t, err, "table %s", table)
		_ = rows.Close()
	}
}

func TestSQLiteStore_OpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	ctx := context.Background()

	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(ctx, path))
	require.NoError(t, store.CreateRun(ctx, &core.Run{Environment: "dev"}))
	require.NoError(t, store.Close())

	reopened := NewSQLiteStore(nil)
	require.NoError(t, reopened.Open(ctx, path))
	defer func() { _ = reopened.Close() }()

	runs, err := reopened.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)
	ctx := context.Background()

	require.ErrorIs(t, store.CreateRun(ctx, &core.Run{}), errNotOpened)
	_, err := store.ListRuns(ctx, 1)
	require.ErrorIs(t, err, errNotOpened)
	require.NoError(t, store.Close())
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	run := &core.Run{Environment: "prod", HarvestFile: "harvest_log_2026-02-17.csv", PriceFile: "market_prices_2026-02-17.json"}
	require.NoError(t, store.CreateRun(ctx, run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, core.RunStatusRunning, run.Status)

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "harvest_log_2026-02-17.csv", got.HarvestFile)
	assert.Nil(t, got.CompletedAt)

	stats := core.RunStats{Extracted: 10, Dropped: 1, Transformed: 9, Loaded: 9, Purged: 4, DateIDs: []int64{20260217}}
	require.NoError(t, store.CompleteRun(ctx, run.ID, core.RunStatusCompleted, stats, ""))

	got, err = store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.Error)
	assert.Equal(t, stats, got.Stats)
}

func TestSQLiteStore_FailedRun(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	run := &core.Run{}
	require.NoError(t, store.CreateRun(ctx, run))
	require.NoError(t, store.CompleteRun(ctx, run.ID, core.RunStatusFailed, core.RunStats{}, "load failed at insert"))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailed, got.Status)
	assert.Equal(t, "load failed at insert", got.Error)

	require.Error(t, store.CompleteRun(ctx, "missing", core.RunStatusFailed, core.RunStats{}, ""))
	_, err = store.GetRun(ctx, "missing")
	assert.ErrorContains(t, err, "run not found")
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	base := time.Date(2026, 2, 17, 6, 0, 0, 0, time.UTC)
	var ids []string
	for i := range 3 {
		store.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		run := &core.Run{Environment: "dev"}
		require.NoError(t, store.CreateRun(ctx, run))
		ids = append(ids, run.ID)
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID, "newest first")
	assert.Equal(t, ids[1], runs[1].ID)
}

func TestSQLiteStore_Quarantine(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	run := &core.Run{}
	require.NoError(t, store.CreateRun(ctx, run))

	n, err := store.Quarantine(ctx, run.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	keys := []core.UnresolvedKey{
		{HarvestID: "H-2", Date: "2026-02-17", Dimension: core.DimFarm, NaturalKey: "F404"},
		{HarvestID: "H-3", Date: "2026-02-17", Dimension: core.DimCrop, NaturalKey: "XX-UNK"},
	}
	n, err = store.Quarantine(ctx, run.ID, keys)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := store.ListQuarantine(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, keys[0], rows[0].UnresolvedKey)
	assert.Equal(t, run.ID, rows[1].RunID)
	assert.False(t, rows[1].CreatedAt.IsZero())

	_, err = store.Quarantine(ctx, "no-such-run", keys)
	require.Error(t, err, "quarantine rows reference an existing run")
}
