package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/leapstack-labs/agriflow/internal/extract"
	"github.com/leapstack-labs/agriflow/internal/metrics"
	"github.com/leapstack-labs/agriflow/internal/staging"
	"github.com/leapstack-labs/agriflow/internal/state"
	"github.com/leapstack-labs/agriflow/internal/testutil"
	"github.com/leapstack-labs/agriflow/pkg/adapter"
	"github.com/leapstack-labs/agriflow/pkg/adapters/sqlite"
	"github.com/leapstack-labs/agriflow/pkg/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = "2026-02-17"

var catalog = core.DimensionCatalog{
	Crops: []core.Crop{
		{Code: "MZ-YEL", Name: "Maize", Variety: "Yellow Dent"},
		{Code: "WH-DUR", Name: "Wheat", Variety: "Durum"},
		{Code: "SY-BEA", Name: "Soy", Variety: "High Protein"},
	},
	Farms: []core.Farm{
		{ID: "F001", Name: "Green Valley", Manager: "John Doe"},
		{ID: "F002", Name: "Highveld Agri", Manager: "Sarah Smith"},
	},
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func harvestRecords(date string) []core.HarvestRecord {
	mgr := "John Doe"
	return []core.HarvestRecord{
		{HarvestID: "h1", Date: date, FarmID: "F001", CropCode: "MZ-YEL", QtyHarvestedKg: d("1000"), SpoilageKg: d("100"), LaborHours: d("8"), ManagerCheck: &mgr},
		{HarvestID: "h2", Date: date, FarmID: "F404", CropCode: "WH-DUR", QtyHarvestedKg: d("500"), SpoilageKg: d("0"), LaborHours: d("4")},
		{HarvestID: "h3", Date: date, FarmID: "F002", CropCode: "SY-BEA", QtyHarvestedKg: d("0"), SpoilageKg: d("0"), LaborHours: d("1")},
	}
}

func priceDoc(date string) extract.PriceDocument {
	return extract.PriceDocument{Date: date, Prices: []extract.PriceQuote{
		{CropCode: "MZ-YEL", CropName: "Maize", PricePerTon: d("5000")},
		{CropCode: "WH-DUR", CropName: "Wheat", PricePerTon: d("6200")},
	}}
}

func putPair(t *testing.T, src staging.Source, date string, records []core.HarvestRecord, doc extract.PriceDocument) {
	t.Helper()
	ctx := context.Background()
	var hb, pb bytes.Buffer
	require.NoError(t, extract.WriteHarvestCSV(&hb, records))
	require.NoError(t, extract.WritePriceJSON(&pb, doc))
	require.NoError(t, src.Put(ctx, staging.HarvestFileName(date), &hb))
	require.NoError(t, src.Put(ctx, staging.PriceFileName(date), &pb))
}

type fixture struct {
	warehouse *sqlite.Adapter
	ledger    *state.SQLiteStore
	metrics   *metrics.Metrics
	src       *staging.FSSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := testutil.NewTestLogger(t)

	wh := sqlite.New(logger)
	require.NoError(t, wh.Connect(ctx, adapter.Config{Type: "sqlite", Path: ":memory:"}))
	t.Cleanup(func() { _ = wh.Close() })
	require.NoError(t, wh.InitSchema(ctx))
	_, err := wh.SeedDimensions(ctx, catalog)
	require.NoError(t, err)

	ledger := state.NewSQLiteStore(logger)
	require.NoError(t, ledger.Open(ctx, ":memory:"))
	t.Cleanup(func() { _ = ledger.Close() })

	return &fixture{warehouse: wh, ledger: ledger, metrics: metrics.New(), src: staging.NewFSSource(t.TempDir())}
}

func (f *fixture) pipeline(t *testing.T, policy Policy) *Pipeline {
	return New(f.warehouse, f.ledger, f.metrics, Config{
		Environment:  "test",
		Policy:       policy,
		StrictPrices: true,
		Replace:      core.ReplaceOptions{EnsureDates: true},
		Logger:       testutil.NewTestLogger(t),
	})
}

func (f *fixture) facts(t *testing.T) []core.FactView {
	t.Helper()
	facts, err := f.warehouse.ReadFacts(context.Background(), 20260101, 20261231)
	require.NoError(t, err)
	return facts
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicyQuarantine, false},
		{"quarantine", PolicyQuarantine, false},
		{"null", PolicyNull, false},
		{"fail", PolicyFail, false},
		{"ignore", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunAll_Quarantine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	putPair(t, f.src, day, harvestRecords(day), priceDoc(day))

	runs, err := f.pipeline(t, PolicyQuarantine).RunAll(ctx, f.src, "")
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	assert.Equal(t, core.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.Stats.Extracted)
	assert.Equal(t, 2, run.Stats.Prices)
	assert.Equal(t, 1, run.Stats.Dropped)
	assert.Equal(t, 2, run.Stats.Transformed)
	assert.Equal(t, 1, run.Stats.Unresolved)
	assert.Equal(t, 1, run.Stats.Quarantined)
	assert.Equal(t, int64(1), run.Stats.Loaded)
	assert.Equal(t, []int64{20260217}, run.Stats.DateIDs)

	facts := f.facts(t)
	require.Len(t, facts, 1)
	assert.Equal(t, "MZ-YEL", facts[0].CropCode)
	assert.True(t, d("4500").Equal(facts[0].RevenueZAR.Decimal))
	assert.True(t, d("800").Equal(facts[0].ProfitZAR.Decimal))

	q, err := f.ledger.ListQuarantine(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, q, 1)
	assert.Equal(t, "F404", q[0].NaturalKey)
	assert.Equal(t, core.DimFarm, q[0].Dimension)

	stored, err := f.ledger.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, stored.Status)
	assert.Equal(t, run.Stats.Loaded, stored.Stats.Loaded)

	mfs, err := f.metrics.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestRunPair_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	putPair(t, f.src, day, harvestRecords(day), priceDoc(day))
	p := f.pipeline(t, PolicyNull)
	pair := staging.Pair{Date: day, Harvest: staging.HarvestFileName(day), Prices: staging.PriceFileName(day)}

	first, err := p.RunPair(ctx, f.src, pair)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Stats.Loaded)
	assert.Equal(t, int64(0), first.Stats.Purged)
	before := f.facts(t)

	second, err := p.RunPair(ctx, f.src, pair)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Stats.Purged)
	assert.Equal(t, int64(2), second.Stats.Loaded)
	assert.Equal(t, before, f.facts(t))
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRunPair_NullPolicyKeepsUnresolvedRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	putPair(t, f.src, day, harvestRecords(day), priceDoc(day))

	_, err := f.pipeline(t, PolicyNull).RunAll(ctx, f.src, day)
	require.NoError(t, err)

	facts := f.facts(t)
	require.Len(t, facts, 2)
	var nullFarm int
	for _, fv := range facts {
		if fv.FarmID == "" {
			nullFarm++
		}
	}
	assert.Equal(t, 1, nullFarm)
}

func TestRunPair_FailPolicyWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	putPair(t, f.src, day, harvestRecords(day), priceDoc(day))

	runs, err := f.pipeline(t, PolicyFail).RunAll(ctx, f.src, "")
	var uerr *core.UnresolvedKeysError
	require.ErrorAs(t, err, &uerr)
	assert.Len(t, uerr.Keys, 1)
	assert.Empty(t, f.facts(t))

	require.Len(t, runs, 1)
	stored, err := f.ledger.GetRun(ctx, runs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "unresolved keys")
}

func TestRunPair_QuarantinedDatePurged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.pipeline(t, PolicyQuarantine)
	pair := staging.Pair{Date: day, Harvest: staging.HarvestFileName(day), Prices: staging.PriceFileName(day)}

	putPair(t, f.src, day, harvestRecords(day)[:1], priceDoc(day))
	_, err := p.RunPair(ctx, f.src, pair)
	require.NoError(t, err)
	require.Len(t, f.facts(t), 1)

	// A corrected file where the only row now points at an unknown farm still
	// clears the partition.
	records := harvestRecords(day)[:1]
	records[0].FarmID = "F999"
	putPair(t, f.src, day, records, priceDoc(day))
	run, err := p.RunPair(ctx, f.src, pair)
	require.NoError(t, err)
	assert.Equal(t, int64(1), run.Stats.Purged)
	assert.Empty(t, f.facts(t))
}

func TestRunPair_SchemaErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.src.Put(ctx, staging.HarvestFileName(day), bytes.NewBufferString("harvest_id,date\nh1,2026-02-17\n")))
	var pb bytes.Buffer
	require.NoError(t, extract.WritePriceJSON(&pb, priceDoc(day)))
	require.NoError(t, f.src.Put(ctx, staging.PriceFileName(day), &pb))

	_, err := f.pipeline(t, PolicyQuarantine).RunAll(ctx, f.src, "")
	var serr *core.SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Missing, "qty_harvested_kg")
	assert.Empty(t, f.facts(t))

	runs, err := f.ledger.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, core.RunStatusFailed, runs[0].Status)
}

func TestRunPair_DuplicatePricesStrict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := priceDoc(day)
	doc.Prices = append(doc.Prices, extract.PriceQuote{CropCode: "MZ-YEL", CropName: "Maize", PricePerTon: d("5100")})
	putPair(t, f.src, day, harvestRecords(day), doc)

	_, err := f.pipeline(t, PolicyQuarantine).RunAll(ctx, f.src, "")
	var derr *core.DuplicatePriceError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "MZ-YEL", derr.CropCode)
	assert.Empty(t, f.facts(t))
}

func TestRunAll_ContinuesAfterFailedPair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	putPair(t, f.src, "2026-02-17", harvestRecords("2026-02-17"), priceDoc("2026-02-17"))
	require.NoError(t, f.src.Put(ctx, staging.HarvestFileName("2026-02-18"), bytes.NewBufferString("nonsense\n")))
	require.NoError(t, f.src.Put(ctx, staging.PriceFileName("2026-02-18"), bytes.NewBufferString(`{"date":"2026-02-18","prices":[]}`)))
	putPair(t, f.src, "2026-02-19", harvestRecords("2026-02-19"), priceDoc("2026-02-19"))
	require.NoError(t, f.src.Put(ctx, staging.HarvestFileName("2026-02-20"), bytes.NewBufferString("orphan\n")))

	runs, err := f.pipeline(t, PolicyQuarantine).RunAll(ctx, f.src, "")
	require.Error(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, core.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, core.RunStatusFailed, runs[1].Status)
	assert.Equal(t, core.RunStatusCompleted, runs[2].Status)
	assert.Len(t, f.facts(t), 2)
}

func TestRunAll_NoPairs(t *testing.T) {
	f := newFixture(t)
	runs, err := f.pipeline(t, PolicyQuarantine).RunAll(context.Background(), f.src, "")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

// failingWarehouse resolves everything and fails every replace.
type failingWarehouse struct{}

func (failingWarehouse) CropKeys(context.Context) (map[string]int64, error) {
	return map[string]int64{"MZ-YEL": 1, "WH-DUR": 2}, nil
}

func (failingWarehouse) CurrentFarmKeys(context.Context) (map[string]int64, error) {
	return map[string]int64{"F001": 1, "F404": 2}, nil
}

func (failingWarehouse) ReplacePartitions(_ context.Context, dateIDs []int64, _ []core.FactRow, _ core.ReplaceOptions) (core.ReplaceResult, error) {
	return core.ReplaceResult{}, &core.LoadFailure{Stage: core.LoadStageInsert, DateIDs: dateIDs, RolledBack: true, Err: errors.New("disk full")}
}

func TestRunPair_LoadFailureWithoutLedger(t *testing.T) {
	ctx := context.Background()
	src := staging.NewFSSource(t.TempDir())
	putPair(t, src, day, harvestRecords(day), priceDoc(day))

	p := New(failingWarehouse{}, nil, nil, Config{Logger: testutil.NewTestLogger(t)})
	runs, err := p.RunAll(ctx, src, "")

	var lf *core.LoadFailure
	require.ErrorAs(t, err, &lf)
	assert.Equal(t, []int64{20260217}, lf.DateIDs)
	require.Len(t, runs, 1)
	assert.NotEmpty(t, runs[0].ID)
	assert.Equal(t, core.RunStatusFailed, runs[0].Status)
	assert.Equal(t, 2, runs[0].Stats.Transformed)
}
