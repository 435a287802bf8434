package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/leapstack-labs/agriflow/internal/testutil"
	"github.com/leapstack-labs/agriflow/pkg/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDims struct {
	crops   map[string]int64
	farms   map[string]int64
	cropErr error
	farmErr error
}

func (f *fakeDims) CropKeys(context.Context) (map[string]int64, error) {
	return f.crops, f.cropErr
}

func (f *fakeDims) CurrentFarmKeys(context.Context) (map[string]int64, error) {
	return f.farms, f.farmErr
}

func fact(id, date, farm, crop string) core.FactInput {
	return core.FactInput{
		HarvestID:           id,
		Date:                date,
		FarmID:              farm,
		CropCode:            crop,
		QuantityHarvestedKg: decimal.NewFromInt(1000),
		LaborCostZAR:        decimal.RequireFromString("150.00"),
		LogisticsCostZAR:    decimal.RequireFromString("2500.00"),
	}
}

func TestDateID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "2026-02-17", want: 20260217},
		{in: "2026/02/17", want: 20260217},
		{in: "2026.02.17", want: 20260217},
		{in: "20260217", want: 20260217},
		{in: " 2026-02-17 ", want: 20260217},
		{in: "2026-2-17", wantErr: true},
		{in: "2026-02-30", wantErr: true},
		{in: "17/02/2026x", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := DateID(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, errBadDate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	dims := &fakeDims{
		crops: map[string]int64{"MZ-YEL": 1, "WH-DUR": 2},
		farms: map[string]int64{"F001": 10, "F002": 12},
	}
	r := New(dims, testutil.NewTestLogger(t))

	res, err := r.Resolve(context.Background(), []core.FactInput{
		fact("H-1", "2026-02-17", "F001", "MZ-YEL"),
		fact("H-2", "2026-02-17", "F404", "WH-DUR"),
		fact("H-3", "2026-02-18", "F002", "XX-UNK"),
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)

	first := res.Rows[0]
	assert.True(t, first.Complete())
	assert.Equal(t, int64(20260217), first.Row.DateID)
	assert.Equal(t, int64(1), first.Row.CropID.V)
	assert.Equal(t, int64(10), first.Row.FarmKey.V)
	assert.True(t, first.Input.LaborCostZAR.Equal(first.Row.LaborCostZAR))

	assert.False(t, res.Rows[1].Row.FarmKey.Valid)
	assert.True(t, res.Rows[1].Row.CropID.Valid)
	assert.False(t, res.Rows[2].Row.CropID.Valid)

	assert.Equal(t, []core.UnresolvedKey{
		{HarvestID: "H-2", Date: "2026-02-17", Dimension: core.DimFarm, NaturalKey: "F404"},
		{HarvestID: "H-3", Date: "2026-02-18", Dimension: core.DimCrop, NaturalKey: "XX-UNK"},
	}, res.Unresolved)

	assert.Len(t, res.AllRows(), 3)
	complete := res.CompleteRows()
	require.Len(t, complete, 1)
	assert.Equal(t, int64(1), complete[0].CropID.V)
}

func TestResolver_EmptyInputSkipsDimensions(t *testing.T) {
	dims := &fakeDims{cropErr: errors.New("unreachable")}
	res, err := New(dims, nil).Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

func TestResolver_DimensionUnreachable(t *testing.T) {
	tests := []struct {
		name string
		dims *fakeDims
		want string
	}{
		{"crop", &fakeDims{cropErr: assertErr, farms: map[string]int64{}}, core.DimCrop},
		{"farm", &fakeDims{crops: map[string]int64{}, farmErr: assertErr}, core.DimFarm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.dims, nil).Resolve(context.Background(), []core.FactInput{fact("H-1", "2026-02-17", "F001", "MZ-YEL")})
			var ue *core.UnresolvedKeyError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, tt.want, ue.Dimension)
			require.ErrorIs(t, err, assertErr)
		})
	}
}

var assertErr = errors.New("connection refused")

func TestResolveWith_BadDate(t *testing.T) {
	_, err := ResolveWith(&Lookup{}, []core.FactInput{fact("H-9", "17 Feb", "F001", "MZ-YEL")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "H-9")
}
