package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leapstack-labs/agriflow/pkg/core"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveRun(t *testing.T) {
	m := New()
	finished := time.Date(2026, 2, 17, 18, 0, 0, 0, time.UTC)

	m.ObserveRun(core.RunStatusCompleted, core.RunStats{Extracted: 10, Dropped: 2, Loaded: 8, Purged: 3}, finished)
	m.ObserveRun(core.RunStatusFailed, core.RunStats{Extracted: 5}, finished.Add(time.Hour))

	assert.InDelta(t, 15, testutil.ToFloat64(m.rows.WithLabelValues(RowsExtracted)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.rows.WithLabelValues(RowsDropped)), 0)
	assert.InDelta(t, 8, testutil.ToFloat64(m.rows.WithLabelValues(RowsLoaded)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues("completed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues("failed")), 0)
	assert.InDelta(t, float64(finished.Unix()), testutil.ToFloat64(m.lastSuccess), 0, "failed runs do not move the success timestamp")
}

func TestMetrics_ObserveStage(t *testing.T) {
	m := New()
	m.ObserveStage("load", 120*time.Millisecond)
	m.ObserveStage("load", 80*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))
}

func TestMetrics_NilIsNoOp(t *testing.T) {
	var m *Metrics
	m.ObserveStage("extract", time.Second)
	m.ObserveRun(core.RunStatusCompleted, core.RunStats{}, time.Now())
	assert.NoError(t, m.Push(context.Background(), "http://unused", "job"))
}

func TestMetrics_Push(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.ObserveRun(core.RunStatusCompleted, core.RunStats{Loaded: 1}, time.Now())

	require.NoError(t, m.Push(context.Background(), srv.URL, ""))
	assert.Equal(t, "/metrics/job/agriflow", gotPath)

	assert.NoError(t, New().Push(context.Background(), "", "agriflow"), "no url disables push")
}

func TestMetrics_PushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL, "agriflow")
	assert.ErrorContains(t, err, "failed to push metrics")
}
