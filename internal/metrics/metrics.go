// Package metrics records pipeline counters on a private Prometheus registry
// and pushes them to a Pushgateway at the end of a run.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/leapstack-labs/agriflow/pkg/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Row counter labels.
const (
	RowsExtracted   = "extracted"
	RowsDropped     = "dropped"
	RowsUnpriced    = "unpriced"
	RowsUnresolved  = "unresolved"
	RowsQuarantined = "quarantined"
	RowsPurged      = "purged"
	RowsLoaded      = "loaded"
)

// Metrics holds the pipeline collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	rows          *prometheus.CounterVec
	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	lastSuccess   prometheus.Gauge
}

// New registers the pipeline collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		rows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agriflow",
			Name:      "rows_total",
			Help:      "Harvest rows by pipeline outcome.",
		}, []string{"outcome"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agriflow",
			Name:      "runs_total",
			Help:      "Pipeline runs by final status.",
		}, []string{"status"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agriflow",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~41s
		}, []string{"stage"}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "agriflow",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed run.",
		}),
	}
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRun records the outcome and row counts of a finished run.
func (m *Metrics) ObserveRun(status core.RunStatus, stats core.RunStats, finished time.Time) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(status)).Inc()
	m.rows.WithLabelValues(RowsExtracted).Add(float64(stats.Extracted))
	m.rows.WithLabelValues(RowsDropped).Add(float64(stats.Dropped))
	m.rows.WithLabelValues(RowsUnpriced).Add(float64(stats.Unpriced))
	m.rows.WithLabelValues(RowsUnresolved).Add(float64(stats.Unresolved))
	m.rows.WithLabelValues(RowsQuarantined).Add(float64(stats.Quarantined))
	m.rows.WithLabelValues(RowsPurged).Add(float64(stats.Purged))
	m.rows.WithLabelValues(RowsLoaded).Add(float64(stats.Loaded))
	if status == core.RunStatusCompleted {
		m.lastSuccess.Set(float64(finished.Unix()))
	}
}

// Push sends the registry to a Pushgateway, replacing the job's metrics.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if job == "" {
		job = "agriflow"
	}
	if err := push.New(url, job).Gatherer(m.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
