// Package metrics exposes run outcomes and the latest verdict to Prometheus.
package metrics

import (
	"time"

	"ZakatSentinel/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Runs            *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	SourceLatency   *prometheus.HistogramVec
	Streak          prometheus.Gauge
	Balance         prometheus.Gauge
	Threshold       prometheus.Gauge
	LevyDue         prometheus.Gauge
	ThresholdSource *prometheus.GaugeVec
	LastSuccess     prometheus.Gauge
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zakat_runs_total",
			Help: "Monitoring runs by outcome",
		}, []string{"outcome"}), // outcome: "ok", "collect_failed", "load_failed", "save_failed", "busy"

		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "zakat_run_duration_seconds",
			Help:    "Duration of a full monitoring run",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		SourceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zakat_source_fetch_duration_seconds",
			Help:    "Duration of balance collection",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"group"}),

		Streak: f.NewGauge(prometheus.GaugeOpts{
			Name: "zakat_consecutive_months_above",
			Help: "Current run of consecutive lunar months above nisab",
		}),
		Balance: f.NewGauge(prometheus.GaugeOpts{
			Name: "zakat_total_balance",
			Help: "Combined balance of the latest observation",
		}),
		Threshold: f.NewGauge(prometheus.GaugeOpts{
			Name: "zakat_nisab_threshold",
			Help: "Nisab value used in the latest run",
		}),
		LevyDue: f.NewGauge(prometheus.GaugeOpts{
			Name: "zakat_levy_due",
			Help: "1 when zakat is due, else 0",
		}),
		ThresholdSource: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zakat_nisab_provenance",
			Help: "1 for the provenance of the latest nisab value",
		}, []string{"provenance"}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "zakat_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		}),
	}
}

// IncrementRun records a run outcome.
func (m *Metrics) IncrementRun(outcome string) {
	if m != nil {
		m.Runs.WithLabelValues(outcome).Inc()
	}
}

// ObserveRunDuration records the total run duration.
func (m *Metrics) ObserveRunDuration(d time.Duration) {
	if m != nil {
		m.RunDuration.Observe(d.Seconds())
	}
}

// ObserveCollect records how long collecting a group's balances took.
func (m *Metrics) ObserveCollect(group string, d time.Duration) {
	if m != nil {
		m.SourceLatency.WithLabelValues(group).Observe(d.Seconds())
	}
}

// SetVerdict publishes the latest verdict and threshold.
func (m *Metrics) SetVerdict(v model.Verdict, t model.ThresholdSnapshot, at time.Time) {
	if m == nil {
		return
	}
	m.Streak.Set(float64(v.ConsecutiveMonthsAbove))
	m.Balance.Set(v.TotalBalance.InexactFloat64())
	m.Threshold.Set(t.Value.InexactFloat64())
	if v.LevyDue {
		m.LevyDue.Set(1)
	} else {
		m.LevyDue.Set(0)
	}
	for _, p := range []model.Provenance{model.ProvenanceFetched, model.ProvenanceFallback} {
		val := 0.0
		if p == t.Provenance {
			val = 1
		}
		m.ThresholdSource.WithLabelValues(string(p)).Set(val)
	}
	m.LastSuccess.Set(float64(at.Unix()))
}
