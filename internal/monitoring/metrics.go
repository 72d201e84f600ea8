// Package monitoring exposes reconciliation metrics and alerts on the run ledger.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ercot-nodemap/internal/model"
)

const namespace = "nodemap"

// Metrics holds the Prometheus gauges and counters for reconciliation runs.
type Metrics struct {
	Runs        *prometheus.CounterVec // labels: status={complete,cached,failed}
	RunDuration prometheus.Histogram

	// Outcome of the most recent run.
	NodesTotal          prometheus.Gauge
	Matched             prometheus.Gauge
	MatchRate           prometheus.Gauge
	MatchesByMethod     *prometheus.GaugeVec // labels: method={html_contour,kml,prefix,contains,fuzzy}
	UnmatchedNodes      prometheus.Gauge
	UnmatchedFacilities prometheus.Gauge
	ControlPoints       prometheus.Gauge
	CalibrationFallback prometheus.Gauge
	CacheHit            prometheus.Gauge
	LastRunTimestamp    prometheus.Gauge
}

// NewMetrics creates and registers all reconciliation metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Reconciliation runs by final status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a reconciliation run, cache hits included.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		NodesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes_total",
			Help:      "Settlement points in the node registry.",
		}),
		Matched: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "matched_nodes",
			Help:      "Settlement points resolved to coordinates.",
		}),
		MatchRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "match_rate",
			Help:      "Fraction of settlement points resolved to coordinates.",
		}),
		MatchesByMethod: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "matches_by_method",
			Help:      "Resolved settlement points by match method.",
		}, []string{"method"}),
		UnmatchedNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unmatched_nodes",
			Help:      "Settlement points with no coordinates.",
		}),
		UnmatchedFacilities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unmatched_facilities",
			Help:      "Facilities never referenced by a match.",
		}),
		ControlPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calibration_control_points",
			Help:      "Names present in both the pixel and direct sources.",
		}),
		CalibrationFallback: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calibration_fallback",
			Help:      "1 when the fixed fallback transform was used, 0 when fitted.",
		}),
		CacheHit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_hit",
			Help:      "1 when the last run was served from cached artifacts.",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Runs,
		m.RunDuration,
		m.NodesTotal,
		m.Matched,
		m.MatchRate,
		m.MatchesByMethod,
		m.UnmatchedNodes,
		m.UnmatchedFacilities,
		m.ControlPoints,
		m.CalibrationFallback,
		m.CacheHit,
		m.LastRunTimestamp,
	}
}

// Register adds all metrics to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return eris.Wrap(err, "monitoring: register collector")
		}
	}
	return nil
}

// ObserveRun records a finished run. Gauges describing the outcome are only
// updated when stats are known; a cache hit without a manifest keeps the
// previous values.
func (m *Metrics) ObserveRun(status model.RunStatus, stats *model.RunStats, elapsed time.Duration, finished time.Time) {
	m.Runs.WithLabelValues(string(status)).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	m.LastRunTimestamp.Set(float64(finished.Unix()))

	if status == model.RunStatusCached {
		m.CacheHit.Set(1)
	} else {
		m.CacheHit.Set(0)
	}

	if stats == nil {
		return
	}

	m.NodesTotal.Set(float64(stats.TotalNodes))
	m.Matched.Set(float64(stats.Matched))
	m.MatchRate.Set(stats.MatchRate())
	for _, method := range model.MatchMethods {
		m.MatchesByMethod.WithLabelValues(string(method)).Set(float64(stats.ByMethod[method]))
	}
	m.UnmatchedNodes.Set(float64(stats.UnmatchedNodes))
	m.UnmatchedFacilities.Set(float64(stats.UnmatchedFacilities))
	m.ControlPoints.Set(float64(stats.ControlPoints))
	if stats.Calibration == model.CalibrationFallback {
		m.CalibrationFallback.Set(1)
	} else {
		m.CalibrationFallback.Set(0)
	}
}

// WriteTextfile writes everything g gathers to path in the node_exporter
// textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return eris.Wrapf(err, "monitoring: write textfile %s", path)
	}
	return nil
}
