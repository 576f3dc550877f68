package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "indicator_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the indicator engine.
type Metrics struct {
	// Per-source load metrics.
	SourceLoads  *prometheus.CounterVec   // labels: source, outcome={ok,source_unavailable,schema_mismatch,no_data_parsed,error}
	RowsParsed   *prometheus.CounterVec   // labels: source
	RowsDropped  *prometheus.CounterVec   // labels: source
	LoadDuration *prometheus.HistogramVec // labels: source

	SessionLoads *prometheus.CounterVec // labels: outcome={ok,degraded,error}
	EngineReady  prometheus.Gauge

	FetchCache        *prometheus.CounterVec // labels: result={hit,miss}
	MessagesPublished prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		SourceLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_loads_total",
			Help:      "Source loads by source and outcome.",
		}, []string{"source", "outcome"}),
		RowsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_parsed_total",
			Help:      "Observations produced from source tables.",
		}, []string{"source"}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Source rows skipped as malformed or incomplete.",
		}, []string{"source"}),
		LoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Duration of a single source fetch and parse.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		SessionLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_loads_total",
			Help:      "Complete session loads by outcome.",
		}, []string{"outcome"}),
		EngineReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_ready",
			Help:      "1 once a session has been loaded, 0 before.",
		}),
		FetchCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_cache_total",
			Help:      "Source fetch cache lookups by result.",
		}, []string{"result"}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Total summary messages written to the sink topic.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SourceLoads,
		m.RowsParsed,
		m.RowsDropped,
		m.LoadDuration,
		m.SessionLoads,
		m.EngineReady,
		m.FetchCache,
		m.MessagesPublished,
	}
}

// NewMetrics creates and registers all engine metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates Metrics registered on reg, or unregistered
// when reg is nil.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	if reg != nil {
		reg.MustRegister(m.collectors()...)
	}
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}
