package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "airq"

// Run outcomes used as the "outcome" label of RunsTotal.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the collector.
type Metrics struct {
	RunsTotal   *prometheus.CounterVec // labels: outcome={success,failure}
	RunDuration prometheus.Histogram
	LastSuccess prometheus.Gauge

	// Feed metrics.
	PagesFetched prometheus.Counter
	PagesSkipped prometheus.Counter

	// Dataset metrics.
	ReadingsMerged    prometheus.Counter
	ReadingsDuplicate prometheus.Counter
	StationsCreated   prometheus.Counter
	BucketsPruned     prometheus.Counter
	Stations          prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_runs_total",
			Help:      "Collection runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collection_run_duration_seconds",
			Help:      "Duration of a complete load, fetch, prune and save cycle.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collection_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful collection run.",
		}),
		PagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Feed pages fetched and merged.",
		}),
		PagesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_skipped_total",
			Help:      "Feed pages skipped after a transport or decode failure.",
		}),
		ReadingsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_merged_total",
			Help:      "Pollutant readings added to the dataset.",
		}),
		ReadingsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_duplicate_total",
			Help:      "Pollutant readings discarded because the bucket already held them.",
		}),
		StationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_created_total",
			Help:      "Stations registered on first sighting.",
		}),
		BucketsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buckets_pruned_total",
			Help:      "Timestamp buckets removed by retention.",
		}),
		Stations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stations",
			Help:      "Stations in the last saved dataset.",
		}),
	}
}

// NewMetrics creates the collector metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.LastSuccess,
		m.PagesFetched,
		m.PagesSkipped,
		m.ReadingsMerged,
		m.ReadingsDuplicate,
		m.StationsCreated,
		m.BucketsPruned,
		m.Stations,
	)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
