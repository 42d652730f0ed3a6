package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline.
type Metrics struct {
	ReadingsIngested   *prometheus.CounterVec // labels: path={batch,structured}
	DuplicateReadings  prometheus.Counter
	ValidationFailures prometheus.Counter
	PersistenceErrors  prometheus.Counter

	// Batch path metrics.
	BatchLines        prometheus.Counter
	BatchLinesSkipped prometheus.Counter

	IngestDuration *prometheus.HistogramVec // labels: path={batch,structured}

	// Live-feed publishing metrics.
	ReadingsPublished prometheus.Counter
	PublishErrors     prometheus.Counter
	PublisherEnabled  prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.ReadingsIngested,
		m.DuplicateReadings,
		m.ValidationFailures,
		m.PersistenceErrors,
		m.BatchLines,
		m.BatchLinesSkipped,
		m.IngestDuration,
		m.ReadingsPublished,
		m.PublishErrors,
		m.PublisherEnabled,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tynys_ingest",
			Name:      "readings_ingested_total",
			Help:      "Total readings persisted, by ingestion path.",
		}, []string{"path"}),
		DuplicateReadings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tynys_ingest",
			Name:      "duplicate_readings_total",
			Help:      "Total structured payloads recognized as idempotent replays.",
		}),
		ValidationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tynys_ingest",
			Name:      "validation_failures_total",
			Help:      "Total structured payloads rejected by validation.",
		}),
		PersistenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tynys_ingest",
			Name:      "persistence_errors_total",
			Help:      "Total storage failures during ingestion.",
		}),
		BatchLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tynys_ingest",
			Name:      "batch_lines_total",
			Help:      "Total lines seen across batch uploads.",
		}),
		BatchLinesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tynys_ingest",
			Name:      "batch_lines_skipped_total",
			Help:      "Total malformed batch lines skipped.",
		}),
		IngestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tynys_ingest",
			Name:      "ingest_duration_seconds",
			Help:      "Duration of one complete ingestion call, by path.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"path"}),
		ReadingsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tynys_ingest",
			Name:      "readings_published_total",
			Help:      "Total readings published to the live-feed topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tynys_ingest",
			Name:      "publish_errors_total",
			Help:      "Total live-feed publish failures (non-fatal).",
		}),
		PublisherEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tynys_ingest",
			Name:      "publisher_enabled",
			Help:      "1 when live-feed publishing is enabled, 0 otherwise.",
		}),
	}
}
