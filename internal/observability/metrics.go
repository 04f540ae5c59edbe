// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Listener metrics
	BlocksProcessed     *prometheus.CounterVec
	ActivitiesExtracted *prometheus.CounterVec
	ScanRequestsEmitted *prometheus.CounterVec
	ScanRequestsDeduped *prometheus.CounterVec
	RPCErrors           *prometheus.CounterVec
	EndpointRotations   *prometheus.CounterVec
	ChainHealthy        *prometheus.GaugeVec
	LastProcessedHeight *prometheus.GaugeVec

	// Queue metrics
	QueueDepth     *prometheus.GaugeVec
	ScansInFlight  prometheus.Gauge
	ScansCompleted prometheus.Counter
	ScansFailed    prometheus.Counter
	ScansRetried   prometheus.Counter
	ScanDuration   prometheus.Histogram

	// Scoring metrics
	ScoresComputed prometheus.Counter
	ScoresByBand   *prometheus.CounterVec
	VotesSubmitted prometheus.Counter

	// Ledger metrics
	LedgerEntriesCommitted prometheus.Counter
	LedgerVerifications    *prometheus.CounterVec
	BackendPutErrors       *prometheus.CounterVec
	BackendGetErrors       *prometheus.CounterVec

	// Event bus metrics
	EventsDropped prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on the default
// registry, which is what the /metrics endpoint serves.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers all metrics on the given registerer. Tests use a
// fresh registry per instance to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "chain_sentry"
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Listener metrics
		BlocksProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "blocks_processed_total",
			Help:      "Total number of blocks processed per chain",
		}, []string{"chain"}),
		ActivitiesExtracted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "activities_extracted_total",
			Help:      "Total number of scan-worthy activities extracted per chain and kind",
		}, []string{"chain", "kind"}),
		ScanRequestsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "scan_requests_emitted_total",
			Help:      "Total number of scan requests enqueued per chain",
		}, []string{"chain"}),
		ScanRequestsDeduped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "scan_requests_deduped_total",
			Help:      "Total number of scan requests suppressed by the dedup window",
		}, []string{"chain"}),
		RPCErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "rpc_errors_total",
			Help:      "Total number of RPC call failures per chain",
		}, []string{"chain"}),
		EndpointRotations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "endpoint_rotations_total",
			Help:      "Total number of endpoint failovers per chain",
		}, []string{"chain"}),
		ChainHealthy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "chain_healthy",
			Help:      "Whether a chain is currently healthy (1) or not (0)",
		}, []string{"chain"}),
		LastProcessedHeight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "last_processed_height",
			Help:      "Last processed block height (slot on Solana) per chain",
		}, []string{"chain"}),

		// Queue metrics
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of scans in the queue by status",
		}, []string{"status"}),
		ScansInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "scans_in_flight",
			Help:      "Number of scans currently executing",
		}),
		ScansCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "scans_completed_total",
			Help:      "Total number of scans completed successfully",
		}),
		ScansFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "scans_failed_total",
			Help:      "Total number of scans failed permanently",
		}),
		ScansRetried: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "scans_retried_total",
			Help:      "Total number of scan retry attempts scheduled",
		}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "scan_duration_seconds",
			Help:      "Scan execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Scoring metrics
		ScoresComputed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "scores_computed_total",
			Help:      "Total number of threat scores computed",
		}),
		ScoresByBand: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "scores_by_band_total",
			Help:      "Total number of scores by risk band",
		}, []string{"band"}),
		VotesSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "votes_submitted_total",
			Help:      "Total number of community votes accepted",
		}),

		// Ledger metrics
		LedgerEntriesCommitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "entries_committed_total",
			Help:      "Total number of ledger entries committed",
		}),
		LedgerVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "verifications_total",
			Help:      "Total number of entry verifications by verdict",
		}, []string{"verdict"}),
		BackendPutErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "backend_put_errors_total",
			Help:      "Total number of blob store write failures per backend",
		}, []string{"backend"}),
		BackendGetErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "backend_get_errors_total",
			Help:      "Total number of blob store read failures per backend",
		}, []string{"backend"}),

		// Event bus metrics
		EventsDropped: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped",
			Help:      "Events dropped so far due to slow subscribers",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordChainHealth updates the per-chain health gauge.
func (m *Metrics) RecordChainHealth(chain string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.ChainHealthy.WithLabelValues(chain).Set(v)
}

// RecordQueueStats updates the queue depth gauges from a stats snapshot.
func (m *Metrics) RecordQueueStats(ready, delayed, inFlight int) {
	m.QueueDepth.WithLabelValues("ready").Set(float64(ready))
	m.QueueDepth.WithLabelValues("delayed").Set(float64(delayed))
	m.ScansInFlight.Set(float64(inFlight))
}
