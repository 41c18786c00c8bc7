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
	// Mint metrics
	MintSeriesTotal    *prometheus.CounterVec
	MintSeriesDuration *prometheus.HistogramVec
	MintAttemptsTotal  *prometheus.CounterVec
	MintsInFlight      prometheus.Gauge
	ComputeUnits       prometheus.Histogram

	// Upload metrics
	UploadsTotal  *prometheus.CounterVec
	UploadLatency *prometheus.HistogramVec

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "puzzle_mint"
	}

	return &Metrics{
		MintSeriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "series_total",
			Help:      "Total number of mint series by terminal outcome",
		}, []string{"outcome"}),
		MintSeriesDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "series_duration_seconds",
			Help:      "Wall time from first checkpoint fetch to terminal outcome",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"outcome"}),
		MintAttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "attempts_total",
			Help:      "Total number of mint attempts by result",
		}, []string{"result"}),
		MintsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "in_flight",
			Help:      "Number of mint series currently running",
		}),
		ComputeUnits: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "compute_units",
			Help:      "Compute units consumed by confirmed mint transactions",
			Buckets:   []float64{25000, 50000, 100000, 150000, 200000, 300000, 400000},
		}),

		UploadsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "requests_total",
			Help:      "Total number of uploads by kind and status",
		}, []string{"kind", "status"}),
		UploadLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "latency_seconds",
			Help:      "Upload request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "Solana RPC call latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSeries records a finished mint series.
func RecordSeries(outcome string, durationSeconds float64) {
	DefaultMetrics.MintSeriesTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.MintSeriesDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

// RecordAttempt records one mint attempt result.
func RecordAttempt(result string) {
	DefaultMetrics.MintAttemptsTotal.WithLabelValues(result).Inc()
}

// MintStarted increments the in-flight gauge; call the returned func when done.
func MintStarted() func() {
	DefaultMetrics.MintsInFlight.Inc()
	return DefaultMetrics.MintsInFlight.Dec
}

// RecordComputeUnits records compute units consumed by a mint transaction.
func RecordComputeUnits(units uint64) {
	DefaultMetrics.ComputeUnits.Observe(float64(units))
}

// RecordUpload records an upload request.
func RecordUpload(kind string, seconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.UploadsTotal.WithLabelValues(kind, status).Inc()
	DefaultMetrics.UploadLatency.WithLabelValues(kind).Observe(seconds)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
