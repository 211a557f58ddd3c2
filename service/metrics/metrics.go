package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// It is passed explicitly to every component that records metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Remote API metrics (transaction source, price and FX providers)
	remoteCallsTotal   *prometheus.CounterVec
	remoteCallDuration *prometheus.HistogramVec

	// Sync metrics
	syncRunsTotal          *prometheus.CounterVec
	syncDuration           *prometheus.HistogramVec
	syncPagesPerRun        prometheus.Histogram
	transactionsFetched    prometheus.Counter
	transactionsInserted   prometheus.Counter
	transactionsSkipped    prometheus.Counter
	transactionsFailed     prometheus.Counter
	transactionsClassified *prometheus.CounterVec

	// Pricing metrics
	priceCacheTotal *prometheus.CounterVec
	fxFallbackTotal prometheus.Counter

	// Database metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		remoteCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soltrack_remote_calls_total",
				Help: "Total number of remote API calls by service, operation and status",
			},
			[]string{"service", "operation", "status"},
		),
		remoteCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "soltrack_remote_call_duration_seconds",
				Help:    "Duration of remote API calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"service", "operation"},
		),

		syncRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soltrack_sync_runs_total",
				Help: "Total number of sync runs by status",
			},
			[]string{"status"},
		),
		syncDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "soltrack_sync_duration_seconds",
				Help:    "Duration of sync runs in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		syncPagesPerRun: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "soltrack_sync_pages_per_run",
				Help:    "Number of source pages fetched per sync run",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
			},
		),
		transactionsFetched: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "soltrack_transactions_fetched_total",
				Help: "Total number of transactions received from the source",
			},
		),
		transactionsInserted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "soltrack_transactions_inserted_total",
				Help: "Total number of transactions newly stored",
			},
		),
		transactionsSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "soltrack_transactions_skipped_total",
				Help: "Total number of transactions already stored",
			},
		),
		transactionsFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "soltrack_transactions_failed_total",
				Help: "Total number of source elements that could not be stored",
			},
		),
		transactionsClassified: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soltrack_transactions_classified_total",
				Help: "Total number of transactions classified by type and shape",
			},
			[]string{"type", "shape"},
		),

		priceCacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soltrack_price_cache_lookups_total",
				Help: "Total number of price cache lookups by result",
			},
			[]string{"result"},
		),
		fxFallbackTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "soltrack_fx_fallback_total",
				Help: "Total number of times the fixed fallback FX rate was used",
			},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Remote API metric helpers

// RecordRemoteCall records one call to an external API.
func (m *Metrics) RecordRemoteCall(service, operation string, duration float64, err error) {
	if m == nil {
		return
	}
	m.remoteCallsTotal.WithLabelValues(service, operation, errorStatus(err)).Inc()
	m.remoteCallDuration.WithLabelValues(service, operation).Observe(duration)
}

// Sync metric helpers

// RecordSync records the outcome of one sync run.
func (m *Metrics) RecordSync(duration float64, pages, fetched, inserted, skipped, failed int, err error) {
	if m == nil {
		return
	}
	status := errorStatus(err)
	m.syncRunsTotal.WithLabelValues(status).Inc()
	m.syncDuration.WithLabelValues(status).Observe(duration)
	m.syncPagesPerRun.Observe(float64(pages))
	m.transactionsFetched.Add(float64(fetched))
	m.transactionsInserted.Add(float64(inserted))
	m.transactionsSkipped.Add(float64(skipped))
	m.transactionsFailed.Add(float64(failed))
}

// RecordClassified records the classification of one transaction.
func (m *Metrics) RecordClassified(txType, shape string) {
	if m == nil {
		return
	}
	m.transactionsClassified.WithLabelValues(txType, shape).Inc()
}

// Pricing metric helpers

// RecordPriceCache records a cache hit or miss.
func (m *Metrics) RecordPriceCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.priceCacheTotal.WithLabelValues(result).Inc()
}

// RecordFXFallback records use of the fallback exchange rate.
func (m *Metrics) RecordFXFallback() {
	if m == nil {
		return
	}
	m.fxFallbackTotal.Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, errorStatus(err)).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func errorStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
