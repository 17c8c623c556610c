package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for the API
type Metrics struct {
	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// Record read metrics
	readOperationsTotal   *prometheus.CounterVec
	readOperationDuration *prometheus.HistogramVec
	recordsServedTotal    prometheus.Counter
	skippedRegionsTotal   prometheus.Counter
	skippedBytesTotal     prometheus.Counter

	// API key authentication metrics
	authRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the given
// registerer (use prometheus.DefaultRegisterer outside tests).
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riegeli_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riegeli_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "riegeli_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),
		readOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riegeli_read_operations_total",
				Help: "Total number of record read operations",
			},
			[]string{"operation", "status"},
		),
		readOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riegeli_read_operation_duration_seconds",
				Help:    "Record read operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		recordsServedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "riegeli_records_served_total",
				Help: "Total number of records returned to clients",
			},
		),
		skippedRegionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "riegeli_skipped_regions_total",
				Help: "Total number of damaged regions bridged by recovery",
			},
		),
		skippedBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "riegeli_skipped_bytes_total",
				Help: "Total bytes bridged by recovery",
			},
		),
		authRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riegeli_auth_requests_total",
				Help: "Total number of authentication attempts",
			},
			[]string{"status"},
		),
	}
}

// RecordReadOperation records a read operation's outcome and duration.
func (m *Metrics) RecordReadOperation(operation string, success bool, duration time.Duration) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.readOperationsTotal.WithLabelValues(operation, status).Inc()
	m.readOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordServed counts one record returned to a client.
func (m *Metrics) RecordServed() {
	m.recordsServedTotal.Inc()
}

// RecordSkippedRegion counts a bridged damage region.
func (m *Metrics) RecordSkippedRegion(bytes uint64) {
	m.skippedRegionsTotal.Inc()
	m.skippedBytesTotal.Add(float64(bytes))
}

// RecordAuth counts an authentication attempt.
func (m *Metrics) RecordAuth(success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.authRequestsTotal.WithLabelValues(status).Inc()
}

// InstrumentHandler wraps a handler with request counting, duration and
// in-flight tracking.
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.httpRequestsInFlight.WithLabelValues(method, endpoint).Inc()
		defer m.httpRequestsInFlight.WithLabelValues(method, endpoint).Dec()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)

		m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(recorder.status)).Inc()
		m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// InstrumentAuthMiddleware wraps an auth middleware, counting outcomes.
func (m *Metrics) InstrumentAuthMiddleware(next func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		wrapped := next(handler)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			wrapped.ServeHTTP(recorder, r)
			m.RecordAuth(recorder.status != http.StatusUnauthorized)
		})
	}
}

// statusRecorder captures the response status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
