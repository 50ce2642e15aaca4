package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector handles Prometheus metrics collection. Each collector
// owns its registry so that several services (and tests) can coexist in
// one process.
type MetricsCollector struct {
	serviceName string
	registry    *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	dbQueryDuration *prometheus.HistogramVec

	// Order paths
	submissionsTotal *prometheus.CounterVec
	retrievalsTotal  *prometheus.CounterVec
	listingsTotal    *prometheus.CounterVec
	remoteOnline     *prometheus.GaugeVec
	modeTransitions  *prometheus.CounterVec

	systemErrors *prometheus.CounterVec
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(serviceName string) *MetricsCollector {
	m := &MetricsCollector{
		serviceName: serviceName,
		registry:    prometheus.NewRegistry(),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code", "service"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "service"},
		),
		dbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"query_type", "service"},
		),
		submissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_submissions_total",
				Help: "Total number of order and blood request submissions",
			},
			[]string{"outcome", "origin", "service"},
		),
		retrievalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_retrievals_total",
				Help: "Total number of order lookups by identifier",
			},
			[]string{"source", "found", "service"},
		),
		listingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_listings_total",
				Help: "Total number of administrative order listings",
			},
			[]string{"source", "service"},
		),
		remoteOnline: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "remote_store_online",
				Help: "1 while the remote order store is in use, 0 once offline",
			},
			[]string{"service"},
		),
		modeTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remote_store_mode_transitions_total",
				Help: "Total number of remote store mode transitions",
			},
			[]string{"from", "to", "service"},
		),
		systemErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "system_errors_total",
				Help: "Total number of system errors",
			},
			[]string{"error_type", "service", "component"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.dbQueryDuration,
		m.submissionsTotal,
		m.retrievalsTotal,
		m.listingsTotal,
		m.remoteOnline,
		m.modeTransitions,
		m.systemErrors,
	)

	return m
}

// Registry exposes the underlying registry
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

// RecordDBQuery records database query metrics
func (m *MetricsCollector) RecordDBQuery(queryType string, duration time.Duration) {
	m.dbQueryDuration.WithLabelValues(queryType, m.serviceName).Observe(duration.Seconds())
}

// RecordSubmission counts one submission by outcome and creating store
func (m *MetricsCollector) RecordSubmission(outcome, origin string) {
	m.submissionsTotal.WithLabelValues(outcome, origin, m.serviceName).Inc()
}

// RecordRetrieval counts one lookup by the store that answered it
func (m *MetricsCollector) RecordRetrieval(source string, found bool) {
	m.retrievalsTotal.WithLabelValues(source, strconv.FormatBool(found), m.serviceName).Inc()
}

// RecordListing counts one administrative listing
func (m *MetricsCollector) RecordListing(source string) {
	m.listingsTotal.WithLabelValues(source, m.serviceName).Inc()
}

// RecordModeTransition counts a mode change and updates the online gauge
func (m *MetricsCollector) RecordModeTransition(from, to string, online bool) {
	m.modeTransitions.WithLabelValues(from, to, m.serviceName).Inc()
	m.SetRemoteOnline(online)
}

// SetRemoteOnline sets the remote store gauge
func (m *MetricsCollector) SetRemoteOnline(online bool) {
	v := 0.0
	if online {
		v = 1
	}
	m.remoteOnline.WithLabelValues(m.serviceName).Set(v)
}

// RecordSystemError records system error metrics
func (m *MetricsCollector) RecordSystemError(errorType, component string) {
	m.systemErrors.WithLabelValues(errorType, m.serviceName, component).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// HTTPMiddleware creates middleware for HTTP request metrics
func (m *MetricsCollector) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		m.RecordHTTPRequest(r.Method, routeTemplate(r), strconv.Itoa(wrapper.statusCode), time.Since(start))
	})
}

// routeTemplate keeps order ids out of the endpoint label
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
