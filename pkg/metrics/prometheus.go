// Package metrics provides Prometheus metrics for the CrediScout client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the client.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	sizeBuckets      []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Dashboard fetch cycle
	fetchCycles    *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	currentScore   prometheus.Gauge
	historyLength  prometheus.Gauge
	sessionChanges *prometheus.CounterVec
	errorsByKind   *prometheus.CounterVec

	// Scoring service calls
	apiRequests        *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec

	// User actions
	uploads             *prometheus.CounterVec
	uploadBytes         prometheus.Histogram
	admissionRejections prometheus.Counter
	reportDownloads     *prometheus.CounterVec

	// Local site
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "crediscout",
		subsystem:        "client",
		histogramBuckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		sizeBuckets:      prometheus.ExponentialBuckets(1024, 4, 10),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.fetchCycles = auto.NewCounterVec(
		m.counterOpts("fetch_cycles_total", "Dashboard fetch cycles by outcome"),
		[]string{"outcome"},
	)
	m.fetchLatency = auto.NewHistogram(
		m.histogramOpts("fetch_latency_milliseconds", "Latency of committed dashboard fetch cycles", m.histogramBuckets),
	)
	m.currentScore = auto.NewGauge(
		m.gaugeOpts("current_score", "Score of the last committed snapshot"),
	)
	m.historyLength = auto.NewGauge(
		m.gaugeOpts("history_length", "Number of snapshots in the last committed history"),
	)
	m.sessionChanges = auto.NewCounterVec(
		m.counterOpts("session_transitions_total", "Session gate transitions by resulting status"),
		[]string{"status"},
	)
	m.errorsByKind = auto.NewCounterVec(
		m.counterOpts("errors_total", "Classified failures by component and kind"),
		[]string{"component", "kind"},
	)

	m.apiRequests = auto.NewCounterVec(
		m.counterOpts("api_requests_total", "Scoring service requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.apiRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("api_request_duration_milliseconds", "Scoring service request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.uploads = auto.NewCounterVec(
		m.counterOpts("uploads_total", "Statement uploads by outcome"),
		[]string{"outcome"},
	)
	m.uploadBytes = auto.NewHistogram(
		m.histogramOpts("upload_bytes", "Size of submitted statement files", m.sizeBuckets),
	)
	m.admissionRejections = auto.NewCounter(
		m.counterOpts("admission_rejections_total", "Files rejected by the local type check"),
	)
	m.reportDownloads = auto.NewCounterVec(
		m.counterOpts("report_downloads_total", "Certificate downloads by outcome"),
		[]string{"outcome"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Local site requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "Local site request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)
}

// RecordFetchCycle counts one fetch cycle that ended with outcome.
func RecordFetchCycle(outcome string) {
	globalManager.fetchCycles.WithLabelValues(outcome).Inc()
}

// RecordFetchLatency records the latency of a committed fetch cycle.
func RecordFetchLatency(latencyMs float64) {
	globalManager.fetchLatency.Observe(latencyMs)
}

// UpdateCurrentScore sets the score of the last committed snapshot.
func UpdateCurrentScore(score float64) {
	globalManager.currentScore.Set(score)
}

// UpdateHistoryLength sets the size of the last committed history.
func UpdateHistoryLength(n int) {
	globalManager.historyLength.Set(float64(n))
}

// RecordSessionTransition counts a session gate transition.
func RecordSessionTransition(status string) {
	globalManager.sessionChanges.WithLabelValues(status).Inc()
}

// RecordError counts a classified failure.
func RecordError(component, kind string) {
	globalManager.errorsByKind.WithLabelValues(component, kind).Inc()
}

// RecordAPIRequest records a scoring service request.
func RecordAPIRequest(endpoint, method, statusCode string) {
	globalManager.apiRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordAPIRequestDuration records scoring service request duration.
func RecordAPIRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.apiRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordUpload counts an upload that ended with outcome.
func RecordUpload(outcome string) {
	globalManager.uploads.WithLabelValues(outcome).Inc()
}

// RecordUploadBytes records the size of a submitted file.
func RecordUploadBytes(size int64) {
	globalManager.uploadBytes.Observe(float64(size))
}

// RecordAdmissionRejection counts a file refused by the local type check.
func RecordAdmissionRejection() {
	globalManager.admissionRejections.Inc()
}

// RecordReportDownload counts a certificate download that ended with outcome.
func RecordReportDownload(outcome string) {
	globalManager.reportDownloads.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records a local site request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records local site request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
