// Package metrics provides Prometheus metrics for the Code Quest progression service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultNamespace = "codequest"
	defaultSubsystem = "progression"
)

// latencyBuckets in milliseconds; sandbox runs routinely take seconds.
var latencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Progression
	progressReads    prometheus.Counter
	levelCompletions *prometheus.CounterVec
	levelDecisions   *prometheus.CounterVec
	casConflicts     prometheus.Counter

	// Ledger
	scoreSubmissions *prometheus.CounterVec
	duplicateScores  *prometheus.CounterVec
	ledgerSize       *prometheus.GaugeVec
	leaderboardReads *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec

	// Execution proxy
	executions        *prometheus.CounterVec
	executionLatency  *prometheus.HistogramVec
	executionInFlight prometheus.Gauge

	// Storage
	storeLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // service registry without default collectors

func init() { //nolint:gochecknoinits // global metrics setup
	customRegistry.MustRegister(collectors.NewGoCollector())
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        defaultNamespace,
		subsystem:        defaultSubsystem,
		histogramBuckets: latencyBuckets,
		constLabels:      prometheus.Labels{},
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.progressReads = auto.NewCounter(m.counterOpts("progress_reads_total",
		"Progress records served, including defaulted ones"))
	m.levelCompletions = auto.NewCounterVec(m.counterOpts("level_completions_total",
		"Level completions applied to the progress store"), []string{"category"})
	m.levelDecisions = auto.NewCounterVec(m.counterOpts("level_decisions_total",
		"Level gate decisions by outcome"), []string{"category", "decision"})
	m.casConflicts = auto.NewCounter(m.counterOpts("progress_cas_conflicts_total",
		"Compare-and-swap conflicts on progress writes"))

	m.scoreSubmissions = auto.NewCounterVec(m.counterOpts("score_submissions_total",
		"Score entries appended to the ledger"), []string{"category"})
	m.duplicateScores = auto.NewCounterVec(m.counterOpts("duplicate_submissions_total",
		"Score submissions dropped because their idempotency key was seen"), []string{"category"})
	m.ledgerSize = auto.NewGaugeVec(m.gaugeOpts("ledger_entries",
		"Score ledger size per category"), []string{"category"})
	m.leaderboardReads = auto.NewCounterVec(m.counterOpts("leaderboard_reads_total",
		"Top-N leaderboard queries"), []string{"category"})
	m.cacheLookups = auto.NewCounterVec(m.counterOpts("leaderboard_cache_lookups_total",
		"Leaderboard snapshot cache lookups by result"), []string{"result"})

	m.executions = auto.NewCounterVec(m.counterOpts("executions_total",
		"Sandbox executions by language and outcome"), []string{"language", "outcome"})
	m.executionLatency = auto.NewHistogramVec(m.histogramOpts("execution_latency_milliseconds",
		"Sandbox round-trip latency in milliseconds"), []string{"language"})
	m.executionInFlight = auto.NewGauge(m.gaugeOpts("executions_in_flight",
		"Sandbox executions currently awaiting a response"))

	m.storeLatency = auto.NewHistogramVec(m.histogramOpts("store_latency_milliseconds",
		"Durable store operation latency in milliseconds"), []string{"store", "op"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds"), []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_total",
		"Errors by component and kind"), []string{"component", "kind"})
}

// RecordProgressRead counts a served progress record.
func RecordProgressRead() {
	globalManager.progressReads.Inc()
}

// RecordLevelCompletion counts a completion written for category.
func RecordLevelCompletion(category string) {
	globalManager.levelCompletions.WithLabelValues(category).Inc()
}

// RecordLevelDecision counts a gate decision ("allowed" or "locked").
func RecordLevelDecision(category, decision string) {
	globalManager.levelDecisions.WithLabelValues(category, decision).Inc()
}

// RecordCASConflict counts a lost compare-and-swap on progress.
func RecordCASConflict() {
	globalManager.casConflicts.Inc()
}

// RecordScoreSubmission counts an appended ledger entry.
func RecordScoreSubmission(category string) {
	globalManager.scoreSubmissions.WithLabelValues(category).Inc()
}

// RecordDuplicateSubmission counts a submission dropped by its idempotency key.
func RecordDuplicateSubmission(category string) {
	globalManager.duplicateScores.WithLabelValues(category).Inc()
}

// UpdateLedgerSize sets the ledger size gauge for category.
func UpdateLedgerSize(category string, size int64) {
	globalManager.ledgerSize.WithLabelValues(category).Set(float64(size))
}

// RecordLeaderboardRead counts a top-N query.
func RecordLeaderboardRead(category string) {
	globalManager.leaderboardReads.WithLabelValues(category).Inc()
}

// RecordCacheLookup counts a snapshot cache lookup: "hit", "miss" or "error".
func RecordCacheLookup(result string) {
	globalManager.cacheLookups.WithLabelValues(result).Inc()
}

// RecordExecution counts a sandbox call and observes its latency.
func RecordExecution(language, outcome string, latency time.Duration) {
	globalManager.executions.WithLabelValues(language, outcome).Inc()
	globalManager.executionLatency.WithLabelValues(language).Observe(float64(latency.Milliseconds()))
}

// AddExecutionsInFlight moves the in-flight gauge by delta.
func AddExecutionsInFlight(delta int) {
	globalManager.executionInFlight.Add(float64(delta))
}

// RecordStoreLatency observes a store operation.
func RecordStoreLatency(store, op string, latency time.Duration) {
	globalManager.storeLatency.WithLabelValues(store, op).Observe(float64(latency.Milliseconds()))
}

// RecordHTTPRequest records HTTP request count.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent counts an error raised by component.
func RecordErrorByComponent(component, kind string) {
	globalManager.errorsByComponent.WithLabelValues(component, kind).Inc()
}

// GetRegistry returns the custom registry served on /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
