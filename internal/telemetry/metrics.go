// Package telemetry wires Prometheus metrics and OpenTelemetry tracing for scans.
package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/khanhnv2901/secora/internal/finding"
)

// Scan outcomes used as the "outcome" label.
const (
	OutcomeCompleted   = "completed"
	OutcomeInvalid     = "invalid_target"
	OutcomeUnreachable = "unreachable"
	OutcomeCancelled   = "cancelled"
)

// Metrics holds the scan collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	scansTotal      *prometheus.CounterVec
	scanDuration    *prometheus.HistogramVec
	findingsTotal   *prometheus.CounterVec
	fetchAttempts   *prometheus.HistogramVec
	probeVulnerable prometheus.Counter
	aiFailures      prometheus.Counter
	jobsInFlight    prometheus.Gauge
}

// NewMetrics registers all collectors, plus Go and process collectors, on a
// fresh registry.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.scansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "secora_scans_total",
		Help: "Total number of scans by outcome",
	}, []string{"outcome"})

	m.scanDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "secora_scan_duration_seconds",
		Help:    "Wall-clock duration of scans",
		Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"outcome"})

	m.findingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "secora_findings_total",
		Help: "Total number of findings reported, by severity",
	}, []string{"severity"})

	m.fetchAttempts = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "secora_fetch_attempts",
		Help:    "Attempts needed per fetch, by the tier that succeeded",
		Buckets: []float64{1, 2, 3, 4, 5},
	}, []string{"source"})

	m.probeVulnerable = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "secora_sql_probe_vulnerable_total",
		Help: "Number of scans where the SQL injection probe confirmed a weakness",
	})

	m.aiFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "secora_ai_failures_total",
		Help: "Number of failed recommendation requests",
	})

	m.jobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "secora_jobs_in_flight",
		Help: "Scan jobs currently running",
	})

	for _, c := range []prometheus.Collector{
		m.scansTotal, m.scanDuration, m.findingsTotal, m.fetchAttempts,
		m.probeVulnerable, m.aiFailures, m.jobsInFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveScan records a finished scan. Nil receivers are ignored.
func (m *Metrics) ObserveScan(outcome string, d time.Duration, findings []finding.Finding) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(outcome).Inc()
	m.scanDuration.WithLabelValues(outcome).Observe(d.Seconds())
	for _, f := range findings {
		m.findingsTotal.WithLabelValues(string(f.Severity)).Inc()
	}
}

// ObserveFetch records how many attempts a successful fetch needed.
func (m *Metrics) ObserveFetch(source string, attempts int) {
	if m == nil || source == "" {
		return
	}
	m.fetchAttempts.WithLabelValues(source).Observe(float64(attempts))
}

// ProbeVulnerable counts a confirmed SQL injection.
func (m *Metrics) ProbeVulnerable() {
	if m == nil {
		return
	}
	m.probeVulnerable.Inc()
}

// AIFailed counts a failed recommendation request.
func (m *Metrics) AIFailed() {
	if m == nil {
		return
	}
	m.aiFailures.Inc()
}

// JobStarted and JobFinished track running jobs.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.jobsInFlight.Inc()
}

func (m *Metrics) JobFinished() {
	if m == nil {
		return
	}
	m.jobsInFlight.Dec()
}
