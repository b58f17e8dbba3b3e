package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/khanhnv2901/secora/internal/finding"
)

func TestMetricsExposition(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m.ObserveScan(OutcomeCompleted, 3*time.Second, []finding.Finding{
		{Severity: finding.High},
		{Severity: finding.Low},
	})
	m.ObserveFetch("rendered", 2)
	m.ProbeVulnerable()
	m.AIFailed()
	m.JobStarted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`secora_scans_total{outcome="completed"} 1`,
		`secora_findings_total{severity="High"} 1`,
		`secora_fetch_attempts_count{source="rendered"} 1`,
		`secora_sql_probe_vulnerable_total 1`,
		`secora_ai_failures_total 1`,
		`secora_jobs_in_flight 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveScan(OutcomeCompleted, time.Second, nil)
	m.ObserveFetch("direct", 1)
	m.ProbeVulnerable()
	m.AIFailed()
	m.JobStarted()
	m.JobFinished()
}

func TestSetupTracingWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TracingOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}

	_, span := StartSpan(context.Background(), "test")
	EndSpan(span, nil)
}
