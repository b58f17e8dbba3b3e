package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/khanhnv2901/secora/internal/ai"
	"github.com/khanhnv2901/secora/internal/checker"
	"github.com/khanhnv2901/secora/internal/fetch"
	"github.com/khanhnv2901/secora/internal/finding"
	secerrors "github.com/khanhnv2901/secora/internal/shared/errors"
	"github.com/khanhnv2901/secora/internal/sqlprobe"
	"github.com/khanhnv2901/secora/internal/telemetry"
)

type fakeInspector struct {
	calls atomic.Int32
	info  checker.CertificateInfo

	mu   sync.Mutex
	host string
	port int
}

func (f *fakeInspector) Inspect(ctx context.Context, host string, port int) checker.CertificateInfo {
	f.calls.Add(1)
	f.mu.Lock()
	f.host, f.port = host, port
	f.mu.Unlock()
	return f.info
}

func (f *fakeInspector) endpoint() (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.host, f.port
}

type fakeFetcher struct {
	calls   atomic.Int32
	outcome *fetch.Outcome
	err     error
	// after runs once the page has been returned.
	after func()
}

func (f *fakeFetcher) Fetch(ctx context.Context, target *checker.ScanTarget) (*fetch.Outcome, error) {
	f.calls.Add(1)
	if f.after != nil {
		defer f.after()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

type fakeProber struct {
	calls  atomic.Int32
	result sqlprobe.Result
}

func (f *fakeProber) Probe(ctx context.Context, targetURL string) sqlprobe.Result {
	f.calls.Add(1)
	return f.result
}

type fakeRecommender struct {
	recs ai.Recommendations
	err  error
	in   ai.Input
}

func (f *fakeRecommender) Generate(ctx context.Context, in ai.Input) (ai.Recommendations, error) {
	f.in = in
	return f.recs, f.err
}

func secureHeaders() checker.Headers {
	return checker.Headers{
		"content-security-policy":   "default-src 'self'; frame-ancestors 'none'",
		"strict-transport-security": "max-age=31536000",
		"x-content-type-options":    "nosniff",
		"referrer-policy":           "no-referrer",
		"permissions-policy":        "camera=()",
	}
}

func page(source fetch.Source, html string, headers checker.Headers) *fetch.Outcome {
	return &fetch.Outcome{
		Source:     source,
		HTML:       html,
		Headers:    headers,
		FinalURL:   "https://example.com/",
		StatusCode: 200,
		Attempts:   1,
	}
}

func ids(findings []finding.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.ID
	}
	return out
}

func TestScanRejectsInvalidTargetWithoutIO(t *testing.T) {
	insp := &fakeInspector{}
	fetcher := &fakeFetcher{}
	s := New(Components{Inspector: insp, Fetcher: fetcher})

	for _, raw := range []string{"ftp://example.com", "", "example.com", "https://"} {
		rep, err := s.Scan(context.Background(), raw)
		if !errors.Is(err, secerrors.ErrInvalidTarget) {
			t.Errorf("Scan(%q) error = %v, want ErrInvalidTarget", raw, err)
		}
		if rep != nil {
			t.Errorf("Scan(%q) returned a report", raw)
		}
	}
	if insp.calls.Load() != 0 || fetcher.calls.Load() != 0 {
		t.Errorf("expected no I/O, got %d TLS and %d fetch calls", insp.calls.Load(), fetcher.calls.Load())
	}
}

func TestScanReportsSoonExpiringCertificate(t *testing.T) {
	insp := &fakeInspector{info: checker.CertificateInfo{OK: true, Subject: "CN=example.com", ExpiresInDays: 10}}
	s := New(Components{
		Inspector: insp,
		Fetcher:   &fakeFetcher{outcome: page(fetch.SourceDirect, "<html></html>", checker.Headers{})},
	})

	rep, err := s.Scan(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if rep.TLS == nil || rep.TLS.ExpiresInDays != 10 {
		t.Fatalf("TLS = %+v, want expiresInDays 10", rep.TLS)
	}

	want := []string{"tls-02", "hdr-01", "hdr-02", "hdr-03", "hdr-04", "hdr-05", "hdr-06"}
	if got := ids(rep.Vulnerabilities); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("finding ids = %v, want %v", got, want)
	}
	if rep.Vulnerabilities[0].Severity != finding.Medium {
		t.Errorf("tls-02 severity = %s, want Medium", rep.Vulnerabilities[0].Severity)
	}
	if rep.Summary.Total != len(want) || rep.Summary.High != 1 {
		t.Errorf("summary = %+v", rep.Summary)
	}
	if rep.ID == "" || rep.GeneratedAt.IsZero() {
		t.Error("report id and generatedAt must be set")
	}
	if rep.AI != nil {
		t.Error("AI result should be nil without a recommender")
	}
}

func TestScanInspectsTargetHostAndPort(t *testing.T) {
	tests := []struct {
		raw  string
		host string
		port int
	}{
		{raw: "https://example.test:8443/", host: "example.test", port: 8443},
		{raw: "https://example.test/", host: "example.test", port: 443},
		{raw: "https://[::1]:9443/login", host: "::1", port: 9443},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			insp := &fakeInspector{info: checker.CertificateInfo{OK: true, ExpiresInDays: 90}}
			s := New(Components{
				Inspector: insp,
				Fetcher:   &fakeFetcher{outcome: page(fetch.SourceDirect, "", secureHeaders())},
			})
			if _, err := s.Scan(context.Background(), tt.raw); err != nil {
				t.Fatalf("Scan: %v", err)
			}
			host, port := insp.endpoint()
			if host != tt.host || port != tt.port {
				t.Errorf("inspector got (%q, %d), want (%q, %d)", host, port, tt.host, tt.port)
			}
		})
	}
}

func TestScanTLSFailureIsAFinding(t *testing.T) {
	s := New(Components{
		Inspector: &fakeInspector{info: checker.CertificateInfo{OK: false, Error: "TLS lookup timed out"}},
		Fetcher:   &fakeFetcher{outcome: page(fetch.SourceDirect, "", secureHeaders())},
	})

	rep, err := s.Scan(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(rep.Vulnerabilities) != 1 || rep.Vulnerabilities[0].ID != "tls-01" {
		t.Fatalf("findings = %v, want [tls-01]", ids(rep.Vulnerabilities))
	}
	if !strings.Contains(rep.Vulnerabilities[0].Description, "TLS lookup timed out") {
		t.Errorf("description = %q", rep.Vulnerabilities[0].Description)
	}
}

func TestScanSkipsTLSForPlainHTTP(t *testing.T) {
	insp := &fakeInspector{}
	s := New(Components{
		Inspector: insp,
		Fetcher:   &fakeFetcher{outcome: page(fetch.SourceDirect, `<img src="http://cdn/x.png">`, secureHeaders())},
	})

	rep, err := s.Scan(context.Background(), "http://example.com")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if insp.calls.Load() != 0 {
		t.Error("inspector must not run for http targets")
	}
	if rep.TLS != nil {
		t.Error("TLS should be nil for http targets")
	}
	// Mixed content only applies to https targets.
	if len(rep.Vulnerabilities) != 0 {
		t.Errorf("findings = %v, want none", ids(rep.Vulnerabilities))
	}
}

func TestScanUnreachableIsTerminal(t *testing.T) {
	rec := &fakeRecommender{}
	s := New(Components{
		Inspector:   &fakeInspector{info: checker.CertificateInfo{OK: true, ExpiresInDays: 90}},
		Fetcher:     &fakeFetcher{err: fmt.Errorf("%w: connection refused", secerrors.ErrUnreachable)},
		Recommender: rec,
	})

	rep, err := s.Scan(context.Background(), "https://example.com")
	if !errors.Is(err, secerrors.ErrUnreachable) {
		t.Fatalf("error = %v, want ErrUnreachable", err)
	}
	if rep != nil {
		t.Error("no report expected when unreachable")
	}
}

func TestScanOrdersFindingsByStage(t *testing.T) {
	headers := secureHeaders()
	headers["server"] = "nginx/1.25"
	headers["x-powered-by"] = "PHP/8.2"
	html := `<form><input name="username"><input type="password"><button type="submit">Go</button></form><script src="http://cdn.example.com/a.js"></script>`

	prober := &fakeProber{result: sqlprobe.Result{
		Vulnerable:     true,
		Findings:       []finding.ProbeEvidence{{Payload: "admin' --", Type: sqlprobe.TypeErrorBased, Evidence: "mysql"}},
		TestedPayloads: []string{"admin' --"},
	}}
	s := New(Components{
		Inspector: &fakeInspector{info: checker.CertificateInfo{OK: true, ExpiresInDays: 200}},
		Fetcher:   &fakeFetcher{outcome: page(fetch.SourceDirect, html, headers)},
		Prober:    prober,
	})

	rep, err := s.Scan(context.Background(), "https://example.com/login")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []string{"misc-01", "hdr-07-server", "hdr-08-xpb", "sqli-01"}
	if got := ids(rep.Vulnerabilities); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("finding ids = %v, want %v", got, want)
	}
	if rep.Summary.Critical != 1 {
		t.Errorf("critical = %d, want 1", rep.Summary.Critical)
	}
	if rep.Forms == nil || rep.Forms.PasswordInputs != 1 {
		t.Errorf("forms = %+v", rep.Forms)
	}
}

func TestScanSkipsProbeOnRenderedPageWithoutPassword(t *testing.T) {
	prober := &fakeProber{}
	s := New(Components{
		Fetcher: &fakeFetcher{outcome: page(fetch.SourceRendered, "<html><body>hi</body></html>", secureHeaders())},
		Prober:  prober,
	})

	if _, err := s.Scan(context.Background(), "http://example.com"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if prober.calls.Load() != 0 {
		t.Error("probe should be skipped for a rendered page without a password input")
	}
}

func TestScanProbesDirectPageWithoutPassword(t *testing.T) {
	// Direct HTML may lack script-inserted forms, so the probe still runs.
	prober := &fakeProber{result: sqlprobe.Result{Findings: []finding.ProbeEvidence{}, TestedPayloads: []string{}}}
	s := New(Components{
		Fetcher: &fakeFetcher{outcome: page(fetch.SourceDirect, "<div id=app></div>", secureHeaders())},
		Prober:  prober,
	})

	rep, err := s.Scan(context.Background(), "http://example.com")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if prober.calls.Load() != 1 {
		t.Errorf("probe calls = %d, want 1", prober.calls.Load())
	}
	if len(rep.Vulnerabilities) != 0 {
		t.Errorf("findings = %v, want none", ids(rep.Vulnerabilities))
	}
}

func TestScanCapturesRecommendationFailure(t *testing.T) {
	rec := &fakeRecommender{err: errors.New("upstream 503")}
	s := New(Components{
		Fetcher:     &fakeFetcher{outcome: page(fetch.SourceDirect, "", checker.Headers{})},
		Recommender: rec,
	})

	rep, err := s.Scan(context.Background(), "http://example.com")
	if err != nil {
		t.Fatalf("AI failure must not fail the scan: %v", err)
	}
	if rep.AI == nil || !rep.AI.Failed() {
		t.Fatalf("AI = %+v, want a failed result", rep.AI)
	}
	if rep.AI.Error != "AI generation failed" {
		t.Errorf("AI.Error = %q", rep.AI.Error)
	}
	if rep.AI.Summary != ai.FallbackSummary {
		t.Errorf("AI.Summary = %q", rep.AI.Summary)
	}
	if rep.AI.Info != "upstream 503" {
		t.Errorf("AI.Info = %q", rep.AI.Info)
	}
	if len(rep.Vulnerabilities) != 6 {
		t.Errorf("findings = %d, want 6", len(rep.Vulnerabilities))
	}
}

func TestScanPassesFindingsToRecommender(t *testing.T) {
	rec := &fakeRecommender{recs: ai.Recommendations{Summary: "fix headers"}}
	s := New(Components{
		Fetcher:     &fakeFetcher{outcome: page(fetch.SourceDirect, "", checker.Headers{})},
		Recommender: rec,
	})

	rep, err := s.Scan(context.Background(), "http://example.com")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if rep.AI == nil || rep.AI.Failed() || rep.AI.Summary != "fix headers" {
		t.Fatalf("AI = %+v", rep.AI)
	}
	if rep.AI.Items == nil {
		t.Error("items should be an empty list, not nil")
	}
	if len(rec.in.Findings) != 6 || rec.in.Target != "http://example.com" {
		t.Errorf("recommender input = %+v", rec.in)
	}
}

func TestScanHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(Components{
		Fetcher: &fakeFetcher{outcome: page(fetch.SourceDirect, "", checker.Headers{}), after: cancel},
	})

	rep, err := s.Scan(ctx, "http://example.com")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if rep != nil {
		t.Error("no report expected after cancellation")
	}
}

func TestScanRecordsMetrics(t *testing.T) {
	m, err := telemetry.NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	s := New(Components{
		Fetcher: &fakeFetcher{outcome: page(fetch.SourceDirect, "", checker.Headers{})},
		Metrics: m,
	})
	if _, err := s.Scan(context.Background(), "http://example.com"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if _, err := s.Scan(context.Background(), "gopher://example.com"); err == nil {
		t.Fatal("expected invalid target")
	}

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var scans float64
	for _, mf := range families {
		if mf.GetName() != "secora_scans_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			scans += metric.GetCounter().GetValue()
		}
	}
	if scans != 2 {
		t.Errorf("secora_scans_total = %v, want 2", scans)
	}
}
