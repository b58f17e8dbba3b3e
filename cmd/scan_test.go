package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/khanhnv2901/secora/internal/ai"
	"github.com/khanhnv2901/secora/internal/checker"
	"github.com/khanhnv2901/secora/internal/finding"
	"github.com/khanhnv2901/secora/internal/report"
	secerrors "github.com/khanhnv2901/secora/internal/shared/errors"
)

func sampleReport() *report.ScanReport {
	vulns := []finding.Finding{
		{ID: "sqli-01", Title: "SQL injection authentication bypass", Severity: finding.Critical},
		{ID: "hdr-01", Title: "Missing Content-Security-Policy", Severity: finding.Medium},
		{ID: "hdr-07-server", Title: "Server header discloses software", Severity: finding.Low},
	}
	return &report.ScanReport{
		ID:              "0d9c7a52",
		Target:          "https://example.com:8443/login",
		Vulnerabilities: vulns,
		TLS: &checker.CertificateInfo{
			OK:            true,
			Issuer:        "Example CA",
			TLSVersion:    "TLS 1.3",
			ExpiresInDays: 42,
		},
		Fetch: report.FetchInfo{
			Source:     "direct",
			FinalURL:   "https://example.com:8443/login",
			StatusCode: 200,
			Attempts:   1,
		},
		AI: &report.AIResult{
			Summary: "Fix the login form first.",
			Items:   []ai.Recommendation{{Title: "Parameterize queries", Severity: "Critical", ETA: "1d"}},
		},
		Summary: report.Summarize(vulns),
	}
}

func TestPrintReportSummary(t *testing.T) {
	withoutColor(t)

	var buf bytes.Buffer
	printReportSummary(&buf, sampleReport())
	out := buf.String()

	for _, want := range []string{
		"Target: https://example.com:8443/login",
		"Fetched via direct (status 200, 1 attempt(s))",
		"TLS: ok TLS 1.3, expires in 42 days (issuer Example CA)",
		"Findings: 3 (critical 1, high 0, medium 1, low 1)",
		"[CRITICAL] sqli-01",
		"[LOW]      hdr-07-server",
		"AI: Fix the login form first.",
		"- Parameterize queries [Critical, ~1d]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q\n%s", want, out)
		}
	}
}

func TestPrintReportSummaryFailures(t *testing.T) {
	withoutColor(t)

	rep := sampleReport()
	rep.TLS = &checker.CertificateInfo{OK: false, Error: "connection refused"}
	rep.AI = &report.AIResult{Summary: ai.FallbackSummary, Items: []ai.Recommendation{}, Error: "AI generation failed"}

	var buf bytes.Buffer
	printReportSummary(&buf, rep)
	out := buf.String()
	if !strings.Contains(out, "TLS: failed: connection refused") {
		t.Errorf("expected TLS failure line, got:\n%s", out)
	}
	if !strings.Contains(out, "AI (unavailable): "+ai.FallbackSummary) {
		t.Errorf("expected AI fallback line, got:\n%s", out)
	}
}

func TestReportFileName(t *testing.T) {
	rep := sampleReport()
	if got := reportFileName(rep); got != "example.com-0d9c7a52.json" {
		t.Fatalf("reportFileName = %q", got)
	}

	rep.Target = "not a url/with slash"
	if got := reportFileName(rep); strings.Contains(got, "/") {
		t.Fatalf("file name must not contain a path separator: %q", got)
	}
}

func TestCountAtOrAbove(t *testing.T) {
	reports := []*report.ScanReport{sampleReport(), sampleReport()}

	tests := []struct {
		threshold finding.Severity
		want      int
	}{
		{finding.Critical, 2},
		{finding.High, 2},
		{finding.Medium, 4},
		{finding.Low, 6},
	}
	for _, tt := range tests {
		if got := countAtOrAbove(reports, tt.threshold); got != tt.want {
			t.Errorf("countAtOrAbove(%s) = %d, want %d", tt.threshold, got, tt.want)
		}
	}
}

func TestNormalizeSeverity(t *testing.T) {
	tests := map[string]string{
		"high":       "High",
		" CRITICAL ": "Critical",
		"Medium":     "Medium",
		"":           "",
	}
	for in, want := range tests {
		if got := normalizeSeverity(in); got != want {
			t.Errorf("normalizeSeverity(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestScanCommandRejectsInvalidTarget(t *testing.T) {
	_, err := executeRoot(t, "scan", "ftp://example.com", "--ai-provider", "none")
	if !errors.Is(err, secerrors.ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
	if code := exitCodeFor(err); code != ExitUsage {
		t.Fatalf("exit code = %d, want %d", code, ExitUsage)
	}
}

func TestScanCommandRejectsUnknownFailOn(t *testing.T) {
	_, err := executeRoot(t, "scan", "https://example.com", "--fail-on", "bogus")
	if err == nil {
		t.Fatal("expected an error for an unknown severity")
	}
	if code := exitCodeFor(err); code != ExitUsage {
		t.Fatalf("exit code = %d, want %d", code, ExitUsage)
	}
}

func TestScanCommandRequiresTarget(t *testing.T) {
	if _, err := executeRoot(t, "scan"); err == nil {
		t.Fatal("expected an error without a target")
	}
}
