// Package engine sequences the scan stages for one target and assembles the
// ScanReport handed back to callers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/khanhnv2901/secora/internal/ai"
	"github.com/khanhnv2901/secora/internal/checker"
	"github.com/khanhnv2901/secora/internal/fetch"
	"github.com/khanhnv2901/secora/internal/finding"
	"github.com/khanhnv2901/secora/internal/report"
	"github.com/khanhnv2901/secora/internal/shared/constants"
	secerrors "github.com/khanhnv2901/secora/internal/shared/errors"
	"github.com/khanhnv2901/secora/internal/sqlprobe"
	"github.com/khanhnv2901/secora/internal/telemetry"
)

// TLSInspector reads certificate metadata. It reports failures as data.
type TLSInspector interface {
	Inspect(ctx context.Context, host string, port int) checker.CertificateInfo
}

// PageFetcher retrieves the target page.
type PageFetcher interface {
	Fetch(ctx context.Context, target *checker.ScanTarget) (*fetch.Outcome, error)
}

// LoginProber tests a login form for SQL injection.
type LoginProber interface {
	Probe(ctx context.Context, targetURL string) sqlprobe.Result
}

// BlindProber runs time-based SQL injection checks.
type BlindProber interface {
	Probe(ctx context.Context, targetURL string) sqlprobe.BlindResult
}

// Components are the collaborators of a Scanner. Fetcher is required; a nil
// Prober, Blind or Recommender disables that stage.
type Components struct {
	Inspector   TLSInspector
	Fetcher     PageFetcher
	Prober      LoginProber
	Blind       BlindProber
	Recommender ai.Recommender
	Metrics     *telemetry.Metrics
	Logger      *zap.Logger

	// SoonExpiryDays is the tls-02 threshold (default 14).
	SoonExpiryDays int
	// AITimeout bounds the recommendation step (default 30s).
	AITimeout time.Duration
}

// Scanner runs scans. It holds no per-scan state and is safe for concurrent use.
type Scanner struct {
	inspector   TLSInspector
	fetcher     PageFetcher
	prober      LoginProber
	blind       BlindProber
	recommender ai.Recommender
	metrics     *telemetry.Metrics
	logger      *zap.Logger
	soonDays    int
	aiTimeout   time.Duration
	now         func() time.Time
}

// New returns a Scanner over c.
func New(c Components) *Scanner {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Inspector == nil {
		c.Inspector = checker.NewInspector(constants.TLSTimeout, checker.FingerprintStandard, c.Logger)
	}
	if c.SoonExpiryDays <= 0 {
		c.SoonExpiryDays = constants.TLSSoonExpiryDays
	}
	if c.AITimeout <= 0 {
		c.AITimeout = constants.AITimeout
	}
	return &Scanner{
		inspector:   c.Inspector,
		fetcher:     c.Fetcher,
		prober:      c.Prober,
		blind:       c.Blind,
		recommender: c.Recommender,
		metrics:     c.Metrics,
		logger:      c.Logger,
		soonDays:    c.SoonExpiryDays,
		aiTimeout:   c.AITimeout,
		now:         time.Now,
	}
}

// Scan runs every stage against rawURL. It returns an error wrapping
// ErrInvalidTarget before any I/O when rawURL is not an absolute http(s) URL,
// and one wrapping ErrUnreachable when the page cannot be fetched. Every
// other stage failure is recorded in the report.
func (s *Scanner) Scan(ctx context.Context, rawURL string) (rep *report.ScanReport, err error) {
	started := s.now()
	outcome := telemetry.OutcomeCompleted
	defer func() {
		var findings []finding.Finding
		if rep != nil {
			findings = rep.Vulnerabilities
		}
		s.metrics.ObserveScan(outcome, s.now().Sub(started), findings)
	}()

	target, err := checker.ParseScanTarget(rawURL)
	if err != nil {
		outcome = telemetry.OutcomeInvalid
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "scan", attribute.String("target", target.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	logger := s.logger.With(zap.String("target", target.String()))
	logger.Info("scan started")

	var findings finding.List
	rep = &report.ScanReport{
		ID:        uuid.NewString(),
		Target:    target.String(),
		StartedAt: started,
	}

	if target.IsHTTPS() {
		info := s.inspectTLS(ctx, target)
		rep.TLS = &info
		for _, f := range checker.CertificateFindings(info, s.soonDays) {
			findings.Add(f)
		}
	}

	page, err := s.fetch(ctx, target)
	if err != nil {
		outcome = telemetry.OutcomeUnreachable
		if ctx.Err() != nil {
			outcome = telemetry.OutcomeCancelled
		}
		logger.Warn("fetch failed", zap.Error(err))
		return nil, err
	}
	rep.Headers = page.Headers
	rep.Fetch = report.FetchInfo{
		Source:     string(page.Source),
		FinalURL:   page.FinalURL,
		StatusCode: page.StatusCode,
		Attempts:   page.Attempts,
	}

	for _, f := range checker.AnalyzeHeaders(page.Headers) {
		findings.Add(f)
	}
	for _, f := range checker.MixedContentFindings(target, page.HTML) {
		findings.Add(f)
	}
	for _, f := range checker.DisclosureFindings(page.Headers) {
		findings.Add(f)
	}

	inventory, invErr := checker.InventoryForms(page.HTML)
	if invErr != nil {
		logger.Debug("form inventory failed", zap.Error(invErr))
	} else {
		rep.Forms = &inventory
	}

	if s.shouldProbe(page, rep.Forms) {
		if f, ok := s.probeLogin(ctx, target); ok {
			findings.Add(f)
		}
	} else if s.prober != nil {
		logger.Debug("rendered page has no password input, skipping SQL probe")
	}

	if s.blind != nil {
		if f, ok := s.probeBlind(ctx, target); ok {
			findings.Add(f)
		}
	}

	rep.Vulnerabilities = findings.Items()
	rep.Summary = report.Summarize(rep.Vulnerabilities)

	if s.recommender != nil {
		rep.AI = s.recommend(ctx, target, page.Headers, rep.Vulnerabilities)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		outcome = telemetry.OutcomeCancelled
		return nil, fmt.Errorf("scan cancelled: %w", ctxErr)
	}

	rep.GeneratedAt = s.now()
	rep.DurationMS = rep.GeneratedAt.Sub(started).Milliseconds()
	logger.Info("scan completed",
		zap.String("report_id", rep.ID),
		zap.Int("findings", rep.Summary.Total),
		zap.Int64("duration_ms", rep.DurationMS),
	)
	return rep, nil
}

func (s *Scanner) inspectTLS(ctx context.Context, target *checker.ScanTarget) checker.CertificateInfo {
	ctx, span := telemetry.StartSpan(ctx, "tls")
	info := s.inspector.Inspect(ctx, target.Host(), target.PortNumber())
	var err error
	if !info.OK {
		err = errors.New(info.Error)
	}
	telemetry.EndSpan(span, err)
	return info
}

func (s *Scanner) fetch(ctx context.Context, target *checker.ScanTarget) (*fetch.Outcome, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured", secerrors.ErrUnreachable)
	}
	ctx, span := telemetry.StartSpan(ctx, "fetch")
	page, err := s.fetcher.Fetch(ctx, target)
	if err == nil {
		span.SetAttributes(
			attribute.String("source", string(page.Source)),
			attribute.Int("attempts", page.Attempts),
		)
	}
	telemetry.EndSpan(span, err)
	return page, err
}

// shouldProbe skips the browser probe when a rendered snapshot, which already
// reflects the live DOM, shows no password input.
func (s *Scanner) shouldProbe(page *fetch.Outcome, forms *checker.FormInventory) bool {
	if s.prober == nil {
		return false
	}
	if page.Source == fetch.SourceRendered && forms != nil && forms.PasswordInputs == 0 {
		return false
	}
	return true
}

func (s *Scanner) probeLogin(ctx context.Context, target *checker.ScanTarget) (finding.Finding, bool) {
	ctx, span := telemetry.StartSpan(ctx, "sql_probe")
	defer telemetry.EndSpan(span, nil)

	result := s.prober.Probe(ctx, target.String())
	span.SetAttributes(
		attribute.Bool("vulnerable", result.Vulnerable),
		attribute.Int("tested_payloads", len(result.TestedPayloads)),
	)
	f, ok := sqlprobe.ToFinding(result)
	if ok {
		s.metrics.ProbeVulnerable()
	}
	return f, ok
}

func (s *Scanner) probeBlind(ctx context.Context, target *checker.ScanTarget) (finding.Finding, bool) {
	ctx, span := telemetry.StartSpan(ctx, "blind_sql_probe")
	defer telemetry.EndSpan(span, nil)
	return sqlprobe.BlindFinding(s.blind.Probe(ctx, target.String()))
}

func (s *Scanner) recommend(ctx context.Context, target *checker.ScanTarget, headers checker.Headers, findings []finding.Finding) *report.AIResult {
	ctx, cancel := context.WithTimeout(ctx, s.aiTimeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "recommend")

	recs, err := s.recommender.Generate(ctx, ai.Input{
		Target:   target.String(),
		Headers:  headers,
		Findings: findings,
	})
	telemetry.EndSpan(span, err)
	if err != nil {
		s.metrics.AIFailed()
		s.logger.Warn("recommendation failed", zap.String("target", target.String()), zap.Error(err))
		return &report.AIResult{
			Summary: ai.FallbackSummary,
			Items:   []ai.Recommendation{},
			Error:   secerrors.ErrEnrichmentFailed.Error(),
			Info:    err.Error(),
		}
	}
	items := recs.Items
	if items == nil {
		items = []ai.Recommendation{}
	}
	return &report.AIResult{Summary: recs.Summary, Items: items}
}
