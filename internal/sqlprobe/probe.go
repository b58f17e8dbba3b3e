package sqlprobe

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/secora/internal/checker"
	"github.com/khanhnv2901/secora/internal/finding"
	"github.com/khanhnv2901/secora/internal/shared/constants"
)

// extractionPassword fills the password field during UNION replays.
const extractionPassword = "anything"

// Result is the outcome of one probe run. Lists are never nil.
type Result struct {
	Vulnerable     bool                    `json:"vulnerable"`
	Findings       []finding.ProbeEvidence `json:"findings"`
	TestedPayloads []string                `json:"testedPayloads"`
	ExtractedData  *finding.ExtractedData  `json:"extractedData,omitempty"`
}

func emptyResult() Result {
	return Result{
		Findings:       []finding.ProbeEvidence{},
		TestedPayloads: []string{},
	}
}

// Config tunes a Prober. Zero values take the package defaults.
type Config struct {
	Library           *Library
	NavigationTimeout time.Duration
	SubmitWait        time.Duration
	Logger            *zap.Logger
}

// Prober submits injection payloads through a login form.
type Prober struct {
	open       DriverFactory
	lib        *Library
	classifier *Classifier
	navTimeout time.Duration
	submitWait time.Duration
	logger     *zap.Logger
}

// NewProber validates cfg.Library and returns a Prober using open for each run.
func NewProber(open DriverFactory, cfg Config) (*Prober, error) {
	lib := cfg.Library
	if lib == nil {
		lib = DefaultLibrary()
	}
	classifier, err := NewClassifier(lib)
	if err != nil {
		return nil, err
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = constants.ProbeNavigationTimeout
	}
	if cfg.SubmitWait <= 0 {
		cfg.SubmitWait = constants.ProbeSubmitWait
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Prober{
		open:       open,
		lib:        lib,
		classifier: classifier,
		navTimeout: cfg.NavigationTimeout,
		submitWait: cfg.SubmitWait,
		logger:     cfg.Logger,
	}, nil
}

// Probe tests the login form at targetURL. It never fails: any setup error
// degrades to a non-vulnerable result, and per-payload errors are logged and
// skipped.
func (p *Prober) Probe(ctx context.Context, targetURL string) Result {
	res := emptyResult()
	logger := p.logger.With(zap.String("target", targetURL))

	drv, err := p.open(ctx)
	if err != nil {
		logger.Warn("sql probe could not start browser", zap.Error(err))
		return res
	}
	defer func() {
		if cerr := drv.Close(); cerr != nil {
			logger.Warn("sql probe browser teardown", zap.Error(cerr))
		}
	}()

	if err := drv.Navigate(ctx, targetURL, p.navTimeout); err != nil {
		logger.Warn("sql probe navigation failed", zap.Error(err))
		return res
	}
	hasForm, err := drv.Exists(ctx, checker.PasswordSelector)
	if err != nil {
		logger.Warn("sql probe form discovery failed", zap.Error(err))
		return res
	}
	if !hasForm {
		logger.Debug("no login form, skipping sql probe")
		return res
	}

	for _, payload := range p.lib.Payloads {
		if ctx.Err() != nil {
			logger.Info("sql probe cancelled", zap.Int("tested", len(res.TestedPayloads)))
			return res
		}
		evidence, err := p.tryPayload(ctx, drv, targetURL, payload)
		if err != nil {
			logger.Warn("payload test failed", zap.String("payload", payload), zap.Error(err))
			continue
		}
		if len(evidence) > 0 {
			res.Vulnerable = true
			res.Findings = append(res.Findings, evidence...)
		}
		res.TestedPayloads = append(res.TestedPayloads, payload)
	}

	if res.Vulnerable {
		res.ExtractedData = p.extract(ctx, drv, targetURL, logger)
	}
	return res
}

// fillAndSubmit loads the form fresh, types user and password, and submits.
// submitted is false when the form lacks a field or submit control.
func (p *Prober) fillAndSubmit(ctx context.Context, drv Driver, targetURL, user, password string) (submitted bool, err error) {
	if err := drv.Navigate(ctx, targetURL, p.navTimeout); err != nil {
		return false, err
	}
	for _, sel := range []string{checker.UsernameSelector, checker.PasswordSelector} {
		ok, err := drv.Exists(ctx, sel)
		if err != nil || !ok {
			return false, err
		}
	}
	if err := drv.Type(ctx, checker.UsernameSelector, user); err != nil {
		return false, err
	}
	if err := drv.Type(ctx, checker.PasswordSelector, password); err != nil {
		return false, err
	}

	ok, err := drv.Exists(ctx, checker.SubmitSelector)
	if err != nil || !ok {
		return false, err
	}
	before, err := drv.Location(ctx)
	if err != nil {
		before = targetURL
	}
	if err := drv.Click(ctx, checker.SubmitSelector); err != nil {
		return false, err
	}
	if err := drv.WaitForNavigation(ctx, before, p.submitWait); err != nil {
		return false, err
	}
	return true, nil
}

// tryPayload runs one payload and classifies the resulting page.
func (p *Prober) tryPayload(ctx context.Context, drv Driver, targetURL, payload string) ([]finding.ProbeEvidence, error) {
	submitted, err := p.fillAndSubmit(ctx, drv, targetURL, p.lib.Identity, payload)
	if err != nil || !submitted {
		return nil, err
	}

	var evidence []finding.ProbeEvidence

	content, err := drv.HTML(ctx)
	if err != nil {
		return nil, err
	}
	if p.classifier.HasDatabaseError(content) {
		evidence = append(evidence, finding.ProbeEvidence{
			Payload:  payload,
			Type:     TypeErrorBased,
			Evidence: evidenceErrorBased,
		})
	}

	location, err := drv.Location(ctx)
	if err != nil {
		return nil, err
	}
	text, err := drv.Text(ctx)
	if err != nil {
		return nil, err
	}
	if p.classifier.IsAuthBypass(targetURL, location, text) {
		evidence = append(evidence, finding.ProbeEvidence{
			Payload:  payload,
			Type:     TypeAuthBypass,
			Evidence: evidenceAuthBypass,
		})
	}
	return evidence, nil
}

// extract replays UNION payloads through the username field and returns the
// first credential-shaped match.
func (p *Prober) extract(ctx context.Context, drv Driver, targetURL string, logger *zap.Logger) *finding.ExtractedData {
	for _, payload := range p.lib.unionPayloads() {
		if ctx.Err() != nil {
			return nil
		}
		submitted, err := p.fillAndSubmit(ctx, drv, targetURL, payload, extractionPassword)
		if err != nil {
			logger.Debug("union payload failed", zap.String("payload", payload), zap.Error(err))
			continue
		}
		if !submitted {
			continue
		}
		text, err := drv.Text(ctx)
		if err != nil {
			logger.Debug("union payload read failed", zap.String("payload", payload), zap.Error(err))
			continue
		}
		if match := p.classifier.Extract(text); match != "" {
			return &finding.ExtractedData{
				Payload: payload,
				Data:    match,
				Note:    extractionNote,
			}
		}
	}
	return nil
}
