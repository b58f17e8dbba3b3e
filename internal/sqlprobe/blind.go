package sqlprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/secora/internal/finding"
)

// TypeTimeBased labels a blind, delay-based injection.
const TypeTimeBased = "Time-based Blind SQL Injection"

// BlindEvidence records a payload whose response was delayed past the threshold.
type BlindEvidence struct {
	Payload      string `json:"payload"`
	ResponseTime string `json:"responseTime"`
}

// BlindResult is the outcome of a time-based probe.
type BlindResult struct {
	Vulnerable bool            `json:"vulnerable"`
	Technique  string          `json:"technique,omitempty"`
	Evidence   []BlindEvidence `json:"evidence"`
}

// TimeBasedProbe posts delay payloads as JSON credentials and flags the
// endpoint when a response takes at least Threshold.
type TimeBasedProbe struct {
	Client    *http.Client
	Payloads  []string
	Threshold time.Duration
	Logger    *zap.Logger
}

// NewTimeBasedProbe returns a probe with a 10s request timeout and 5s threshold.
func NewTimeBasedProbe(lib *Library, logger *zap.Logger) *TimeBasedProbe {
	if lib == nil {
		lib = DefaultLibrary()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimeBasedProbe{
		Client:    &http.Client{Timeout: 10 * time.Second},
		Payloads:  lib.BlindPayloads,
		Threshold: 5 * time.Second,
		Logger:    logger,
	}
}

// Probe stops at the first delayed payload. Request errors, timeouts
// included, are expected and only the elapsed time matters.
func (b *TimeBasedProbe) Probe(ctx context.Context, targetURL string) BlindResult {
	res := BlindResult{Evidence: []BlindEvidence{}}

	for _, payload := range b.Payloads {
		if ctx.Err() != nil {
			return res
		}
		body, _ := json.Marshal(map[string]string{"username": payload, "password": "test"})

		start := time.Now()
		b.send(ctx, targetURL, body)
		elapsed := time.Since(start)

		if elapsed >= b.Threshold && ctx.Err() == nil {
			res.Vulnerable = true
			res.Technique = TypeTimeBased
			res.Evidence = append(res.Evidence, BlindEvidence{
				Payload:      payload,
				ResponseTime: fmt.Sprintf("%dms", elapsed.Milliseconds()),
			})
			return res
		}
	}
	return res
}

func (b *TimeBasedProbe) send(ctx context.Context, targetURL string, body []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		b.Logger.Debug("blind probe request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.Client.Do(req)
	if err != nil {
		b.Logger.Debug("blind probe send", zap.Error(err))
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// BlindFinding converts a vulnerable blind result into the sqli-02 finding.
func BlindFinding(r BlindResult) (finding.Finding, bool) {
	if !r.Vulnerable || len(r.Evidence) == 0 {
		return finding.Finding{}, false
	}
	first := r.Evidence[0]
	return finding.Finding{
		ID:          IDBlindSQL,
		Title:       "Time-based Blind SQL Injection",
		Severity:    finding.High,
		OWASP:       finding.OWASPInjection,
		Description: fmt.Sprintf("The login endpoint delayed its response by %s when sent a time-delay SQL payload.", first.ResponseTime),
		Remediation: "Use parameterized queries (prepared statements) for all database operations. Never concatenate user input directly into SQL queries.",
		Exploit: &finding.ExploitDetail{
			Loophole:       "Credentials posted to the endpoint reach a SQL query unparameterized.",
			AttackVector:   "An attacker infers database contents one bit at a time by conditionally delaying the response.",
			ExamplePayload: first.Payload,
		},
	}, true
}
