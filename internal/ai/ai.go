// Package ai turns scan findings into prioritized remediation advice.
//
// The scan engine treats a Recommender as a best-effort collaborator: its
// errors are recorded in the report and never fail a scan.
package ai

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/secora/internal/checker"
	"github.com/khanhnv2901/secora/internal/finding"
	secerrors "github.com/khanhnv2901/secora/internal/shared/errors"
)

// Provider selects a Recommender implementation.
type Provider string

const (
	ProviderNone    Provider = "none"
	ProviderOffline Provider = "offline"
	ProviderOpenAI  Provider = "openai"
)

// FallbackSummary is reported when recommendations could not be generated.
const FallbackSummary = "AI suggestions unavailable right now. You can still review manual findings."

// Input is what a Recommender sees of a finished scan.
type Input struct {
	Target   string            `json:"target"`
	Headers  checker.Headers   `json:"headers"`
	Findings []finding.Finding `json:"findings"`
}

// Recommendation is one prioritized action.
type Recommendation struct {
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
	Remediation string `json:"remediation"`
	Severity    string `json:"severity"`
	ETA         string `json:"eta"`
}

// Recommendations is the advice for one scan.
type Recommendations struct {
	Summary string           `json:"summary"`
	Items   []Recommendation `json:"items"`
}

// Recommender generates advice for a scan.
type Recommender interface {
	Generate(ctx context.Context, in Input) (Recommendations, error)
}

// Config selects and configures a Recommender.
type Config struct {
	Provider Provider
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// New returns the Recommender for cfg.Provider, or nil for ProviderNone.
func New(cfg Config) (Recommender, error) {
	switch cfg.Provider {
	case ProviderNone:
		return nil, nil
	case "", ProviderOffline:
		return Offline{}, nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: ai.api_key is required for the openai provider", secerrors.ErrMissingRequired)
		}
		return NewOpenAIClient(cfg), nil
	}
	return nil, fmt.Errorf("%w: unknown ai provider %q", secerrors.ErrInvalidInput, cfg.Provider)
}
