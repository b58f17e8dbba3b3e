package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/secora/internal/browser"
	"github.com/khanhnv2901/secora/internal/checker"
	"github.com/khanhnv2901/secora/internal/shared/constants"
	secerrors "github.com/khanhnv2901/secora/internal/shared/errors"
)

// Source names the tier that produced an Outcome.
type Source string

const (
	SourceDirect   Source = "direct"
	SourceRendered Source = "rendered"
)

// Outcome is the successful result of Fetch. Headers are normalized once and
// must not be modified afterwards.
type Outcome struct {
	Source     Source
	HTML       string
	Headers    checker.Headers
	FinalURL   string
	StatusCode int
	Attempts   int
}

// Disabled turns off MaxRedirects, Retries or BackoffJitter, whose zero
// values select the defaults.
const Disabled = -1

// Config tunes the fetch pipeline. Zero values take the DefaultConfig
// settings; set a count or jitter to Disabled to turn it off.
type Config struct {
	DirectTimeout time.Duration
	MaxRedirects  int
	RenderTimeout time.Duration
	RenderSettle  time.Duration
	// Retries is the number of extra attempts after the first.
	Retries       int
	BackoffBase   time.Duration
	BackoffJitter time.Duration
	Browser       browser.Options
	Logger        *zap.Logger
}

// DefaultConfig returns the standard fetch settings.
func DefaultConfig() Config {
	return Config{
		DirectTimeout: constants.DirectTimeout,
		MaxRedirects:  constants.DirectMaxRedirects,
		RenderTimeout: constants.RenderTimeout,
		RenderSettle:  constants.RenderSettle,
		Retries:       constants.FetchRetries,
		BackoffBase:   constants.BackoffBase,
		BackoffJitter: constants.BackoffJitter,
	}
}

// Fetcher retrieves a page through the direct tier, falling back to rendering.
type Fetcher struct {
	direct   *DirectClient
	renderer Renderer
	retries  int
	backoff  Backoff
	sleeper  Sleeper
	logger   *zap.Logger
	observer func(source Source, attempts int, err error)
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithRenderer replaces the Chrome renderer.
func WithRenderer(r Renderer) Option {
	return func(f *Fetcher) { f.renderer = r }
}

// WithSleeper replaces the wall-clock sleeper used between attempts.
func WithSleeper(s Sleeper) Option {
	return func(f *Fetcher) { f.sleeper = s }
}

// WithObserver registers a callback invoked once per Fetch with its result.
func WithObserver(fn func(source Source, attempts int, err error)) Option {
	return func(f *Fetcher) { f.observer = fn }
}

// New builds a Fetcher from cfg.
func New(cfg Config, opts ...Option) *Fetcher {
	cfg = cfg.withDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Fetcher{
		direct: NewDirectClient(cfg.DirectTimeout, cfg.MaxRedirects),
		renderer: &ChromeRenderer{
			Browser:    cfg.Browser,
			NavTimeout: cfg.RenderTimeout,
			Settle:     cfg.RenderSettle,
			Logger:     logger,
		},
		retries: cfg.Retries,
		backoff: Backoff{Base: cfg.BackoffBase, Jitter: cfg.BackoffJitter},
		sleeper: realSleeper{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// withDefaults fills zero fields from DefaultConfig and resolves Disabled.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DirectTimeout <= 0 {
		c.DirectTimeout = def.DirectTimeout
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = def.RenderTimeout
	}
	if c.RenderSettle <= 0 {
		c.RenderSettle = def.RenderSettle
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	c.MaxRedirects = orDefault(c.MaxRedirects, def.MaxRedirects)
	c.Retries = orDefault(c.Retries, def.Retries)
	switch {
	case c.BackoffJitter == 0:
		c.BackoffJitter = def.BackoffJitter
	case c.BackoffJitter < 0:
		c.BackoffJitter = 0
	}
	return c
}

func orDefault(v, def int) int {
	switch {
	case v == 0:
		return def
	case v < 0:
		return 0
	}
	return v
}

// Fetch retrieves target, retrying failed attempts with backoff. After the
// last attempt fails, or when ctx is cancelled, it returns an error wrapping
// ErrUnreachable and the underlying cause.
func (f *Fetcher) Fetch(ctx context.Context, target *checker.ScanTarget) (out *Outcome, err error) {
	maxAttempts := f.retries + 1
	attempts := 0
	defer func() {
		if f.observer != nil {
			var src Source
			if out != nil {
				src = out.Source
			}
			f.observer(src, attempts, err)
		}
	}()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", secerrors.ErrUnreachable, ctxErr)
		}

		attempts = attempt
		out, lastErr = f.attempt(ctx, target)
		if lastErr == nil {
			out.Attempts = attempt
			return out, nil
		}
		f.logger.Warn("fetch attempt failed",
			zap.String("target", target.String()),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)

		if attempt < maxAttempts {
			delay := f.backoff.Delay(attempt)
			if serr := f.sleeper.Sleep(ctx, delay); serr != nil {
				return nil, fmt.Errorf("%w: %w", secerrors.ErrUnreachable, serr)
			}
		}
	}
	return nil, fmt.Errorf("%w: %w", secerrors.ErrUnreachable, lastErr)
}

// attempt runs one direct-then-rendered pass.
func (f *Fetcher) attempt(ctx context.Context, target *checker.ScanTarget) (*Outcome, error) {
	rawURL := target.String()

	resp, directErr := f.direct.Get(ctx, rawURL)
	switch {
	case directErr != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Debug("direct fetch failed, rendering",
			zap.String("target", rawURL),
			zap.Error(directErr),
		)
	case fallbackReason(resp) != "":
		f.logger.Debug("falling back to rendered fetch",
			zap.String("target", rawURL),
			zap.String("reason", fallbackReason(resp)),
		)
	default:
		return &Outcome{
			Source:     SourceDirect,
			HTML:       resp.Body,
			Headers:    checker.NormalizeHeaders(resp.Header),
			FinalURL:   resp.FinalURL,
			StatusCode: resp.StatusCode,
		}, nil
	}

	page, err := f.renderer.Render(ctx, rawURL)
	if err != nil {
		if directErr != nil {
			return nil, fmt.Errorf("direct: %v; rendered: %w", directErr, err)
		}
		return nil, fmt.Errorf("rendered: %w", err)
	}

	headers := checker.HeadersFromMap(page.Headers)
	if page.Headers == nil && resp != nil {
		// The document response was never observed; the direct tier's view is
		// the closest we have.
		headers = checker.NormalizeHeaders(resp.Header)
	}
	finalURL := page.FinalURL
	if finalURL == "" {
		finalURL = rawURL
	}
	status := page.StatusCode
	if status == 0 && resp != nil {
		status = resp.StatusCode
	}
	return &Outcome{
		Source:     SourceRendered,
		HTML:       page.HTML,
		Headers:    headers,
		FinalURL:   finalURL,
		StatusCode: status,
	}, nil
}

// fallbackReason explains why a direct response is not usable, or "" if it is.
func fallbackReason(resp *DirectResponse) string {
	if resp.StatusCode >= 400 {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(ct, "text/html") {
		return fmt.Sprintf("content-type %q", ct)
	}
	return ""
}

// IsUnreachable reports whether err is the terminal fetch failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, secerrors.ErrUnreachable)
}
