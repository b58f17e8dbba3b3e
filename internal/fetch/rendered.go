package fetch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/secora/internal/browser"
	"github.com/khanhnv2901/secora/internal/shared/constants"
)

// Renderer produces a fully rendered page. Each call owns its own browser.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (*browser.RenderResult, error)
}

// ChromeRenderer launches a fresh headless Chrome for every Render call.
type ChromeRenderer struct {
	Browser    browser.Options
	NavTimeout time.Duration
	Settle     time.Duration
	Logger     *zap.Logger
}

// Render launches Chrome, renders rawURL and always tears the browser down.
func (c *ChromeRenderer) Render(ctx context.Context, rawURL string) (*browser.RenderResult, error) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	nav := c.NavTimeout
	if nav <= 0 {
		nav = constants.RenderTimeout
	}
	settle := c.Settle
	if settle <= 0 {
		settle = constants.RenderSettle
	}

	opts := c.Browser
	if opts.Logger == nil {
		opts.Logger = logger
	}
	session, err := browser.Launch(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("browser teardown", zap.String("url", rawURL), zap.Error(cerr))
		}
	}()

	return session.Render(ctx, rawURL, nav, settle)
}
