package sqlprobe

import (
	"context"
	"time"

	"github.com/khanhnv2901/secora/internal/browser"
)

// Driver is the page automation a probe needs. *browser.Session implements it.
type Driver interface {
	Navigate(ctx context.Context, rawURL string, timeout time.Duration) error
	Exists(ctx context.Context, selector string) (bool, error)
	Type(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	WaitForNavigation(ctx context.Context, before string, wait time.Duration) error
	HTML(ctx context.Context) (string, error)
	Text(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
	Close() error
}

// DriverFactory opens a fresh Driver. The probe closes it when done.
type DriverFactory func(ctx context.Context) (Driver, error)

// ChromeDriver returns a factory launching a dedicated headless Chrome per probe.
func ChromeDriver(opts browser.Options) DriverFactory {
	return func(ctx context.Context) (Driver, error) {
		return browser.Launch(ctx, opts)
	}
}

var _ Driver = (*browser.Session)(nil)
