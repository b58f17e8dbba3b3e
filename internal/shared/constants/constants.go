package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

// UserAgent is sent by both the direct client and the rendering engine so the
// target sees one consistent desktop browser.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// AcceptHTML is the Accept header of the direct fetch path.
const AcceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

const (
	// TLSTimeout bounds the certificate inspection handshake.
	TLSTimeout = 5 * time.Second
	// TLSSoonExpiryDays flags certificates expiring within this many days.
	TLSSoonExpiryDays = 14

	// DirectTimeout bounds the lightweight HTTP fetch.
	DirectTimeout = 12 * time.Second
	// DirectMaxRedirects caps redirects followed by the direct client.
	DirectMaxRedirects = 5
	// MaxBodyBytes caps how much HTML the direct client reads.
	MaxBodyBytes = 5 << 20

	// RenderTimeout bounds a rendered navigation.
	RenderTimeout = 25 * time.Second
	// RenderSettle lets deferred scripts run before the DOM snapshot.
	RenderSettle = 1200 * time.Millisecond
	// BrowserLaunchTimeout bounds Chrome start-up and tab setup.
	BrowserLaunchTimeout = 20 * time.Second
	// BrowserShutdownTimeout is how long teardown may block before the
	// Chrome process group is killed.
	BrowserShutdownTimeout = 5 * time.Second

	// FetchRetries is the number of retries after the first fetch attempt.
	FetchRetries = 2
	// BackoffBase is the delay before the first retry.
	BackoffBase = 600 * time.Millisecond
	// BackoffJitter is the exclusive upper bound of random jitter per retry.
	BackoffJitter = 100 * time.Millisecond

	// ProbeNavigationTimeout bounds the probe's initial page load.
	ProbeNavigationTimeout = 30 * time.Second
	// ProbeSubmitWait bounds the navigation wait after each payload submission.
	ProbeSubmitWait = 5 * time.Second

	// AITimeout bounds a recommendation request.
	AITimeout = 30 * time.Second
)
