package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/khanhnv2901/secora/internal/shared/constants"
	secerrors "github.com/khanhnv2901/secora/internal/shared/errors"
)

const defaultActionTimeout = 10 * time.Second

// errShutdownTimeout is reported when Chrome had to be killed.
var errShutdownTimeout = errors.New("browser did not exit before shutdown timeout")

// Options configures a Chrome launch.
type Options struct {
	// ExecPath overrides Chrome discovery. Empty uses chromedp's lookup.
	ExecPath string
	// UserAgent is sent on every request. Defaults to constants.UserAgent.
	UserAgent string
	// Width and Height size the window. Default 1280x800.
	Width, Height int
	// Headful shows the window; mainly useful when debugging a probe.
	Headful bool
	// DisableStealth skips the automation-marker script.
	DisableStealth bool
	// LaunchTimeout bounds process start and initial setup.
	LaunchTimeout time.Duration
	// ActionTimeout bounds single page interactions that have no explicit limit.
	ActionTimeout time.Duration
	// ShutdownTimeout bounds graceful close before the process group is killed.
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.UserAgent == "" {
		o.UserAgent = constants.UserAgent
	}
	if o.Width <= 0 {
		o.Width = 1280
	}
	if o.Height <= 0 {
		o.Height = 800
	}
	if o.LaunchTimeout <= 0 {
		o.LaunchTimeout = constants.BrowserLaunchTimeout
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = defaultActionTimeout
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = constants.BrowserShutdownTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

func (o Options) allocatorOptions() []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	opts = append(opts, chromedp.DefaultExecAllocatorOptions[:]...)
	if o.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(o.Width, o.Height),
		chromedp.UserAgent(o.UserAgent),
	)
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	return opts
}

// Session is one running Chrome process with a single tab.
type Session struct {
	ctx           context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	opts          Options
	logger        *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Launch starts Chrome and prepares a tab: network events enabled, viewport
// set, and the stealth script registered for every new document. The
// returned Session must be closed by the caller on every path.
func Launch(ctx context.Context, opts Options) (*Session, error) {
	opts.applyDefaults()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:           browserCtx,
		allocCancel:   allocCancel,
		browserCancel: browserCancel,
		opts:          opts,
		logger:        opts.Logger,
	}

	// The first Run starts the process. It must not carry a timeout context,
	// or Chrome would be torn down when that context expires.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	var startErr error
	select {
	case startErr = <-started:
	case <-time.After(opts.LaunchTimeout):
		startErr = fmt.Errorf("chrome did not start within %s", opts.LaunchTimeout)
	case <-ctx.Done():
		startErr = ctx.Err()
	}
	if startErr != nil {
		closeErr := s.Close()
		return nil, fmt.Errorf("%w: %v", secerrors.ErrBrowserLaunch, multierr.Append(startErr, closeErr))
	}

	setup := []chromedp.Action{
		network.Enable(),
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
	}
	if !opts.DisableStealth {
		setup = append(setup, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}))
	}

	if err := s.run(ctx, opts.LaunchTimeout, setup...); err != nil {
		closeErr := s.Close()
		return nil, fmt.Errorf("%w: %v", secerrors.ErrBrowserLaunch, multierr.Append(err, closeErr))
	}

	s.logger.Debug("browser launched", zap.Int("pid", s.pid()))
	return s, nil
}

func (s *Session) process() *os.Process {
	if c := chromedp.FromContext(s.ctx); c != nil && c.Browser != nil {
		return c.Browser.Process()
	}
	return nil
}

func (s *Session) pid() int {
	if p := s.process(); p != nil {
		return p.Pid
	}
	return 0
}

// Close shuts Chrome down. If the graceful path has not finished within the
// shutdown timeout, the whole process group is killed. Close is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		// The process handle is gone once the contexts are cancelled.
		proc := s.process()

		done := make(chan error, 1)
		go func() {
			err := chromedp.Cancel(s.ctx)
			s.browserCancel()
			s.allocCancel()
			done <- err
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.closeErr = err
			}
		case <-time.After(s.opts.ShutdownTimeout):
			s.closeErr = multierr.Append(errShutdownTimeout, killProcessTree(proc))
			s.logger.Warn("browser force-killed", zap.Duration("timeout", s.opts.ShutdownTimeout))
		}
	})
	return s.closeErr
}

// run executes actions on the tab, bounded by timeout (ActionTimeout when
// zero) and by the caller's ctx. A caller cancellation is reported as the
// caller's context error.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = s.opts.ActionTimeout
	}
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
