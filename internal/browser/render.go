package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// RenderResult is a snapshot of a page after scripts had time to run.
type RenderResult struct {
	HTML     string
	Headers  map[string]interface{}
	FinalURL string
	// StatusCode of the document response for the requested URL, 0 if unseen.
	StatusCode int
}

// Render navigates to rawURL, waits settle for deferred scripts, and captures
// the DOM, final location, and response headers of the requested URL.
func (s *Session) Render(ctx context.Context, rawURL string, navTimeout, settle time.Duration) (*RenderResult, error) {
	var (
		mu      sync.Mutex
		headers map[string]interface{}
		status  int
	)

	listenCtx, stopListening := context.WithCancel(s.ctx)
	defer stopListening()
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		e, ok := ev.(*network.EventResponseReceived)
		if !ok || e.Response == nil || !sameURL(e.Response.URL, rawURL) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if headers == nil {
			headers = map[string]interface{}(e.Response.Headers)
			status = int(e.Response.Status)
		}
	})

	if err := s.run(ctx, navTimeout, s.navigateDOMReady(rawURL)); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", rawURL, err)
	}

	var html, location string
	err := s.run(ctx, navTimeout,
		chromedp.Sleep(settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", rawURL, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if location == "" {
		location = rawURL
	}
	s.logger.Debug("page rendered",
		zap.String("url", rawURL),
		zap.String("final_url", location),
		zap.Int("status", status),
		zap.Int("html_bytes", len(html)),
	)
	return &RenderResult{
		HTML:       html,
		Headers:    headers,
		FinalURL:   location,
		StatusCode: status,
	}, nil
}

// sameURL compares two URLs ignoring the trailing slash Chrome adds to bare origins.
func sameURL(a, b string) bool {
	if a == b {
		return true
	}
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) &&
		strings.EqualFold(ua.Host, ub.Host) &&
		strings.TrimSuffix(ua.Path, "/") == strings.TrimSuffix(ub.Path, "/") &&
		ua.RawQuery == ub.RawQuery
}
