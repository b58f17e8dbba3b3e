package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// pollInterval paces WaitForNavigation.
const pollInterval = 100 * time.Millisecond

// Navigate loads rawURL in the session tab and returns once the document
// fired DOMContentLoaded. Images, fonts and other subresources may still be
// loading.
func (s *Session) Navigate(ctx context.Context, rawURL string, timeout time.Duration) error {
	return s.run(ctx, timeout, s.navigateDOMReady(rawURL))
}

func (s *Session) navigateDOMReady(rawURL string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		loaded := make(chan struct{}, 1)
		listenCtx, stop := context.WithCancel(s.ctx)
		defer stop()
		chromedp.ListenTarget(listenCtx, func(ev interface{}) {
			if _, ok := ev.(*page.EventDomContentEventFired); ok {
				select {
				case loaded <- struct{}{}:
				default:
				}
			}
		})

		_, _, errorText, _, err := page.Navigate(rawURL).Do(ctx)
		switch {
		case err != nil:
			return err
		case errorText != "":
			return fmt.Errorf("page load error %s", errorText)
		}

		select {
		case <-loaded:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// Exists reports whether selector matches at least one element.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	expr := fmt.Sprintf("document.querySelector(%s) !== null", jsString(selector))
	if err := s.run(ctx, 0, chromedp.Evaluate(expr, &found)); err != nil {
		return false, err
	}
	return found, nil
}

// Type sends text as keystrokes to the first element matching selector.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	return s.run(ctx, 0, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

// Click clicks the first element matching selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, 0, chromedp.Click(selector, chromedp.ByQuery))
}

// WaitForNavigation waits until the location differs from before and the
// new document is parsed, or wait elapses. Elapsing is not an error:
// many login forms answer in place.
func (s *Session) WaitForNavigation(ctx context.Context, before string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		var state struct {
			Href  string `json:"href"`
			Ready string `json:"ready"`
		}
		// Evaluation fails while the old document is being torn down.
		err := s.run(ctx, pollInterval*5, chromedp.Evaluate(
			`({href: location.href, ready: document.readyState})`, &state))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if state.Href != before && state.Ready != "loading" {
			return nil
		}
	}
	return nil
}

// HTML returns the serialized document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Text returns the visible body text.
func (s *Session) Text(ctx context.Context) (string, error) {
	var text string
	err := s.run(ctx, 0, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	return text, err
}

// Location returns the current URL of the tab.
func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, 0, chromedp.Location(&loc))
	return loc, err
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
