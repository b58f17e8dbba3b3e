package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"

	"github.com/khanhnv2901/secora/internal/shared/constants"
)

// DirectResponse is what the direct tier saw. Non-2xx statuses are data, not errors.
type DirectResponse struct {
	StatusCode int
	Header     http.Header
	Body       string
	FinalURL   string
}

// DirectClient performs the lightweight GET of the fetch pipeline.
type DirectClient struct {
	client       *http.Client
	maxBodyBytes int64
}

// NewDirectClient builds a client with a cookie jar and a redirect cap.
func NewDirectClient(timeout time.Duration, maxRedirects int) *DirectClient {
	if timeout <= 0 {
		timeout = constants.DirectTimeout
	}
	if maxRedirects < 0 {
		maxRedirects = constants.DirectMaxRedirects
	}
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	return &DirectClient{
		client: &http.Client{
			Timeout: timeout,
			Jar:     jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		maxBodyBytes: constants.MaxBodyBytes,
	}
}

// Get fetches rawURL with browser-like headers. The body is decoded to UTF-8
// according to its declared or sniffed charset and truncated at the body cap.
func (d *DirectClient) Get(ctx context.Context, rawURL string) (*DirectResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", constants.UserAgent)
	req.Header.Set("Accept", constants.AcceptHTML)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, d.maxBodyBytes)
	reader, err := charset.NewReader(limited, resp.Header.Get("Content-Type"))
	if err != nil {
		// Unknown charset label; keep the raw bytes.
		reader = limited
	}
	body, err := io.ReadAll(reader)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &DirectResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       string(body),
		FinalURL:   resp.Request.URL.String(),
	}, nil
}
