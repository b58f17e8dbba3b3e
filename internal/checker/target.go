package checker

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	secerrors "github.com/khanhnv2901/secora/internal/shared/errors"
)

// ScanTarget is a validated absolute http(s) URL. It is immutable once built.
type ScanTarget struct {
	raw    string
	url    *url.URL
	scheme string
	host   string
	port   string
	portN  int
	path   string
}

// ParseScanTarget validates raw and derives host, port and path.
// Any scheme other than http or https, or an empty host, yields ErrInvalidTarget.
// This handles inputs such as:
//   - https://example.com
//   - http://example.com:8080/login
func ParseScanTarget(raw string) (*ScanTarget, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty url", secerrors.ErrInvalidTarget)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", secerrors.ErrInvalidTarget, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", secerrors.ErrInvalidTarget, parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", secerrors.ErrInvalidTarget)
	}

	port := parsed.Port()
	if port == "" {
		port = defaultPort(scheme)
	}
	portN, err := strconv.Atoi(port)
	if err != nil || portN < 1 || portN > 65535 {
		return nil, fmt.Errorf("%w: invalid port %q", secerrors.ErrInvalidTarget, port)
	}

	path := parsed.Path
	if path == "" {
		path = "/"
	}

	parsed.Scheme = scheme
	return &ScanTarget{
		raw:    trimmed,
		url:    parsed,
		scheme: scheme,
		host:   parsed.Hostname(),
		port:   port,
		portN:  portN,
		path:   path,
	}, nil
}

func defaultPort(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}

// String returns the normalized URL.
func (t *ScanTarget) String() string { return t.url.String() }

// Raw returns the input exactly as given, minus surrounding whitespace.
func (t *ScanTarget) Raw() string { return t.raw }

// Scheme returns "http" or "https".
func (t *ScanTarget) Scheme() string { return t.scheme }

// Host returns the bare hostname without port.
func (t *ScanTarget) Host() string { return t.host }

// Port returns the explicit port or the scheme default.
func (t *ScanTarget) Port() string { return t.port }

// PortNumber returns Port as an integer in 1..65535.
func (t *ScanTarget) PortNumber() int { return t.portN }

// Path returns the request path, "/" when empty.
func (t *ScanTarget) Path() string { return t.path }

// IsHTTPS reports whether the target uses TLS.
func (t *ScanTarget) IsHTTPS() bool { return t.scheme == "https" }

// Address returns host:port suitable for dialing.
func (t *ScanTarget) Address() string { return net.JoinHostPort(t.host, t.port) }

// URL returns a copy of the parsed URL.
func (t *ScanTarget) URL() *url.URL {
	u := *t.url
	return &u
}
