package sqlprobe

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	secerrors "github.com/khanhnv2901/secora/internal/shared/errors"
)

// Classification labels.
const (
	TypeErrorBased = "Error-based SQL Injection"
	TypeAuthBypass = "Authentication Bypass"
)

// Evidence strings attached to classifications.
const (
	evidenceErrorBased = "SQL error messages detected in response"
	evidenceAuthBypass = "Successfully bypassed authentication"
	extractionNote     = "Potential credentials or data extracted"
)

// Classifier decides whether a post-submission page shows injection.
type Classifier struct {
	signatures     []*regexp.Regexp
	failureMarkers []string
	extraction     *regexp.Regexp
}

// NewClassifier compiles the library's patterns. Signatures are case-insensitive.
func NewClassifier(lib *Library) (*Classifier, error) {
	c := &Classifier{}
	for _, sig := range lib.ErrorSignatures {
		re, err := regexp.Compile("(?i)" + sig)
		if err != nil {
			return nil, fmt.Errorf("%w: error signature %q: %v", secerrors.ErrInvalidInput, sig, err)
		}
		c.signatures = append(c.signatures, re)
	}
	for _, m := range lib.FailureMarkers {
		c.failureMarkers = append(c.failureMarkers, strings.ToLower(m))
	}
	re, err := regexp.Compile(lib.ExtractionPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: extraction pattern: %v", secerrors.ErrInvalidInput, err)
	}
	c.extraction = re
	return c, nil
}

// HasDatabaseError reports whether content contains a known database error signature.
func (c *Classifier) HasDatabaseError(content string) bool {
	for _, re := range c.signatures {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// IsAuthBypass reports whether the submission moved away from the login page
// without the page text complaining about the credentials.
func (c *Classifier) IsAuthBypass(targetURL, finalURL, pageText string) bool {
	if finalURL == "" || sameLocation(finalURL, targetURL) {
		return false
	}
	text := strings.ToLower(pageText)
	for _, marker := range c.failureMarkers {
		if strings.Contains(text, marker) {
			return false
		}
	}
	return true
}

// Extract returns the first credential-shaped match in content, or "".
func (c *Classifier) Extract(content string) string {
	return c.extraction.FindString(content)
}

// sameLocation compares URLs ignoring the trailing slash browsers add to bare origins.
func sameLocation(a, b string) bool {
	if a == b {
		return true
	}
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return strings.EqualFold(ua.Host, ub.Host) &&
		strings.EqualFold(ua.Scheme, ub.Scheme) &&
		strings.TrimSuffix(ua.Path, "/") == strings.TrimSuffix(ub.Path, "/") &&
		ua.RawQuery == ub.RawQuery
}
