package checker

import (
	"strings"

	"github.com/khanhnv2901/secora/internal/finding"
)

// IDMixedContent identifies the mixed-content finding.
const IDMixedContent = "misc-01"

var mixedContentMarkers = []string{
	`src="http:`,
	`src=http:`,
	`href="http:`,
}

// HasMixedContent reports whether html references plain-http resources.
// Matching is case-insensitive.
func HasMixedContent(html string) bool {
	lower := strings.ToLower(html)
	for _, marker := range mixedContentMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// MixedContentFindings returns misc-01 when an https page pulls http resources.
func MixedContentFindings(target *ScanTarget, html string) []finding.Finding {
	if target == nil || !target.IsHTTPS() || !HasMixedContent(html) {
		return nil
	}
	return []finding.Finding{{
		ID:          IDMixedContent,
		Title:       "Mixed content detected",
		Severity:    finding.Medium,
		Description: "Page includes HTTP resources while served over HTTPS (mixed content).",
		Remediation: "Serve all resources (scripts, images, CSS) over HTTPS.",
	}}
}
