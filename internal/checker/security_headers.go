package checker

import (
	"fmt"
	"strings"

	"github.com/khanhnv2901/secora/internal/finding"
)

// Header finding ids. They are stable across scans.
const (
	IDMissingCSP         = "hdr-01"
	IDPermissiveCSP      = "hdr-01b"
	IDMissingHSTS        = "hdr-02"
	IDMissingFrameGuard  = "hdr-03"
	IDMissingNoSniff     = "hdr-04"
	IDMissingReferrer    = "hdr-05"
	IDMissingPermissions = "hdr-06"
	IDServerDisclosure   = "hdr-07-server"
	IDPoweredByHeader    = "hdr-08-xpb"
)

// headerRule is one entry of the ordered header ruleset. check returns true
// when the finding applies to h.
type headerRule struct {
	check   func(h Headers) bool
	finding finding.Finding
}

// headerRules is evaluated top to bottom; output order follows this slice.
var headerRules = []headerRule{
	{
		check: func(h Headers) bool { return h.Get("content-security-policy") == "" },
		finding: finding.Finding{
			ID:          IDMissingCSP,
			Title:       "Missing Content-Security-Policy",
			Severity:    finding.High,
			OWASP:       finding.OWASPMisconfiguration,
			Description: "No CSP header found; increases risk of XSS and data injection.",
			Remediation: "Add a restrictive Content-Security-Policy. Example: Content-Security-Policy: default-src 'self'; script-src 'self' https://trusted-cdn.example.com; object-src 'none';",
		},
	},
	{
		check: func(h Headers) bool {
			csp := h.Get("content-security-policy")
			return csp != "" && (strings.Contains(csp, "*") || strings.Contains(csp, "unsafe-inline"))
		},
		finding: finding.Finding{
			ID:          IDPermissiveCSP,
			Title:       "Permissive Content-Security-Policy",
			Severity:    finding.Medium,
			OWASP:       finding.OWASPMisconfiguration,
			Description: "CSP appears permissive (unsafe-inline or wildcard), lowering effectiveness.",
			Remediation: "Tighten CSP: avoid 'unsafe-inline' and wildcards; specify trusted sources.",
		},
	},
	{
		check: func(h Headers) bool { return h.Get("strict-transport-security") == "" },
		finding: finding.Finding{
			ID:          IDMissingHSTS,
			Title:       "Missing HSTS header",
			Severity:    finding.Medium,
			OWASP:       finding.OWASPOutdated,
			Description: "Strict-Transport-Security not set; site may allow insecure connections.",
			Remediation: "Add Strict-Transport-Security: max-age=63072000; includeSubDomains; preload",
		},
	},
	{
		check: func(h Headers) bool {
			return h.Get("x-frame-options") == "" &&
				!strings.Contains(strings.ToLower(h.Get("content-security-policy")), "frame-ancestors")
		},
		finding: finding.Finding{
			ID:          IDMissingFrameGuard,
			Title:       "Missing clickjacking protection",
			Severity:    finding.Medium,
			OWASP:       finding.OWASPMisconfiguration,
			Description: "No X-Frame-Options or CSP frame-ancestors; page may be embedded in frames.",
			Remediation: "Add X-Frame-Options: DENY or set CSP frame-ancestors 'none'.",
			Exploit: &finding.ExploitDetail{
				Loophole:       "The page does not restrict which origins may embed it in a frame.",
				AttackVector:   "An attacker loads the page in a transparent iframe on a hostile site and tricks the user into clicking hidden controls.",
				ExamplePayload: `<iframe src="TARGET" style="opacity:0;position:absolute;top:0;left:0;width:100%;height:100%"></iframe>`,
			},
		},
	},
	{
		check: func(h Headers) bool { return h.Get("x-content-type-options") == "" },
		finding: finding.Finding{
			ID:          IDMissingNoSniff,
			Title:       "Missing X-Content-Type-Options",
			Severity:    finding.Low,
			OWASP:       finding.OWASPOutdated,
			Description: "No X-Content-Type-Options header; some MIME sniffing risk remains.",
			Remediation: "Add X-Content-Type-Options: nosniff",
		},
	},
	{
		check: func(h Headers) bool { return h.Get("referrer-policy") == "" },
		finding: finding.Finding{
			ID:          IDMissingReferrer,
			Title:       "Missing Referrer-Policy",
			Severity:    finding.Low,
			Description: "No Referrer-Policy header detected.",
			Remediation: "Add Referrer-Policy: no-referrer-when-downgrade or strict-origin-when-cross-origin",
		},
	},
	{
		check: func(h Headers) bool {
			return h.Get("permissions-policy") == "" && h.Get("feature-policy") == ""
		},
		finding: finding.Finding{
			ID:          IDMissingPermissions,
			Title:       "Missing Permissions-Policy (Feature-Policy)",
			Severity:    finding.Low,
			Description: "No Permissions-Policy found; site may expose unnecessary features.",
			Remediation: "Add Permissions-Policy header to restrict camera/gyroscope/usb etc. to trusted origins.",
		},
	},
}

// AnalyzeHeaders evaluates normalized response headers against the security
// header ruleset. It is pure: the same input always yields the same findings
// in the same order, and h is never modified.
func AnalyzeHeaders(h Headers) []finding.Finding {
	findings := make([]finding.Finding, 0, len(headerRules))
	for _, rule := range headerRules {
		if rule.check(h) {
			findings = append(findings, cloneFinding(rule.finding))
		}
	}
	return findings
}

// DisclosureFindings reports response headers that leak server or framework details.
func DisclosureFindings(h Headers) []finding.Finding {
	var findings []finding.Finding

	if server := h.Get("server"); server != "" {
		findings = append(findings, finding.Finding{
			ID:          IDServerDisclosure,
			Title:       "Server header present",
			Severity:    finding.Low,
			Description: fmt.Sprintf("Server header discloses server info: %s", server),
			Remediation: "Consider removing or obfuscating the Server header.",
		})
	}

	// Presence alone is reported, even with an empty value.
	if h.Has("x-powered-by") {
		xpb := h.Get("x-powered-by")
		findings = append(findings, finding.Finding{
			ID:          IDPoweredByHeader,
			Title:       "X-Powered-By header present",
			Severity:    finding.Low,
			Description: fmt.Sprintf("X-Powered-By header: %s", xpb),
			Remediation: "Remove X-Powered-By header to avoid disclosing framework info.",
		})
	}

	return findings
}

// cloneFinding copies the exploit detail so callers cannot mutate the ruleset.
func cloneFinding(f finding.Finding) finding.Finding {
	if f.Exploit != nil {
		e := *f.Exploit
		f.Exploit = &e
	}
	return f
}
