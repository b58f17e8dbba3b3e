package sqlprobe

import "github.com/khanhnv2901/secora/internal/finding"

// Finding ids produced by this package.
const (
	IDSQLInjection = "sqli-01"
	IDBlindSQL     = "sqli-02"
)

// defaultExamplePayload is shown when no positive payload was recorded.
const defaultExamplePayload = "' OR '1'='1' --"

// ToFinding condenses a vulnerable result into the sqli-01 finding.
// It returns false when the result is not vulnerable.
func ToFinding(r Result) (finding.Finding, bool) {
	if !r.Vulnerable {
		return finding.Finding{}, false
	}

	example := defaultExamplePayload
	if len(r.Findings) > 0 && r.Findings[0].Payload != "" {
		example = r.Findings[0].Payload
	}

	return finding.Finding{
		ID:          IDSQLInjection,
		Title:       "SQL Injection Vulnerability",
		Severity:    finding.Critical,
		OWASP:       finding.OWASPInjection,
		Description: "The application is vulnerable to SQL Injection attacks. User input is not properly sanitized before being used in SQL queries.",
		Impact:      "Attackers can bypass authentication, extract sensitive data including passwords, modify or delete database records, and potentially execute system commands.",
		Remediation: "Use parameterized queries (prepared statements) for all database operations. Never concatenate user input directly into SQL queries. Implement input validation and use an ORM framework.",
		Exploit: &finding.ExploitDetail{
			Loophole:       "User input from login forms is directly concatenated into SQL queries without proper sanitization or parameterization.",
			AttackVector:   "An attacker can inject SQL commands through input fields that manipulate the query logic to bypass authentication or extract data.",
			ExamplePayload: example,
			TestedPayloads: r.TestedPayloads,
			Findings:       r.Findings,
			ExtractedData:  r.ExtractedData,
		},
	}, true
}
