package finding

// OWASP Top 10 (2021) categories referenced by the built-in checks.
const (
	OWASPInjection        = "A03:2021"
	OWASPMisconfiguration = "A05:2021"
	OWASPOutdated         = "A06:2021"
)

// Finding is a single reported security issue.
type Finding struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Severity    Severity       `json:"severity"`
	OWASP       string         `json:"owasp,omitempty"`
	Description string         `json:"description"`
	Impact      string         `json:"impact,omitempty"`
	Remediation string         `json:"remediation"`
	Exploit     *ExploitDetail `json:"exploit,omitempty"`
}

// ExploitDetail is attached only where a concrete attack was demonstrated.
type ExploitDetail struct {
	Loophole       string          `json:"loophole"`
	AttackVector   string          `json:"attackVector"`
	ExamplePayload string          `json:"examplePayload,omitempty"`
	TestedPayloads []string        `json:"testedPayloads,omitempty"`
	Findings       []ProbeEvidence `json:"findings,omitempty"`
	ExtractedData  *ExtractedData  `json:"extractedData,omitempty"`
}

// ProbeEvidence records one payload that triggered a positive classification.
type ProbeEvidence struct {
	Payload  string `json:"payload"`
	Type     string `json:"type"`
	Evidence string `json:"evidence"`
}

// ExtractedData is data surfaced by a UNION-based replay.
type ExtractedData struct {
	Payload string `json:"payload"`
	Data    string `json:"data"`
	Note    string `json:"note"`
}

// List is an append-only, order-preserving collection of findings.
type List struct {
	items []Finding
}

// Add appends findings in the order given.
func (l *List) Add(f ...Finding) {
	l.items = append(l.items, f...)
}

// Len returns the number of findings collected so far.
func (l *List) Len() int {
	return len(l.items)
}

// Items returns a copy of the collected findings.
func (l *List) Items() []Finding {
	out := make([]Finding, len(l.items))
	copy(out, l.items)
	return out
}

// IDs returns finding ids in discovery order.
func IDs(findings []Finding) []string {
	ids := make([]string, 0, len(findings))
	for _, f := range findings {
		ids = append(ids, f.ID)
	}
	return ids
}

// CountBySeverity tallies findings per severity. Every known level is present
// in the result, zero when unused.
func CountBySeverity(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int, 4)
	for _, s := range Severities() {
		counts[s] = 0
	}
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
