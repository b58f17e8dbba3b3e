package finding

// Severity represents the severity level of a security finding.
type Severity string

const (
	Critical Severity = "Critical"
	High     Severity = "High"
	Medium   Severity = "Medium"
	Low      Severity = "Low"
)

// IsValid reports whether s is a recognized severity level.
func (s Severity) IsValid() bool {
	switch s {
	case Critical, High, Medium, Low:
		return true
	}
	return false
}

// Score returns a numeric score for sorting and comparison.
// Critical=4, High=3, Medium=2, Low=1, Unknown=0.
func (s Severity) Score() int {
	switch s {
	case Critical:
		return 4
	case High:
		return 3
	case Medium:
		return 2
	case Low:
		return 1
	default:
		return 0
	}
}

func (s Severity) String() string {
	return string(s)
}

// Severities lists the recognized levels from most to least severe.
func Severities() []Severity {
	return []Severity{Critical, High, Medium, Low}
}
