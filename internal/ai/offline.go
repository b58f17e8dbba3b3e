package ai

import (
	"context"
	"fmt"
	"sort"

	"github.com/khanhnv2901/secora/internal/finding"
)

// etaBySeverity is a rough time-to-fix per severity level.
var etaBySeverity = map[finding.Severity]string{
	finding.Critical: "1d",
	finding.High:     "1h",
	finding.Medium:   "1h",
	finding.Low:      "15m",
}

// Offline derives recommendations from the findings alone. It is
// deterministic and needs no network access.
type Offline struct{}

// Generate orders findings by severity (stable within a level) and summarizes them.
func (Offline) Generate(ctx context.Context, in Input) (Recommendations, error) {
	if err := ctx.Err(); err != nil {
		return Recommendations{}, err
	}

	sorted := make([]finding.Finding, len(in.Findings))
	copy(sorted, in.Findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Score() > sorted[j].Severity.Score()
	})

	items := make([]Recommendation, 0, len(sorted))
	for _, f := range sorted {
		items = append(items, Recommendation{
			Title:       f.Title,
			Explanation: f.Description,
			Remediation: f.Remediation,
			Severity:    string(f.Severity),
			ETA:         etaBySeverity[f.Severity],
		})
	}

	return Recommendations{Summary: summarize(in.Target, in.Findings), Items: items}, nil
}

func summarize(target string, findings []finding.Finding) string {
	if len(findings) == 0 {
		return fmt.Sprintf("No issues were detected on %s by the automated checks.", target)
	}
	counts := finding.CountBySeverity(findings)
	summary := fmt.Sprintf("%s has %d finding(s): %d critical, %d high, %d medium, %d low.",
		target, len(findings), counts[finding.Critical], counts[finding.High], counts[finding.Medium], counts[finding.Low])
	switch {
	case counts[finding.Critical] > 0:
		summary += " Address the critical items before anything else."
	case counts[finding.High] > 0:
		summary += " Start with the high severity items."
	default:
		summary += " The remaining items are hardening improvements."
	}
	return summary
}
