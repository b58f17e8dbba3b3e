// Package report defines the terminal artifact of a scan.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/khanhnv2901/secora/internal/ai"
	"github.com/khanhnv2901/secora/internal/checker"
	"github.com/khanhnv2901/secora/internal/finding"
	"github.com/khanhnv2901/secora/internal/shared/constants"
)

// FetchInfo records which tier produced the analyzed page.
type FetchInfo struct {
	Source     string `json:"source"`
	FinalURL   string `json:"finalUrl"`
	StatusCode int    `json:"statusCode,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
}

// AIResult is the outcome of the recommendation step. Error is set, and
// Summary holds the fallback text, when generation failed.
type AIResult struct {
	Summary string              `json:"summary"`
	Items   []ai.Recommendation `json:"items"`
	Error   string              `json:"error,omitempty"`
	Info    string              `json:"info,omitempty"`
}

// Failed reports whether the recommendation step failed.
func (r *AIResult) Failed() bool { return r != nil && r.Error != "" }

// Summary counts findings by severity.
type Summary struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Summarize builds a Summary from findings.
func Summarize(findings []finding.Finding) Summary {
	c := finding.CountBySeverity(findings)
	return Summary{
		Total:    len(findings),
		Critical: c[finding.Critical],
		High:     c[finding.High],
		Medium:   c[finding.Medium],
		Low:      c[finding.Low],
	}
}

// ScanReport is assembled once by the scanner and not modified after it is returned.
type ScanReport struct {
	ID              string                   `json:"id"`
	Target          string                   `json:"target"`
	Vulnerabilities []finding.Finding        `json:"vulnerabilities"`
	Headers         checker.Headers          `json:"headers"`
	TLS             *checker.CertificateInfo `json:"tls"`
	Fetch           FetchInfo                `json:"fetch"`
	Forms           *checker.FormInventory   `json:"forms,omitempty"`
	AI              *AIResult                `json:"ai"`
	Summary         Summary                  `json:"summary"`
	StartedAt       time.Time                `json:"startedAt"`
	GeneratedAt     time.Time                `json:"generatedAt"`
	DurationMS      int64                    `json:"durationMs"`
}

// WriteJSON writes r as indented JSON.
func (r *ScanReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// SaveJSON writes r to path, creating parent directories as needed.
func (r *ScanReport) SaveJSON(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, constants.DefaultDirPerm); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, constants.DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := r.WriteJSON(f); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}
