package cmd

import (
	"strings"

	"github.com/fatih/color"

	"github.com/khanhnv2901/secora/internal/finding"
)

var (
	colorSuccess  = color.New(color.FgGreen).SprintFunc()
	colorInfo     = color.New(color.FgCyan).SprintFunc()
	colorWarn     = color.New(color.FgYellow).SprintFunc()
	colorError    = color.New(color.FgRed).SprintFunc()
	colorCritical = color.New(color.FgHiRed, color.Bold).SprintFunc()
)

func formatStatusWithColor(status string) string {
	switch strings.ToLower(status) {
	case "ok", "success", "pass", "completed":
		return colorSuccess(status)
	case "error", "fail", "failed":
		return colorError(status)
	default:
		return status
	}
}

// formatSeverity renders a severity as a fixed-width colored tag.
func formatSeverity(sev finding.Severity) string {
	tag := strings.ToUpper(string(sev))
	tag = "[" + tag + "]" + strings.Repeat(" ", 8-len(tag))
	switch sev {
	case finding.Critical:
		return colorCritical(tag)
	case finding.High:
		return colorError(tag)
	case finding.Medium:
		return colorWarn(tag)
	case finding.Low:
		return colorInfo(tag)
	default:
		return tag
	}
}
