package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/khanhnv2901/secora/internal/checker"
	"github.com/khanhnv2901/secora/internal/engine"
	"github.com/khanhnv2901/secora/internal/finding"
	"github.com/khanhnv2901/secora/internal/report"
	"github.com/khanhnv2901/secora/internal/shared/security"
	"github.com/khanhnv2901/secora/internal/telemetry"
)

type scanOptions struct {
	output   string
	jsonOut  bool
	failOn   string
	progress bool
}

var scanOpts scanOptions

var scanCmd = &cobra.Command{
	Use:   "scan <url> [url...]",
	Short: "Scan one or more web origins and report security findings",
	Long: `Scan inspects the TLS certificate, fetches the page (falling back to a
headless browser when needed), evaluates security headers and mixed content,
and probes login forms for SQL injection.

Only scan targets you are authorized to test.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	fs := scanCmd.Flags()
	fs.StringVarP(&scanOpts.output, "output", "o", "", "write the JSON report to this file (a directory when scanning several targets)")
	fs.BoolVar(&scanOpts.jsonOut, "json", false, "print the JSON report instead of the summary")
	fs.StringVar(&scanOpts.failOn, "fail-on", "", "exit with code 4 when a finding at or above this severity is reported")
	fs.BoolVar(&scanOpts.progress, "progress", true, "show progress when scanning several targets")
	fs.IntVar(&cliConfig.Scan.Concurrency, "concurrency", cliConfig.Scan.Concurrency, "targets scanned at once")
	fs.IntVar(&cliConfig.Scan.RateLimit, "rate-limit", cliConfig.Scan.RateLimit, "scans started per second (0 = unlimited)")
	addScanFlags(fs)
}

func runScan(cmd *cobra.Command, args []string) error {
	appCtx := getAppContext(cmd)
	logger := appCtx.Logger

	var threshold finding.Severity
	if scanOpts.failOn != "" {
		threshold = finding.Severity(normalizeSeverity(scanOpts.failOn))
		if !threshold.IsValid() {
			return &ExitError{Code: ExitUsage, Err: fmt.Errorf("invalid --fail-on severity %q", scanOpts.failOn)}
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, appCtx.Config.tracingOptions())
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Warn("tracing shutdown failed", zap.Error(err))
			}
		}()
	}

	cfg, err := appCtx.Config.engineConfig(logger, nil)
	if err != nil {
		return err
	}
	scanner, err := engine.Build(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var reports []*report.ScanReport
	if len(args) == 1 {
		scanCtx, cancel := context.WithTimeout(ctx, appCtx.Config.Scan.Timeout)
		defer cancel()
		rep, err := scanner.Scan(scanCtx, args[0])
		if err != nil {
			return err
		}
		if err := emitReport(out, rep, scanOpts.output); err != nil {
			return err
		}
		reports = append(reports, rep)
	} else {
		var batchErr error
		reports, batchErr = runBatch(ctx, out, scanner, args, appCtx.Config.Scan)
		if batchErr != nil {
			return batchErr
		}
	}

	if threshold != "" {
		if n := countAtOrAbove(reports, threshold); n > 0 {
			return &FindingsThresholdError{Severity: threshold, Count: n}
		}
	}
	return nil
}

// runBatch scans targets through the engine runner and returns the reports
// that succeeded together with the combined errors of those that did not.
func runBatch(ctx context.Context, out io.Writer, scanner *engine.Scanner, targets []string, cfg ScanRuntimeConfig) ([]*report.ScanReport, error) {
	runner := &engine.Runner{
		Concurrency: cfg.Concurrency,
		RateLimit:   cfg.RateLimit,
		Timeout:     cfg.Timeout,
	}

	var printer *progressPrinter
	if scanOpts.progress && !scanOpts.jsonOut {
		printer = newProgressPrinter(out, len(targets), "scan")
		printer.Start()
	}
	results := runner.Run(ctx, targets, scanner.Scan, func(res engine.BatchResult) {
		if printer != nil {
			printer.Increment(res.Err == nil, res.Duration.Seconds())
		}
	})
	if printer != nil {
		printer.Stop()
	}

	var (
		reports []*report.ScanReport
		errs    error
	)
	for _, res := range results {
		if res.Err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", res.Target, res.Err))
			continue
		}
		path := ""
		if scanOpts.output != "" {
			var err error
			path, err = security.ResolveWithin(scanOpts.output, reportFileName(res.Report))
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
		}
		if err := emitReport(out, res.Report, path); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		reports = append(reports, res.Report)
	}
	return reports, errs
}

func emitReport(out io.Writer, rep *report.ScanReport, path string) error {
	if scanOpts.jsonOut {
		if err := rep.WriteJSON(out); err != nil {
			return err
		}
	} else {
		printReportSummary(out, rep)
	}
	if path != "" {
		if err := rep.SaveJSON(path); err != nil {
			return err
		}
		if !scanOpts.jsonOut {
			fmt.Fprintf(out, "%s Report written to %s\n\n", colorSuccess("✓"), path)
		}
	}
	return nil
}

func printReportSummary(w io.Writer, rep *report.ScanReport) {
	fmt.Fprintf(w, "%s %s\n", colorInfo("Target:"), rep.Target)
	fmt.Fprintf(w, "  Fetched via %s (status %d, %d attempt(s)) -> %s\n",
		rep.Fetch.Source, rep.Fetch.StatusCode, rep.Fetch.Attempts, rep.Fetch.FinalURL)
	if rep.TLS != nil {
		fmt.Fprintf(w, "  TLS: %s\n", describeTLS(rep.TLS))
	}

	s := rep.Summary
	fmt.Fprintf(w, "  Findings: %d (critical %d, high %d, medium %d, low %d)\n",
		s.Total, s.Critical, s.High, s.Medium, s.Low)
	for _, f := range rep.Vulnerabilities {
		fmt.Fprintf(w, "    %s %-14s %s\n", formatSeverity(f.Severity), f.ID, f.Title)
	}

	if rep.AI != nil {
		label := "AI:"
		if rep.AI.Failed() {
			label = colorWarn("AI (unavailable):")
		}
		fmt.Fprintf(w, "  %s %s\n", label, rep.AI.Summary)
		for _, item := range rep.AI.Items {
			fmt.Fprintf(w, "    - %s [%s, ~%s]\n", item.Title, item.Severity, item.ETA)
		}
	}
	fmt.Fprintln(w)
}

func describeTLS(info *checker.CertificateInfo) string {
	if !info.OK {
		return colorError("failed: " + info.Error)
	}
	desc := fmt.Sprintf("%s, expires in %d days", info.TLSVersion, info.ExpiresInDays)
	if info.Issuer != "" {
		desc += " (issuer " + info.Issuer + ")"
	}
	return colorSuccess("ok") + " " + desc
}

// reportFileName names a batch report after its host and id.
func reportFileName(rep *report.ScanReport) string {
	host := rep.Target
	if t, err := checker.ParseScanTarget(rep.Target); err == nil {
		host = t.Host()
	}
	return fmt.Sprintf("%s-%s.json", security.SafeFileName(host), security.SafeFileName(rep.ID))
}

func countAtOrAbove(reports []*report.ScanReport, threshold finding.Severity) int {
	n := 0
	for _, rep := range reports {
		for _, f := range rep.Vulnerabilities {
			if f.Severity.Score() >= threshold.Score() {
				n++
			}
		}
	}
	return n
}

// normalizeSeverity accepts any case, e.g. "high" or "HIGH".
func normalizeSeverity(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
