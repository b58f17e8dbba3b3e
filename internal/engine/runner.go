package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/khanhnv2901/secora/internal/report"
)

// ScanFunc scans a single target.
type ScanFunc func(ctx context.Context, target string) (*report.ScanReport, error)

// BatchResult is the result of scanning one target of a batch.
type BatchResult struct {
	Target   string
	Report   *report.ScanReport
	Err      error
	Duration time.Duration
}

// ResultFunc is called as each target finishes. It may be called concurrently.
type ResultFunc func(result BatchResult)

// Runner scans many targets with bounded concurrency and a global rate limit.
type Runner struct {
	Concurrency int           // Maximum number of concurrent scans
	RateLimit   int           // Scans started per second; 0 means unlimited
	Timeout     time.Duration // Per-scan timeout; 0 means none
}

// Run scans every target and returns results in input order.
func (r *Runner) Run(ctx context.Context, targets []string, scan ScanFunc, onResult ResultFunc) []BatchResult {
	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if r.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.RateLimit), r.RateLimit)
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]BatchResult, len(targets))

	for i, target := range targets {
		wg.Add(1)
		go func(i int, t string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			result := BatchResult{Target: t}
			if err := limiter.Wait(ctx); err != nil {
				result.Err = err
			} else {
				scanCtx, cancel := ctx, context.CancelFunc(func() {})
				if r.Timeout > 0 {
					scanCtx, cancel = context.WithTimeout(ctx, r.Timeout)
				}
				start := time.Now()
				result.Report, result.Err = scan(scanCtx, t)
				result.Duration = time.Since(start)
				cancel()
			}

			if onResult != nil {
				onResult(result)
			}
			results[i] = result
		}(i, target)
	}

	wg.Wait()
	return results
}
