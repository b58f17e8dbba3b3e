package errors

import "errors"

// Domain errors
var (
	// Terminal scan errors. Only these two abort a scan without a report.
	ErrInvalidTarget = errors.New("invalid target: URL must be absolute http or https")
	ErrUnreachable   = errors.New("target is unreachable or blocked")

	// Probe errors, folded into the report instead of being returned
	ErrTLSTimeout       = errors.New("TLS lookup timed out")
	ErrNoLoginForm      = errors.New("no login form found")
	ErrBrowserLaunch    = errors.New("browser launch failed")
	ErrEnrichmentFailed = errors.New("AI generation failed")

	// Job errors
	ErrJobNotFound = errors.New("job not found")
	ErrQueueFull   = errors.New("scan queue is full")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingRequired = errors.New("missing required field")
)
