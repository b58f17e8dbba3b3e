package cmd

import (
	"errors"
	"fmt"

	"github.com/khanhnv2901/secora/internal/finding"
	secerrors "github.com/khanhnv2901/secora/internal/shared/errors"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitUnreachable = 3
	ExitFindings    = 4
)

// ExitError attaches an exit code to an error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// FindingsThresholdError reports findings at or above the --fail-on severity.
type FindingsThresholdError struct {
	Severity finding.Severity
	Count    int
}

func (e *FindingsThresholdError) Error() string {
	if e.Count == 1 {
		return fmt.Sprintf("1 finding at or above %s severity", e.Severity)
	}
	return fmt.Sprintf("%d findings at or above %s severity", e.Count, e.Severity)
}

func exitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var threshold *FindingsThresholdError
	switch {
	case errors.As(err, &threshold):
		return ExitFindings
	case errors.Is(err, secerrors.ErrInvalidTarget),
		errors.Is(err, secerrors.ErrInvalidInput),
		errors.Is(err, secerrors.ErrMissingRequired):
		return ExitUsage
	case errors.Is(err, secerrors.ErrUnreachable):
		return ExitUnreachable
	default:
		return ExitFailure
	}
}
