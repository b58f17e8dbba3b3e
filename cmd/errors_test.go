package cmd

import (
	"errors"
	"fmt"
	"testing"

	"go.uber.org/multierr"

	"github.com/khanhnv2901/secora/internal/finding"
	secerrors "github.com/khanhnv2901/secora/internal/shared/errors"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"explicit", &ExitError{Code: 7, Err: errors.New("x")}, 7},
		{"invalid target", fmt.Errorf("%w: ftp", secerrors.ErrInvalidTarget), ExitUsage},
		{"invalid input", fmt.Errorf("%w: fingerprint", secerrors.ErrInvalidInput), ExitUsage},
		{"unreachable", fmt.Errorf("%w: refused", secerrors.ErrUnreachable), ExitUnreachable},
		{"findings", &FindingsThresholdError{Severity: finding.High, Count: 2}, ExitFindings},
		{"batch", multierr.Combine(errors.New("other"), fmt.Errorf("a: %w", secerrors.ErrUnreachable)), ExitUnreachable},
		{"other", errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Fatalf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestExitErrorUnwrap(t *testing.T) {
	err := &ExitError{Code: ExitUsage, Err: secerrors.ErrMissingRequired}
	if !errors.Is(err, secerrors.ErrMissingRequired) {
		t.Fatal("ExitError should unwrap to its cause")
	}
	if err.Error() != secerrors.ErrMissingRequired.Error() {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestFindingsThresholdError(t *testing.T) {
	err := &FindingsThresholdError{Severity: finding.High, Count: 1}
	if err.Error() != "1 finding at or above High severity" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
	err.Count = 3
	if err.Error() != "3 findings at or above High severity" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}
