package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestProgressPrinterLifecycle(t *testing.T) {
	var buf bytes.Buffer
	printer := newProgressPrinter(&buf, 0, "scan")
	if printer.total != 1 {
		t.Fatalf("expected total to be clamped to 1, got %d", printer.total)
	}

	printer.Start()
	printer.Increment(true, 0.5)
	printer.Increment(false, 1.0)
	printer.Stop()
	printer.Stop()

	output := buf.String()
	if !strings.Contains(output, "Progress: 2/2") {
		t.Fatalf("expected summary progress, got %q", output)
	}
	if !strings.Contains(output, "OK:1") || !strings.Contains(output, "Fail:1") {
		t.Fatalf("expected OK/Fail counts in output, got %q", output)
	}
	if !strings.Contains(output, "Avg:0.75s") {
		t.Fatalf("expected average duration in output, got %q", output)
	}
}
