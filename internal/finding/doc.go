// Package finding defines the reported-issue model shared by every scan stage.
//
// A Finding is identified by a fixed id string (hdr-01, tls-02, sqli-01, ...)
// so repeated scans of an unchanged target produce identical finding sets.
// Findings are append-only within a scan; List preserves discovery order.
package finding
