// Package constants centralizes the timeouts, limits and identities shared by
// the scan engine.
//
// Timeouts for every network stage live here so the TLS inspector, fetcher and
// SQL probe agree on the same budget, and so cmd/ can expose them as defaults
// without introducing import cycles.
package constants
