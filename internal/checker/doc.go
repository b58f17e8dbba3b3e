// Package checker holds the passive, single-target checks of a scan.
//
//   - ParseScanTarget validates the input URL before any network activity.
//   - Inspector reads the TLS leaf certificate over one raw connection,
//     optionally presenting a Chrome client hello (utls).
//   - Headers normalizes response headers; AnalyzeHeaders and
//     DisclosureFindings evaluate them against a fixed, ordered ruleset.
//   - MixedContentFindings and InventoryForms inspect the fetched HTML.
//
// Everything here except Inspector is pure and safe for concurrent use.
package checker
