// Package fetch retrieves the target page for analysis.
//
// Each attempt tries a lightweight HTTP GET first and falls back to a
// headless Chrome render when the direct response is an error status or not
// HTML. Failed attempts are retried with exponential backoff; exhausting the
// attempts yields ErrUnreachable.
package fetch
