// Package sqlprobe actively tests login forms for SQL injection.
//
// Prober drives a real browser through a Driver: it submits each payload of
// the library through the first login form it finds, classifies the response
// as error-based or authentication-bypass, and, once a weakness is confirmed,
// replays UNION payloads to look for leaked data. TimeBasedProbe adds an
// optional blind check over plain HTTP.
//
// Only run probes against systems you are authorized to test.
package sqlprobe
