// Package middleware provides HTTP middleware for the preload service.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics with bounded path labels
//   - gzip compression of JSON and playlist responses
//   - Per-client rate limits for the probe and perf-test endpoints
//
// Health checks and speed probe fetches can be left out of the access log.
// The probe is never compressed, since its transfer time is what gets measured.
package middleware
