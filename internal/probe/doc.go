// Package probe serves the tiny image the network speed estimator times.
//
// The image is rendered and encoded once at startup. Every response carries
// no-store caching headers; the estimator also appends a cache-busting query
// parameter.
package probe
