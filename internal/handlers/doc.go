// Package handlers provides the HTTP API of the preload service.
//
// It includes handlers for:
//   - Strategy selection, network readout and the speed probe
//   - Player sessions: sources, reported events and queued commands
//   - Engine options sized for a strategy
//   - The debug overlay
//   - HLS playlist inspection
//   - Perf tests and their history
//   - Health checks and version information
package handlers
