// Package main provides the entry point for the hls-preload server.
//
// hls-preload chooses how aggressively a video player preloads an HLS or MP4
// source from the viewer's network speed, drives remote player sessions
// through load, playback error recovery and simulated preload progress, and
// measures source start-up time with a perf-test runner whose results are
// kept in SQLite.
//
// # Application Lifecycle
//
//  1. Memory Configuration: Sets GOMEMLIMIT from MEMORY_LIMIT when present
//  2. Configuration Loading: Reads environment variables and prepares DATA_DIR
//  3. Database Initialization: Opens the perf-test history database
//  4. Component Initialization:
//     - Speed Estimator: Client hints first, then a static downlink or the speed probe
//     - Session Manager: Remote player sessions and their preload controllers
//     - Debug Overlay: Heap sampling and FPS readings
//     - Perf-Test Runner: Bounded worker pool fetching playlists, segments and MP4 ranges
//  5. HTTP Server Setup: Routes, rate limits and middleware
//  6. Graceful Shutdown: Handles SIGINT/SIGTERM and stops every component
//
// # Background Services
//
//   - Session Sweeper: Closes sessions and drops overlay FPS meters idle
//     longer than SESSION_IDLE_TIMEOUT
//   - Metrics Collector: Publishes session gauges every minute
//   - Database Metrics: Publishes database file size every minute
//   - Memory Sampler: Feeds the debug overlay
//
// # HTTP Server
//
//  1. Main Server (default port 8080):
//     - Strategy selection and network estimates
//     - Speed probe image (rate limited)
//     - Player sessions and command queues
//     - Debug overlay
//     - Perf tests and history (rate limited)
//
//  2. Metrics Server (default port 9090, optional):
//     - Prometheus metrics endpoint (/metrics)
//
// # Environment Variables
//
//   - PORT: Main HTTP server port (default: 8080)
//   - METRICS_PORT: Metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable metrics server (default: true)
//   - DATA_DIR: Directory for the perf-test database (default: ./data)
//   - PROBE_URL: Speed probe resource (default: this server's /api/probe.png,
//     fetched over loopback and exempt from the probe rate limit)
//   - PROBE_TIMEOUT: Speed probe request timeout (default: 10s)
//   - DEFAULT_DOWNLINK_MBPS: Fixed downlink used instead of the probe
//   - RELOAD_DELAY: Delay before reloading after a source error (default: 2s)
//   - SESSION_IDLE_TIMEOUT: Idle session lifetime (default: 30m)
//   - PERFTEST_DURATION: Default perf-test window (default: 30s)
//   - LOG_LEVEL: Logging level (debug/info/warn/error)
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: Runtime memory limit
//
// # Graceful Shutdown
//
//  1. Stop accepting new HTTP requests (30s timeout)
//  2. Close player sessions
//  3. Stop background pollers and the metrics collector
//  4. Shutdown metrics server (if running)
//  5. Close the database
//
// # Build Requirements
//
// CGO is required for the SQLite driver:
//
//	CGO_ENABLED=1 go build -o hls-preload ./cmd/hls-preload
package main
