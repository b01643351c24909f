// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]:
//
//   - PORT: HTTP API port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable metrics server (default: true)
//   - DATA_DIR: Directory holding the perf-test database (default: ./data)
//   - PROBE_URL: Resource timed by the speed probe (default: this server's /api/probe.png)
//   - PROBE_TIMEOUT: HTTP timeout for probes and perf tests (default: 10s)
//   - DEFAULT_DOWNLINK_MBPS: Static connection speed; disables the probe when set
//   - RELOAD_DELAY: Delay before reloading after a source error (default: 2s)
//   - BUFFER_POLL_INTERVAL: Buffer monitor period (default: 1s)
//   - OVERLAY_POLL_INTERVAL: Debug overlay memory poll period (default: 1s)
//   - SEGMENT_DURATION: Nominal HLS segment length (default: 10s)
//   - SESSION_IDLE_TIMEOUT: Idle sessions are closed after this long (default: 30m)
//   - PERFTEST_DURATION: Default perf-test window (default: 30s)
//   - PERFTEST_WORKERS: Concurrent perf-test runs (default: 2 per CPU, at most 16)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: see package memory
//
// Invalid durations and numbers fall back to their defaults with a warning.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
//   - [LogMemoryConfig]: Memory limit configuration
//   - [LogDatabaseInit]: Database initialization timing
//   - [LogPreloadInit]: Speed estimation setup
//   - [LogHTTPRoutes]: Registered HTTP routes (debug level)
//   - [LogServerStarted]: Server endpoints and startup duration
//   - [LogShutdownInitiated], [LogShutdownStep], [LogShutdownComplete]: Graceful shutdown
package startup
