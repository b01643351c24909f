// Package metrics provides Prometheus instrumentation for the hls-preload
// service.
//
// All metrics are prefixed with "hls_preload_" and registered on the default
// registry through promauto, so importing the package is enough to expose
// them on the metrics server.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of requests by method, path and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of currently processing requests
//
// ## Strategy and Preload Metrics
//
//   - StrategySelections: Counter of selector results by strategy
//   - PreloadRunsTotal: Counter of simulated runs by strategy and outcome
//     (started, completed, stopped, superseded)
//   - PreloadProgress: Histogram of the progress at which runs were stopped
//
// ## Network Metrics
//
//   - SpeedEstimates: Histogram of estimates by source (connection, probe, none)
//   - ProbeFailures: Counter of failed probes by reason
//   - ProbeDuration: Histogram of successful probe round trips
//
// ## Session Metrics
//
//   - ActiveSessions / PreloadingSessions: Gauges refreshed by [Collector]
//   - PlayerEventsTotal: Counter of reported player events
//   - PlaybackErrors: Counter of media errors by code
//   - PlaybackReloads: Counter of reloads issued by error recovery
//   - LoadTime: Histogram of time to loadedmetadata by source kind
//   - BufferHealthSeconds: Histogram of sampled buffer health
//
// ## Overlay and Performance Test Metrics
//
//   - OverlayFPS, MemoryUsedBytes, MemoryUsageRatio
//   - PerfTestsTotal, PerfTestLoadTime, DBQueryTotal
//
// Call [InitializeMetrics] once at startup so that labelled series exist
// before their first observation.
package metrics
