package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_preload_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hls_preload_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_preload_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Strategy and preload metrics
var (
	StrategySelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_preload_strategy_selections_total",
			Help: "Total number of strategy selections by resulting strategy",
		},
		[]string{"strategy"},
	)

	PreloadRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_preload_runs_total",
			Help: "Total number of simulated preload runs by strategy and outcome",
		},
		[]string{"strategy", "outcome"}, // started, completed, stopped, superseded
	)

	PreloadProgress = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hls_preload_stopped_progress_percent",
			Help:    "Progress percentage at which preload runs were stopped early",
			Buckets: []float64{0, 10, 25, 50, 75, 90, 100},
		},
	)
)

// Network estimation metrics
var (
	SpeedEstimates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hls_preload_speed_estimate_mbps",
			Help:    "Network speed estimates by source",
			Buckets: []float64{0.5, 1, 2, 3, 5, 10, 25, 50, 100},
		},
		[]string{"source"}, // connection, probe, none
	)

	ProbeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_preload_probe_failures_total",
			Help: "Total number of failed speed probes by reason",
		},
		[]string{"reason"}, // request, status, read
	)

	ProbeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hls_preload_probe_duration_seconds",
			Help:    "Duration of successful speed probes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)
)

// Playback session metrics
var (
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_preload_active_sessions",
			Help: "Number of open playback sessions",
		},
	)

	PreloadingSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_preload_preloading_sessions",
			Help: "Number of sessions with a preload run in progress",
		},
	)

	PlayerEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_preload_player_events_total",
			Help: "Total number of player events reported by clients",
		},
		[]string{"event"},
	)

	PlaybackErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_preload_playback_errors_total",
			Help: "Total number of playback errors by media error code",
		},
		[]string{"code"},
	)

	PlaybackReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hls_preload_playback_reloads_total",
			Help: "Total number of reloads issued after recoverable playback errors",
		},
	)

	LoadTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hls_preload_load_time_seconds",
			Help:    "Time from source assignment to loadedmetadata by source kind",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"kind"},
	)

	BufferHealthSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hls_preload_buffer_health_seconds",
			Help:    "Sampled seconds of buffered media ahead of the playhead",
			Buckets: []float64{0, 1, 5, 10, 20, 40, 80, 120},
		},
	)
)

// Debug overlay metrics
var (
	OverlayFPS = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_preload_overlay_fps",
			Help: "Most recent frame rate published by any debug overlay client",
		},
	)

	MemoryUsedBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_preload_memory_used_bytes",
			Help: "Go heap bytes in use, as sampled by the memory monitor",
		},
	)

	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_preload_memory_usage_ratio",
			Help: "Heap usage as a fraction of the configured memory limit",
		},
	)
)

// Performance test metrics
var (
	PerfTestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_preload_perftests_total",
			Help: "Total number of performance test runs by source kind and status",
		},
		[]string{"kind", "status"},
	)

	PerfTestLoadTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hls_preload_perftest_load_time_seconds",
			Help:    "Time to loadedmetadata measured by performance tests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		},
		[]string{"kind"},
	)

	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hls_preload_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hls_preload_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hls_preload_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// AppInfo exposes build information as a constant gauge.
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "hls_preload_app_info",
		Help: "Application build information",
	},
	[]string{"version", "commit", "go_version"},
)
