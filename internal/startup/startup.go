package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"hls-preload/internal/logging"
	"hls-preload/internal/memory"
	"hls-preload/internal/workers"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// maxPerfTestWorkers caps the automatic perf-test concurrency.
const maxPerfTestWorkers = 16

// Config holds all application configuration
type Config struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool

	DataDir      string
	DatabasePath string

	ProbeURL     string
	ProbeTimeout time.Duration

	// DefaultDownlinkMbps is used as static connection information when
	// HasDefaultDownlink is set. The probe is then never needed.
	DefaultDownlinkMbps float64
	HasDefaultDownlink  bool

	ReloadDelay         time.Duration
	BufferPollInterval  time.Duration
	OverlayPollInterval time.Duration
	SegmentDuration     time.Duration
	SessionIdleTimeout  time.Duration

	PerfTestDuration time.Duration
	PerfTestWorkers  int
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	port := getEnv("PORT", "8080")
	config := &Config{
		Port:                port,
		MetricsPort:         getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:      getEnvBool("METRICS_ENABLED", true),
		LogHealthChecks:     getEnvBool("LOG_HEALTH_CHECKS", true),
		DataDir:             getEnv("DATA_DIR", "./data"),
		ProbeURL:            getEnv("PROBE_URL", fmt.Sprintf("http://localhost:%s/api/probe.png", port)),
		ProbeTimeout:        getEnvDuration("PROBE_TIMEOUT", 10*time.Second),
		ReloadDelay:         getEnvDuration("RELOAD_DELAY", 2*time.Second),
		BufferPollInterval:  getEnvDuration("BUFFER_POLL_INTERVAL", time.Second),
		OverlayPollInterval: getEnvDuration("OVERLAY_POLL_INTERVAL", time.Second),
		SegmentDuration:     getEnvDuration("SEGMENT_DURATION", 10*time.Second),
		SessionIdleTimeout:  getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		PerfTestDuration:    getEnvDuration("PERFTEST_DURATION", 30*time.Second),
		PerfTestWorkers:     workers.ForIO(maxPerfTestWorkers),
	}
	config.DefaultDownlinkMbps, config.HasDefaultDownlink = getEnvFloat("DEFAULT_DOWNLINK_MBPS")

	logging.Info("  PORT:                   %s", config.Port)
	logging.Info("  METRICS_PORT:           %s", config.MetricsPort)
	logging.Info("  METRICS_ENABLED:        %v", config.MetricsEnabled)
	logging.Info("  DATA_DIR:               %s", config.DataDir)
	logging.Info("  PROBE_URL:              %s", config.ProbeURL)
	logging.Info("  PROBE_TIMEOUT:          %v", config.ProbeTimeout)
	if config.HasDefaultDownlink {
		logging.Info("  DEFAULT_DOWNLINK_MBPS:  %.2f", config.DefaultDownlinkMbps)
	} else {
		logging.Info("  DEFAULT_DOWNLINK_MBPS:  (unset, probe fallback)")
	}
	logging.Info("  RELOAD_DELAY:           %v", config.ReloadDelay)
	logging.Info("  BUFFER_POLL_INTERVAL:   %v", config.BufferPollInterval)
	logging.Info("  OVERLAY_POLL_INTERVAL:  %v", config.OverlayPollInterval)
	logging.Info("  SEGMENT_DURATION:       %v", config.SegmentDuration)
	logging.Info("  SESSION_IDLE_TIMEOUT:   %v", config.SessionIdleTimeout)
	logging.Info("  PERFTEST_DURATION:      %v", config.PerfTestDuration)
	logging.Info("  PERFTEST_WORKERS:       %d", config.PerfTestWorkers)
	logging.Info("  LOG_HEALTH_CHECKS:      %v", config.LogHealthChecks)
	logging.Info("  LOG_LEVEL:              %s", logging.GetLevel())

	if config.SegmentDuration <= 0 {
		return nil, fmt.Errorf("SEGMENT_DURATION must be positive, got %v", config.SegmentDuration)
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	dataDir, err := filepath.Abs(config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	config.DataDir = dataDir
	config.DatabasePath = filepath.Join(dataDir, "perftests.db")
	logging.Info("  Data directory (absolute): %s", dataDir)

	if err := ensureDirectory(dataDir, "data"); err != nil {
		return nil, fmt.Errorf("data directory error: %w", err)
	}

	logging.Debug("  Testing data directory write access...")
	if err := testWriteAccess(dataDir); err != nil {
		return nil, fmt.Errorf("data directory is not writable (required for perf-test history): %w", err)
	}
	logging.Info("  [OK] Data directory is writable")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Perf-test history: ENABLED (required)")
	logging.Info("    Speed probe:       %s", enabledString(!config.HasDefaultDownlink))
	logging.Info("    Metrics:           %s", enabledString(config.MetricsEnabled))

	return config, nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogMemoryConfig logs how the runtime memory limit was set.
func LogMemoryConfig(res memory.LimitResult) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	if !res.Configured {
		logging.Info("  Memory limit: not configured (set MEMORY_LIMIT or GOMEMLIMIT)")
		return
	}

	switch res.Source {
	case memory.SourceGOMEMLIMIT:
		logging.Info("  GOMEMLIMIT:      %s (from environment)", memory.FormatBytes(res.GoMemLimit))
	default:
		logging.Info("  Container limit: %s", memory.FormatBytes(res.ContainerLimit))
		logging.Info("  Ratio:           %.0f%%", res.Ratio*100)
		logging.Info("  GOMEMLIMIT:      %s", memory.FormatBytes(res.GoMemLimit))
	}
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogPreloadInit logs how network speed will be estimated.
func LogPreloadInit(config *Config) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("PRELOAD INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Client hints:    Downlink, ECT, RTT, Save-Data")
	if config.HasDefaultDownlink {
		logging.Info("  Fallback:        static %.2f Mbps", config.DefaultDownlinkMbps)
	} else {
		logging.Info("  Fallback:        probe %s (timeout %v)", config.ProbeURL, config.ProbeTimeout)
	}
	logging.Info("  Reload delay:    %v", config.ReloadDelay)
	logging.Info("  Idle sessions:   closed after %v", config.SessionIdleTimeout)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://0.0.0.0:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
    __  ____   _____    ____           __                __
   / / / / /  / ___/   / __ \________  / /___  ____ _____/ /
  / /_/ / /   \__ \   / /_/ / ___/ _ \/ / __ \/ __ '/ __  /
 / __  / /______/ /  / ____/ /  /  __/ / /_/ / /_/ / /_/ /
/_/ /_/_____/____/  /_/   /_/   \___/_/\____/\__,_/\__,_/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("  Invalid %s %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvFloat reports whether key holds a non-negative number.
func getEnvFloat(key string) (float64, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 {
		logging.Warn("  Invalid %s %q, ignoring", key, value)
		return 0, false
	}
	return parsed, true
}
