package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hls-preload/internal/database"
	"hls-preload/internal/handlers"
	"hls-preload/internal/logging"
	"hls-preload/internal/memory"
	"hls-preload/internal/metrics"
	"hls-preload/internal/middleware"
	"hls-preload/internal/netspeed"
	"hls-preload/internal/overlay"
	"hls-preload/internal/perftest"
	"hls-preload/internal/player"
	"hls-preload/internal/poller"
	"hls-preload/internal/probe"
	"hls-preload/internal/startup"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsInterval = time.Minute
	sweepInterval   = time.Minute
)

// services are the long-running components stopped on shutdown.
type services struct {
	server        *http.Server
	metricsServer *http.Server
	collector     *metrics.Collector
	pollers       []*poller.Poller
	overlay       *overlay.Overlay
	sessions      *player.Manager
	db            *database.Database
}

func main() {
	startTime := time.Now()

	memLimit := memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	startup.LogMemoryConfig(memLimit)

	metrics.InitializeMetrics()
	metrics.AppInfo.WithLabelValues(startup.Version, startup.Commit, startup.GoVersion).Set(1)

	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	startup.LogPreloadInit(config)
	estimator := newEstimator(config)

	sessions := player.NewManager(estimator, player.Config{
		ReloadDelay:        config.ReloadDelay,
		BufferPollInterval: config.BufferPollInterval,
		SegmentDuration:    config.SegmentDuration,
	})

	ov := overlay.New(overlay.Config{
		MemoryInterval: config.OverlayPollInterval,
		MemoryLimit:    memLimit.GoMemLimit,
	})
	ov.Start()

	runner := perftest.NewRunner(perftest.Config{
		DefaultWindow: config.PerfTestDuration,
		Concurrency:   config.PerfTestWorkers,
		Store:         db,
	})

	probeImage, err := probe.New()
	if err != nil {
		startup.LogFatal("Failed to build speed probe: %v", err)
	}

	h := handlers.New(handlers.Dependencies{
		Store:     db,
		Sessions:  sessions,
		Estimator: estimator,
		Overlay:   ov,
		Runner:    runner,
		Probe:     probeImage,
	})

	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           buildHandler(router, config),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Perf tests hold the response open for up to their window.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	svc := &services{
		server:   srv,
		overlay:  ov,
		sessions: sessions,
		db:       db,
	}

	sweeper := poller.New("session-sweeper", sweepInterval, func() {
		sessions.Sweep(config.SessionIdleTimeout)
		ov.Sweep(config.SessionIdleTimeout)
	})
	sweeper.Start()
	svc.pollers = append(svc.pollers, sweeper)

	if config.MetricsEnabled {
		svc.collector = metrics.NewCollector(sessions, metricsInterval)
		svc.collector.Start()

		dbMetrics := poller.New("db-metrics", metricsInterval, db.UpdateDBMetrics)
		dbMetrics.Start()
		svc.pollers = append(svc.pollers, dbMetrics)

		svc.metricsServer = startMetricsServer(config.MetricsPort)
	}

	go handleShutdown(svc)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
}

// newEstimator returns an estimator falling back to a fixed downlink when one
// is configured and to the speed probe otherwise.
func newEstimator(config *startup.Config) *netspeed.Estimator {
	if config.HasDefaultDownlink {
		return netspeed.NewEstimator(netspeed.NewStaticProvider(config.DefaultDownlinkMbps), nil)
	}
	prober := netspeed.NewProber(config.ProbeURL,
		netspeed.WithHTTPClient(&http.Client{Timeout: config.ProbeTimeout}))
	return netspeed.NewEstimator(nil, prober)
}

// buildHandler wraps the router with metrics, logging and compression.
func buildHandler(router http.Handler, config *startup.Config) http.Handler {
	handler := router
	if config.MetricsEnabled {
		handler = middleware.Metrics(middleware.DefaultMetricsConfig())(handler)
	}

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler = middleware.Logger(loggingConfig)(handler)

	return middleware.Compression(middleware.DefaultCompressionConfig())(handler)
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Strategy and network
	api.HandleFunc("/strategies", h.GetStrategies).Methods("GET")
	api.HandleFunc("/strategy", h.SelectStrategy).Methods("GET")
	api.HandleFunc("/network", h.GetNetwork).Methods("GET")
	api.Handle("/probe.png", middleware.ProbeRateLimit()(http.HandlerFunc(h.ServeProbe))).Methods("GET", "HEAD")
	api.HandleFunc("/player/options", h.GetPlayerOptions).Methods("GET")
	api.HandleFunc("/player/options", h.MergePlayerOptions).Methods("POST")

	// Player sessions
	api.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	api.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.DeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/source", h.SetSessionSource).Methods("PUT")
	api.HandleFunc("/sessions/{id}/events", h.PostSessionEvent).Methods("POST")
	api.HandleFunc("/sessions/{id}/preload/stop", h.StopSessionPreload).Methods("POST")
	api.HandleFunc("/sessions/{id}/commands", h.GetSessionCommands).Methods("GET")

	// Debug overlay
	api.HandleFunc("/debug", h.GetDebug).Methods("GET")
	api.HandleFunc("/debug/frames", h.PostFrames).Methods("POST")

	// Everything that fetches remote media shares one limiter
	perfLimit := middleware.PerfTestRateLimit()
	api.Handle("/perftests", perfLimit(http.HandlerFunc(h.RunPerfTest))).Methods("POST")
	api.Handle("/perftests/compare", perfLimit(http.HandlerFunc(h.ComparePerfTests))).Methods("POST")
	api.Handle("/playlist", perfLimit(http.HandlerFunc(h.InspectPlaylist))).Methods("GET")
	api.HandleFunc("/perftests", h.ListPerfTests).Methods("GET")
	api.HandleFunc("/perftests/{id}", h.GetPerfTest).Methods("GET")

	return r
}

func startMetricsServer(port string) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server error: %v", err)
		}
	}()
	return srv
}

func handleShutdown(svc *services) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdown(ctx, svc)
}

func shutdown(ctx context.Context, svc *services) {
	startup.LogShutdownStep("Shutting down HTTP server")
	if err := svc.server.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Closing player sessions")
	svc.sessions.CloseAll()
	startup.LogShutdownStepComplete("Player sessions closed")

	startup.LogShutdownStep("Stopping background pollers")
	for _, p := range svc.pollers {
		p.Stop()
	}
	svc.overlay.Stop()
	if svc.collector != nil {
		svc.collector.Stop()
	}
	startup.LogShutdownStepComplete("Background pollers stopped")

	if svc.metricsServer != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := svc.metricsServer.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Closing database")
	if err := svc.db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	startup.LogShutdownComplete()
}
