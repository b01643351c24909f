package handlers

import (
	"context"
	"net/http"
	"time"

	"hls-preload/internal/database"
	"hls-preload/internal/netspeed"
	"hls-preload/internal/overlay"
	"hls-preload/internal/perftest"
	"hls-preload/internal/player"
	"hls-preload/internal/probe"
	"hls-preload/internal/strategy"
)

// ResultStore reads perf-test history. *database.Database satisfies it.
type ResultStore interface {
	GetResult(ctx context.Context, id string) (*database.PerfTestResult, error)
	ListResults(ctx context.Context, limit int) ([]database.PerfTestResult, error)
	GetLastRun(ctx context.Context) (time.Time, error)
	Ping(ctx context.Context) error
}

// Dependencies are the services the handlers are built on.
type Dependencies struct {
	Store     ResultStore
	Sessions  *player.Manager
	Estimator *netspeed.Estimator
	Overlay   *overlay.Overlay
	Runner    *perftest.Runner
	Probe     *probe.Image
	// Client fetches playlists for inspection. Nil uses a 15s timeout client.
	Client *http.Client
}

type Handlers struct {
	store     ResultStore
	sessions  *player.Manager
	estimator *netspeed.Estimator
	overlay   *overlay.Overlay
	runner    *perftest.Runner
	probe     *probe.Image
	client    *http.Client
	startTime time.Time
}

func New(deps Dependencies) *Handlers {
	client := deps.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Handlers{
		store:     deps.Store,
		sessions:  deps.Sessions,
		estimator: deps.Estimator,
		overlay:   deps.Overlay,
		runner:    deps.Runner,
		probe:     deps.Probe,
		client:    client,
		startTime: time.Now(),
	}
}

// requestEstimator puts the client hints of r ahead of the configured
// connection provider.
func (h *Handlers) requestEstimator(r *http.Request) *netspeed.Estimator {
	return h.estimator.WithProvider(netspeed.HeaderProvider{Header: r.Header})
}

// strategyFor returns the strategy named by raw, or the one selected for the
// requesting client's network when raw is empty.
func (h *Handlers) strategyFor(r *http.Request, raw string) (strategy.Name, error) {
	if raw != "" {
		return strategy.Parse(raw)
	}
	est := h.requestEstimator(r).Estimate(r.Context())
	return strategy.Select(est.SpeedMbps), nil
}
