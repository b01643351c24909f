package preload

import (
	"context"
	"errors"
	"sync"

	"hls-preload/internal/metrics"
	"hls-preload/internal/netspeed"
	"hls-preload/internal/source"
	"hls-preload/internal/strategy"
)

// ErrNotAdaptive is returned by Controller.Start for sources that are not
// adaptive streams. Progressive sources are never preloaded.
var ErrNotAdaptive = errors.New("source is not an adaptive stream")

// ErrSuperseded is returned when a newer Start or Stop made this call's
// result irrelevant.
var ErrSuperseded = errors.New("preload superseded by a newer request")

// Decision is the outcome of strategy selection.
type Decision struct {
	Strategy strategy.Name     `json:"strategy"`
	Config   strategy.Config   `json:"config"`
	Estimate netspeed.Estimate `json:"estimate"`
}

// Controller chains speed estimation, strategy selection and the progress
// simulator for one playback source at a time.
type Controller struct {
	estimator *netspeed.Estimator
	sim       *Simulator

	mu  sync.Mutex
	gen uint64
}

// NewController creates a controller. A nil estimator always yields speed 0.
func NewController(estimator *netspeed.Estimator, sim *Simulator) *Controller {
	if sim == nil {
		sim = NewSimulator()
	}
	return &Controller{estimator: estimator, sim: sim}
}

// DetermineStrategy estimates the network speed and selects a strategy.
func (c *Controller) DetermineStrategy(ctx context.Context) Decision {
	est := c.estimator.Estimate(ctx)
	name := strategy.Select(est.SpeedMbps)
	metrics.StrategySelections.WithLabelValues(string(name)).Inc()
	log.Debug("Selected %s strategy for %.2fMbps (%s)", name, est.SpeedMbps, est.Source)
	return Decision{Strategy: name, Config: name.Config(), Estimate: est}
}

// Start stops any previous run and, for an adaptive source, begins a new
// simulated preload with the strategy chosen for the current network speed.
// If another Start or Stop happens while the estimate is in flight, this call
// returns ErrSuperseded without touching the simulator.
func (c *Controller) Start(ctx context.Context, d source.Descriptor) (State, error) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	// The previous source's run never outlives a source change.
	c.sim.Stop()

	if !d.IsAdaptive() {
		return c.sim.State(), ErrNotAdaptive
	}

	decision := c.DetermineStrategy(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		log.Debug("Discarding stale strategy decision for %s", d.URL)
		return c.sim.State(), ErrSuperseded
	}
	return c.sim.Start(decision.Strategy, decision.Estimate.SpeedMbps), nil
}

// Stop cancels the current run and any Start still waiting on an estimate.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.gen++
	c.mu.Unlock()
	c.sim.Stop()
}

// State returns the current preload state.
func (c *Controller) State() State {
	return c.sim.State()
}
