package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"hls-preload/internal/netspeed"
	"hls-preload/internal/player"
	"hls-preload/internal/strategy"
)

// StrategyInfo describes one preload strategy.
type StrategyInfo struct {
	Name                 strategy.Name `json:"name"`
	BufferTargetSeconds  int           `json:"bufferTargetSeconds"`
	PreloadAheadSegments int           `json:"preloadAheadSegments"`
	PreloadMillis        int64         `json:"preloadDurationMs"`
	PreloadSteps         int           `json:"preloadSteps"`
}

// StrategySelection is the outcome of selecting a strategy for a speed.
type StrategySelection struct {
	SpeedMbps float64         `json:"speedMbps"`
	Strategy  strategy.Name   `json:"strategy"`
	Config    strategy.Config `json:"config"`
}

// NetworkResponse is the server's view of the requesting client's network.
type NetworkResponse struct {
	Connection netspeed.ConnectionInfo `json:"connection"`
	Estimate   netspeed.Estimate       `json:"estimate"`
	Strategy   strategy.Name           `json:"strategy"`
	Config     strategy.Config         `json:"config"`
}

// PlayerOptionsRequest overlays caller options onto the defaults.
type PlayerOptionsRequest struct {
	Strategy string         `json:"strategy,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// PlayerOptionsResponse is the option object for the embedded player.
type PlayerOptionsResponse struct {
	Strategy strategy.Name        `json:"strategy"`
	Options  player.EngineOptions `json:"options"`
}

func strategyInfo(n strategy.Name) StrategyInfo {
	cfg := n.Config()
	sched := n.Schedule()
	return StrategyInfo{
		Name:                 n,
		BufferTargetSeconds:  cfg.BufferTargetSeconds,
		PreloadAheadSegments: cfg.PreloadAheadSegments,
		PreloadMillis:        sched.Duration.Milliseconds(),
		PreloadSteps:         sched.Steps,
	}
}

// GetStrategies returns every strategy, most aggressive first
func (h *Handlers) GetStrategies(w http.ResponseWriter, _ *http.Request) {
	all := strategy.All()
	out := make([]StrategyInfo, 0, len(all))
	for _, n := range all {
		out = append(out, strategyInfo(n))
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, out)
}

// SelectStrategy maps the speed query parameter in Mbps to a strategy
func (h *Handlers) SelectStrategy(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("speed"))
	if raw == "" {
		writeJSONError(w, "speed is required", http.StatusBadRequest)
		return
	}
	speed, err := strconv.ParseFloat(raw, 64)
	if err != nil || speed < 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		writeJSONError(w, "speed must be a non-negative number", http.StatusBadRequest)
		return
	}

	name := strategy.Select(speed)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, StrategySelection{SpeedMbps: speed, Strategy: name, Config: name.Config()})
}

// GetNetwork reports the connection information derived from the request's
// client hints and the resulting speed estimate
func (h *Handlers) GetNetwork(w http.ResponseWriter, r *http.Request) {
	est := h.requestEstimator(r)
	sample := est.Estimate(r.Context())
	name := strategy.Select(sample.SpeedMbps)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Vary", "Downlink, ECT, RTT, Save-Data")
	writeJSON(w, NetworkResponse{
		Connection: est.Status(r.Context()),
		Estimate:   sample,
		Strategy:   name,
		Config:     name.Config(),
	})
}

// ServeProbe serves the speed probe resource
func (h *Handlers) ServeProbe(w http.ResponseWriter, r *http.Request) {
	h.probe.ServeHTTP(w, r)
}

// GetPlayerOptions returns the engine options sized for the strategy query
// parameter, or for the client's network when it is absent
func (h *Handlers) GetPlayerOptions(w http.ResponseWriter, r *http.Request) {
	h.writePlayerOptions(w, r, PlayerOptionsRequest{Strategy: r.URL.Query().Get("strategy")})
}

// MergePlayerOptions is GetPlayerOptions with caller overrides merged in
func (h *Handlers) MergePlayerOptions(w http.ResponseWriter, r *http.Request) {
	var req PlayerOptionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writePlayerOptions(w, r, req)
}

func (h *Handlers) writePlayerOptions(w http.ResponseWriter, r *http.Request, req PlayerOptionsRequest) {
	name, err := h.strategyFor(r, req.Strategy)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	opts, err := player.DefaultEngineOptions().ApplyStrategy(name.Config()).Merge(req.Options)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, PlayerOptionsResponse{Strategy: name, Options: opts})
}
