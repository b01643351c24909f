package preload

import (
	"math"
	"sync"
	"time"

	"hls-preload/internal/clock"
	"hls-preload/internal/logging"
	"hls-preload/internal/metrics"
	"hls-preload/internal/strategy"
)

var log = logging.Component("preload")

// State is the observable preload state for one playback source.
type State struct {
	IsPreloading              bool          `json:"isPreloading"`
	ProgressPercent           int           `json:"progress"`
	Strategy                  strategy.Name `json:"strategy"`
	BufferTargetSeconds       int           `json:"bufferTarget"`
	PreloadAheadSegments      int           `json:"preloadAhead"`
	EstimatedSecondsRemaining int           `json:"estimatedTime"`
	NetworkSpeedMbps          float64       `json:"networkSpeed"`
}

// InitialState is the state before any run, using the moderate defaults.
func InitialState() State {
	cfg := strategy.Moderate.Config()
	return State{
		Strategy:             strategy.Moderate,
		BufferTargetSeconds:  cfg.BufferTargetSeconds,
		PreloadAheadSegments: cfg.PreloadAheadSegments,
	}
}

// run is the single-owner handle for one simulation. Only the run stored in
// Simulator.run may change state.
type run struct {
	strategy strategy.Name
	schedule strategy.Schedule
	step     int
	ticker   clock.Ticker
	done     chan struct{}
	once     sync.Once
}

func (r *run) cancel() {
	r.once.Do(func() {
		r.ticker.Stop()
		close(r.done)
	})
}

// Simulator drives a synthetic 0-100 progress value over the strategy's
// nominal duration. It does not observe real transfer.
type Simulator struct {
	clock    clock.Clock
	onUpdate func(State)

	mu      sync.Mutex
	state   State
	run     *run
	version uint64

	notifyMu     sync.Mutex
	lastNotified uint64
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithClock sets the clock used for the progress ticker.
func WithClock(c clock.Clock) SimulatorOption {
	return func(s *Simulator) { s.clock = c }
}

// WithUpdates registers a callback invoked with a copy of the state after
// every change. Updates are delivered in order and a stale snapshot is never
// delivered after a newer one. The callback must not call back into the
// simulator.
func WithUpdates(fn func(State)) SimulatorOption {
	return func(s *Simulator) { s.onUpdate = fn }
}

// NewSimulator creates an idle simulator.
func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		clock: clock.Real(),
		state: InitialState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a copy of the current state.
func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether a run is in progress.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil
}

// Start cancels any run in progress and begins a new one for name. The
// strategy stays fixed until the run ends.
func (s *Simulator) Start(name strategy.Name, speedMbps float64) State {
	if !name.Valid() {
		name = strategy.Moderate
	}
	sched := name.Schedule()
	cfg := name.Config()

	s.mu.Lock()
	if prev := s.run; prev != nil {
		prev.cancel()
		metrics.PreloadRunsTotal.WithLabelValues(string(prev.strategy), "superseded").Inc()
		log.Debug("Superseding %s run at step %d/%d", prev.strategy, prev.step, prev.schedule.Steps)
	}

	r := &run{
		strategy: name,
		schedule: sched,
		ticker:   s.clock.NewTicker(sched.StepInterval()),
		done:     make(chan struct{}),
	}
	s.run = r
	s.state = State{
		IsPreloading:              true,
		ProgressPercent:           0,
		Strategy:                  name,
		BufferTargetSeconds:       cfg.BufferTargetSeconds,
		PreloadAheadSegments:      cfg.PreloadAheadSegments,
		EstimatedSecondsRemaining: roundHalfUp(sched.Duration.Seconds()),
		NetworkSpeedMbps:          speedMbps,
	}
	snapshot, version := s.commit()
	s.mu.Unlock()

	metrics.PreloadRunsTotal.WithLabelValues(string(name), "started").Inc()
	log.Info("Preload started: strategy=%s duration=%v steps=%d speed=%.2fMbps",
		name, sched.Duration, sched.Steps, speedMbps)
	s.notify(snapshot, version)

	go s.loop(r)
	return snapshot
}

// Stop cancels any run in progress and resets progress to 0. It is safe to
// call in any state; when nothing needs resetting it does nothing.
func (s *Simulator) Stop() {
	s.mu.Lock()
	r := s.run
	if r == nil && !s.state.IsPreloading && s.state.ProgressPercent == 0 {
		s.mu.Unlock()
		return
	}
	if r != nil {
		r.cancel()
		s.run = nil
		metrics.PreloadRunsTotal.WithLabelValues(string(r.strategy), "stopped").Inc()
		metrics.PreloadProgress.Observe(float64(s.state.ProgressPercent))
	}
	s.state.IsPreloading = false
	s.state.ProgressPercent = 0
	s.state.EstimatedSecondsRemaining = 0
	snapshot, version := s.commit()
	s.mu.Unlock()

	if r != nil {
		log.Debug("Preload stopped: strategy=%s step=%d/%d", r.strategy, r.step, r.schedule.Steps)
	}
	s.notify(snapshot, version)
}

func (s *Simulator) loop(r *run) {
	for {
		select {
		case <-r.ticker.C():
			if !s.tick(r) {
				return
			}
		case <-r.done:
			return
		}
	}
}

// tick advances r by one step. It returns false once r is no longer the
// current run.
func (s *Simulator) tick(r *run) bool {
	s.mu.Lock()
	if s.run != r {
		s.mu.Unlock()
		return false
	}

	r.step++
	steps := r.schedule.Steps
	interval := r.schedule.StepInterval()

	progress := roundHalfUp(float64(r.step) / float64(steps) * 100)
	if progress > 100 {
		progress = 100
	}
	if progress < s.state.ProgressPercent {
		progress = s.state.ProgressPercent
	}
	remaining := r.schedule.Duration - time.Duration(r.step)*interval
	secs := roundHalfUp(remaining.Seconds())
	if secs < 0 {
		secs = 0
	}

	s.state.ProgressPercent = progress
	s.state.EstimatedSecondsRemaining = secs

	finished := r.step >= steps
	if finished {
		r.cancel()
		s.run = nil
		s.state.IsPreloading = false
		metrics.PreloadRunsTotal.WithLabelValues(string(r.strategy), "completed").Inc()
	}
	snapshot, version := s.commit()
	s.mu.Unlock()

	if finished {
		log.Info("Preload complete: strategy=%s", r.strategy)
	}
	s.notify(snapshot, version)
	return !finished
}

// commit stamps the current state with a new version. Caller holds s.mu.
func (s *Simulator) commit() (State, uint64) {
	s.version++
	return s.state, s.version
}

func (s *Simulator) notify(st State, version uint64) {
	if s.onUpdate == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if version <= s.lastNotified {
		return
	}
	s.lastNotified = version
	s.onUpdate(st)
}

// roundHalfUp rounds halves toward positive infinity.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
