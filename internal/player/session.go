package player

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	"hls-preload/internal/clock"
	"hls-preload/internal/logging"
	"hls-preload/internal/metrics"
	"hls-preload/internal/netspeed"
	"hls-preload/internal/poller"
	"hls-preload/internal/preload"
	"hls-preload/internal/source"
)

var log = logging.Component("player")

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("session closed")

// ErrSpeedReportUnsupported is returned by ReportSpeed on a session built
// without a reported-speed provider.
var ErrSpeedReportUnsupported = errors.New("session does not accept speed reports")

// Config holds session timing.
type Config struct {
	ReloadDelay        time.Duration
	BufferPollInterval time.Duration
	SegmentDuration    time.Duration
	Clock              clock.Clock
}

// DefaultConfig returns the standard session timing.
func DefaultConfig() Config {
	return Config{
		ReloadDelay:        2 * time.Second,
		BufferPollInterval: time.Second,
		SegmentDuration:    10 * time.Second,
		Clock:              clock.Real(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReloadDelay <= 0 {
		c.ReloadDelay = d.ReloadDelay
	}
	if c.BufferPollInterval <= 0 {
		c.BufferPollInterval = d.BufferPollInterval
	}
	if c.SegmentDuration <= 0 {
		c.SegmentDuration = d.SegmentDuration
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	return c
}

// Metrics is the per-session readout shown next to the player.
type Metrics struct {
	Source                 *source.Descriptor `json:"source,omitempty"`
	IsLoading              bool               `json:"isLoading"`
	LoadingProgress        int                `json:"loadingProgress"`
	LoadTimeMillis         int64              `json:"loadTime"`
	DurationSeconds        float64            `json:"duration"`
	Live                   bool               `json:"live"`
	BufferHealthSeconds    float64            `json:"bufferHealth"`
	BitrateBps             float64            `json:"bitrate"`
	DroppedFrames          int                `json:"droppedFrames"`
	SegmentDurationSeconds float64            `json:"segmentDuration"`
	BufferedSegments       int                `json:"bufferedSegments"`
	SegmentSizeBytes       int                `json:"segmentSize"`
	ReloadPending          bool               `json:"reloadPending"`
	Reloads                int                `json:"reloads"`
	LastError              *PlaybackError     `json:"lastError,omitempty"`
	Preload                preload.State      `json:"preload"`
}

// Session ties one player to its preload controller, buffer monitor and
// error recovery.
type Session struct {
	ID        string
	CreatedAt time.Time

	player     Player
	controller *preload.Controller
	cfg        Config
	monitor    *poller.Poller
	reported   *netspeed.ReportedProvider

	mu          sync.Mutex
	metrics     Metrics
	source      *source.Descriptor
	sourceSetAt time.Time
	lastSeen    time.Time
	reload      clock.Timer
	reloadGen   uint64
	closed      bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithReportedSpeed lets ReportSpeed store client measurements in r. The
// controller's estimator should consult r.
func WithReportedSpeed(r *netspeed.ReportedProvider) SessionOption {
	return func(s *Session) {
		s.reported = r
	}
}

// NewSession creates a session and starts its buffer monitor.
func NewSession(id string, p Player, controller *preload.Controller, cfg Config, opts ...SessionOption) *Session {
	cfg = cfg.withDefaults()
	now := cfg.Clock.Now()
	s := &Session{
		ID:         id,
		CreatedAt:  now,
		player:     p,
		controller: controller,
		cfg:        cfg,
		lastSeen:   now,
		metrics: Metrics{
			IsLoading:              true,
			SegmentDurationSeconds: cfg.SegmentDuration.Seconds(),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.monitor = poller.New("buffer-"+id, cfg.BufferPollInterval, s.sampleBuffer, poller.WithClock(cfg.Clock))
	s.monitor.Start()
	return s
}

// SetSource assigns a new source to the player. Any pending reload and the
// previous preload run are cancelled first. For adaptive sources the smart
// preload then starts with a strategy chosen for the current network.
func (s *Session) SetSource(ctx context.Context, rawURL string) (preload.State, error) {
	d, err := source.Detect(rawURL)
	if err != nil {
		return preload.State{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return preload.State{}, ErrSessionClosed
	}
	s.cancelReloadLocked()
	s.source = &d
	s.sourceSetAt = s.cfg.Clock.Now()
	s.lastSeen = s.sourceSetAt
	s.metrics = Metrics{
		Source:                 &d,
		IsLoading:              true,
		SegmentDurationSeconds: s.cfg.SegmentDuration.Seconds(),
	}
	s.mu.Unlock()

	s.player.SetSource(d)
	s.player.Load()
	log.Info("Session %s: source set to %s (%s)", s.ID, d.URL, d.MIMEType())

	st, err := s.controller.Start(ctx, d)

	// A Close after the check above may have stopped the controller before
	// this run began.
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		s.controller.Stop()
		return preload.State{}, ErrSessionClosed
	}

	switch {
	case errors.Is(err, preload.ErrNotAdaptive):
		log.Debug("Session %s: no preload for progressive source", s.ID)
		return st, nil
	case errors.Is(err, preload.ErrSuperseded):
		return s.controller.State(), nil
	}
	return st, err
}

// ReportSpeed records a downlink the client measured itself. It takes
// precedence over client hints for later SetSource calls.
func (s *Session) ReportSpeed(downlinkMbps float64) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	if s.reported == nil {
		return ErrSpeedReportUnsupported
	}
	if err := s.reported.Set(downlinkMbps); err != nil {
		return err
	}
	log.Debug("Session %s: client reported %.2f Mbps", s.ID, downlinkMbps)
	return nil
}

// HandleEvent consumes one event reported by the player.
func (s *Session) HandleEvent(ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.lastSeen = s.cfg.Clock.Now()
	s.mu.Unlock()

	metrics.PlayerEventsTotal.WithLabelValues(string(ev.Type)).Inc()
	if obs, ok := s.player.(EventObserver); ok {
		obs.Observe(ev)
	}

	switch ev.Type {
	case EventLoadedMetadata:
		s.onLoadedMetadata(ev)
	case EventProgress:
		s.onProgress(ev)
	case EventCanPlay:
		log.Debug("Session %s: can play", s.ID)
	case EventRateChange:
		log.Debug("Session %s: playback rate %.2f", s.ID, ev.PlaybackRate)
	case EventError:
		s.onError(ev)
	}
	return nil
}

func (s *Session) onLoadedMetadata(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.metrics.IsLoading && s.source != nil {
		elapsed := s.cfg.Clock.Now().Sub(s.sourceSetAt)
		s.metrics.LoadTimeMillis = elapsed.Milliseconds()
		metrics.LoadTime.WithLabelValues(string(s.source.Kind)).Observe(elapsed.Seconds())
		log.Info("Session %s: metadata loaded in %dms", s.ID, s.metrics.LoadTimeMillis)
	}
	s.metrics.IsLoading = false
	s.metrics.Live = ev.IsLive()
	if ev.Duration > 0 && !math.IsInf(ev.Duration, 0) {
		s.metrics.DurationSeconds = ev.Duration
	}
}

func (s *Session) onProgress(ev Event) {
	if len(ev.Buffered) == 0 || ev.Duration <= 0 || math.IsInf(ev.Duration, 0) {
		return
	}
	pct := roundHalfUp(ev.Buffered[0].End / ev.Duration * 100)
	if pct > 100 {
		pct = 100
	}

	s.mu.Lock()
	s.metrics.LoadingProgress = pct
	s.metrics.DurationSeconds = ev.Duration
	s.mu.Unlock()
}

func (s *Session) onError(ev Event) {
	pe := PlaybackError{Code: ev.ErrorCode, Message: ev.ErrorMessage}
	metrics.PlaybackErrors.WithLabelValues(strconv.Itoa(pe.Code)).Inc()
	log.Warn("Session %s: playback error code=%d: %s", s.ID, pe.Code, pe.Message)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.LastError = &pe
	if !pe.Recoverable() || s.closed {
		return
	}
	if s.reload != nil {
		log.Debug("Session %s: reload already pending", s.ID)
		return
	}
	gen := s.reloadGen
	s.reload = s.cfg.Clock.AfterFunc(s.cfg.ReloadDelay, func() { s.reloadNow(gen) })
	s.metrics.ReloadPending = true
	log.Info("Session %s: reloading in %v", s.ID, s.cfg.ReloadDelay)
}

func (s *Session) reloadNow(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.reloadGen || s.reload == nil {
		s.mu.Unlock()
		return
	}
	s.reload = nil
	s.reloadGen++
	s.metrics.ReloadPending = false
	s.metrics.Reloads++
	s.mu.Unlock()

	metrics.PlaybackReloads.Inc()
	log.Info("Session %s: reloading after playback error", s.ID)
	s.player.Load()
}

// cancelReloadLocked drops any pending reload. Caller holds s.mu.
func (s *Session) cancelReloadLocked() {
	if s.reload != nil {
		s.reload.Stop()
		s.reload = nil
	}
	s.reloadGen++
	s.metrics.ReloadPending = false
}

// sampleBuffer is the buffer monitor tick.
func (s *Session) sampleBuffer() {
	snap := s.player.Snapshot()
	end, ok := snap.BufferedEnd()
	if !ok {
		return
	}

	health := math.Max(0, end-snap.CurrentTime)
	health = math.Floor(health*10+0.5) / 10
	segs := int(math.Floor(health / s.cfg.SegmentDuration.Seconds()))
	metrics.BufferHealthSeconds.Observe(health)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.BufferHealthSeconds = health
	s.metrics.BufferedSegments = segs
	s.metrics.DroppedFrames = snap.DroppedFrames
	s.metrics.BitrateBps = snap.BitrateBps
	s.metrics.SegmentSizeBytes = 0
	if s.source != nil && s.source.IsAdaptive() && snap.BitrateBps > 0 {
		s.metrics.SegmentSizeBytes = roundHalfUp(snap.BitrateBps / 8 / s.cfg.SegmentDuration.Seconds())
	}
}

// StopPreload cancels the current preload run.
func (s *Session) StopPreload() {
	s.touch()
	s.controller.Stop()
}

// Metrics returns a copy of the session readout.
func (s *Session) Metrics() Metrics {
	s.mu.Lock()
	m := s.metrics
	s.mu.Unlock()
	if m.LastError != nil {
		e := *m.LastError
		m.LastError = &e
	}
	m.Preload = s.controller.State()
	return m
}

// Player returns the session's player.
func (s *Session) Player() Player {
	return s.player
}

// Preloading reports whether a preload run is in progress.
func (s *Session) Preloading() bool {
	return s.controller.State().IsPreloading
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = s.cfg.Clock.Now()
	s.mu.Unlock()
}

// Close cancels every timer the session owns. It is safe to call more than
// once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelReloadLocked()
	s.mu.Unlock()

	// The monitor's tick takes s.mu, so stop it unlocked.
	s.monitor.Stop()
	s.controller.Stop()
	log.Debug("Session %s closed", s.ID)
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
