package overlay

import (
	"sync"
	"time"

	"hls-preload/internal/clock"
	"hls-preload/internal/logging"
	"hls-preload/internal/memory"
	"hls-preload/internal/netspeed"
)

var log = logging.Component("overlay")

// Performance is the performance section of the overlay.
type Performance struct {
	FPS           int     `json:"fps"`
	MemoryUsedMB  float64 `json:"memoryUsedMB"`
	MemoryLimitMB float64 `json:"memoryLimitMB,omitempty"`
}

// NetworkStatus is the network section of the overlay.
type NetworkStatus struct {
	Online         bool    `json:"online"`
	ConnectionType string  `json:"connectionType"`
	DownlinkMbps   float64 `json:"downlink"`
	EffectiveType  string  `json:"effectiveType"`
	RTTMillis      int     `json:"rtt"`
}

// NetworkFrom converts a connection reading into the overlay readout.
func NetworkFrom(info netspeed.ConnectionInfo) NetworkStatus {
	return NetworkStatus{
		Online:         info.Online,
		ConnectionType: info.Type,
		DownlinkMbps:   info.DownlinkMbps,
		EffectiveType:  info.EffectiveType,
		RTTMillis:      info.RTTMillis,
	}
}

// Snapshot is a full overlay readout.
type Snapshot struct {
	Network     NetworkStatus `json:"network"`
	Device      DeviceInfo    `json:"device"`
	Performance Performance   `json:"performance"`
	GeneratedAt time.Time     `json:"generatedAt"`
}

// Config holds overlay settings.
type Config struct {
	MemoryInterval time.Duration
	MemoryLimit    int64
	Clock          clock.Clock
}

// Overlay owns the pollers behind the debug overlay. Frame rates are kept
// per client, keyed by the ID each client sends with its frame reports.
type Overlay struct {
	clock  clock.Clock
	memory *memory.Monitor

	mu     sync.Mutex
	meters map[string]*clientMeter
}

type clientMeter struct {
	fps      *FPSMeter
	lastSeen time.Time
}

// New creates an overlay. Nothing is polled until Start.
func New(cfg Config) *Overlay {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.MemoryInterval <= 0 {
		cfg.MemoryInterval = time.Second
	}
	return &Overlay{
		clock: cfg.Clock,
		memory: memory.NewMonitor(memory.Config{
			LimitBytes: cfg.MemoryLimit,
			Interval:   cfg.MemoryInterval,
			Clock:      cfg.Clock,
		}),
		meters: make(map[string]*clientMeter),
	}
}

// Start begins memory sampling.
func (o *Overlay) Start() {
	o.memory.Start()
}

// Stop ends memory sampling.
func (o *Overlay) Stop() {
	o.memory.Stop()
}

// RecordFrames adds n frames rendered by client since its last report and
// returns that client's reading. A client's window starts at its first
// report.
func (o *Overlay) RecordFrames(client string, n int) int {
	now := o.clock.Now()

	o.mu.Lock()
	m, ok := o.meters[client]
	if !ok {
		m = &clientMeter{fps: NewFPSMeter(now)}
		o.meters[client] = m
	}
	m.lastSeen = now
	o.mu.Unlock()

	return m.fps.Frames(n, now)
}

// FPS returns the last reading published for client, or 0 when the client
// has not reported frames.
func (o *Overlay) FPS(client string) int {
	o.mu.Lock()
	m, ok := o.meters[client]
	o.mu.Unlock()
	if !ok {
		return 0
	}
	return m.fps.FPS()
}

// Sweep drops the meters of clients that have not reported for maxIdle and
// returns how many were dropped.
func (o *Overlay) Sweep(maxIdle time.Duration) int {
	cutoff := o.clock.Now().Add(-maxIdle)

	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for id, m := range o.meters {
		if m.lastSeen.Before(cutoff) {
			delete(o.meters, id)
			n++
		}
	}
	if n > 0 {
		log.Debug("Dropped %d idle FPS meters (%d left)", n, len(o.meters))
	}
	return n
}

// Memory returns the latest heap reading.
func (o *Overlay) Memory() memory.Stats {
	return o.memory.Stats()
}

// Snapshot assembles the overlay for one client.
func (o *Overlay) Snapshot(client string, network netspeed.ConnectionInfo, device DeviceInfo) Snapshot {
	mem := o.memory.Stats()
	return Snapshot{
		Network: NetworkFrom(network),
		Device:  device,
		Performance: Performance{
			FPS:           o.FPS(client),
			MemoryUsedMB:  mem.UsedMB(),
			MemoryLimitMB: mem.LimitMB(),
		},
		GeneratedAt: o.clock.Now(),
	}
}
