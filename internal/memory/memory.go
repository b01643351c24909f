package memory

import (
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"hls-preload/internal/clock"
	"hls-preload/internal/logging"
	"hls-preload/internal/metrics"
	"hls-preload/internal/poller"
)

// Stats is one heap reading.
type Stats struct {
	UsedBytes  int64     `json:"usedBytes"`
	LimitBytes int64     `json:"limitBytes"`
	UsageRatio float64   `json:"usageRatio"`
	SampledAt  time.Time `json:"sampledAt"`
}

// UsedMB returns the heap in use in MiB, rounded to two decimals.
func (s Stats) UsedMB() float64 {
	return toMB(s.UsedBytes)
}

// LimitMB returns the limit in MiB, rounded to two decimals. It is 0 when
// no limit is configured.
func (s Stats) LimitMB() float64 {
	return toMB(s.LimitBytes)
}

func toMB(b int64) float64 {
	return math.Round(float64(b)/(1024*1024)*100) / 100
}

// Config holds monitor settings.
type Config struct {
	// LimitBytes overrides the runtime memory limit. 0 reads GOMEMLIMIT.
	LimitBytes int64

	// Interval is the sampling period.
	Interval time.Duration

	Clock clock.Clock
}

// DefaultConfig samples once per second against the runtime limit.
func DefaultConfig() Config {
	return Config{Interval: time.Second, Clock: clock.Real()}
}

// Monitor samples heap usage on an interval.
type Monitor struct {
	limit  int64
	read   func() uint64
	clock  clock.Clock
	poller *poller.Poller

	mu     sync.RWMutex
	latest Stats
}

// NewMonitor creates a monitor. It takes one sample immediately so Stats is
// never empty.
func NewMonitor(cfg Config) *Monitor {
	return newMonitor(cfg, readHeapAlloc)
}

func newMonitor(cfg Config, read func() uint64) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	limit := cfg.LimitBytes
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l < math.MaxInt64 {
			limit = l
		}
	}
	if limit == 0 {
		logging.Debug("Memory monitor: no memory limit configured")
	}

	m := &Monitor{limit: limit, read: read, clock: cfg.Clock}
	m.poller = poller.New("memory", cfg.Interval, m.Sample, poller.WithClock(cfg.Clock))
	m.Sample()
	return m
}

func readHeapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// Start begins periodic sampling.
func (m *Monitor) Start() {
	m.poller.Start()
}

// Stop ends sampling. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.poller.Stop()
}

// Sample takes a reading now and publishes it.
func (m *Monitor) Sample() {
	used := m.read()
	if used > math.MaxInt64 {
		used = math.MaxInt64
	}
	st := Stats{
		UsedBytes:  int64(used),
		LimitBytes: m.limit,
		SampledAt:  m.clock.Now(),
	}
	if m.limit > 0 {
		st.UsageRatio = float64(st.UsedBytes) / float64(m.limit)
	}

	m.mu.Lock()
	m.latest = st
	m.mu.Unlock()

	metrics.MemoryUsedBytes.Set(float64(st.UsedBytes))
	metrics.MemoryUsageRatio.Set(st.UsageRatio)
}

// Stats returns the latest reading.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}
