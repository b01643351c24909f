package overlay

import (
	"math"
	"sync"
	"time"

	"hls-preload/internal/metrics"
)

// FPSMeter turns frame notifications into a frames-per-second reading. A new
// value is published once at least one second has passed since the last one.
type FPSMeter struct {
	mu     sync.Mutex
	last   time.Time
	frames int
	fps    int
}

// NewFPSMeter starts a measurement window at start.
func NewFPSMeter(start time.Time) *FPSMeter {
	return &FPSMeter{last: start}
}

// Frame records one rendered frame at now.
func (m *FPSMeter) Frame(now time.Time) int {
	return m.Frames(1, now)
}

// Frames records n frames rendered up to now and returns the current reading.
func (m *FPSMeter) Frames(n int, now time.Time) int {
	if n < 0 {
		n = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.frames += n
	elapsed := now.Sub(m.last)
	if elapsed >= time.Second {
		ms := float64(elapsed) / float64(time.Millisecond)
		m.fps = int(math.Floor(float64(m.frames)*1000/ms + 0.5))
		m.frames = 0
		m.last = now
		metrics.OverlayFPS.Set(float64(m.fps))
	}
	return m.fps
}

// FPS returns the last published reading.
func (m *FPSMeter) FPS() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fps
}

// Reset starts a new window at now and clears the reading.
func (m *FPSMeter) Reset(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = now
	m.frames = 0
	m.fps = 0
}
