package strategy

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownStrategy is returned when a strategy name is not recognized.
var ErrUnknownStrategy = errors.New("unknown preload strategy")

// Name identifies a preload strategy.
type Name string

const (
	// Aggressive buffers the most and preloads three segments ahead.
	Aggressive Name = "aggressive"
	// Moderate is the middle ground and the default.
	Moderate Name = "moderate"
	// Conservative buffers the least and preloads a single segment.
	Conservative Name = "conservative"
)

// Speed thresholds in Mbps.
const (
	AggressiveAboveMbps   = 5.0
	ConservativeBelowMbps = 1.0
)

// Config is the buffer configuration handed to the playback engine.
type Config struct {
	BufferTargetSeconds  int `json:"bufferTargetSeconds"`
	PreloadAheadSegments int `json:"preloadAheadSegments"`
}

// Schedule describes a simulated preload run.
type Schedule struct {
	Duration time.Duration
	Steps    int
}

// StepInterval returns the time between two progress ticks.
func (s Schedule) StepInterval() time.Duration {
	if s.Steps <= 0 {
		return s.Duration
	}
	return s.Duration / time.Duration(s.Steps)
}

var configs = map[Name]Config{
	Aggressive:   {BufferTargetSeconds: 120, PreloadAheadSegments: 3},
	Moderate:     {BufferTargetSeconds: 80, PreloadAheadSegments: 2},
	Conservative: {BufferTargetSeconds: 50, PreloadAheadSegments: 1},
}

var schedules = map[Name]Schedule{
	Aggressive:   {Duration: 3000 * time.Millisecond, Steps: 30},
	Moderate:     {Duration: 5000 * time.Millisecond, Steps: 20},
	Conservative: {Duration: 8000 * time.Millisecond, Steps: 10},
}

// All returns every strategy from most to least aggressive.
func All() []Name {
	return []Name{Aggressive, Moderate, Conservative}
}

// Select maps a speed sample to a strategy.
func Select(speedMbps float64) Name {
	if speedMbps > AggressiveAboveMbps {
		return Aggressive
	}
	if speedMbps < ConservativeBelowMbps {
		return Conservative
	}
	return Moderate
}

// Parse converts a case-insensitive name into a Name.
func Parse(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	if !n.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
	return n, nil
}

// Valid reports whether n is one of the known strategies.
func (n Name) Valid() bool {
	_, ok := configs[n]
	return ok
}

// Config returns the buffer configuration for n. Unknown names get the
// moderate configuration.
func (n Name) Config() Config {
	if c, ok := configs[n]; ok {
		return c
	}
	return configs[Moderate]
}

// Schedule returns the simulated preload schedule for n. Unknown names get
// the moderate schedule.
func (n Name) Schedule() Schedule {
	if s, ok := schedules[n]; ok {
		return s
	}
	return schedules[Moderate]
}

func (n Name) String() string {
	return string(n)
}

// Options is the in-memory option structure accepted by the player layer.
type Options struct {
	Strategy Name `json:"strategy"`
}

// Resolve validates the options and returns the matching configuration.
func (o Options) Resolve() (Config, error) {
	n, err := Parse(string(o.Strategy))
	if err != nil {
		return Config{}, err
	}
	return n.Config(), nil
}
