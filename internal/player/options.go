package player

import (
	"encoding/json"
	"fmt"

	"hls-preload/internal/strategy"
)

// HLSConfig is the configuration object passed to the embedded HLS engine.
// Field names follow the engine's option keys.
type HLSConfig struct {
	// Buffering
	MaxBufferLength    int     `json:"maxBufferLength"`
	MaxBufferSize      int     `json:"maxBufferSize"`
	MaxMaxBufferLength int     `json:"maxMaxBufferLength"`
	MaxBufferHole      float64 `json:"maxBufferHole"`
	BackBufferLength   int     `json:"backBufferLength"`

	// Startup
	StartFragPrefetch  bool `json:"startFragPrefetch"`
	AutoStartLoad      bool `json:"autoStartLoad"`
	TestBandwidth      bool `json:"testBandwidth"`
	LowLatencyMode     bool `json:"lowLatencyMode"`
	MaxStarvationDelay int  `json:"maxStarvationDelay"`
	MaxLoadingDelay    int  `json:"maxLoadingDelay"`
	EnableWorker       bool `json:"enableWorker"`
	Progressive        bool `json:"progressive"`

	// Retries and timeouts (milliseconds)
	FragLoadingMaxRetry        int     `json:"fragLoadingMaxRetry"`
	FragLoadingMaxRetryTimeout int     `json:"fragLoadingMaxRetryTimeout"`
	FragLoadingTimeOut         int     `json:"fragLoadingTimeOut"`
	SegmentLoadingMaxRetry     int     `json:"segmentLoadingMaxRetry"`
	SegmentLoadingTimeOut      int     `json:"segmentLoadingTimeOut"`
	ManifestLoadingTimeOut     int     `json:"manifestLoadingTimeOut"`
	ManifestLoadingMaxRetry    int     `json:"manifestLoadingMaxRetry"`
	LevelLoadingMaxRetry       int     `json:"levelLoadingMaxRetry"`
	AppendErrorMaxRetry        int     `json:"appendErrorMaxRetry"`
	NudgeOffset                float64 `json:"nudgeOffset"`
	NudgeMaxRetry              int     `json:"nudgeMaxRetry"`

	// Adaptive bitrate
	StartLevel             int     `json:"startLevel"`
	CapLevelToPlayerSize   bool    `json:"capLevelToPlayerSize"`
	AbrEwmaDefaultEstimate int     `json:"abrEwmaDefaultEstimate"`
	AbrBandWidthFactor     float64 `json:"abrBandWidthFactor"`
	AbrBandWidthUpFactor   float64 `json:"abrBandWidthUpFactor"`
	AbrEwmaFastLive        float64 `json:"abrEwmaFastLive"`
	AbrEwmaSlowLive        float64 `json:"abrEwmaSlowLive"`

	// Live
	LiveSyncDurationCount  int `json:"liveSyncDurationCount"`
	LiveSyncDuration       int `json:"liveSyncDuration"`
	LiveMaxLatencyDuration int `json:"liveMaxLatencyDuration"`
	LiveBackBufferLength   int `json:"liveBackBufferLength"`

	EnableSoftwareAES    bool `json:"enableSoftwareAES"`
	EnableCEA708Captions bool `json:"enableCEA708Captions"`
}

// HTML5Options wraps the engine configuration for the HTML5 tech.
type HTML5Options struct {
	HLSJSConfig HLSConfig `json:"hlsjsConfig"`
}

// EngineOptions is the full option object for the embedded player.
type EngineOptions struct {
	Controls      bool         `json:"controls"`
	Responsive    bool         `json:"responsive"`
	Fluid         bool         `json:"fluid"`
	Preload       string       `json:"preload"`
	HTML5         HTML5Options `json:"html5"`
	TechOrder     []string     `json:"techOrder"`
	PlaybackRates []float64    `json:"playbackRates"`
}

// DefaultEngineOptions returns the tuned defaults for 5-10 second segments.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		Controls:   true,
		Responsive: true,
		Fluid:      true,
		Preload:    "auto",
		HTML5: HTML5Options{HLSJSConfig: HLSConfig{
			MaxBufferLength:    60,
			MaxBufferSize:      150 * 1000 * 1000,
			MaxMaxBufferLength: 180,
			MaxBufferHole:      0.1,
			BackBufferLength:   45,

			StartFragPrefetch:  true,
			AutoStartLoad:      true,
			TestBandwidth:      false,
			LowLatencyMode:     false,
			MaxStarvationDelay: 4,
			MaxLoadingDelay:    4,
			EnableWorker:       true,
			Progressive:        true,

			FragLoadingMaxRetry:        8,
			FragLoadingMaxRetryTimeout: 64000,
			FragLoadingTimeOut:         10000,
			SegmentLoadingMaxRetry:     8,
			SegmentLoadingTimeOut:      10000,
			ManifestLoadingTimeOut:     8000,
			ManifestLoadingMaxRetry:    4,
			LevelLoadingMaxRetry:       4,
			AppendErrorMaxRetry:        5,
			NudgeOffset:                0.05,
			NudgeMaxRetry:              5,

			StartLevel:             -1,
			CapLevelToPlayerSize:   true,
			AbrEwmaDefaultEstimate: 2000000,
			AbrBandWidthFactor:     0.95,
			AbrBandWidthUpFactor:   0.85,
			AbrEwmaFastLive:        1.0,
			AbrEwmaSlowLive:        3.0,

			LiveSyncDurationCount:  3,
			LiveSyncDuration:       15,
			LiveMaxLatencyDuration: 25,
			LiveBackBufferLength:   30,

			EnableSoftwareAES:    true,
			EnableCEA708Captions: false,
		}},
		TechOrder:     []string{"html5"},
		PlaybackRates: []float64{0.5, 1, 1.25, 1.5, 2},
	}
}

// ApplyStrategy sizes the forward buffer and live sync window from a
// strategy configuration.
func (o EngineOptions) ApplyStrategy(cfg strategy.Config) EngineOptions {
	if cfg.BufferTargetSeconds > 0 {
		o.HTML5.HLSJSConfig.MaxBufferLength = cfg.BufferTargetSeconds
		if o.HTML5.HLSJSConfig.MaxMaxBufferLength < cfg.BufferTargetSeconds {
			o.HTML5.HLSJSConfig.MaxMaxBufferLength = cfg.BufferTargetSeconds
		}
	}
	if cfg.PreloadAheadSegments > 0 {
		o.HTML5.HLSJSConfig.LiveSyncDurationCount = cfg.PreloadAheadSegments
	}
	return o
}

// Merge overlays caller options onto o. Nested objects are merged key by
// key; arrays and scalars replace the default.
func (o EngineOptions) Merge(overrides map[string]any) (EngineOptions, error) {
	if len(overrides) == 0 {
		return o.clone(), nil
	}
	raw, err := json.Marshal(overrides)
	if err != nil {
		return o, fmt.Errorf("failed to encode player options: %w", err)
	}
	merged := o.clone()
	// Unmarshal into a populated struct keeps fields absent from raw.
	if err := json.Unmarshal(raw, &merged); err != nil {
		return o, fmt.Errorf("invalid player options: %w", err)
	}
	return merged, nil
}

func (o EngineOptions) clone() EngineOptions {
	o.TechOrder = append([]string(nil), o.TechOrder...)
	o.PlaybackRates = append([]float64(nil), o.PlaybackRates...)
	return o
}
