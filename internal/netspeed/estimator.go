package netspeed

import (
	"context"

	"hls-preload/internal/metrics"
)

// Source records which path produced an estimate.
type Source string

const (
	SourceConnection Source = "connection"
	SourceProbe      Source = "probe"
	SourceNone       Source = "none"
)

// Estimate is a single speed sample.
type Estimate struct {
	SpeedMbps float64 `json:"speedMbps"`
	Source    Source  `json:"source"`
}

// Estimator produces a speed sample from a connection provider, falling
// back to a timed probe.
type Estimator struct {
	provider ConnectionProvider
	prober   *Prober
}

// NewEstimator creates an estimator. Either argument may be nil.
func NewEstimator(provider ConnectionProvider, prober *Prober) *Estimator {
	return &Estimator{provider: provider, prober: prober}
}

// WithProvider returns a copy of e that consults p first, then e's own
// provider. Handlers use it to put request client hints ahead of the
// configured defaults.
func (e *Estimator) WithProvider(p ConnectionProvider) *Estimator {
	if e == nil {
		return NewEstimator(p, nil)
	}
	chain := Chain{p}
	if e.provider != nil {
		chain = append(chain, e.provider)
	}
	return &Estimator{provider: chain, prober: e.prober}
}

// Estimate returns the connection downlink when a provider reports one,
// otherwise the probe result. It never fails; an unavailable or failing
// path yields 0.
func (e *Estimator) Estimate(ctx context.Context) Estimate {
	est := e.estimate(ctx)
	metrics.SpeedEstimates.WithLabelValues(string(est.Source)).Observe(est.SpeedMbps)
	return est
}

func (e *Estimator) estimate(ctx context.Context) Estimate {
	if e == nil {
		return Estimate{Source: SourceNone}
	}
	if e.provider != nil {
		if info, ok := e.provider.Connection(ctx); ok {
			return Estimate{SpeedMbps: info.DownlinkMbps, Source: SourceConnection}
		}
	}
	if e.prober != nil {
		return Estimate{SpeedMbps: e.prober.Probe(ctx), Source: SourceProbe}
	}
	return Estimate{Source: SourceNone}
}

// Status returns the network readout for the debug overlay.
func (e *Estimator) Status(ctx context.Context) ConnectionInfo {
	if e == nil || e.provider == nil {
		return Unknown()
	}
	info, _ := e.provider.Connection(ctx)
	return info
}
