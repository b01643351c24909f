package netspeed

import (
	"context"
	"errors"
	"math"
	"sync"
)

// ErrInvalidSpeed is returned for a reported speed that is negative or not
// finite.
var ErrInvalidSpeed = errors.New("speed must be a finite, non-negative Mbps value")

// ReportedProvider holds a downlink the client measured itself, usually by
// timing its own fetch of the speed probe. It is unavailable until Set.
type ReportedProvider struct {
	mu   sync.RWMutex
	info ConnectionInfo
	ok   bool
}

// NewReportedProvider returns an empty provider.
func NewReportedProvider() *ReportedProvider {
	return &ReportedProvider{info: Unknown()}
}

// Set records the client's measured downlink.
func (p *ReportedProvider) Set(downlinkMbps float64) error {
	if downlinkMbps < 0 || math.IsNaN(downlinkMbps) || math.IsInf(downlinkMbps, 0) {
		return ErrInvalidSpeed
	}
	p.mu.Lock()
	p.info = Unknown()
	p.info.Online = true
	p.info.DownlinkMbps = downlinkMbps
	p.ok = true
	p.mu.Unlock()
	return nil
}

// Connection implements ConnectionProvider.
func (p *ReportedProvider) Connection(context.Context) (ConnectionInfo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info, p.ok
}
