package poller

import (
	"sync"
	"time"

	"hls-preload/internal/clock"
	"hls-preload/internal/logging"
)

// Poller calls a function every interval until stopped.
type Poller struct {
	name     string
	interval time.Duration
	fn       func()
	clock    clock.Clock

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
	stopped  bool
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock sets the clock used for the ticker.
func WithClock(c clock.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// New creates a poller. It does nothing until Start is called.
func New(name string, interval time.Duration, fn func(), opts ...Option) *Poller {
	p := &Poller{
		name:     name,
		interval: interval,
		fn:       fn,
		clock:    clock.Real(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins the polling loop. Calling Start on a running or stopped
// poller has no effect.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopChan != nil || p.stopped {
		return
	}
	p.stopChan = make(chan struct{})
	p.done = make(chan struct{})

	ticker := p.clock.NewTicker(p.interval)
	go p.loop(ticker, p.stopChan, p.done)
	logging.Debug("Poller %s started (interval %v)", p.name, p.interval)
}

// Stop ends the polling loop and waits for it to exit. It is safe to call
// more than once and before Start.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	stopChan, done := p.stopChan, p.done
	p.mu.Unlock()

	if stopChan == nil {
		return
	}
	close(stopChan)
	<-done
	logging.Debug("Poller %s stopped", p.name)
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopChan != nil && !p.stopped
}

func (p *Poller) loop(ticker clock.Ticker, stopChan <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			p.fn()
		case <-stopChan:
			return
		}
	}
}
