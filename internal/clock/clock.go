// Package clock abstracts the time source used by tickers and delayed
// callbacks so that timer-driven components can be tested deterministically.
package clock

import (
	"sync"
	"time"
)

// Clock creates tickers and timers.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	AfterFunc(d time.Duration, f func()) Timer
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Timer is a pending AfterFunc callback.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the
	// callback already fired or the timer was already stopped.
	Stop() bool
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// Fake is a manually advanced Clock. Ticks are delivered on unbuffered
// channels, so Advance blocks until each tick has been received.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	timers  []*fakeTimer
}

// NewFake returns a Fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NewTicker registers a ticker firing every d of fake time.
func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{
		c:       make(chan time.Time),
		period:  d,
		next:    f.now.Add(d),
		stopped: make(chan struct{}),
	}
	f.tickers = append(f.tickers, t)
	return t
}

// AfterFunc registers f to run once d of fake time has elapsed. The
// callback runs on the goroutine calling Advance.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{clock: f, when: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves fake time forward by d, firing due timers and ticks in
// chronological order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for {
		f.prune()
		at, fire := f.nextEvent(target)
		if fire == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = at
		f.mu.Unlock()
		fire()
		f.mu.Lock()
	}
}

// PendingTimers returns the number of timers that have not fired or been stopped.
func (f *Fake) PendingTimers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prune()
	return len(f.timers)
}

// ActiveTickers returns the number of tickers that have not been stopped.
func (f *Fake) ActiveTickers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prune()
	return len(f.tickers)
}

// prune drops stopped tickers and spent timers. Caller holds f.mu.
func (f *Fake) prune() {
	tickers := f.tickers[:0]
	for _, t := range f.tickers {
		if !t.isStopped() {
			tickers = append(tickers, t)
		}
	}
	f.tickers = tickers

	timers := f.timers[:0]
	for _, t := range f.timers {
		if !t.done {
			timers = append(timers, t)
		}
	}
	f.timers = timers
}

// nextEvent picks the earliest event due at or before target and returns a
// closure that fires it. Timers win ties against tickers. Caller holds f.mu.
func (f *Fake) nextEvent(target time.Time) (time.Time, func()) {
	var (
		best   time.Time
		found  bool
		timer  *fakeTimer
		ticker *fakeTicker
	)

	for _, t := range f.timers {
		if t.when.After(target) {
			continue
		}
		if !found || t.when.Before(best) {
			best, found, timer = t.when, true, t
		}
	}
	for _, t := range f.tickers {
		if t.next.After(target) {
			continue
		}
		if !found || t.next.Before(best) {
			best, found, timer, ticker = t.next, true, nil, t
		}
	}
	if !found {
		return time.Time{}, nil
	}

	if ticker != nil {
		at := ticker.next
		ticker.next = ticker.next.Add(ticker.period)
		return at, func() {
			select {
			case ticker.c <- at:
			case <-ticker.stopped:
			}
		}
	}

	return best, func() {
		f.mu.Lock()
		if timer.done {
			f.mu.Unlock()
			return
		}
		timer.done = true
		f.mu.Unlock()
		timer.fn()
	}
}

type fakeTicker struct {
	c       chan time.Time
	period  time.Duration
	next    time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.once.Do(func() { close(t.stopped) })
}

func (t *fakeTicker) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

type fakeTimer struct {
	clock *Fake
	when  time.Time
	fn    func()
	done  bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}
