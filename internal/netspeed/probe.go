package netspeed

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"hls-preload/internal/logging"
	"hls-preload/internal/metrics"
)

// DefaultProbeFactor is the constant k in the k/elapsedMs speed proxy. It is
// a heuristic carried over unchanged; the result is monotonic in latency but
// is not a calibrated Mbps figure.
const DefaultProbeFactor = 1000.0

// maxProbeBytes bounds how much of the probe body is read.
const maxProbeBytes = 64 * 1024

// Prober times a fetch of a tiny resource.
type Prober struct {
	client *http.Client
	url    string
	factor float64
	now    func() time.Time
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithHTTPClient sets the client used for the probe request.
func WithHTTPClient(c *http.Client) ProberOption {
	return func(p *Prober) { p.client = c }
}

// WithFactor overrides DefaultProbeFactor.
func WithFactor(k float64) ProberOption {
	return func(p *Prober) { p.factor = k }
}

// WithNow overrides the wall clock used to time the request.
func WithNow(now func() time.Time) ProberOption {
	return func(p *Prober) { p.now = now }
}

// NewProber creates a prober for probeURL.
func NewProber(probeURL string, opts ...ProberOption) *Prober {
	p := &Prober{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    probeURL,
		factor: DefaultProbeFactor,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe fetches the resource and returns factor/elapsedMs. Any failure
// yields 0; Probe never returns an error.
func (p *Prober) Probe(ctx context.Context) float64 {
	if p == nil || p.url == "" {
		return 0
	}

	start := p.now()
	target, err := cacheBusted(p.url, start)
	if err != nil {
		logging.Warn("Speed probe: invalid probe URL %q: %v", p.url, err)
		metrics.ProbeFailures.WithLabelValues("request").Inc()
		return 0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		logging.Warn("Speed probe: failed to build request: %v", err)
		metrics.ProbeFailures.WithLabelValues("request").Inc()
		return 0
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.client.Do(req)
	if err != nil {
		logging.Debug("Speed probe failed: %v", err)
		metrics.ProbeFailures.WithLabelValues("request").Inc()
		return 0
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Debug("Speed probe: failed to close body: %v", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logging.Debug("Speed probe: unexpected status %d", resp.StatusCode)
		metrics.ProbeFailures.WithLabelValues("status").Inc()
		return 0
	}

	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxProbeBytes)); err != nil {
		logging.Debug("Speed probe: failed to read body: %v", err)
		metrics.ProbeFailures.WithLabelValues("read").Inc()
		return 0
	}

	elapsed := p.now().Sub(start)
	if elapsed <= 0 {
		elapsed = time.Microsecond
	}
	metrics.ProbeDuration.Observe(elapsed.Seconds())

	elapsedMs := float64(elapsed) / float64(time.Millisecond)
	return p.factor / elapsedMs
}

// cacheBusted appends the start timestamp as a query parameter so that
// intermediate caches never answer the probe.
func cacheBusted(raw string, start time.Time) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(start.UnixNano(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
