package perftest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"hls-preload/internal/database"
	"hls-preload/internal/logging"
	"hls-preload/internal/metrics"
	"hls-preload/internal/source"
	"hls-preload/internal/strategy"
	"hls-preload/internal/workers"
)

var log = logging.Component("perftest")

// Event types recorded during a run. They carry the meaning of the
// corresponding media element events.
const (
	EventLoadedMetadata = "loadedmetadata"
	EventCanPlay        = "canplay"
	EventCanPlayThrough = "canplaythrough"
	EventError          = "error"
)

const (
	// mp4CanPlayBytes is how much of a progressive file counts as first data.
	mp4CanPlayBytes = 64 * 1024
	// mp4CanPlayThroughBytes is how much counts as enough buffered to play.
	mp4CanPlayThroughBytes = 1024 * 1024
	// maxPlaylistBytes bounds a manifest body.
	maxPlaylistBytes = source.MaxPlaylistBytes
	// maxWorkers caps ForIO on large hosts.
	maxWorkers = 16
)

// Store persists results. *database.Database satisfies it.
type Store interface {
	SaveResult(ctx context.Context, r *database.PerfTestResult) error
}

// Config configures a Runner.
type Config struct {
	Client        *http.Client
	Strategy      strategy.Name
	DefaultWindow time.Duration
	Concurrency   int
	Store         Store
	Now           func() time.Time
}

// DefaultConfig returns the configuration used when fields are unset.
func DefaultConfig() Config {
	return Config{
		Client:        &http.Client{Timeout: 30 * time.Second},
		Strategy:      strategy.Moderate,
		DefaultWindow: 30 * time.Second,
		Concurrency:   workers.ForIO(maxWorkers),
		Now:           time.Now,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Client == nil {
		c.Client = def.Client
	}
	if !c.Strategy.Valid() {
		c.Strategy = def.Strategy
	}
	if c.DefaultWindow <= 0 {
		c.DefaultWindow = def.DefaultWindow
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Now == nil {
		c.Now = def.Now
	}
	return c
}

// Runner measures how quickly a source reaches the player's readiness
// milestones. Runs beyond Concurrency wait for a slot.
type Runner struct {
	cfg Config
	sem *semaphore.Weighted
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	cfg = cfg.withDefaults()
	log.Info("Perf-test runner: concurrency=%d window=%v strategy=%s",
		cfg.Concurrency, cfg.DefaultWindow, cfg.Strategy)
	return &Runner{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(cfg.Concurrency)),
	}
}

// WithStrategy returns a Runner that preloads as many segments as name
// would. It shares r's concurrency slots and store.
func (r *Runner) WithStrategy(name strategy.Name) *Runner {
	cfg := r.cfg
	if name.Valid() {
		cfg.Strategy = name
	}
	return &Runner{cfg: cfg, sem: r.sem}
}

// Strategy returns the strategy whose preload depth the runner uses.
func (r *Runner) Strategy() strategy.Name {
	return r.cfg.Strategy
}

// Run fetches rawURL the way the player would during startup and records
// when each milestone was reached. window bounds the run; zero uses the
// configured default. Fetch failures and timeouts are reported in the
// result. Run returns an error only for an invalid source or when ctx ends
// before the run could start.
func (r *Runner) Run(ctx context.Context, rawURL string, window time.Duration) (*database.PerfTestResult, error) {
	desc, err := source.Detect(rawURL)
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		window = r.cfg.DefaultWindow
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a perf-test slot: %w", err)
	}
	defer r.sem.Release(1)

	runCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	rec := &recorder{
		now:    r.cfg.Now,
		start:  r.cfg.Now(),
		events: []database.PerfTestEvent{},
	}
	res := &database.PerfTestResult{
		ID:           uuid.NewString(),
		URL:          desc.URL,
		Kind:         string(desc.Kind),
		Strategy:     string(r.cfg.Strategy),
		StartedAt:    rec.start.UTC(),
		WindowMillis: window.Milliseconds(),
	}

	log.Debug("Perf test %s started: %s (%s) window=%v", res.ID, desc.URL, desc.Kind, window)

	if desc.IsAdaptive() {
		err = r.runHLS(runCtx, desc.URL, rec)
	} else {
		err = r.runMP4(runCtx, desc.URL, rec)
	}
	r.finish(runCtx, res, rec, err)

	if r.cfg.Store != nil {
		// The request context may already be done; the result is still worth keeping.
		if saveErr := r.cfg.Store.SaveResult(context.WithoutCancel(ctx), res); saveErr != nil {
			log.Warn("Failed to save perf test %s: %v", res.ID, saveErr)
		}
	}
	return res, nil
}

func (r *Runner) finish(runCtx context.Context, res *database.PerfTestResult, rec *recorder, err error) {
	switch {
	case err == nil:
		res.Status = database.StatusCompleted
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Status = database.StatusTimeout
		res.Error = fmt.Sprintf("window of %dms elapsed", res.WindowMillis)
	default:
		res.Status = database.StatusFailed
		res.Error = err.Error()
		rec.mark(EventError, err.Error())
	}

	res.Events = rec.events
	res.BytesTransferred = rec.bytes
	res.SegmentsFetched = rec.segments
	if ev, ok := res.Event(EventLoadedMetadata); ok {
		v := ev.OffsetMillis
		res.LoadTimeMillis = &v
		metrics.PerfTestLoadTime.WithLabelValues(res.Kind).Observe(float64(v) / 1000)
	}
	if ev, ok := res.Event(EventCanPlay); ok {
		v := ev.OffsetMillis
		res.FirstDataMillis = &v
	}
	metrics.PerfTestsTotal.WithLabelValues(res.Kind, string(res.Status)).Inc()

	if res.Status == database.StatusCompleted {
		log.Info("Perf test %s completed: kind=%s load=%vms segments=%d bytes=%d",
			res.ID, res.Kind, derefMillis(res.LoadTimeMillis), res.SegmentsFetched, res.BytesTransferred)
	} else {
		log.Warn("Perf test %s %s: %s", res.ID, res.Status, res.Error)
	}
}

// runHLS loads the manifest, follows the first variant of a master
// playlist, then fetches as many segments as the strategy preloads.
func (r *Runner) runHLS(ctx context.Context, rawURL string, rec *recorder) error {
	info, err := r.fetchPlaylist(ctx, rawURL, rec)
	if err != nil {
		return err
	}
	if info.Type == source.PlaylistMaster {
		if len(info.Variants) == 0 {
			return errors.New("master playlist has no variants")
		}
		// A player starts on the first listed rendition before it has a
		// bandwidth estimate.
		variant := info.Variants[0]
		log.Debug("Following variant %s (bandwidth=%d)", variant.URI, variant.Bandwidth)
		if info, err = r.fetchPlaylist(ctx, variant.URI, rec); err != nil {
			return err
		}
		if info.Type != source.PlaylistMedia {
			return errors.New("variant is not a media playlist")
		}
	}
	rec.mark(EventLoadedMetadata, "")

	if len(info.Segments) == 0 {
		return errors.New("media playlist has no segments")
	}

	ahead := r.cfg.Strategy.Config().PreloadAheadSegments
	if ahead > len(info.Segments) {
		ahead = len(info.Segments)
	}
	for i := 0; i < ahead; i++ {
		n, err := r.fetch(ctx, info.Segments[i], -1)
		rec.bytes += n
		if err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		rec.segments++
		if i == 0 {
			rec.mark(EventCanPlay, "")
		}
	}
	rec.mark(EventCanPlayThrough, "")
	return nil
}

func (r *Runner) fetchPlaylist(ctx context.Context, rawURL string, rec *recorder) (source.PlaylistInfo, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return source.PlaylistInfo{}, err
	}
	// One byte past the limit tells an oversized manifest from one that
	// fits exactly.
	var buf bytes.Buffer
	n, err := r.fetchInto(ctx, rawURL, &buf, maxPlaylistBytes+1)
	rec.bytes += n
	if err != nil {
		return source.PlaylistInfo{}, err
	}
	if n > maxPlaylistBytes {
		return source.PlaylistInfo{}, fmt.Errorf("%w: %s is over %d bytes", source.ErrPlaylistTooLarge, rawURL, maxPlaylistBytes)
	}
	return source.Decode(&buf, base)
}

// runMP4 treats response headers as metadata, the first 64KiB as first
// data and 1MiB, or the whole file if smaller, as enough to play through.
func (r *Runner) runMP4(ctx context.Context, rawURL string, rec *recorder) error {
	resp, err := r.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer closeBody(resp)
	rec.mark(EventLoadedMetadata, "")

	n, err := io.CopyN(io.Discard, resp.Body, mp4CanPlayBytes)
	rec.bytes += n
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if n == 0 {
		return errors.New("empty response body")
	}
	rec.mark(EventCanPlay, "")
	if errors.Is(err, io.EOF) {
		rec.mark(EventCanPlayThrough, "")
		return nil
	}

	n, err = io.CopyN(io.Discard, resp.Body, mp4CanPlayThroughBytes-mp4CanPlayBytes)
	rec.bytes += n
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	rec.mark(EventCanPlayThrough, "")
	return nil
}

// fetch downloads rawURL, reading at most limit bytes; a negative limit
// reads the whole body.
func (r *Runner) fetch(ctx context.Context, rawURL string, limit int64) (int64, error) {
	return r.fetchInto(ctx, rawURL, io.Discard, limit)
}

func (r *Runner) fetchInto(ctx context.Context, rawURL string, w io.Writer, limit int64) (int64, error) {
	resp, err := r.get(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer closeBody(resp)

	var body io.Reader = resp.Body
	if limit >= 0 {
		body = io.LimitReader(resp.Body, limit)
	}
	return io.Copy(w, body)
}

func (r *Runner) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.cfg.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		closeBody(resp)
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return resp, nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		log.Debug("Failed to close response body: %v", err)
	}
}

// recorder collects milestone events relative to start. A run is
// single-goroutine, so it needs no locking.
type recorder struct {
	now      func() time.Time
	start    time.Time
	events   []database.PerfTestEvent
	bytes    int64
	segments int
}

func (rec *recorder) mark(eventType, message string) {
	rec.events = append(rec.events, database.PerfTestEvent{
		Type:         eventType,
		OffsetMillis: rec.now().Sub(rec.start).Milliseconds(),
		Message:      message,
	})
}

func derefMillis(v *int64) any {
	if v == nil {
		return "n/a"
	}
	return *v
}
