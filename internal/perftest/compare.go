package perftest

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"hls-preload/internal/database"
)

// Comparison holds one progressive and one adaptive run over the same window.
type Comparison struct {
	MP4 *database.PerfTestResult `json:"mp4"`
	HLS *database.PerfTestResult `json:"hls"`
	// Load times are time to loadedmetadata in milliseconds, or nil when the
	// run never got that far.
	MP4LoadTimeMillis *int64 `json:"mp4LoadTime"`
	HLSLoadTimeMillis *int64 `json:"hlsLoadTime"`
	// Faster is "mp4", "hls" or "" when either load time is missing or they tie.
	Faster string `json:"faster,omitempty"`
}

// Compare runs mp4URL and hlsURL concurrently. It fails only if either URL
// is not a valid source or ctx ends before both runs start.
func (r *Runner) Compare(ctx context.Context, mp4URL, hlsURL string, window time.Duration) (*Comparison, error) {
	var cmp Comparison

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := r.Run(gctx, mp4URL, window)
		cmp.MP4 = res
		return err
	})
	g.Go(func() error {
		res, err := r.Run(gctx, hlsURL, window)
		cmp.HLS = res
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cmp.MP4LoadTimeMillis = cmp.MP4.LoadTimeMillis
	cmp.HLSLoadTimeMillis = cmp.HLS.LoadTimeMillis
	if cmp.MP4LoadTimeMillis != nil && cmp.HLSLoadTimeMillis != nil {
		switch {
		case *cmp.MP4LoadTimeMillis < *cmp.HLSLoadTimeMillis:
			cmp.Faster = "mp4"
		case *cmp.HLSLoadTimeMillis < *cmp.MP4LoadTimeMillis:
			cmp.Faster = "hls"
		}
	}

	log.Info("Comparison: mp4=%vms hls=%vms faster=%q",
		derefMillis(cmp.MP4LoadTimeMillis), derefMillis(cmp.HLSLoadTimeMillis), cmp.Faster)
	return &cmp, nil
}
