package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/grafov/m3u8"

	"hls-preload/internal/logging"
)

// ErrPlaylistFetch is returned when the playlist cannot be retrieved.
var ErrPlaylistFetch = errors.New("failed to fetch playlist")

// ErrPlaylistTooLarge is returned for a playlist body over the size limit.
var ErrPlaylistTooLarge = errors.New("playlist too large")

// MaxPlaylistBytes bounds a fetched playlist body.
const MaxPlaylistBytes = 4 * 1024 * 1024

// PlaylistType distinguishes master from media playlists.
type PlaylistType string

const (
	PlaylistMaster PlaylistType = "master"
	PlaylistMedia  PlaylistType = "media"
)

// Variant is one rendition advertised by a master playlist.
type Variant struct {
	URI        string `json:"uri"`
	Bandwidth  uint32 `json:"bandwidth"`
	Resolution string `json:"resolution,omitempty"`
	Codecs     string `json:"codecs,omitempty"`
}

// PlaylistInfo summarizes a decoded playlist.
type PlaylistInfo struct {
	Type                  PlaylistType `json:"type"`
	Variants              []Variant    `json:"variants,omitempty"`
	TargetDurationSeconds float64      `json:"targetDuration,omitempty"`
	SegmentCount          int          `json:"segmentCount"`
	TotalDurationSeconds  float64      `json:"totalDuration"`
	Live                  bool         `json:"live"`
	Segments              []string     `json:"-"`
}

// Inspect fetches and decodes the playlist at rawURL. Relative variant and
// segment URIs are resolved against rawURL.
func Inspect(ctx context.Context, client *http.Client, rawURL string) (PlaylistInfo, error) {
	base, err := url.Parse(rawURL)
	if err != nil || rawURL == "" {
		return PlaylistInfo{}, ErrInvalidSource
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return PlaylistInfo{}, fmt.Errorf("%w: %v", ErrPlaylistFetch, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return PlaylistInfo{}, fmt.Errorf("%w: %v", ErrPlaylistFetch, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Debug("Failed to close playlist body: %v", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return PlaylistInfo{}, fmt.Errorf("%w: status %d", ErrPlaylistFetch, resp.StatusCode)
	}

	return DecodeLimited(resp.Body, base, MaxPlaylistBytes)
}

// DecodeLimited decodes a playlist of at most limit bytes. A longer body is
// rejected with ErrPlaylistTooLarge instead of being decoded truncated.
func DecodeLimited(r io.Reader, base *url.URL, limit int64) (PlaylistInfo, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
	if err != nil {
		return PlaylistInfo{}, fmt.Errorf("%w: %v", ErrPlaylistFetch, err)
	}
	if n > limit {
		return PlaylistInfo{}, fmt.Errorf("%w: over %d bytes", ErrPlaylistTooLarge, limit)
	}
	return Decode(&buf, base)
}

// Decode parses a playlist from r. base may be nil, in which case URIs are
// returned as written.
func Decode(r io.Reader, base *url.URL) (PlaylistInfo, error) {
	p, listType, err := m3u8.DecodeFrom(bufio.NewReader(r), true)
	if err != nil {
		return PlaylistInfo{}, fmt.Errorf("failed to decode playlist: %w", err)
	}

	switch listType {
	case m3u8.MASTER:
		master := p.(*m3u8.MasterPlaylist)
		info := PlaylistInfo{Type: PlaylistMaster}
		for _, v := range master.Variants {
			if v == nil {
				continue
			}
			info.Variants = append(info.Variants, Variant{
				URI:        resolve(base, v.URI),
				Bandwidth:  v.Bandwidth,
				Resolution: v.Resolution,
				Codecs:     v.Codecs,
			})
		}
		return info, nil

	case m3u8.MEDIA:
		media := p.(*m3u8.MediaPlaylist)
		info := PlaylistInfo{
			Type:                  PlaylistMedia,
			TargetDurationSeconds: media.TargetDuration,
			Live:                  !media.Closed,
		}
		for _, seg := range media.Segments {
			// Segments is a ring buffer; slots past Count are nil.
			if seg == nil {
				continue
			}
			info.SegmentCount++
			info.TotalDurationSeconds += seg.Duration
			info.Segments = append(info.Segments, resolve(base, seg.URI))
		}
		return info, nil
	}

	return PlaylistInfo{}, fmt.Errorf("unsupported playlist type %v", listType)
}

// HighestVariant returns the variant with the largest bandwidth.
func (p PlaylistInfo) HighestVariant() (Variant, bool) {
	if len(p.Variants) == 0 {
		return Variant{}, false
	}
	best := p.Variants[0]
	for _, v := range p.Variants[1:] {
		if v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best, true
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
