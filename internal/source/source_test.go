package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantKind Kind
		wantMIME string
		wantErr  bool
	}{
		{name: "hls playlist", url: "https://cdn.example.com/live/index.m3u8", wantKind: KindHLS, wantMIME: MIMETypeHLS},
		{name: "hls with query", url: "https://cdn.example.com/index.m3u8?token=abc", wantKind: KindHLS, wantMIME: MIMETypeHLS},
		{name: "hls upper case", url: "https://cdn.example.com/INDEX.M3U8", wantKind: KindHLS, wantMIME: MIMETypeHLS},
		{name: "hls embedded in name", url: "https://cdn.example.com/movie.mp4-video.m3u8", wantKind: KindHLS, wantMIME: MIMETypeHLS},
		{name: "mp4", url: "https://cdn.example.com/movie.mp4", wantKind: KindMP4, wantMIME: MIMETypeMP4},
		{name: "no extension", url: "https://cdn.example.com/stream", wantKind: KindMP4, wantMIME: MIMETypeMP4},
		{name: "relative path", url: "/media/clip.m3u8", wantKind: KindHLS, wantMIME: MIMETypeHLS},
		{name: "empty", url: "", wantErr: true},
		{name: "whitespace", url: "   ", wantErr: true},
		{name: "unparsable", url: "http://[::1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Detect(tt.url)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSource) {
					t.Fatalf("Detect(%q) error = %v, want ErrInvalidSource", tt.url, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Detect(%q) unexpected error: %v", tt.url, err)
			}
			if d.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", d.Kind, tt.wantKind)
			}
			if got := d.MIMEType(); got != tt.wantMIME {
				t.Errorf("MIMEType() = %q, want %q", got, tt.wantMIME)
			}
			if d.IsAdaptive() != (tt.wantKind == KindHLS) {
				t.Errorf("IsAdaptive() = %v", d.IsAdaptive())
			}
		})
	}
}

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:10.000,
seg0.ts
#EXTINF:10.000,
seg1.ts
#EXTINF:4.500,
seg2.ts
#EXT-X-ENDLIST
`

const livePlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:100
#EXTINF:6.000,
https://edge.example.com/live/100.ts
#EXTINF:6.000,
https://edge.example.com/live/101.ts
`

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=800000,RESOLUTION=640x360
low/index.m3u8
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=2800000,RESOLUTION=1280x720
mid/index.m3u8
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=1400000,RESOLUTION=842x480
https://other.example.com/hi/index.m3u8
`

func TestDecodeMediaPlaylist(t *testing.T) {
	base, _ := url.Parse("https://cdn.example.com/vod/index.m3u8")
	info, err := Decode(strings.NewReader(mediaPlaylist), base)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	if info.Type != PlaylistMedia {
		t.Errorf("Type = %q, want media", info.Type)
	}
	if info.SegmentCount != 3 {
		t.Errorf("SegmentCount = %d, want 3", info.SegmentCount)
	}
	if info.TargetDurationSeconds != 10 {
		t.Errorf("TargetDurationSeconds = %v, want 10", info.TargetDurationSeconds)
	}
	if info.TotalDurationSeconds != 24.5 {
		t.Errorf("TotalDurationSeconds = %v, want 24.5", info.TotalDurationSeconds)
	}
	if info.Live {
		t.Error("playlist with ENDLIST should not be live")
	}
	if len(info.Segments) != 3 || info.Segments[0] != "https://cdn.example.com/vod/seg0.ts" {
		t.Errorf("Segments = %v", info.Segments)
	}
}

func TestDecodeLivePlaylist(t *testing.T) {
	info, err := Decode(strings.NewReader(livePlaylist), nil)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if !info.Live {
		t.Error("playlist without ENDLIST should be live")
	}
	if info.SegmentCount != 2 {
		t.Errorf("SegmentCount = %d, want 2", info.SegmentCount)
	}
	if info.Segments[1] != "https://edge.example.com/live/101.ts" {
		t.Errorf("absolute segment URI changed: %q", info.Segments[1])
	}
}

func TestDecodeMasterPlaylist(t *testing.T) {
	base, _ := url.Parse("https://cdn.example.com/vod/master.m3u8")
	info, err := Decode(strings.NewReader(masterPlaylist), base)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	if info.Type != PlaylistMaster {
		t.Fatalf("Type = %q, want master", info.Type)
	}
	if len(info.Variants) != 3 {
		t.Fatalf("len(Variants) = %d, want 3", len(info.Variants))
	}
	if info.Variants[0].URI != "https://cdn.example.com/vod/low/index.m3u8" {
		t.Errorf("Variants[0].URI = %q", info.Variants[0].URI)
	}
	if info.Variants[0].Resolution != "640x360" {
		t.Errorf("Variants[0].Resolution = %q", info.Variants[0].Resolution)
	}

	best, ok := info.HighestVariant()
	if !ok || best.Bandwidth != 2800000 {
		t.Errorf("HighestVariant() = %+v, %v; want 2800000", best, ok)
	}
}

func TestHighestVariantEmpty(t *testing.T) {
	if _, ok := (PlaylistInfo{}).HighestVariant(); ok {
		t.Error("HighestVariant() on media playlist should report false")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode(strings.NewReader("<html>not a playlist</html>"), nil); err == nil {
		t.Error("expected decode error for non-playlist input")
	}
}

func TestDecodeLimited(t *testing.T) {
	limit := int64(len(mediaPlaylist))

	info, err := DecodeLimited(strings.NewReader(mediaPlaylist), nil, limit)
	if err != nil {
		t.Fatalf("DecodeLimited() at the limit: %v", err)
	}
	if info.SegmentCount != 3 {
		t.Errorf("SegmentCount = %d, want 3", info.SegmentCount)
	}

	if _, err := DecodeLimited(strings.NewReader(mediaPlaylist), nil, limit-1); !errors.Is(err, ErrPlaylistTooLarge) {
		t.Errorf("DecodeLimited() one byte over = %v, want ErrPlaylistTooLarge", err)
	}
}

func TestInspect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/vod/index.m3u8":
			w.Header().Set("Content-Type", MIMETypeHLS)
			_, _ = w.Write([]byte(mediaPlaylist))
		case "/vod/huge.m3u8":
			_, _ = w.Write([]byte(mediaPlaylist))
			_, _ = w.Write([]byte(strings.Repeat("#", MaxPlaylistBytes)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	info, err := Inspect(context.Background(), srv.Client(), srv.URL+"/vod/index.m3u8")
	if err != nil {
		t.Fatalf("Inspect() error: %v", err)
	}
	if info.SegmentCount != 3 {
		t.Errorf("SegmentCount = %d, want 3", info.SegmentCount)
	}
	if want := srv.URL + "/vod/seg2.ts"; info.Segments[2] != want {
		t.Errorf("Segments[2] = %q, want %q", info.Segments[2], want)
	}

	_, err = Inspect(context.Background(), srv.Client(), srv.URL+"/missing.m3u8")
	if !errors.Is(err, ErrPlaylistFetch) {
		t.Errorf("missing playlist error = %v, want ErrPlaylistFetch", err)
	}

	_, err = Inspect(context.Background(), srv.Client(), srv.URL+"/vod/huge.m3u8")
	if !errors.Is(err, ErrPlaylistTooLarge) {
		t.Errorf("oversized playlist error = %v, want ErrPlaylistTooLarge", err)
	}

	if _, err := Inspect(context.Background(), srv.Client(), ""); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("empty URL error = %v, want ErrInvalidSource", err)
	}
}
