package source

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidSource is returned for an empty or unparsable source URL.
var ErrInvalidSource = errors.New("invalid source URL")

// Kind is the delivery format of a source.
type Kind string

const (
	KindHLS Kind = "hls"
	KindMP4 Kind = "mp4"
)

// MIME types handed to the player's source setter.
const (
	MIMETypeHLS = "application/x-mpegURL"
	MIMETypeMP4 = "video/mp4"
)

const hlsSuffix = ".m3u8"

// Descriptor is a playback source as given to the player.
type Descriptor struct {
	URL  string `json:"src"`
	Kind Kind   `json:"kind"`
}

// Detect classifies rawURL. Any URL mentioning ".m3u8" is HLS, everything
// else is treated as MP4.
func Detect(rawURL string) (Descriptor, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Descriptor{}, ErrInvalidSource
	}
	if _, err := url.Parse(rawURL); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	kind := KindMP4
	if strings.Contains(strings.ToLower(rawURL), hlsSuffix) {
		kind = KindHLS
	}
	return Descriptor{URL: rawURL, Kind: kind}, nil
}

// MIMEType returns the type attribute for the player's source setter.
func (d Descriptor) MIMEType() string {
	if d.Kind == KindHLS {
		return MIMETypeHLS
	}
	return MIMETypeMP4
}

// IsAdaptive reports whether the source is an adaptive stream.
func (d Descriptor) IsAdaptive() bool {
	return d.Kind == KindHLS
}
