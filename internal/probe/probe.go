package probe

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"
	"strconv"

	"github.com/disintegration/imaging"

	"hls-preload/internal/logging"
)

// ContentType is the media type of the probe body.
const ContentType = "image/png"

// Image is the encoded probe resource: a single transparent pixel.
type Image struct {
	body []byte
}

// New renders and encodes the 1x1 probe image.
func New() (*Image, error) {
	img := imaging.New(1, 1, color.NRGBA{})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode probe image: %w", err)
	}
	logging.Debug("Probe image encoded: %d bytes", buf.Len())
	return &Image{body: buf.Bytes()}, nil
}

// Bytes returns a copy of the encoded image.
func (p *Image) Bytes() []byte {
	return append([]byte(nil), p.body...)
}

// Len returns the size of the encoded image.
func (p *Image) Len() int {
	return len(p.body)
}

// ServeHTTP writes the image. Responses are never cached, so every probe
// travels the network.
func (p *Image) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(p.body)))
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(p.body); err != nil {
		logging.Debug("Failed to write probe image: %v", err)
	}
}
