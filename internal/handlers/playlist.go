package handlers

import (
	"errors"
	"net/http"

	"hls-preload/internal/source"
	"hls-preload/internal/strategy"
)

// PlaylistResponse describes an HLS playlist and how deep the selected
// strategy would preload it.
type PlaylistResponse struct {
	Source          source.Descriptor   `json:"source"`
	Playlist        source.PlaylistInfo `json:"playlist"`
	HighestVariant  *source.Variant     `json:"highestVariant,omitempty"`
	Strategy        strategy.Name       `json:"strategy"`
	PreloadSegments int                 `json:"preloadSegments"`
}

// InspectPlaylist fetches the HLS playlist named by the url query parameter
func (h *Handlers) InspectPlaylist(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	desc, err := source.Detect(q.Get("url"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !desc.IsAdaptive() {
		writeJSONError(w, "url is not an HLS playlist", http.StatusBadRequest)
		return
	}
	name, err := h.strategyFor(r, q.Get("strategy"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	info, err := source.Inspect(r.Context(), h.client, desc.URL)
	switch {
	case errors.Is(err, source.ErrInvalidSource):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}

	resp := PlaylistResponse{
		Source:   desc,
		Playlist: info,
		Strategy: name,
	}
	if best, ok := info.HighestVariant(); ok {
		resp.HighestVariant = &best
	}
	// Segment counts are only known for media playlists.
	if info.Type == source.PlaylistMedia {
		resp.PreloadSegments = min(name.Config().PreloadAheadSegments, info.SegmentCount)
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}
