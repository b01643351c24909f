package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"hls-preload/internal/overlay"
)

// maxClientIDLength bounds the overlay client IDs kept in memory.
const maxClientIDLength = 128

// FramesRequest reports frames rendered since the previous report. ClientID
// names the overlay instance the frames belong to.
type FramesRequest struct {
	ClientID string `json:"clientId"`
	Frames   int    `json:"frames"`
}

// FramesResponse carries the current FPS reading.
type FramesResponse struct {
	FPS int `json:"fps"`
}

// GetDebug returns the debug overlay for the requesting client. Screen size
// comes from the w, h and dpr query parameters and the frame rate from the
// meter named by the client parameter.
func (h *Handlers) GetDebug(w http.ResponseWriter, r *http.Request) {
	screen, err := parseScreen(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	device := overlay.DetectDevice(r.Header.Get("User-Agent"), screen)
	network := h.requestEstimator(r).Status(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, h.overlay.Snapshot(r.URL.Query().Get("client"), network, device))
}

// PostFrames records an FPS sample
func (h *Handlers) PostFrames(w http.ResponseWriter, r *http.Request) {
	var req FramesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ClientID == "" || len(req.ClientID) > maxClientIDLength {
		writeJSONError(w, "clientId is required and must be at most 128 bytes", http.StatusBadRequest)
		return
	}
	if req.Frames < 0 {
		writeJSONError(w, "frames must not be negative", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, FramesResponse{FPS: h.overlay.RecordFrames(req.ClientID, req.Frames)})
}

func parseScreen(r *http.Request) (overlay.Screen, error) {
	q := r.URL.Query()
	var s overlay.Screen
	var err error
	if s.Width, err = queryInt(q.Get("w")); err != nil {
		return s, errors.New("w must be a non-negative integer")
	}
	if s.Height, err = queryInt(q.Get("h")); err != nil {
		return s, errors.New("h must be a non-negative integer")
	}
	if raw := q.Get("dpr"); raw != "" {
		if s.DevicePixelRatio, err = strconv.ParseFloat(raw, 64); err != nil || s.DevicePixelRatio <= 0 || s.DevicePixelRatio > 16 {
			return s, errors.New("dpr must be a positive number")
		}
	}
	return s, nil
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, errors.New("negative value")
	}
	return v, nil
}
