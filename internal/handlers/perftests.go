package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"hls-preload/internal/database"
	"hls-preload/internal/perftest"
	"hls-preload/internal/source"
)

// maxPerfTestWindow caps the window a client may request.
const maxPerfTestWindow = 2 * time.Minute

// maxListLimit caps the history page size.
const maxListLimit = 500

// PerfTestRequest starts a single perf test.
type PerfTestRequest struct {
	URL        string `json:"url"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Strategy   string `json:"strategy,omitempty"`
}

// CompareRequest starts a progressive and an adaptive run side by side.
type CompareRequest struct {
	MP4URL     string `json:"mp4Url"`
	HLSURL     string `json:"hlsUrl"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Strategy   string `json:"strategy,omitempty"`
}

func parseWindow(ms int64) (time.Duration, error) {
	if ms < 0 {
		return 0, errors.New("durationMs must not be negative")
	}
	window := time.Duration(ms) * time.Millisecond
	if window > maxPerfTestWindow {
		return 0, errors.New("durationMs exceeds " + strconv.FormatInt(maxPerfTestWindow.Milliseconds(), 10))
	}
	return window, nil
}

// runnerFor returns the runner preloading as deep as the requested strategy,
// or as the strategy selected for the client's network.
func (h *Handlers) runnerFor(r *http.Request, raw string) (*perftest.Runner, error) {
	name, err := h.strategyFor(r, raw)
	if err != nil {
		return nil, err
	}
	return h.runner.WithStrategy(name), nil
}

// writeRunError maps runner errors to status codes.
func writeRunError(w http.ResponseWriter, err error) {
	if errors.Is(err, source.ErrInvalidSource) {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	// The only other failure is the client leaving before a slot freed up.
	writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
}

// RunPerfTest measures how quickly a source reaches metadata and first data.
// Fetch failures and timeouts are part of the result, not request errors.
func (h *Handlers) RunPerfTest(w http.ResponseWriter, r *http.Request) {
	var req PerfTestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSONError(w, "url is required", http.StatusBadRequest)
		return
	}
	window, err := parseWindow(req.DurationMs)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	runner, err := h.runnerFor(r, req.Strategy)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := runner.Run(r.Context(), req.URL, window)
	if err != nil {
		writeRunError(w, err)
		return
	}
	writeJSONCode(w, res, http.StatusCreated)
}

// ComparePerfTests runs an MP4 and an HLS source concurrently
func (h *Handlers) ComparePerfTests(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.MP4URL) == "" || strings.TrimSpace(req.HLSURL) == "" {
		writeJSONError(w, "mp4Url and hlsUrl are required", http.StatusBadRequest)
		return
	}
	window, err := parseWindow(req.DurationMs)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	runner, err := h.runnerFor(r, req.Strategy)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	cmp, err := runner.Compare(r.Context(), req.MP4URL, req.HLSURL, window)
	if err != nil {
		writeRunError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, cmp)
}

// ListPerfTests returns recent results, newest first
func (h *Handlers) ListPerfTests(w http.ResponseWriter, r *http.Request) {
	limit := database.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(v, maxListLimit)
	}

	results, err := h.store.ListResults(r.Context(), limit)
	if err != nil {
		writeJSONError(w, "Failed to list perf tests", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []database.PerfTestResult{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, results)
}

// GetPerfTest returns one stored result
func (h *Handlers) GetPerfTest(w http.ResponseWriter, r *http.Request) {
	res, err := h.store.GetResult(r.Context(), mux.Vars(r)["id"])
	switch {
	case errors.Is(err, database.ErrResultNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		writeJSONError(w, "Failed to get perf test", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, res)
}
