package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"hls-preload/internal/netspeed"
	"hls-preload/internal/player"
	"hls-preload/internal/preload"
	"hls-preload/internal/source"
)

// SessionResponse is the full readout of one session.
type SessionResponse struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	LastSeen  time.Time       `json:"lastSeen"`
	Metrics   player.Metrics  `json:"metrics"`
	Player    player.Snapshot `json:"player"`
}

// SourceRequest assigns a new source to a session. SpeedMbps, when set, is
// the downlink the client measured itself, e.g. by timing its own fetch of
// /api/probe.png. It replaces client hints for this and later sources.
type SourceRequest struct {
	URL       string   `json:"url"`
	SpeedMbps *float64 `json:"speedMbps,omitempty"`
}

// SourceResponse is the result of assigning a source.
type SourceResponse struct {
	Source  source.Descriptor `json:"source"`
	Preload preload.State     `json:"preload"`
}

func sessionResponse(s *player.Session) SessionResponse {
	return SessionResponse{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		LastSeen:  s.LastSeen(),
		Metrics:   s.Metrics(),
		Player:    s.Player().Snapshot(),
	}
}

// session looks up the session named in the route, writing a 404 when it
// does not exist.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*player.Session, bool) {
	s, err := h.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return s, true
}

// writeSessionError maps session errors to status codes.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, player.ErrSessionClosed):
		writeJSONError(w, err.Error(), http.StatusGone)
	case errors.Is(err, source.ErrInvalidSource), errors.Is(err, player.ErrUnknownEvent),
		errors.Is(err, netspeed.ErrInvalidSpeed), errors.Is(err, player.ErrSpeedReportUnsupported):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}

// CreateSession opens a player session. Network client hints sent with this
// request are used for the session's strategy selection.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create(netspeed.HeaderProvider{Header: r.Header.Clone()})
	w.Header().Set("Location", "/api/sessions/"+s.ID)
	writeJSONCode(w, sessionResponse(s), http.StatusCreated)
}

// ListSessions returns every open session
func (h *Handlers) ListSessions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.sessions.List())
}

// GetSession returns the metrics and preload state of one session
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, sessionResponse(s))
}

// SetSessionSource assigns a source and starts the smart preload for it
func (h *Handlers) SetSessionSource(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.SpeedMbps != nil {
		if err := s.ReportSpeed(*req.SpeedMbps); err != nil {
			writeSessionError(w, err)
			return
		}
	}

	st, err := s.SetSource(r.Context(), req.URL)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	resp := SourceResponse{Preload: st}
	if src := s.Metrics().Source; src != nil {
		resp.Source = *src
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}

// PostSessionEvent consumes one event reported by the client's player
func (h *Handlers) PostSessionEvent(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var ev player.Event
	if err := decodeJSON(w, r, &ev); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.HandleEvent(ev); err != nil {
		if errors.Is(err, player.ErrSessionClosed) {
			writeSessionError(w, err)
			return
		}
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.Metrics())
}

// StopSessionPreload cancels the session's preload run
func (h *Handlers) StopSessionPreload(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.StopPreload()
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.Metrics().Preload)
}

// GetSessionCommands drains the instructions queued for the client's player
func (h *Handlers) GetSessionCommands(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	remote, ok := s.Player().(*player.RemotePlayer)
	if !ok {
		writeJSONError(w, "session player does not queue commands", http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, remote.Drain())
}

// DeleteSession closes a session and cancels its timers
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(mux.Vars(r)["id"]); err != nil {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
