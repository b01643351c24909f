package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"hls-preload/internal/clock"
	"hls-preload/internal/database"
	"hls-preload/internal/netspeed"
	"hls-preload/internal/overlay"
	"hls-preload/internal/perftest"
	"hls-preload/internal/player"
	"hls-preload/internal/preload"
	"hls-preload/internal/probe"
	"hls-preload/internal/strategy"
)

// =============================================================================
// Fixtures
// =============================================================================

const (
	mediaPlaylist = "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:10\n" +
		"#EXTINF:10.0,\nseg0.ts\n#EXTINF:10.0,\nseg1.ts\n#EXTINF:10.0,\nseg2.ts\n#EXTINF:10.0,\nseg3.ts\n#EXT-X-ENDLIST\n"
	masterPlaylist = "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360\nindex.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720\nindex.m3u8\n"
	segmentBytes = 500
)

// newMediaServer serves a master and a media playlist, the segments and a
// small MP4.
func newMediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	routes := http.NewServeMux()
	routes.HandleFunc("/video/index.m3u8", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = io.WriteString(w, mediaPlaylist)
	})
	routes.HandleFunc("/video/master.m3u8", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = io.WriteString(w, masterPlaylist)
	})
	routes.HandleFunc("/video/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, segmentBytes))
	})
	routes.HandleFunc("/clip.mp4", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(make([]byte, 2048))
	})
	srv := httptest.NewServer(routes)
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	h     *Handlers
	db    *database.Database
	clock *clock.Fake
	media *httptest.Server
}

// newTestEnv builds handlers whose network reads as downlinkMbps unless a
// request carries its own client hints.
func newTestEnv(t *testing.T, downlinkMbps float64) *testEnv {
	t.Helper()

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "perftests.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	fake := clock.NewFake(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	est := netspeed.NewEstimator(netspeed.NewStaticProvider(downlinkMbps), nil)

	sessions := player.NewManager(est, player.Config{Clock: fake})
	t.Cleanup(sessions.CloseAll)

	img, err := probe.New()
	if err != nil {
		t.Fatalf("probe.New() error = %v", err)
	}

	media := newMediaServer(t)
	runner := perftest.NewRunner(perftest.Config{
		Client:      media.Client(),
		Store:       db,
		Concurrency: 2,
	})

	h := New(Dependencies{
		Store:     db,
		Sessions:  sessions,
		Estimator: est,
		Overlay:   overlay.New(overlay.Config{Clock: fake}),
		Runner:    runner,
		Probe:     img,
		Client:    media.Client(),
	})
	return &testEnv{h: h, db: db, clock: fake, media: media}
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to encode request: %v", err)
	}
	return bytes.NewReader(b)
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func withID(r *http.Request, id string) *http.Request {
	return mux.SetURLVars(r, map[string]string{"id": id})
}

// createSession opens a session through the handler and returns its ID.
func (e *testEnv) createSession(t *testing.T, headers map[string]string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", http.NoBody)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.h.CreateSession(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("CreateSession status = %d, body %s", w.Code, w.Body.String())
	}
	return decodeBody[SessionResponse](t, w).ID
}

// =============================================================================
// Strategy and network
// =============================================================================

func TestGetStrategies(t *testing.T) {
	env := newTestEnv(t, 2)

	w := httptest.NewRecorder()
	env.h.GetStrategies(w, httptest.NewRequest(http.MethodGet, "/api/strategies", http.NoBody))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decodeBody[[]StrategyInfo](t, w)
	want := []StrategyInfo{
		{Name: strategy.Aggressive, BufferTargetSeconds: 120, PreloadAheadSegments: 3, PreloadMillis: 3000, PreloadSteps: 30},
		{Name: strategy.Moderate, BufferTargetSeconds: 80, PreloadAheadSegments: 2, PreloadMillis: 5000, PreloadSteps: 20},
		{Name: strategy.Conservative, BufferTargetSeconds: 50, PreloadAheadSegments: 1, PreloadMillis: 8000, PreloadSteps: 10},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d strategies, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("strategy[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSelectStrategy(t *testing.T) {
	env := newTestEnv(t, 2)

	tests := []struct {
		query      string
		wantStatus int
		want       strategy.Name
	}{
		{query: "speed=10", wantStatus: http.StatusOK, want: strategy.Aggressive},
		{query: "speed=5", wantStatus: http.StatusOK, want: strategy.Moderate},
		{query: "speed=1", wantStatus: http.StatusOK, want: strategy.Moderate},
		{query: "speed=0.99", wantStatus: http.StatusOK, want: strategy.Conservative},
		{query: "speed=0", wantStatus: http.StatusOK, want: strategy.Conservative},
		{query: "", wantStatus: http.StatusBadRequest},
		{query: "speed=fast", wantStatus: http.StatusBadRequest},
		{query: "speed=-1", wantStatus: http.StatusBadRequest},
		{query: "speed=NaN", wantStatus: http.StatusBadRequest},
		{query: "speed=Inf", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := httptest.NewRecorder()
			env.h.SelectStrategy(w, httptest.NewRequest(http.MethodGet, "/api/strategy?"+tt.query, http.NoBody))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			got := decodeBody[StrategySelection](t, w)
			if got.Strategy != tt.want {
				t.Errorf("strategy = %s, want %s", got.Strategy, tt.want)
			}
			if got.Config != tt.want.Config() {
				t.Errorf("config = %+v, want %+v", got.Config, tt.want.Config())
			}
		})
	}
}

func TestGetNetwork(t *testing.T) {
	env := newTestEnv(t, 2)

	t.Run("configured default", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.h.GetNetwork(w, httptest.NewRequest(http.MethodGet, "/api/network", http.NoBody))

		got := decodeBody[NetworkResponse](t, w)
		if got.Estimate.SpeedMbps != 2 || got.Estimate.Source != netspeed.SourceConnection {
			t.Errorf("estimate = %+v, want 2Mbps from connection", got.Estimate)
		}
		if got.Strategy != strategy.Moderate {
			t.Errorf("strategy = %s, want moderate", got.Strategy)
		}
		if w.Header().Get("Cache-Control") != "no-store" {
			t.Errorf("Cache-Control = %q", w.Header().Get("Cache-Control"))
		}
	})

	t.Run("client hints take precedence", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/network", http.NoBody)
		req.Header.Set(netspeed.HeaderDownlink, "12.5")
		req.Header.Set(netspeed.HeaderECT, "4g")
		req.Header.Set(netspeed.HeaderRTT, "50")
		w := httptest.NewRecorder()
		env.h.GetNetwork(w, req)

		got := decodeBody[NetworkResponse](t, w)
		if got.Estimate.SpeedMbps != 12.5 || got.Strategy != strategy.Aggressive {
			t.Errorf("got %+v, want 12.5Mbps aggressive", got)
		}
		if got.Connection.EffectiveType != "4g" || got.Connection.RTTMillis != 50 || !got.Connection.Online {
			t.Errorf("connection = %+v", got.Connection)
		}
	})
}

func TestServeProbe(t *testing.T) {
	env := newTestEnv(t, 2)

	w := httptest.NewRecorder()
	env.h.ServeProbe(w, httptest.NewRequest(http.MethodGet, "/api/probe.png", http.NoBody))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != probe.ContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Header().Get("Cache-Control"), "no-store") {
		t.Errorf("Cache-Control = %q, want no-store", w.Header().Get("Cache-Control"))
	}
	if w.Body.Len() != env.h.probe.Len() {
		t.Errorf("body = %d bytes, want %d", w.Body.Len(), env.h.probe.Len())
	}
}

func TestGetPlayerOptions(t *testing.T) {
	env := newTestEnv(t, 0.5)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		want       strategy.Name
	}{
		{name: "explicit strategy", query: "?strategy=aggressive", wantStatus: http.StatusOK, want: strategy.Aggressive},
		{name: "case insensitive", query: "?strategy=Moderate", wantStatus: http.StatusOK, want: strategy.Moderate},
		{name: "selected from network", query: "", wantStatus: http.StatusOK, want: strategy.Conservative},
		{name: "unknown strategy", query: "?strategy=turbo", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			env.h.GetPlayerOptions(w, httptest.NewRequest(http.MethodGet, "/api/player/options"+tt.query, http.NoBody))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			got := decodeBody[PlayerOptionsResponse](t, w)
			if got.Strategy != tt.want {
				t.Errorf("strategy = %s, want %s", got.Strategy, tt.want)
			}
			hls := got.Options.HTML5.HLSJSConfig
			if hls.MaxBufferLength != tt.want.Config().BufferTargetSeconds {
				t.Errorf("maxBufferLength = %d, want %d", hls.MaxBufferLength, tt.want.Config().BufferTargetSeconds)
			}
		})
	}
}

func TestMergePlayerOptions(t *testing.T) {
	env := newTestEnv(t, 2)

	body := jsonBody(t, PlayerOptionsRequest{
		Strategy: "conservative",
		Options: map[string]any{
			"controls": false,
			"html5":    map[string]any{"hlsjsConfig": map[string]any{"lowLatencyMode": true}},
		},
	})
	w := httptest.NewRecorder()
	env.h.MergePlayerOptions(w, httptest.NewRequest(http.MethodPost, "/api/player/options", body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	got := decodeBody[PlayerOptionsResponse](t, w)
	if got.Options.Controls {
		t.Error("controls override not applied")
	}
	hls := got.Options.HTML5.HLSJSConfig
	if !hls.LowLatencyMode {
		t.Error("nested override not applied")
	}
	if hls.MaxBufferLength != 50 || !hls.StartFragPrefetch {
		t.Errorf("defaults lost in merge: %+v", hls)
	}

	bad := httptest.NewRecorder()
	env.h.MergePlayerOptions(bad, httptest.NewRequest(http.MethodPost, "/api/player/options",
		strings.NewReader(`{"options":{"controls":"yes"}}`)))
	if bad.Code != http.StatusBadRequest {
		t.Errorf("mistyped override status = %d, want 400", bad.Code)
	}
}

// =============================================================================
// Sessions
// =============================================================================

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, 2)
	id := env.createSession(t, nil)

	// Assign an HLS source.
	w := httptest.NewRecorder()
	req := withID(httptest.NewRequest(http.MethodPut, "/api/sessions/"+id+"/source",
		jsonBody(t, SourceRequest{URL: "https://cdn.example.com/live/master.m3u8"})), id)
	env.h.SetSessionSource(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("SetSessionSource status = %d: %s", w.Code, w.Body.String())
	}
	src := decodeBody[SourceResponse](t, w)
	if src.Source.Kind != "hls" {
		t.Errorf("source kind = %q, want hls", src.Source.Kind)
	}
	if !src.Preload.IsPreloading || src.Preload.Strategy != strategy.Moderate {
		t.Errorf("preload = %+v, want moderate run", src.Preload)
	}

	// The client picks up the queued source and load commands.
	w = httptest.NewRecorder()
	env.h.GetSessionCommands(w, withID(httptest.NewRequest(http.MethodGet, "/", http.NoBody), id))
	cmds := decodeBody[[]player.Command](t, w)
	if len(cmds) != 2 || cmds[0].Type != player.CommandSource || cmds[1].Type != player.CommandLoad {
		t.Fatalf("commands = %+v, want src then load", cmds)
	}
	if cmds[0].Source.Type != "application/x-mpegURL" {
		t.Errorf("source type = %q", cmds[0].Source.Type)
	}

	// Queue is empty after draining.
	w = httptest.NewRecorder()
	env.h.GetSessionCommands(w, withID(httptest.NewRequest(http.MethodGet, "/", http.NoBody), id))
	if got := decodeBody[[]player.Command](t, w); len(got) != 0 {
		t.Errorf("second drain = %+v, want empty", got)
	}

	// Metadata arrives 300ms after the source was set.
	env.clock.Advance(300 * time.Millisecond)
	w = httptest.NewRecorder()
	env.h.PostSessionEvent(w, withID(httptest.NewRequest(http.MethodPost, "/",
		jsonBody(t, player.Event{Type: player.EventLoadedMetadata, Duration: 120})), id))
	if w.Code != http.StatusOK {
		t.Fatalf("PostSessionEvent status = %d: %s", w.Code, w.Body.String())
	}
	m := decodeBody[player.Metrics](t, w)
	if m.IsLoading || m.LoadTimeMillis != 300 || m.DurationSeconds != 120 {
		t.Errorf("metrics = %+v, want loaded in 300ms with duration 120", m)
	}

	// Stop the preload.
	w = httptest.NewRecorder()
	env.h.StopSessionPreload(w, withID(httptest.NewRequest(http.MethodPost, "/", http.NoBody), id))
	if st := decodeBody[preload.State](t, w); st.IsPreloading || st.ProgressPercent != 0 {
		t.Errorf("state after stop = %+v", st)
	}

	// Read back.
	w = httptest.NewRecorder()
	env.h.GetSession(w, withID(httptest.NewRequest(http.MethodGet, "/", http.NoBody), id))
	got := decodeBody[SessionResponse](t, w)
	if got.ID != id || got.Player.CurrentSrc != "https://cdn.example.com/live/master.m3u8" {
		t.Errorf("session = %+v", got)
	}

	// Delete, then the session is gone.
	w = httptest.NewRecorder()
	env.h.DeleteSession(w, withID(httptest.NewRequest(http.MethodDelete, "/", http.NoBody), id))
	if w.Code != http.StatusNoContent {
		t.Errorf("DeleteSession status = %d", w.Code)
	}
	w = httptest.NewRecorder()
	env.h.GetSession(w, withID(httptest.NewRequest(http.MethodGet, "/", http.NoBody), id))
	if w.Code != http.StatusNotFound {
		t.Errorf("GetSession after delete status = %d, want 404", w.Code)
	}
}

func TestSessionUsesCreationHints(t *testing.T) {
	env := newTestEnv(t, 2)
	id := env.createSession(t, map[string]string{netspeed.HeaderDownlink: "0.4"})

	w := httptest.NewRecorder()
	env.h.SetSessionSource(w, withID(httptest.NewRequest(http.MethodPut, "/",
		jsonBody(t, SourceRequest{URL: "https://cdn.example.com/a.m3u8"})), id))

	st := decodeBody[SourceResponse](t, w).Preload
	if st.Strategy != strategy.Conservative || st.NetworkSpeedMbps != 0.4 {
		t.Errorf("preload = %+v, want conservative at 0.4Mbps", st)
	}
}

func TestSetSessionSourceUsesReportedSpeed(t *testing.T) {
	env := newTestEnv(t, 2)
	id := env.createSession(t, map[string]string{netspeed.HeaderDownlink: "0.4"})

	speed := 8.5
	w := httptest.NewRecorder()
	env.h.SetSessionSource(w, withID(httptest.NewRequest(http.MethodPut, "/",
		jsonBody(t, SourceRequest{URL: "https://cdn.example.com/a.m3u8", SpeedMbps: &speed})), id))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	st := decodeBody[SourceResponse](t, w).Preload
	if st.Strategy != strategy.Aggressive || st.NetworkSpeedMbps != 8.5 {
		t.Errorf("preload = %+v, want aggressive at 8.5Mbps", st)
	}

	// The report sticks for later sources on the same session.
	w = httptest.NewRecorder()
	env.h.SetSessionSource(w, withID(httptest.NewRequest(http.MethodPut, "/",
		jsonBody(t, SourceRequest{URL: "https://cdn.example.com/b.m3u8"})), id))
	if st := decodeBody[SourceResponse](t, w).Preload; st.Strategy != strategy.Aggressive {
		t.Errorf("second source strategy = %q, want aggressive", st.Strategy)
	}
}

func TestSetSessionSourceMP4DoesNotPreload(t *testing.T) {
	env := newTestEnv(t, 10)
	id := env.createSession(t, nil)

	w := httptest.NewRecorder()
	env.h.SetSessionSource(w, withID(httptest.NewRequest(http.MethodPut, "/",
		jsonBody(t, SourceRequest{URL: "https://cdn.example.com/movie.mp4"})), id))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	got := decodeBody[SourceResponse](t, w)
	if got.Source.Kind != "mp4" || got.Preload.IsPreloading {
		t.Errorf("got %+v, want mp4 without preload", got)
	}
}

func TestSessionErrors(t *testing.T) {
	env := newTestEnv(t, 2)
	id := env.createSession(t, nil)

	tests := []struct {
		name       string
		call       func(w http.ResponseWriter, r *http.Request)
		id         string
		body       string
		wantStatus int
	}{
		{name: "get unknown", call: env.h.GetSession, id: "missing", wantStatus: http.StatusNotFound},
		{name: "delete unknown", call: env.h.DeleteSession, id: "missing", wantStatus: http.StatusNotFound},
		{name: "commands unknown", call: env.h.GetSessionCommands, id: "missing", wantStatus: http.StatusNotFound},
		{name: "empty source", call: env.h.SetSessionSource, id: id, body: `{"url":""}`, wantStatus: http.StatusBadRequest},
		{name: "malformed source body", call: env.h.SetSessionSource, id: id, body: `{"url":`, wantStatus: http.StatusBadRequest},
		{name: "unknown field", call: env.h.SetSessionSource, id: id, body: `{"src":"a.m3u8"}`, wantStatus: http.StatusBadRequest},
		{name: "negative reported speed", call: env.h.SetSessionSource, id: id, body: `{"url":"a.m3u8","speedMbps":-1}`, wantStatus: http.StatusBadRequest},
		{name: "unknown event", call: env.h.PostSessionEvent, id: id, body: `{"type":"seeked"}`, wantStatus: http.StatusBadRequest},
		{name: "error without code", call: env.h.PostSessionEvent, id: id, body: `{"type":"error"}`, wantStatus: http.StatusBadRequest},
		{name: "negative time", call: env.h.PostSessionEvent, id: id, body: `{"type":"timeupdate","currentTime":-1}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := io.Reader(http.NoBody)
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			w := httptest.NewRecorder()
			tt.call(w, withID(httptest.NewRequest(http.MethodPost, "/", body), tt.id))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestPlaybackErrorSchedulesReload(t *testing.T) {
	env := newTestEnv(t, 2)
	id := env.createSession(t, nil)

	post := func(body string) player.Metrics {
		w := httptest.NewRecorder()
		env.h.PostSessionEvent(w, withID(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), id))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
		return decodeBody[player.Metrics](t, w)
	}

	w := httptest.NewRecorder()
	env.h.SetSessionSource(w, withID(httptest.NewRequest(http.MethodPut, "/",
		jsonBody(t, SourceRequest{URL: "https://cdn.example.com/a.mp4"})), id))
	env.h.GetSessionCommands(httptest.NewRecorder(), withID(httptest.NewRequest(http.MethodGet, "/", http.NoBody), id))

	m := post(`{"type":"error","errorCode":4,"errorMessage":"MEDIA_ERR_SRC_NOT_SUPPORTED"}`)
	if !m.ReloadPending || m.LastError == nil || m.LastError.Code != 4 {
		t.Fatalf("metrics = %+v, want pending reload for code 4", m)
	}

	env.clock.Advance(2 * time.Second)

	w = httptest.NewRecorder()
	env.h.GetSessionCommands(w, withID(httptest.NewRequest(http.MethodGet, "/", http.NoBody), id))
	cmds := decodeBody[[]player.Command](t, w)
	if len(cmds) != 1 || cmds[0].Type != player.CommandLoad {
		t.Errorf("commands after reload delay = %+v, want one load", cmds)
	}

	if m := post(`{"type":"error","errorCode":2}`); m.ReloadPending {
		t.Error("network error should not schedule a reload")
	}
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t, 2)
	first := env.createSession(t, nil)
	env.clock.Advance(time.Second)
	second := env.createSession(t, nil)

	w := httptest.NewRecorder()
	env.h.ListSessions(w, httptest.NewRequest(http.MethodGet, "/api/sessions", http.NoBody))
	got := decodeBody[[]player.Summary](t, w)
	if len(got) != 2 || got[0].ID != first || got[1].ID != second {
		t.Errorf("sessions = %+v, want [%s %s]", got, first, second)
	}
}

// =============================================================================
// Debug overlay
// =============================================================================

func TestGetDebug(t *testing.T) {
	env := newTestEnv(t, 3)

	req := httptest.NewRequest(http.MethodGet, "/api/debug?w=390&h=844&dpr=3", http.NoBody)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)")
	w := httptest.NewRecorder()
	env.h.GetDebug(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	got := decodeBody[overlay.Snapshot](t, w)
	if !got.Device.IsMobile || got.Device.Type != "mobile" || got.Device.Platform != "iPhone" {
		t.Errorf("device = %+v", got.Device)
	}
	if got.Device.ScreenWidth != 390 || got.Device.ScreenHeight != 844 || got.Device.DevicePixelRatio != 3 {
		t.Errorf("screen = %+v", got.Device)
	}
	if !got.Network.Online || got.Network.DownlinkMbps != 3 {
		t.Errorf("network = %+v", got.Network)
	}

	for _, q := range []string{"w=wide", "h=-1", "dpr=0", "dpr=x"} {
		w := httptest.NewRecorder()
		env.h.GetDebug(w, httptest.NewRequest(http.MethodGet, "/api/debug?"+q, http.NoBody))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestPostFrames(t *testing.T) {
	env := newTestEnv(t, 2)

	post := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		env.h.PostFrames(w, httptest.NewRequest(http.MethodPost, "/api/debug/frames", strings.NewReader(body)))
		return w
	}

	if got := decodeBody[FramesResponse](t, post(`{"clientId":"tab-1","frames":30}`)); got.FPS != 0 {
		t.Errorf("fps before a full second = %d, want 0", got.FPS)
	}
	env.clock.Advance(time.Second)
	if got := decodeBody[FramesResponse](t, post(`{"clientId":"tab-1","frames":30}`)); got.FPS != 60 {
		t.Errorf("fps = %d, want 60", got.FPS)
	}

	bad := []string{
		`{"clientId":"tab-1","frames":-5}`,
		`{"frames":30}`,
		`{"clientId":"` + strings.Repeat("x", 129) + `","frames":1}`,
	}
	for _, body := range bad {
		if w := post(body); w.Code != http.StatusBadRequest {
			t.Errorf("%.40s: status = %d, want 400", body, w.Code)
		}
	}
}

func TestPostFramesKeepsClientsApart(t *testing.T) {
	env := newTestEnv(t, 2)

	post := func(client string, frames int) int {
		w := httptest.NewRecorder()
		env.h.PostFrames(w, httptest.NewRequest(http.MethodPost, "/api/debug/frames",
			jsonBody(t, FramesRequest{ClientID: client, Frames: frames})))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
		return decodeBody[FramesResponse](t, w).FPS
	}

	post("left", 0)
	post("right", 0)
	env.clock.Advance(500 * time.Millisecond)
	post("left", 30)
	post("right", 30)
	env.clock.Advance(500 * time.Millisecond)
	for _, client := range []string{"left", "right"} {
		if got := post(client, 30); got != 60 {
			t.Errorf("%s fps = %d, want 60", client, got)
		}
	}

	w := httptest.NewRecorder()
	env.h.GetDebug(w, httptest.NewRequest(http.MethodGet, "/api/debug?client=left", http.NoBody))
	if got := decodeBody[overlay.Snapshot](t, w).Performance.FPS; got != 60 {
		t.Errorf("overlay fps for left = %d, want 60", got)
	}
}

// =============================================================================
// Perf tests
// =============================================================================

func TestRunPerfTest(t *testing.T) {
	env := newTestEnv(t, 2)

	body := jsonBody(t, PerfTestRequest{URL: env.media.URL + "/video/index.m3u8", DurationMs: 5000})
	w := httptest.NewRecorder()
	env.h.RunPerfTest(w, httptest.NewRequest(http.MethodPost, "/api/perftests", body))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	res := decodeBody[database.PerfTestResult](t, w)
	if res.Status != database.StatusCompleted || res.Kind != "hls" {
		t.Errorf("result = %+v", res)
	}
	// 2Mbps selects moderate, which preloads two segments.
	if res.Strategy != "moderate" || res.SegmentsFetched != 2 {
		t.Errorf("strategy/segments = %s/%d, want moderate/2", res.Strategy, res.SegmentsFetched)
	}
	if res.LoadTimeMillis == nil {
		t.Error("load time missing")
	}

	stored, err := env.db.GetResult(context.Background(), res.ID)
	if err != nil {
		t.Fatalf("result not stored: %v", err)
	}
	if stored.WindowMillis != 5000 {
		t.Errorf("stored window = %d, want 5000", stored.WindowMillis)
	}
}

func TestRunPerfTestStrategyOverride(t *testing.T) {
	env := newTestEnv(t, 2)

	body := jsonBody(t, PerfTestRequest{URL: env.media.URL + "/video/index.m3u8", Strategy: "aggressive"})
	w := httptest.NewRecorder()
	env.h.RunPerfTest(w, httptest.NewRequest(http.MethodPost, "/api/perftests", body))

	res := decodeBody[database.PerfTestResult](t, w)
	if res.Strategy != "aggressive" || res.SegmentsFetched != 3 {
		t.Errorf("strategy/segments = %s/%d, want aggressive/3", res.Strategy, res.SegmentsFetched)
	}
}

func TestRunPerfTestValidation(t *testing.T) {
	env := newTestEnv(t, 2)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing url", body: `{}`},
		{name: "blank url", body: `{"url":"  "}`},
		{name: "negative window", body: `{"url":"a.mp4","durationMs":-1}`},
		{name: "window too long", body: fmt.Sprintf(`{"url":"a.mp4","durationMs":%d}`, maxPerfTestWindow.Milliseconds()+1)},
		{name: "unknown strategy", body: `{"url":"a.mp4","strategy":"turbo"}`},
		{name: "malformed", body: `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			env.h.RunPerfTest(w, httptest.NewRequest(http.MethodPost, "/api/perftests", strings.NewReader(tt.body)))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestRunPerfTestFailureIsAResult(t *testing.T) {
	env := newTestEnv(t, 2)

	body := jsonBody(t, PerfTestRequest{URL: env.media.URL + "/missing.mp4"})
	w := httptest.NewRecorder()
	env.h.RunPerfTest(w, httptest.NewRequest(http.MethodPost, "/api/perftests", body))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	res := decodeBody[database.PerfTestResult](t, w)
	if res.Status != database.StatusFailed || res.Error == "" {
		t.Errorf("result = %+v, want failed with error", res)
	}
}

func TestComparePerfTests(t *testing.T) {
	env := newTestEnv(t, 2)

	body := jsonBody(t, CompareRequest{
		MP4URL: env.media.URL + "/clip.mp4",
		HLSURL: env.media.URL + "/video/index.m3u8",
	})
	w := httptest.NewRecorder()
	env.h.ComparePerfTests(w, httptest.NewRequest(http.MethodPost, "/api/perftests/compare", body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	got := decodeBody[perftest.Comparison](t, w)
	if got.MP4 == nil || got.HLS == nil {
		t.Fatalf("comparison = %+v", got)
	}
	if got.MP4.Kind != "mp4" || got.HLS.Kind != "hls" {
		t.Errorf("kinds = %s/%s", got.MP4.Kind, got.HLS.Kind)
	}
	if got.MP4LoadTimeMillis == nil || got.HLSLoadTimeMillis == nil {
		t.Error("load times missing")
	}

	results, err := env.db.ListResults(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if len(results) != 2 {
		t.Errorf("stored %d results, want 2", len(results))
	}

	bad := httptest.NewRecorder()
	env.h.ComparePerfTests(bad, httptest.NewRequest(http.MethodPost, "/api/perftests/compare",
		strings.NewReader(`{"mp4Url":"a.mp4"}`)))
	if bad.Code != http.StatusBadRequest {
		t.Errorf("missing hlsUrl status = %d, want 400", bad.Code)
	}
}

func TestPerfTestHistory(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new"} {
		res := &database.PerfTestResult{
			ID:        id,
			URL:       "https://cdn.example.com/" + id + ".mp4",
			Kind:      "mp4",
			Status:    database.StatusCompleted,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := env.db.SaveResult(ctx, res); err != nil {
			t.Fatalf("SaveResult() error = %v", err)
		}
	}

	t.Run("list", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.h.ListPerfTests(w, httptest.NewRequest(http.MethodGet, "/api/perftests", http.NoBody))
		got := decodeBody[[]database.PerfTestResult](t, w)
		if len(got) != 2 || got[0].ID != "new" {
			t.Errorf("results = %+v, want newest first", got)
		}
	})

	t.Run("list with limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.h.ListPerfTests(w, httptest.NewRequest(http.MethodGet, "/api/perftests?limit=1", http.NoBody))
		if got := decodeBody[[]database.PerfTestResult](t, w); len(got) != 1 {
			t.Errorf("got %d results, want 1", len(got))
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		for _, q := range []string{"limit=0", "limit=-3", "limit=all"} {
			w := httptest.NewRecorder()
			env.h.ListPerfTests(w, httptest.NewRequest(http.MethodGet, "/api/perftests?"+q, http.NoBody))
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s: status = %d, want 400", q, w.Code)
			}
		}
	})

	t.Run("get", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.h.GetPerfTest(w, withID(httptest.NewRequest(http.MethodGet, "/", http.NoBody), "old"))
		if got := decodeBody[database.PerfTestResult](t, w); got.URL != "https://cdn.example.com/old.mp4" {
			t.Errorf("result = %+v", got)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.h.GetPerfTest(w, withID(httptest.NewRequest(http.MethodGet, "/", http.NoBody), "nope"))
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestListPerfTestsEmpty(t *testing.T) {
	env := newTestEnv(t, 2)

	w := httptest.NewRecorder()
	env.h.ListPerfTests(w, httptest.NewRequest(http.MethodGet, "/api/perftests", http.NoBody))
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", w.Body.String())
	}
}

// =============================================================================
// Health
// =============================================================================

// failingStore reports the database as unreachable.
type failingStore struct{ ResultStore }

func (failingStore) Ping(context.Context) error { return errors.New("disk I/O error") }

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, 2)
	env.createSession(t, nil)

	w := httptest.NewRecorder()
	env.h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decodeBody[HealthResponse](t, w)
	if got.Status != statusHealthy || !got.Ready {
		t.Errorf("health = %+v", got)
	}
	if got.ActiveSessions != 1 {
		t.Errorf("activeSessions = %d, want 1", got.ActiveSessions)
	}
	if got.LastPerfTest != "" {
		t.Errorf("lastPerfTest = %q, want empty before any run", got.LastPerfTest)
	}
}

func TestHealthCheckDegraded(t *testing.T) {
	env := newTestEnv(t, 2)
	env.h.store = failingStore{ResultStore: env.db}

	w := httptest.NewRecorder()
	env.h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if got := decodeBody[HealthResponse](t, w); got.Status != statusDegraded || got.Ready {
		t.Errorf("health = %+v", got)
	}

	w = httptest.NewRecorder()
	env.h.ReadinessCheck(w, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness status = %d, want 503", w.Code)
	}
}

func TestReadinessAndLiveness(t *testing.T) {
	env := newTestEnv(t, 2)

	w := httptest.NewRecorder()
	env.h.ReadinessCheck(w, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))
	if w.Code != http.StatusOK {
		t.Errorf("readiness status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	env.h.LivenessCheck(w, httptest.NewRequest(http.MethodHead, "/livez", http.NoBody))
	if w.Code != http.StatusOK || w.Body.Len() != 0 {
		t.Errorf("HEAD liveness = %d with %d bytes", w.Code, w.Body.Len())
	}
}

func TestInspectPlaylist(t *testing.T) {
	env := newTestEnv(t, 2.0)

	t.Run("media playlist", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/playlist?url="+env.media.URL+"/video/index.m3u8", http.NoBody)
		w := httptest.NewRecorder()
		env.h.InspectPlaylist(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		resp := decodeBody[PlaylistResponse](t, w)
		if resp.Playlist.SegmentCount != 4 {
			t.Errorf("SegmentCount = %d, want 4", resp.Playlist.SegmentCount)
		}
		if resp.Strategy != strategy.Moderate || resp.PreloadSegments != 2 {
			t.Errorf("strategy = %s with %d segments, want moderate with 2", resp.Strategy, resp.PreloadSegments)
		}
		if resp.HighestVariant != nil {
			t.Errorf("HighestVariant = %+v, want none for a media playlist", resp.HighestVariant)
		}
	})

	t.Run("master playlist", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/playlist?strategy=aggressive&url="+env.media.URL+"/video/master.m3u8", http.NoBody)
		w := httptest.NewRecorder()
		env.h.InspectPlaylist(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		resp := decodeBody[PlaylistResponse](t, w)
		if len(resp.Playlist.Variants) != 2 {
			t.Fatalf("variants = %d, want 2", len(resp.Playlist.Variants))
		}
		if resp.HighestVariant == nil || resp.HighestVariant.Bandwidth != 2800000 {
			t.Errorf("HighestVariant = %+v, want 2800000", resp.HighestVariant)
		}
		if resp.Strategy != strategy.Aggressive || resp.PreloadSegments != 0 {
			t.Errorf("strategy = %s with %d segments, want aggressive with 0", resp.Strategy, resp.PreloadSegments)
		}
	})

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{name: "missing url", query: "", want: http.StatusBadRequest},
		{name: "mp4 source", query: "url=" + env.media.URL + "/clip.mp4", want: http.StatusBadRequest},
		{name: "unknown strategy", query: "strategy=turbo&url=" + env.media.URL + "/video/index.m3u8", want: http.StatusBadRequest},
		{name: "upstream 404", query: "url=" + env.media.URL + "/missing.m3u8", want: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/playlist?"+tt.query, http.NoBody)
			w := httptest.NewRecorder()
			env.h.InspectPlaylist(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}
