package player

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnknownEvent is returned for an event type the session does not consume.
var ErrUnknownEvent = errors.New("unknown player event")

// EventType names a media element event reported by the client.
type EventType string

const (
	EventLoadedMetadata EventType = "loadedmetadata"
	EventCanPlay        EventType = "canplay"
	EventProgress       EventType = "progress"
	EventError          EventType = "error"
	EventRateChange     EventType = "ratechange"
	EventTimeUpdate     EventType = "timeupdate"
)

// Media error codes reported in Event.ErrorCode.
const (
	MediaErrAborted         = 1
	MediaErrNetwork         = 2
	MediaErrDecode          = 3
	MediaErrSrcNotSupported = 4
)

// Valid reports whether t is a consumed event type.
func (t EventType) Valid() bool {
	switch t {
	case EventLoadedMetadata, EventCanPlay, EventProgress, EventError, EventRateChange, EventTimeUpdate:
		return true
	}
	return false
}

// TimeRange is one buffered range in seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Event is a player notification together with the element state at the time
// it fired.
type Event struct {
	Type          EventType   `json:"type"`
	CurrentTime   float64     `json:"currentTime"`
	Duration      float64     `json:"duration"`
	Live          bool        `json:"live,omitempty"`
	Buffered      []TimeRange `json:"buffered,omitempty"`
	PlaybackRate  float64     `json:"playbackRate,omitempty"`
	DroppedFrames int         `json:"droppedFrames,omitempty"`
	BitrateBps    float64     `json:"bitrate,omitempty"`
	ErrorCode     int         `json:"errorCode,omitempty"`
	ErrorMessage  string      `json:"errorMessage,omitempty"`
}

// Validate checks the event type and numeric fields.
func (e Event) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type)
	}
	if math.IsNaN(e.CurrentTime) || e.CurrentTime < 0 {
		return fmt.Errorf("invalid currentTime %v", e.CurrentTime)
	}
	for _, r := range e.Buffered {
		if r.End < r.Start {
			return fmt.Errorf("invalid buffered range [%v, %v]", r.Start, r.End)
		}
	}
	if e.Type == EventError && e.ErrorCode == 0 {
		return errors.New("error event without errorCode")
	}
	return nil
}

// IsLive reports whether the event describes a live stream.
func (e Event) IsLive() bool {
	return e.Live || math.IsInf(e.Duration, 1)
}

// PlaybackError is the last error reported for a source.
type PlaybackError struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// Recoverable reports whether the error triggers an automatic reload.
func (p PlaybackError) Recoverable() bool {
	return p.Code == MediaErrSrcNotSupported
}
