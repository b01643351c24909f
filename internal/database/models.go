package database

import "time"

// RunStatus is the terminal state of a perf-test run.
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusTimeout   RunStatus = "timeout"
	StatusFailed    RunStatus = "failed"
)

// PerfTestEvent is one player-equivalent event observed during a run.
// OffsetMillis is relative to the start of the run.
type PerfTestEvent struct {
	Type         string `json:"type"`
	OffsetMillis int64  `json:"offsetMs"`
	Message      string `json:"message,omitempty"`
}

type PerfTestResult struct {
	ID               string          `json:"id"`
	URL              string          `json:"url"`
	Kind             string          `json:"kind"`
	Strategy         string          `json:"strategy,omitempty"`
	Status           RunStatus       `json:"status"`
	StartedAt        time.Time       `json:"startedAt"`
	WindowMillis     int64           `json:"durationMs"`
	LoadTimeMillis   *int64          `json:"loadTime,omitempty"`
	FirstDataMillis  *int64          `json:"firstData,omitempty"`
	BytesTransferred int64           `json:"bytes"`
	SegmentsFetched  int             `json:"segments"`
	Events           []PerfTestEvent `json:"events"`
	Error            string          `json:"error,omitempty"`
}

// Event returns the first event of type t and whether one was recorded.
func (r *PerfTestResult) Event(t string) (PerfTestEvent, bool) {
	for _, ev := range r.Events {
		if ev.Type == t {
			return ev, true
		}
	}
	return PerfTestEvent{}, false
}
