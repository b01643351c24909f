package player

import (
	"sync"
	"time"

	"hls-preload/internal/source"
)

// Player is the playback engine a session drives. The engine owns fetching,
// buffering and bitrate selection; the session only assigns sources, asks for
// reloads and reads back element state.
type Player interface {
	SetSource(d source.Descriptor)
	Load()
	Snapshot() Snapshot
}

// EventObserver is implemented by players that learn their state from
// reported events.
type EventObserver interface {
	Observe(ev Event)
}

// Snapshot is the element state last known for a player.
type Snapshot struct {
	CurrentSrc    string      `json:"currentSrc,omitempty"`
	CurrentTime   float64     `json:"currentTime"`
	Duration      float64     `json:"duration"`
	Buffered      []TimeRange `json:"buffered,omitempty"`
	PlaybackRate  float64     `json:"playbackRate"`
	DroppedFrames int         `json:"droppedFrames"`
	BitrateBps    float64     `json:"bitrate"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// BufferedEnd returns the end of the first buffered range.
func (s Snapshot) BufferedEnd() (float64, bool) {
	if len(s.Buffered) == 0 {
		return 0, false
	}
	return s.Buffered[0].End, true
}

// CommandType is an instruction queued for a remote player.
type CommandType string

const (
	CommandSource CommandType = "src"
	CommandLoad   CommandType = "load"
)

// Command is one queued instruction. Source is set for CommandSource.
type Command struct {
	Seq    uint64            `json:"seq"`
	Type   CommandType       `json:"type"`
	Source *SourceAssignment `json:"source,omitempty"`
}

// SourceAssignment is the {src, type} object a player's source setter takes.
type SourceAssignment struct {
	Src  string `json:"src"`
	Type string `json:"type"`
}

const maxQueuedCommands = 64

// RemotePlayer is a Player whose engine runs in a client. Commands are queued
// until the client drains them, and the snapshot is rebuilt from the events
// the client reports.
type RemotePlayer struct {
	now func() time.Time

	mu       sync.Mutex
	seq      uint64
	queue    []Command
	snapshot Snapshot
}

// NewRemotePlayer creates a player with an empty command queue.
func NewRemotePlayer(now func() time.Time) *RemotePlayer {
	if now == nil {
		now = time.Now
	}
	return &RemotePlayer{now: now}
}

// SetSource queues a source assignment and forgets state from the previous
// source.
func (p *RemotePlayer) SetSource(d source.Descriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = Snapshot{CurrentSrc: d.URL, PlaybackRate: 1, UpdatedAt: p.now()}
	p.enqueue(Command{Type: CommandSource, Source: &SourceAssignment{Src: d.URL, Type: d.MIMEType()}})
}

// Load queues a load instruction.
func (p *RemotePlayer) Load() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enqueue(Command{Type: CommandLoad})
}

// enqueue appends cmd, dropping the oldest command when the queue is full.
// Caller holds p.mu.
func (p *RemotePlayer) enqueue(cmd Command) {
	p.seq++
	cmd.Seq = p.seq
	if len(p.queue) >= maxQueuedCommands {
		p.queue = p.queue[1:]
	}
	p.queue = append(p.queue, cmd)
}

// Drain returns and clears the queued commands in order.
func (p *RemotePlayer) Drain() []Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	cmds := p.queue
	p.queue = nil
	if cmds == nil {
		cmds = []Command{}
	}
	return cmds
}

// Snapshot returns the last known element state.
func (p *RemotePlayer) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.snapshot
	s.Buffered = append([]TimeRange(nil), s.Buffered...)
	return s
}

// Observe folds a reported event into the snapshot.
func (p *RemotePlayer) Observe(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &p.snapshot
	s.CurrentTime = ev.CurrentTime
	if ev.Duration > 0 {
		s.Duration = ev.Duration
	}
	if ev.Buffered != nil {
		s.Buffered = append([]TimeRange(nil), ev.Buffered...)
	}
	if ev.PlaybackRate > 0 {
		s.PlaybackRate = ev.PlaybackRate
	}
	if ev.DroppedFrames > 0 {
		s.DroppedFrames = ev.DroppedFrames
	}
	if ev.BitrateBps > 0 {
		s.BitrateBps = ev.BitrateBps
	}
	s.UpdatedAt = p.now()
}
