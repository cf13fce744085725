package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YaganovValera/energy-stream/internal/metrics"
)

// State is the connection lifecycle state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Counters are the per-process connection statistics.
type Counters struct {
	MessageCount        int64      `json:"message_count"`
	BytesReceived       int64      `json:"bytes_received"`
	PingCount           int64      `json:"ping_count"`
	LastPingAt          *time.Time `json:"last_ping_at"`
	ConnectionStartedAt *time.Time `json:"connection_started_at"`
}

// Snapshot is a consistent copy of the session state and counters.
type Snapshot struct {
	State             State    `json:"state"`
	ReconnectAttempts int      `json:"reconnect_attempts"`
	ConnectionID      string   `json:"connection_id,omitempty"`
	URL               string   `json:"url"`
	Counters          Counters `json:"counters"`
}

// FinalStats is what gets printed on shutdown. Connected is false when no
// connection was ever established.
type FinalStats struct {
	MessageCount  int64
	BytesReceived int64
	Uptime        time.Duration
	Connected     bool
}

// Tracker is the write side of Status handed to a Session.
type Tracker interface {
	Connecting()
	Connected(at time.Time) (connectionID string)
	Disconnected()
	FrameReceived(n int)
	MessageCounted()
	PingReceived(at time.Time) (prev time.Time, hadPrev bool)
}

// ErrNotConnected is reported by Ready while no session is up.
var ErrNotConnected = errors.New("session not connected")

// Status owns SessionState and ConnectionCounters. The Supervisor creates
// it and is the only writer; the Session writes through Tracker.
type Status struct {
	mu    sync.RWMutex
	snap  Snapshot
	newID func() string
}

var _ Tracker = (*Status)(nil)

func NewStatus(url string) *Status {
	return &Status{
		snap:  Snapshot{State: Disconnected, URL: url},
		newID: uuid.NewString,
	}
}

func (s *Status) setState(st State) {
	s.snap.State = st
	metrics.SessionState.Set(float64(st))
}

func (s *Status) Connecting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setState(Connecting)
}

// Connected resets the retry counter, stamps the start time and assigns a
// fresh connection id.
func (s *Status) Connected(at time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.ReconnectAttempts = 0
	ts := at
	s.snap.Counters.ConnectionStartedAt = &ts
	s.snap.ConnectionID = s.newID()
	s.setState(Connected)
	return s.snap.ConnectionID
}

func (s *Status) Disconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setState(Disconnected)
}

func (s *Status) FrameReceived(n int) {
	s.mu.Lock()
	s.snap.Counters.BytesReceived += int64(n)
	s.mu.Unlock()
}

func (s *Status) MessageCounted() {
	s.mu.Lock()
	s.snap.Counters.MessageCount++
	s.mu.Unlock()
}

// PingReceived bumps the ping counter and returns the previous ping time.
func (s *Status) PingReceived(at time.Time) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var prev time.Time
	had := s.snap.Counters.LastPingAt != nil
	if had {
		prev = *s.snap.Counters.LastPingAt
	}
	ts := at
	s.snap.Counters.LastPingAt = &ts
	s.snap.Counters.PingCount++
	return prev, had
}

// IncrementAttempts records one retry decision and returns the new count.
func (s *Status) IncrementAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.ReconnectAttempts++
	return s.snap.ReconnectAttempts
}

func (s *Status) ReconnectAttempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.ReconnectAttempts
}

func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Ready returns nil while connected. Backs /readyz.
func (s *Status) Ready() error {
	if s.Snapshot().State != Connected {
		return ErrNotConnected
	}
	return nil
}

// FinalStats computes uptime relative to now.
func (s *Status) FinalStats(now time.Time) FinalStats {
	snap := s.Snapshot()
	fs := FinalStats{
		MessageCount:  snap.Counters.MessageCount,
		BytesReceived: snap.Counters.BytesReceived,
	}
	if started := snap.Counters.ConnectionStartedAt; started != nil {
		fs.Connected = true
		fs.Uptime = now.Sub(*started)
	}
	return fs
}
