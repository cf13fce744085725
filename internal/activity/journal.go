// Package activity keeps the append-only, human-facing event log.
package activity

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/energy-stream/pkg/logger"
)

type Severity string

const (
	Info  Severity = "info"
	Warn  Severity = "warn"
	Error Severity = "error"
	Price Severity = "price"
)

// Entry is one journal line.
type Entry struct {
	Time     time.Time `json:"timestamp"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
}

// Line renders the entry as "[HH:MM:SS.mmm] message".
func (e Entry) Line() string {
	return fmt.Sprintf("[%s] %s", e.Time.Format("15:04:05.000"), e.Message)
}

// Journal records entries in order, keeps a bounded tail for display and
// mirrors each entry to the structured logger at debug level. The entry is
// already on screen; the mirror only matters with --log-level debug.
type Journal struct {
	mu        sync.Mutex
	entries   []Entry
	recent    []Entry
	recentCap int

	echoMu sync.Mutex
	echo   io.Writer

	log *logger.Logger
	now func() time.Time
}

type Option func(*Journal)

// WithEcho prints every entry to w as soon as it is added.
func WithEcho(w io.Writer) Option { return func(j *Journal) { j.echo = w } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(j *Journal) { j.now = now } }

// New creates a Journal that keeps recentCap entries for Recent.
func New(recentCap int, log *logger.Logger, opts ...Option) *Journal {
	if recentCap <= 0 {
		recentCap = 8
	}
	j := &Journal{
		recentCap: recentCap,
		recent:    make([]Entry, 0, recentCap),
		log:       log.Named("activity").Unsampled(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Add appends an entry.
func (j *Journal) Add(sev Severity, msg string) Entry {
	e := Entry{Time: j.now(), Message: msg, Severity: sev}

	j.mu.Lock()
	j.entries = append(j.entries, e)
	if len(j.recent) == j.recentCap {
		copy(j.recent, j.recent[1:])
		j.recent = j.recent[:len(j.recent)-1]
	}
	j.recent = append(j.recent, e)
	j.mu.Unlock()

	j.mirror(e)
	if j.echo != nil {
		j.echoMu.Lock()
		_, _ = fmt.Fprintln(j.echo, e.Line())
		j.echoMu.Unlock()
	}
	return e
}

func (j *Journal) Addf(sev Severity, format string, args ...interface{}) Entry {
	return j.Add(sev, fmt.Sprintf(format, args...))
}

func (j *Journal) mirror(e Entry) {
	j.log.Debug(e.Message, zap.String("severity", string(e.Severity)))
}

// Entries returns a copy of every entry so far.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Recent returns a copy of the newest entries, oldest first.
func (j *Journal) Recent() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, len(j.recent))
	copy(out, j.recent)
	return out
}

// RecentCap is the size of the Recent window.
func (j *Journal) RecentCap() int { return j.recentCap }

func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}
