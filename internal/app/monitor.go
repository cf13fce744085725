package app

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/YaganovValera/energy-stream/internal/activity"
	"github.com/YaganovValera/energy-stream/internal/market"
	"github.com/YaganovValera/energy-stream/internal/report"
	"github.com/YaganovValera/energy-stream/internal/session"
	"github.com/YaganovValera/energy-stream/pkg/httpserver"
)

// SessionView is the lifecycle part of a snapshot.
type SessionView struct {
	State             session.State `json:"state"`
	ReconnectAttempts int           `json:"reconnect_attempts"`
	MaxAttempts       int           `json:"max_attempts"`
	ConnectionID      string        `json:"connection_id,omitempty"`
	URL               string        `json:"url"`
}

// Snapshot is the read-only view exposed to collaborators.
type Snapshot struct {
	Prices      []market.PriceQuote     `json:"prices"`
	Drilling    []market.DrillingMetric `json:"drilling"`
	WellPermits market.WellPermits      `json:"well_permits"`
	Counters    session.Counters        `json:"counters"`
	Session     SessionView             `json:"session"`
}

// Monitor joins the market store, the session status and the journal for
// readers. It never writes to any of them.
type Monitor struct {
	store       *market.Store
	status      *session.Status
	journal     *activity.Journal
	maxAttempts int
	now         func() time.Time
}

var _ report.Source = (*Monitor)(nil)

func NewMonitor(store *market.Store, status *session.Status, journal *activity.Journal, maxAttempts int) *Monitor {
	return &Monitor{
		store:       store,
		status:      status,
		journal:     journal,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

func (m *Monitor) Snapshot() Snapshot {
	st := m.store.Snapshot()
	ss := m.status.Snapshot()
	return Snapshot{
		Prices:      st.Prices[:],
		Drilling:    st.Drilling[:],
		WellPermits: st.WellPermits,
		Counters:    ss.Counters,
		Session: SessionView{
			State:             ss.State,
			ReconnectAttempts: ss.ReconnectAttempts,
			MaxAttempts:       m.maxAttempts,
			ConnectionID:      ss.ConnectionID,
			URL:               ss.URL,
		},
	}
}

// View implements report.Source.
func (m *Monitor) View() report.View {
	return report.View{
		Now:         m.now(),
		Session:     m.status.Snapshot(),
		MaxAttempts: m.maxAttempts,
		Market:      m.store.Snapshot(),
		Recent:      m.journal.Recent(),
	}
}

// FinalStats is read once on shutdown.
func (m *Monitor) FinalStats() session.FinalStats {
	return m.status.FinalStats(m.now())
}

// Routes returns the observer endpoints mounted next to /metrics.
func (m *Monitor) Routes() []httpserver.Route {
	return []httpserver.Route{
		{Path: "/snapshot", Handler: http.HandlerFunc(m.handleSnapshot)},
		{Path: "/activity", Handler: http.HandlerFunc(m.handleActivity)},
	}
}

func (m *Monitor) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, m.Snapshot())
}

// handleActivity отдаёт последние записи; ?all=1 - весь журнал.
func (m *Monitor) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries := m.journal.Recent()
	if r.URL.Query().Get("all") == "1" {
		entries = m.journal.Entries()
	}
	writeJSON(w, entries)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
