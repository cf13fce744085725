package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/YaganovValera/energy-stream/internal/market"
	"github.com/YaganovValera/energy-stream/internal/session"
)

const (
	title       = "OilPriceAPI WebSocket Tester"
	clearScreen = "\x1b[H\x1b[2J"
	labelWidth  = 18
)

// TextRenderer writes a plain text dashboard.
type TextRenderer struct {
	w     io.Writer
	all   bool // показывать drilling и well permits
	clear bool // очищать экран перед каждым кадром
}

func NewTextRenderer(w io.Writer, showAll, clear bool) *TextRenderer {
	return &TextRenderer{w: w, all: showAll, clear: clear}
}

func (r *TextRenderer) Render(v View) error {
	bw := bufio.NewWriter(r.w)
	if r.clear {
		bw.WriteString(clearScreen)
	}
	writeFrame(bw, v, r.all)
	return bw.Flush()
}

func writeFrame(w *bufio.Writer, v View, all bool) {
	s := v.Session
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", len(title)))
	fmt.Fprintf(w, "Status: %s   Endpoint: %s\n", statusLabel(s.State), s.URL)

	uptime := placeholder
	if s.State == session.Connected && s.Counters.ConnectionStartedAt != nil {
		uptime = FormatUptime(v.Now.Sub(*s.Counters.ConnectionStartedAt))
	}
	fmt.Fprintf(w, "Messages: %d   Data: %s   Uptime: %s   Pings: %d\n",
		s.Counters.MessageCount, FormatBytes(s.Counters.BytesReceived), uptime, s.Counters.PingCount)
	if s.ReconnectAttempts > 0 {
		fmt.Fprintf(w, "Reconnect attempts: %d/%d\n", s.ReconnectAttempts, v.MaxAttempts)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "PRICES")
	for _, i := range market.Instruments() {
		q := v.Market.Quote(i)
		line := fmt.Sprintf("  %-*s %s", labelWidth, i.Label(), formatPrice(i, q.Value))
		if ch := formatChange(q.ChangePercent); ch != "" {
			line += "  " + ch
		}
		fmt.Fprintln(w, line)
	}

	if all {
		writeDrilling(w, v.Market)
		writePermits(w, v.Market.WellPermits)
	}

	fmt.Fprintln(w)
	if last, ok := v.Market.LastUpdate(); ok {
		fmt.Fprintf(w, "Last update: %s\n", last.Local().Format(time.TimeOnly))
	} else {
		fmt.Fprintln(w, "Last update: waiting for data...")
	}

	if len(v.Recent) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "RECENT ACTIVITY")
		for _, e := range v.Recent {
			fmt.Fprintf(w, "  %s\n", e.Line())
		}
	}
}

func writeDrilling(w *bufio.Writer, st market.State) {
	if !st.HasDrilling() {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "DRILLING ACTIVITY")
	for _, d := range st.Drilling {
		if d.Value == nil {
			continue
		}
		fmt.Fprintf(w, "  %-*s %s\n", labelWidth, d.Label, formatCount(d.Value))
	}
}

func writePermits(w *bufio.Writer, wp market.WellPermits) {
	sum := wp.Summary
	if sum.Total7d == nil && sum.Total30d == nil && sum.ActiveStates == nil && len(wp.TopStates) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "WELL PERMITS")
	fmt.Fprintf(w, "  7-day: %s   30-day: %s   Active states: %s\n",
		formatInt(sum.Total7d), formatInt(sum.Total30d), formatInt(sum.ActiveStates))
	if len(wp.TopStates) > 0 {
		parts := make([]string, 0, len(wp.TopStates))
		for _, sc := range wp.TopStates {
			parts = append(parts, fmt.Sprintf("%s %d", sc.State, sc.Count7d))
		}
		fmt.Fprintf(w, "  All states (7d): %s\n", strings.Join(parts, ", "))
	}
	if wp.LastUpdated != "" {
		fmt.Fprintf(w, "  Updated: %s\n", wp.LastUpdated)
	}
}

func statusLabel(s session.State) string {
	switch s {
	case session.Connected:
		return "Connected"
	case session.Connecting:
		return "Connecting"
	default:
		return "Disconnected"
	}
}
