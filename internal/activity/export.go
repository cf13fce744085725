package activity

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const exportTitle = "OilPriceAPI WebSocket Tester - Log Export"

// ExportHeader is the summary written above the entries. Bytes and
// Uptime arrive already formatted.
type ExportHeader struct {
	Exported time.Time
	URL      string
	Messages int64
	Bytes    string
	Uptime   string
}

// FileName returns websocket-log-YYYY-MM-DDTHH-MM-SS.txt for t.
func FileName(t time.Time) string {
	return "websocket-log-" + t.Format("2006-01-02T15-04-05") + ".txt"
}

// WriteExport writes the header, a "---" separator and one line per entry.
func WriteExport(w io.Writer, h ExportHeader, entries []Entry) error {
	uptime := h.Uptime
	if uptime == "" {
		uptime = "N/A"
	}
	bw := bufio.NewWriter(w)
	lines := []string{
		exportTitle,
		"Exported: " + h.Exported.Format(time.RFC3339),
		"URL: " + h.URL,
		fmt.Sprintf("Messages: %d", h.Messages),
		"Bytes: " + h.Bytes,
		"Uptime: " + uptime,
		"---",
	}
	for _, e := range entries {
		lines = append(lines, e.Line())
	}
	for i, l := range lines {
		if i > 0 {
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString(l); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ExportToDir writes every entry to a timestamped file in dir and returns
// its path.
func (j *Journal) ExportToDir(dir string, h ExportHeader) (string, error) {
	if h.Exported.IsZero() {
		h.Exported = j.now()
	}
	path := filepath.Join(dir, FileName(h.Exported))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("activity: create export: %w", err)
	}
	if err := WriteExport(f, h, j.Entries()); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("activity: write export: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("activity: close export: %w", err)
	}
	return path, nil
}
