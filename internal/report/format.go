package report

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/YaganovValera/energy-stream/internal/market"
)

const placeholder = "--"

// FormatUptime renders d as "Ns", "Nm Ns" or "Nh Nm".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
	}
}

// FormatBytes renders n in IEC units, e.g. "1.2 KiB".
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func formatPrice(i market.Instrument, v *float64) string {
	if v == nil {
		return placeholder
	}
	prefix, suffix := i.Unit()
	return fmt.Sprintf("%s%.2f%s", prefix, *v, suffix)
}

func formatChange(c *float64) string {
	if c == nil {
		return ""
	}
	arrow := "▲"
	if *c < 0 {
		arrow = "▼"
	}
	return fmt.Sprintf("%s %.2f%%", arrow, math.Abs(*c))
}

func formatCount(v *float64) string {
	if v == nil {
		return placeholder
	}
	if *v == math.Trunc(*v) {
		return humanize.Comma(int64(*v))
	}
	// дробные метрики (например, frac spread) печатаются без округления до целого
	return humanize.CommafWithDigits(*v, 2)
}

func formatInt(v *int64) string {
	if v == nil {
		return placeholder
	}
	return humanize.Comma(*v)
}
