// Package report renders periodic snapshots of the market state and the
// session counters. It only reads; nothing here mutates shared state.
package report

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/energy-stream/internal/activity"
	"github.com/YaganovValera/energy-stream/internal/market"
	"github.com/YaganovValera/energy-stream/internal/session"
	"github.com/YaganovValera/energy-stream/pkg/logger"
	"github.com/YaganovValera/energy-stream/pkg/safe"
)

// View is one consistent frame of everything the dashboard shows.
type View struct {
	Now         time.Time
	Session     session.Snapshot
	MaxAttempts int
	Market      market.State
	Recent      []activity.Entry
}

// Source produces views. Implementations copy under their own locks.
type Source interface {
	View() View
}

// Renderer draws a view.
type Renderer interface {
	Render(v View) error
}

// Reporter ticks on its own schedule, independent of the network path.
type Reporter struct {
	interval time.Duration
	source   Source
	renderer Renderer
	log      *logger.Logger

	mu sync.Mutex // один Render за раз: tick и финальный Flush
}

func New(interval time.Duration, source Source, renderer Renderer, log *logger.Logger) *Reporter {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Reporter{
		interval: interval,
		source:   source,
		renderer: renderer,
		log:      log.Named("reporter"),
	}
}

// Run renders every interval until ctx is cancelled. Render failures and
// panics are logged and never stop the loop.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Flush()
		}
	}
}

// Flush renders one frame synchronously.
func (r *Reporter) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := safe.Call(func() error {
		return r.renderer.Render(r.source.View())
	})
	if err != nil {
		r.log.Warn("report: render failed", zap.Error(err))
	}
}
