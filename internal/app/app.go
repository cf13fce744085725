package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YaganovValera/energy-stream/internal/activity"
	"github.com/YaganovValera/energy-stream/internal/config"
	"github.com/YaganovValera/energy-stream/internal/market"
	"github.com/YaganovValera/energy-stream/internal/metrics"
	"github.com/YaganovValera/energy-stream/internal/reconnect"
	"github.com/YaganovValera/energy-stream/internal/report"
	"github.com/YaganovValera/energy-stream/internal/session"
	"github.com/YaganovValera/energy-stream/pkg/httpserver"
	"github.com/YaganovValera/energy-stream/pkg/logger"
	"github.com/YaganovValera/energy-stream/pkg/shutdown"
	"github.com/YaganovValera/energy-stream/pkg/telemetry"
)

const telemetryShutdownTimeout = 5 * time.Second

// App wires the supervisor, the reporter and the optional observer API.
type App struct {
	cfg     *config.Config
	url     string
	log     *logger.Logger
	out     io.Writer
	journal *activity.Journal
	monitor *Monitor
	sup     *session.Supervisor
	rep     *report.Reporter
	srv     *httpserver.Server
}

// New собирает компоненты. out - stdout дашборда и финальной статистики.
func New(cfg *config.Config, log *logger.Logger, out io.Writer) (*App, error) {
	metrics.Register(prometheus.DefaultRegisterer)

	url := cfg.ResolveURL()

	var jopts []activity.Option
	if cfg.Display.Scroll {
		jopts = append(jopts, activity.WithEcho(out))
	}
	journal := activity.New(cfg.Report.RecentLines, log, jopts...)
	store := market.NewStore()
	status := session.NewStatus(url)

	sess, err := session.New(session.Config{
		URL:              url,
		APIKey:           cfg.APIKey,
		Channel:          cfg.Channel,
		HandshakeTimeout: cfg.Connection.HandshakeTimeout,
		PingInterval:     cfg.Connection.PingInterval,
		PingTimeout:      cfg.Connection.PingTimeout,
		WriteTimeout:     cfg.Connection.WriteTimeout,
		Verbose:          cfg.Display.Verbose,
		ShowPings:        cfg.Display.Pings,
	}, store, status, journal, log)
	if err != nil {
		return nil, fmt.Errorf("session init: %w", err)
	}

	policy := reconnect.New(cfg.Reconnect.MaxAttempts, cfg.Reconnect.BaseDelay, cfg.Reconnect.Jitter)
	monitor := NewMonitor(store, status, journal, policy.MaxAttempts())

	a := &App{
		cfg:     cfg,
		url:     url,
		log:     log.Named("app"),
		out:     out,
		journal: journal,
		monitor: monitor,
		sup:     session.NewSupervisor(sess, policy, status, journal, log),
	}

	// в scroll-режиме журнал печатается сразу, дашборд не нужен
	if !cfg.Display.Scroll {
		renderer := report.NewTextRenderer(out, cfg.Display.All, true)
		a.rep = report.New(cfg.Report.Interval, monitor, renderer, log)
	}

	if cfg.HTTP.Addr != "" {
		httpserver.RegisterMetrics(prometheus.DefaultRegisterer)
		a.srv, err = httpserver.New(
			httpserver.Config{
				Addr:            cfg.HTTP.Addr,
				ReadTimeout:     cfg.HTTP.ReadTimeout,
				WriteTimeout:    cfg.HTTP.WriteTimeout,
				IdleTimeout:     cfg.HTTP.IdleTimeout,
				ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
			},
			status.Ready,
			log,
			monitor.Routes(),
			httpserver.RecoverMiddleware(log),
			httpserver.RequestID(),
			httpserver.Metrics(),
			httpserver.CORSMiddleware(),
		)
		if err != nil {
			return nil, fmt.Errorf("httpserver init: %w", err)
		}
	}
	return a, nil
}

func (a *App) Monitor() *Monitor { return a.monitor }

// Run blocks until the supervisor finishes or ctx is cancelled, then does
// the final report, the export and prints final stats. A cancelled ctx is
// not an error; an exhausted reconnect budget is.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		// конец supervisor'а завершает и остальные задачи
		defer cancel()
		return a.sup.Run(gctx)
	})
	if a.rep != nil {
		g.Go(func() error { return a.rep.Run(gctx) })
	}
	if a.srv != nil {
		g.Go(func() error {
			// observer API необязателен: его ошибка не трогает поток цен
			if err := a.srv.Run(gctx); err != nil {
				a.log.Warn("app: observer API stopped", zap.Error(err))
				a.journal.Addf(activity.Warn, "Observer API unavailable: %v", err)
			}
			return nil
		})
	}

	err := g.Wait()
	a.finish()
	if err != nil {
		// main печатает ошибку сам
		a.log.Info("app: stopped", zap.Error(err))
	}
	return err
}

// finish - финальный синхронный дамп: кадр дашборда, экспорт, статистика.
func (a *App) finish() {
	if a.rep != nil {
		a.rep.Flush()
	}

	fs := a.monitor.FinalStats()
	uptime := ""
	if fs.Connected {
		uptime = report.FormatUptime(fs.Uptime)
	}

	if a.cfg.Export.Enabled {
		path, err := a.journal.ExportToDir(a.cfg.Export.Dir, activity.ExportHeader{
			URL:      a.url,
			Messages: fs.MessageCount,
			Bytes:    report.FormatBytes(fs.BytesReceived),
			Uptime:   uptime,
		})
		if err != nil {
			a.log.Error("app: export failed", zap.Error(err))
		} else {
			fmt.Fprintf(a.out, "Log exported to %s\n", path)
		}
	}

	if fs.Connected {
		fmt.Fprintf(a.out, "Final stats: Messages=%d Bytes=%s Uptime=%s\n",
			fs.MessageCount, report.FormatBytes(fs.BytesReceived), uptime)
	}
}

// Run is the entry point used by main: tracing, then App.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger, out io.Writer) error {
	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Config{
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SamplerRatio:   cfg.Telemetry.SamplerRatio,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		StreamURL:      cfg.ResolveURL(),
		Channel:        cfg.Channel,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		_ = shutdown.Graceful("telemetry", telemetryShutdownTimeout, shutdownTracer, log)
	}()

	a, err := New(cfg, log, out)
	if err != nil {
		return err
	}
	log.Info("app: starting",
		zap.String("service.name", cfg.ServiceName),
		zap.String("service.version", cfg.ServiceVersion),
		zap.String("url", a.url),
	)
	return a.Run(ctx)
}
