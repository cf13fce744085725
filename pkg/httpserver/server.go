// Package httpserver is the optional observer API of a running client:
// Prometheus metrics, liveness, readiness of the WebSocket session and the
// read-only JSON routes the app mounts next to them.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/YaganovValera/energy-stream/pkg/logger"
)

const (
	PathMetrics = "/metrics"
	PathHealthz = "/healthz"
	PathReadyz  = "/readyz"
)

// ErrBind is returned by Run when the address cannot be bound. The stream
// does not depend on the observer, so callers log it and carry on.
var ErrBind = errors.New("httpserver: bind failed")

// ReadyChecker returns nil while the session is connected.
type ReadyChecker func() error

// Route is an extra handler mounted next to the built-in endpoints.
type Route struct {
	Path    string
	Handler http.Handler
}

// Config задаёт адрес и таймауты observer API.
type Config struct {
	Addr            string // например "127.0.0.1:9108"
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

type Server struct {
	cfg     Config
	handler http.Handler
	log     *logger.Logger
}

// New собирает mux: /metrics, /healthz, /readyz и routes.
// Middlewares оборачивают весь mux, первый - самый внешний.
func New(cfg Config, ready ReadyChecker, log *logger.Logger, routes []Route, mws ...Middleware) (*Server, error) {
	cfg.applyDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("httpserver: Addr is required")
	}
	if ready == nil {
		ready = func() error { return nil }
	}

	mux := http.NewServeMux()
	mux.Handle(PathMetrics, promhttp.Handler())
	mux.HandleFunc(PathHealthz, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc(PathReadyz, func(w http.ResponseWriter, _ *http.Request) {
		if err := ready(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "NOT READY: %v", err)
			return
		}
		_, _ = w.Write([]byte("READY"))
	})
	for _, r := range routes {
		mux.Handle(r.Path, r.Handler)
	}

	return &Server{
		cfg:     cfg,
		handler: Compose(mws...)(mux),
		log:     log.Named("observer"),
	}, nil
}

// Handler exposes the composed handler, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// Run binds Addr and serves until ctx is done. A bind failure wraps ErrBind.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBind, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln and shuts down gracefully on ctx.Done(). A cancelled
// context is not an error.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("http: observer API listening", zap.Stringer("addr", ln.Addr()))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("httpserver: serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("http: graceful shutdown failed", zap.Error(err))
		return err
	}
	s.log.Debug("http: observer API stopped")
	return nil
}
