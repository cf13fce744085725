// Package session runs one WebSocket connection to the price stream and
// supervises reconnects between them.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/YaganovValera/energy-stream/internal/activity"
	"github.com/YaganovValera/energy-stream/internal/market"
	"github.com/YaganovValera/energy-stream/internal/metrics"
	"github.com/YaganovValera/energy-stream/internal/protocol"
	"github.com/YaganovValera/energy-stream/pkg/logger"
	"github.com/YaganovValera/energy-stream/pkg/telemetry"
)

const rawPreviewLen = 100

// Config задаёт параметры одного соединения.
type Config struct {
	URL              string        // адрес без токена, например "wss://api.oilpriceapi.com/cable"
	APIKey           string        // передаётся как ?token=
	Channel          string        // по умолчанию EnergyPricesChannel
	HandshakeTimeout time.Duration // таймаут dial + upgrade
	PingInterval     time.Duration // период клиентских ping
	PingTimeout      time.Duration // сколько ждём pong сверх PingInterval
	WriteTimeout     time.Duration // WriteDeadline для subscribe/ping/close
	Verbose          bool
	ShowPings        bool
}

func (c *Config) applyDefaults() {
	if c.Channel == "" {
		c.Channel = protocol.DefaultChannel
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 30 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 60 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

func (c Config) validate() error {
	var errs []string
	if c.URL == "" {
		errs = append(errs, "URL is required")
	}
	if c.APIKey == "" {
		errs = append(errs, "APIKey is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("session: invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// readWindow is how long the reader waits for any frame or pong.
func (c Config) readWindow() time.Duration { return c.PingInterval + c.PingTimeout }

// Endpoint appends the API key to base as the token query parameter.
func Endpoint(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("session: parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("session: unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Session performs a single connection attempt and pumps frames into the
// market store until the socket closes or ctx is cancelled.
type Session struct {
	cfg      Config
	endpoint string
	dialer   *websocket.Dialer
	store    *market.Store
	tracker  Tracker
	journal  *activity.Journal
	log      *logger.Logger
	now      func() time.Time
}

// New создаёт Session. Логгер именуется "ws-session".
func New(cfg Config, store *market.Store, tracker Tracker, journal *activity.Journal, log *logger.Logger) (*Session, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	endpoint, err := Endpoint(cfg.URL, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	return &Session{
		cfg:      cfg,
		endpoint: endpoint,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		store:   store,
		tracker: tracker,
		journal: journal,
		log:     log.Named("ws-session"),
		now:     time.Now,
	}, nil
}

// Run dials, subscribes and reads until the connection ends. It never
// retries; that is the Supervisor's job.
func (s *Session) Run(ctx context.Context) (out Outcome) {
	ctx, span := telemetry.StartSession(ctx, s.cfg.URL, s.cfg.Channel)
	defer func() {
		telemetry.EndSession(span, out.Kind.String(), out.Code, out.Err)
	}()

	// 1) Подключение
	s.tracker.Connecting()
	s.journal.Addf(activity.Info, "Connecting to %s...", s.cfg.URL)
	if s.cfg.Verbose {
		s.journal.Addf(activity.Info, "Protocol: %s", schemeOf(s.cfg.URL))
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			s.tracker.Disconnected()
			return Outcome{Kind: Cancelled}
		}
		metrics.WSConnects.WithLabelValues("failure").Inc()
		out = Outcome{Kind: TransportError, Err: fmt.Errorf("dial: %w", err)}
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				out.Code = CloseUnauthorized
			case http.StatusForbidden:
				out.Code = CloseForbidden
			}
		}
		return s.finish(out)
	}
	defer conn.Close()

	connID := s.tracker.Connected(s.now())
	metrics.WSConnects.WithLabelValues("success").Inc()
	log := s.log.ForConnection(connID).WithContext(ctx)
	telemetry.ConnectionEstablished(span, connID)
	log.Info("ws: connected", zap.String("url", s.cfg.URL))
	s.journal.Add(activity.Info, "Connected!")

	// 2) Подписка на канал
	s.journal.Addf(activity.Info, "Subscribing to %s...", s.cfg.Channel)
	cmd, err := protocol.SubscribeCommand(s.cfg.Channel)
	if err != nil {
		return s.finish(Outcome{Kind: TransportError, Err: err, Connected: true})
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, cmd); err != nil {
		if ctx.Err() != nil {
			return s.cancelled()
		}
		return s.finish(Outcome{Kind: TransportError, Err: fmt.Errorf("subscribe: %w", err), Connected: true})
	}

	// 3) Keep-alive: ReadDeadline продлевается на каждый pong и фрейм
	window := s.cfg.readWindow()
	_ = conn.SetReadDeadline(time.Now().Add(window))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(window))
	})

	connCtx, stop := context.WithCancel(ctx)
	defer stop()
	go s.keepalive(connCtx, ctx, conn, log)

	// 4) Чтение
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return s.cancelled()
			}
			var ne net.Error
			timedOut := errors.As(err, &ne) && ne.Timeout()
			return s.finish(outcomeFromReadError(err, timedOut))
		}
		_ = conn.SetReadDeadline(time.Now().Add(window))
		s.handleFrame(log, data)
	}
}

// keepalive шлёт ping каждые PingInterval. При отмене parent отправляет
// close 1000 и закрывает сокет, чтобы разблокировать ReadMessage.
func (s *Session) keepalive(connCtx, parent context.Context, conn *websocket.Conn, log *logger.Logger) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-connCtx.Done():
			if parent.Err() != nil {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutdown")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
				_ = conn.Close()
			}
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				log.Warn("ws: ping failed", zap.Error(err))
			}
		}
	}
}

func (s *Session) cancelled() Outcome {
	s.tracker.Disconnected()
	s.journal.Add(activity.Info, "Connection closed by client")
	metrics.WSCloses.WithLabelValues("normal").Inc()
	return Outcome{Kind: Cancelled, Code: websocket.CloseNormalClosure, Connected: true}
}

// finish records the transition to Disconnected with one journal entry,
// plus the credential hint when the code calls for it.
func (s *Session) finish(out Outcome) Outcome {
	s.tracker.Disconnected()
	metrics.WSCloses.WithLabelValues(out.class()).Inc()

	switch out.Kind {
	case NormalClose:
		s.journal.Addf(activity.Info, "Connection closed: %d - %s", out.Code, CloseReason(out.Code))
	case AbnormalClose:
		msg := fmt.Sprintf("Connection closed: %d - %s", out.Code, CloseReason(out.Code))
		if out.Reason != "" && out.Reason != CloseReason(out.Code) {
			msg += " (" + out.Reason + ")"
		}
		s.journal.Add(activity.Error, msg)
	default:
		s.journal.Addf(activity.Error, "Error: %v", out.Err)
	}
	if NeedsCredentialHint(out.Code) {
		s.journal.Add(activity.Warn, "Check API key and tier level")
	}
	return out
}

func (s *Session) handleFrame(log *logger.Logger, data []byte) {
	s.tracker.FrameReceived(len(data))
	metrics.BytesReceived.Add(float64(len(data)))

	ev, err := protocol.Classify(data)
	if err != nil {
		metrics.MalformedFrames.Inc()
		metrics.WSFrames.WithLabelValues(string(protocol.KindMalformed)).Inc()
		s.journal.Addf(activity.Error, "Failed to parse message: %v", err)
		if s.cfg.Verbose {
			s.journal.Addf(activity.Warn, "Raw: %s...", preview(data, rawPreviewLen))
		}
		return
	}
	metrics.WSFrames.WithLabelValues(string(ev.Kind())).Inc()

	switch e := ev.(type) {
	case protocol.PingEvent:
		s.onPing(e)
	case protocol.WelcomeEvent:
		s.onWelcome(e)
	case protocol.SubscriptionConfirmed:
		s.journal.Addf(activity.Info, "Subscribed to %s, waiting for price updates...", s.cfg.Channel)
	case protocol.SubscriptionRejected:
		// сокет остаётся открытым, сервер сам решает, закрывать ли его
		s.journal.Addf(activity.Warn, "Subscription to %s rejected: WebSocket streaming requires a higher plan tier", s.cfg.Channel)
	case protocol.DataEvent:
		s.tracker.MessageCounted()
		s.onData(e)
	case protocol.UnknownEvent:
		log.Debug("ws: unrecognized frame", zap.String("raw", preview(e.Raw, rawPreviewLen)))
	}
}

func (s *Session) onPing(e protocol.PingEvent) {
	prev, had := s.tracker.PingReceived(s.now())
	if s.cfg.Verbose && had {
		s.journal.Addf(activity.Info, "Ping received (interval: %dms)", s.now().Sub(prev).Milliseconds())
	}
	if s.cfg.ShowPings {
		s.journal.Addf(activity.Info, "Ping: %s", strings.Trim(string(e.Message), `"`))
	}
}

func (s *Session) onWelcome(e protocol.WelcomeEvent) {
	s.journal.Add(activity.Info, "Server welcomed connection")
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return
	}
	p, err := market.DecodePayload(e.Data)
	if err != nil {
		s.journal.Addf(activity.Error, "Error processing welcome data: %v", err)
		return
	}
	if !p.HasPrices() {
		return
	}
	recordChanges(s.store.ApplyUpdate(p))
	s.journal.Add(activity.Price, "Initial prices received")
}

func (s *Session) onData(e protocol.DataEvent) {
	p, err := market.DecodeUpdate(e.Payload)
	if err != nil {
		s.journal.Addf(activity.Error, "Error processing prices: %v", err)
		return
	}
	recordChanges(s.store.ApplyUpdate(p))
	if s.cfg.Verbose {
		s.journal.Addf(activity.Price, "%s: %s", e.UpdateKind, compact(e.Payload))
		return
	}
	s.journal.Addf(activity.Price, "Price update received (%s)", e.UpdateKind)
}

func recordChanges(ch market.Changes) {
	if ch.Prices > 0 {
		metrics.MarketUpdates.WithLabelValues("prices").Add(float64(ch.Prices))
	}
	if ch.Drilling > 0 {
		metrics.MarketUpdates.WithLabelValues("drilling").Add(float64(ch.Drilling))
	}
	if ch.Permits {
		metrics.MarketUpdates.WithLabelValues("permits").Inc()
	}
}

func schemeOf(raw string) string {
	if i := strings.Index(raw, "://"); i > 0 {
		return raw[:i]
	}
	return "unknown"
}

func preview(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

func compact(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
