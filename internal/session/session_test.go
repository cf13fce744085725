package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/energy-stream/internal/activity"
	"github.com/YaganovValera/energy-stream/internal/market"
	"github.com/YaganovValera/energy-stream/pkg/logger"
)

const testKey = "test-key"

// cableServer поднимает WS-сервер, который проверяет токен, а дальше
// отдаёт управление script.
func cableServer(t *testing.T, script func(t *testing.T, conn *websocket.Conn)) string {
	t.Helper()
	upg := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != testKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		script(t, conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type harness struct {
	sess    *Session
	status  *Status
	store   *market.Store
	journal *activity.Journal
}

func newHarness(t *testing.T, url, key string, mutate func(*Config)) harness {
	t.Helper()
	cfg := Config{URL: url, APIKey: key, WriteTimeout: time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	status := NewStatus(url)
	store := market.NewStore()
	journal := activity.New(8, logger.NewNop())
	sess, err := New(cfg, store, status, journal, logger.NewNop())
	require.NoError(t, err)
	return harness{sess: sess, status: status, store: store, journal: journal}
}

func messages(j *activity.Journal) []string {
	var out []string
	for _, e := range j.Entries() {
		out = append(out, e.Message)
	}
	return out
}

func readSubscribe(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Errorf("read subscribe: %v", err)
		return
	}
	if !strings.Contains(string(msg), `"command":"subscribe"`) || !strings.Contains(string(msg), "EnergyPricesChannel") {
		t.Errorf("unexpected subscribe: %s", msg)
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
	// ждём эхо close от клиента
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestSession_EndToEnd(t *testing.T) {
	frames := []string{
		`{"type":"welcome","data":{"prices":{"oil":{"brent":{"original_price":80.5}}}}}`,
		`{"identifier":"{\"channel\":\"EnergyPricesChannel\"}","type":"confirm_subscription"}`,
		`{"identifier":"{\"channel\":\"EnergyPricesChannel\"}","message":{"type":"price_update","prices":{"oil":{"wti":{"original_price":{"cents":7010,"currency_iso":"USD"}}}}}}`,
	}
	url := cableServer(t, func(t *testing.T, conn *websocket.Conn) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frames[0])); err != nil {
			t.Errorf("write welcome: %v", err)
			return
		}
		readSubscribe(t, conn)
		for _, f := range frames[1:] {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				t.Errorf("write: %v", err)
				return
			}
		}
		closeWith(conn, websocket.CloseNormalClosure, "")
	})

	h := newHarness(t, url, testKey, nil)
	out := h.sess.Run(context.Background())

	assert.Equal(t, NormalClose, out.Kind)
	assert.Equal(t, websocket.CloseNormalClosure, out.Code)
	assert.True(t, out.Connected)
	assert.False(t, out.Recoverable())

	snap := h.status.Snapshot()
	assert.Equal(t, Disconnected, snap.State)
	assert.EqualValues(t, 1, snap.Counters.MessageCount)
	var total int
	for _, f := range frames {
		total += len(f)
	}
	assert.EqualValues(t, total, snap.Counters.BytesReceived)
	require.NotNil(t, snap.Counters.ConnectionStartedAt)
	assert.NotEmpty(t, snap.ConnectionID)

	st := h.store.Snapshot()
	brent := st.Quote(market.Brent)
	require.NotNil(t, brent.Value)
	assert.InDelta(t, 80.5, *brent.Value, 1e-9)
	wti := st.Quote(market.WTI)
	require.NotNil(t, wti.Value)
	assert.InDelta(t, 70.10, *wti.Value, 1e-9)

	assert.Equal(t, []string{
		"Connecting to " + url + "...",
		"Connected!",
		"Subscribing to EnergyPricesChannel...",
		"Server welcomed connection",
		"Initial prices received",
		"Subscribed to EnergyPricesChannel, waiting for price updates...",
		"Price update received (price_update)",
		"Connection closed: 1000 - Normal closure",
	}, messages(h.journal))
}

func TestSession_MalformedThenAuthClose(t *testing.T) {
	url := cableServer(t, func(t *testing.T, conn *websocket.Conn) {
		readSubscribe(t, conn)
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		closeWith(conn, CloseUnauthorized, "unauthorized")
	})

	h := newHarness(t, url, testKey, func(c *Config) { c.Verbose = true })
	out := h.sess.Run(context.Background())

	assert.Equal(t, AbnormalClose, out.Kind)
	assert.Equal(t, CloseUnauthorized, out.Code)
	assert.True(t, out.Recoverable())
	assert.Equal(t, "auth", out.class())

	snap := h.status.Snapshot()
	assert.EqualValues(t, 0, snap.Counters.MessageCount)
	assert.EqualValues(t, len("not json"), snap.Counters.BytesReceived)

	msgs := messages(h.journal)
	assert.Contains(t, msgs, "Protocol: ws")
	assert.Contains(t, msgs, "Raw: not json...")
	assert.Contains(t, msgs, "Connection closed: 4001 - Unauthorized - invalid API key (unauthorized)")
	assert.Equal(t, "Check API key and tier level", msgs[len(msgs)-1])

	var parseErrs int
	for _, m := range msgs {
		if strings.HasPrefix(m, "Failed to parse message:") {
			parseErrs++
		}
	}
	assert.Equal(t, 1, parseErrs)
}

func TestSession_RejectedKeyAtHandshake(t *testing.T) {
	url := cableServer(t, func(t *testing.T, conn *websocket.Conn) {
		t.Error("handshake should not succeed")
	})

	h := newHarness(t, url, "wrong", nil)
	out := h.sess.Run(context.Background())

	assert.Equal(t, TransportError, out.Kind)
	assert.Equal(t, CloseUnauthorized, out.Code)
	assert.False(t, out.Connected)
	assert.Error(t, out.Err)

	msgs := messages(h.journal)
	require.Len(t, msgs, 3)
	assert.True(t, strings.HasPrefix(msgs[1], "Error: dial:"))
	assert.Equal(t, "Check API key and tier level", msgs[2])
	assert.Nil(t, h.status.Snapshot().Counters.ConnectionStartedAt)
}

func TestSession_Pings(t *testing.T) {
	url := cableServer(t, func(t *testing.T, conn *websocket.Conn) {
		readSubscribe(t, conn)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","message":1767000000}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","message":1767000003}`))
		closeWith(conn, websocket.CloseNormalClosure, "")
	})

	h := newHarness(t, url, testKey, func(c *Config) { c.ShowPings = true })
	out := h.sess.Run(context.Background())
	assert.Equal(t, NormalClose, out.Kind)

	snap := h.status.Snapshot()
	assert.EqualValues(t, 2, snap.Counters.PingCount)
	assert.EqualValues(t, 0, snap.Counters.MessageCount)
	assert.NotNil(t, snap.Counters.LastPingAt)
	assert.Contains(t, messages(h.journal), "Ping: 1767000000")
}

func TestSession_RejectedSubscriptionKeepsSocket(t *testing.T) {
	url := cableServer(t, func(t *testing.T, conn *websocket.Conn) {
		readSubscribe(t, conn)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"identifier":"x","type":"reject_subscription"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"message":{"oil":{"brent":{"original_price":81}}}}`))
		closeWith(conn, websocket.CloseNormalClosure, "")
	})

	h := newHarness(t, url, testKey, nil)
	out := h.sess.Run(context.Background())
	assert.Equal(t, NormalClose, out.Kind)
	assert.EqualValues(t, 1, h.status.Snapshot().Counters.MessageCount)

	var warns int
	for _, e := range h.journal.Entries() {
		if e.Severity == activity.Warn {
			warns++
		}
	}
	assert.Equal(t, 1, warns)
}

func TestSession_Cancel(t *testing.T) {
	gotClose := make(chan int, 1)
	url := cableServer(t, func(t *testing.T, conn *websocket.Conn) {
		readSubscribe(t, conn)
		_, _, err := conn.ReadMessage()
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			gotClose <- ce.Code
		}
	})

	h := newHarness(t, url, testKey, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan Outcome, 1)
	go func() { done <- h.sess.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.status.Snapshot().State == Connected
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case out := <-done:
		assert.Equal(t, Cancelled, out.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after cancel")
	}
	select {
	case code := <-gotClose:
		assert.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(time.Second):
		t.Fatal("server did not receive close frame")
	}
	assert.Equal(t, Disconnected, h.status.Snapshot().State)
}

func TestSession_PingTimeout(t *testing.T) {
	release := make(chan struct{})
	url := cableServer(t, func(t *testing.T, conn *websocket.Conn) {
		readSubscribe(t, conn)
		// не читаем, значит pong клиенту не уходит
		<-release
	})
	defer close(release)

	h := newHarness(t, url, testKey, func(c *Config) {
		c.PingInterval = 30 * time.Millisecond
		c.PingTimeout = 30 * time.Millisecond
	})
	out := h.sess.Run(context.Background())

	assert.Equal(t, TransportError, out.Kind)
	assert.True(t, errors.Is(out.Err, ErrPingTimeout), "got %v", out.Err)
	assert.True(t, out.Recoverable())
}

func TestEndpoint(t *testing.T) {
	cases := []struct {
		name    string
		base    string
		want    string
		wantErr bool
	}{
		{"prod", "wss://api.oilpriceapi.com/cable", "wss://api.oilpriceapi.com/cable?token=k%2B1", false},
		{"local", "ws://localhost:5000/cable", "ws://localhost:5000/cable?token=k%2B1", false},
		{"existing query", "ws://h/cable?x=1", "ws://h/cable?token=k%2B1&x=1", false},
		{"http scheme", "http://h/cable", "", true},
		{"garbage", "::", "", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Endpoint(c.base, "k+1")
			if c.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()
	assert.Equal(t, "EnergyPricesChannel", cfg.Channel)
	assert.Equal(t, 70*time.Second, cfg.readWindow())
	assert.Error(t, cfg.validate())

	cfg.URL, cfg.APIKey = "ws://h", "k"
	assert.NoError(t, cfg.validate())
}
