package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/energy-stream/internal/activity"
	"github.com/YaganovValera/energy-stream/internal/reconnect"
	"github.com/YaganovValera/energy-stream/pkg/logger"
)

// scriptedRunner отдаёт заранее заданные исходы; connect помечает попытки,
// на которых соединение успело установиться.
type scriptedRunner struct {
	status   *Status
	outcomes []Outcome
	calls    int
}

func (r *scriptedRunner) Run(context.Context) Outcome {
	i := r.calls
	r.calls++
	if i >= len(r.outcomes) {
		i = len(r.outcomes) - 1
	}
	out := r.outcomes[i]
	if out.Connected {
		r.status.Connected(time.Now())
	}
	r.status.Disconnected()
	return out
}

var dropped = Outcome{Kind: AbnormalClose, Code: websocket.CloseAbnormalClosure, Err: errors.New("unexpected EOF")}

func newSupervisor(t *testing.T, outcomes ...Outcome) (*Supervisor, *scriptedRunner, *[]time.Duration, *activity.Journal) {
	t.Helper()
	status := NewStatus("ws://h")
	runner := &scriptedRunner{status: status, outcomes: outcomes}
	journal := activity.New(8, logger.NewNop())
	sup := NewSupervisor(runner, reconnect.Exponential{Max: 5, Base: time.Second}, status, journal, logger.NewNop())
	var slept []time.Duration
	sup.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return sup, runner, &slept, journal
}

func TestSupervisor_GivesUpAfterBudget(t *testing.T) {
	sup, runner, slept, journal := newSupervisor(t, dropped)

	err := sup.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReconnectBudgetExhausted))

	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}, *slept)
	assert.Equal(t, 6, runner.calls)
	assert.Equal(t, 5, sup.status.ReconnectAttempts())

	msgs := messages(journal)
	assert.Contains(t, msgs, "Reconnecting in 1s (1/5)...")
	assert.Contains(t, msgs, "Reconnecting in 16s (5/5)...")
	assert.Equal(t, "Max reconnection attempts reached. Exiting.", msgs[len(msgs)-1])
}

func TestSupervisor_NormalCloseEnds(t *testing.T) {
	sup, runner, slept, _ := newSupervisor(t, Outcome{Kind: NormalClose, Code: 1000, Connected: true})

	require.NoError(t, sup.Run(context.Background()))
	assert.Equal(t, 1, runner.calls)
	assert.Empty(t, *slept)
}

func TestSupervisor_ConnectResetsAttempts(t *testing.T) {
	reconnected := dropped
	reconnected.Connected = true
	sup, runner, slept, _ := newSupervisor(t,
		dropped,
		dropped,
		reconnected,
		Outcome{Kind: NormalClose, Code: 1000, Connected: true},
	)

	require.NoError(t, sup.Run(context.Background()))
	assert.Equal(t, 4, runner.calls)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 1 * time.Second}, *slept)
}

func TestSupervisor_TransportErrorRetries(t *testing.T) {
	sup, runner, slept, _ := newSupervisor(t,
		Outcome{Kind: TransportError, Err: fmt.Errorf("dial: %w", errors.New("refused"))},
		Outcome{Kind: NormalClose, Code: 1000, Connected: true},
	)
	require.NoError(t, sup.Run(context.Background()))
	assert.Equal(t, 2, runner.calls)
	assert.Len(t, *slept, 1)
}

func TestSupervisor_CancelDuringBackoff(t *testing.T) {
	sup, runner, _, _ := newSupervisor(t, dropped)
	ctx, cancel := context.WithCancel(context.Background())
	sup.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepCtx(ctx, d)
	}

	require.NoError(t, sup.Run(ctx))
	assert.Equal(t, 1, runner.calls)
}

func TestSupervisor_CancelledOutcome(t *testing.T) {
	sup, runner, slept, _ := newSupervisor(t, Outcome{Kind: Cancelled})
	require.NoError(t, sup.Run(context.Background()))
	assert.Equal(t, 1, runner.calls)
	assert.Empty(t, *slept)
}

func TestCloseReason(t *testing.T) {
	cases := map[int]string{
		1000: "Normal closure",
		1006: "Abnormal closure (no close frame)",
		4001: "Unauthorized - invalid API key",
		4003: "Forbidden - WebSocket access not enabled",
		4999: "Unknown",
	}
	for code, want := range cases {
		assert.Equal(t, want, CloseReason(code), "code %d", code)
	}

	for _, code := range []int{4001, 4003, 1006} {
		assert.True(t, NeedsCredentialHint(code), "code %d", code)
	}
	for _, code := range []int{0, 1000, 1001, 1011} {
		assert.False(t, NeedsCredentialHint(code), "code %d", code)
	}
}

func TestOutcomeFromReadError(t *testing.T) {
	out := outcomeFromReadError(&websocket.CloseError{Code: 1000}, false)
	assert.Equal(t, NormalClose, out.Kind)
	assert.NoError(t, out.Err)

	out = outcomeFromReadError(&websocket.CloseError{Code: 1011, Text: "boom"}, false)
	assert.Equal(t, AbnormalClose, out.Kind)
	assert.Equal(t, "abnormal", out.class())
	assert.Equal(t, "boom", out.Reason)

	out = outcomeFromReadError(errors.New("i/o timeout"), true)
	assert.Equal(t, TransportError, out.Kind)
	assert.True(t, errors.Is(out.Err, ErrPingTimeout))
	assert.Equal(t, "transport", out.class())
}

func TestStatus_FinalStats(t *testing.T) {
	s := NewStatus("ws://h")
	assert.False(t, s.FinalStats(time.Now()).Connected)
	assert.ErrorIs(t, s.Ready(), ErrNotConnected)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.Connected(start)
	s.FrameReceived(10)
	s.FrameReceived(5)
	s.MessageCounted()
	assert.NoError(t, s.Ready())

	fs := s.FinalStats(start.Add(90 * time.Second))
	assert.True(t, fs.Connected)
	assert.EqualValues(t, 1, fs.MessageCount)
	assert.EqualValues(t, 15, fs.BytesReceived)
	assert.Equal(t, 90*time.Second, fs.Uptime)

	_, had := s.PingReceived(start)
	assert.False(t, had)
	prev, had := s.PingReceived(start.Add(3 * time.Second))
	assert.True(t, had)
	assert.Equal(t, start, prev)
}
