package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	Register(reg) // повторный вызов не паникует

	WSFrames.WithLabelValues("ping").Inc()
	WSCloses.WithLabelValues("auth").Inc()
	SessionState.Set(2)

	if got := testutil.ToFloat64(WSFrames.WithLabelValues("ping")); got != 1 {
		t.Errorf("frames{ping} = %v; want 1", got)
	}
	if got := testutil.ToFloat64(SessionState); got != 2 {
		t.Errorf("session_state = %v; want 2", got)
	}

	n, err := testutil.GatherAndCount(reg,
		"energystream_ws_frames_total",
		"energystream_ws_closes_total",
		"energystream_session_state",
	)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 3 {
		t.Errorf("gathered %d series; want 3", n)
	}
}
