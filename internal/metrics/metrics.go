package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "energystream"

var (
	once sync.Once

	// WSConnects - попытки подключения по результату (success|failure).
	WSConnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "ws", Name: "connects_total",
		Help: "WebSocket connection attempts by result",
	}, []string{"status"})

	// WSFrames - входящие фреймы по типу события.
	WSFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "ws", Name: "frames_total",
		Help: "Inbound frames by classified kind",
	}, []string{"kind"})

	BytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "ws", Name: "bytes_received_total",
		Help: "Bytes of inbound frame payloads",
	})

	MalformedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "ws", Name: "malformed_frames_total",
		Help: "Frames that could not be parsed",
	})

	// WSCloses - закрытия соединения: normal|abnormal|auth|transport.
	WSCloses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "ws", Name: "closes_total",
		Help: "Connection closures by class",
	}, []string{"class"})

	ReconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "reconnect", Name: "attempts_total",
		Help: "Retry decisions issued by the reconnection policy",
	})

	ReconnectDelay = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "reconnect", Name: "delay_seconds",
		Help:    "Backoff delay before each reconnect",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	// SessionState - 0 disconnected, 1 connecting, 2 connected.
	SessionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "session", Name: "state",
		Help: "Current connection lifecycle state",
	})

	MarketUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "market", Name: "updates_total",
		Help: "Merged updates by section (prices|drilling|permits)",
	}, []string{"section"})
)

// Register регистрирует все метрики в заданном реестре.
// Можно вызвать без аргументов, чтобы зарегистрировать в DefaultRegisterer.
func Register(registerers ...prometheus.Registerer) {
	once.Do(func() {
		var reg prometheus.Registerer
		if len(registerers) > 0 && registerers[0] != nil {
			reg = registerers[0]
		} else {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(
			WSConnects,
			WSFrames,
			BytesReceived,
			MalformedFrames,
			WSCloses,
			ReconnectAttempts,
			ReconnectDelay,
			SessionState,
			MarketUpdates,
		)
	})
}
