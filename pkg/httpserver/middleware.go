package httpserver

import (
	"context"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/YaganovValera/energy-stream/pkg/logger"
)

// Middleware оборачивает http.Handler.
type Middleware func(http.Handler) http.Handler

type ctxKey string

const requestIDKey ctxKey = "request_id"

// Compose собирает цепочку: первый middleware - самый внешний.
func Compose(mws ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// RecoverMiddleware перехватывает паники и возвращает 500.
func RecoverMiddleware(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rcv := recover(); rcv != nil {
					log.Error("http: panic recovered",
						zap.Any("panic", rcv),
						zap.ByteString("stack", debug.Stack()),
					)
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware возвращает permissive CORS.
func CORSMiddleware() Middleware {
	return cors.AllowAll().Handler
}

// RequestID прокидывает X-Request-ID или генерирует новый.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			ctx := context.WithValue(r.Context(), requestIDKey, reqID)
			w.Header().Set("X-Request-ID", reqID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext возвращает request-id, выставленный RequestID().
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

var (
	metricsOnce sync.Once
	reqs        = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "energystream",
			Subsystem: "observer",
			Name:      "requests_total",
			Help:      "Observer API requests by path, method and status.",
		},
		[]string{"path", "method", "code"},
	)
	duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "energystream",
			Subsystem: "observer",
			Name:      "request_duration_seconds",
			Help:      "Observer API request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

// RegisterMetrics регистрирует HTTP-метрики один раз.
func RegisterMetrics(r prometheus.Registerer) {
	metricsOnce.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}
		r.MustRegister(reqs, duration)
	})
}

// Metrics считает запросы и их длительность.
func Metrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			reqs.WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rw.status)).Inc()
			duration.WithLabelValues(r.URL.Path, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
