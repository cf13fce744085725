// Package telemetry exports one span per WebSocket connection attempt to an
// OTLP collector. Without an endpoint the global no-op provider stays in
// place and the span helpers cost nothing.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/energy-stream/pkg/logger"
)

const (
	instrumentationName = "github.com/YaganovValera/energy-stream"
	exportTimeout       = 5 * time.Second
)

// Ключи атрибутов span'ов и ресурса.
const (
	AttrStreamURL    = attribute.Key("energystream.ws.url")
	AttrChannel      = attribute.Key("energystream.channel")
	AttrConnectionID = attribute.Key("energystream.connection_id")
	AttrOutcome      = attribute.Key("energystream.outcome")
	AttrCloseCode    = attribute.Key("energystream.close_code")
)

// Config содержит параметры трассировки. Пустой Endpoint - трассировка
// выключена.
type Config struct {
	Endpoint       string  // OTLP-collector "host:port"
	Insecure       bool    // true → gRPC без TLS
	SamplerRatio   float64 // 0.0…1.0, доля сессий с трассировкой
	ServiceName    string
	ServiceVersion string
	StreamURL      string // адрес cable без токена
	Channel        string
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.ServiceName == "":
		return fmt.Errorf("telemetry: service name is required")
	case cfg.StreamURL == "":
		return fmt.Errorf("telemetry: stream url is required")
	case cfg.SamplerRatio < 0 || cfg.SamplerRatio > 1:
		return fmt.Errorf("telemetry: sampler ratio must be between 0.0 and 1.0, got %v", cfg.SamplerRatio)
	default:
		return nil
	}
}

// InitTracer ставит глобальный TracerProvider и возвращает функцию,
// которая дописывает оставшиеся span'ы при выходе.
func InitTracer(ctx context.Context, cfg Config, log *logger.Logger) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		log.Debug("telemetry: disabled, no endpoint configured")
		return func(context.Context) error { return nil }, nil
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, exportTimeout)
	defer cancel()

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(initCtx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: exporter: %w", err)
	}
	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplerRatio)),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info("telemetry: initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("stream", redactURL(cfg.StreamURL)),
		zap.Float64("sampler_ratio", cfg.SamplerRatio),
	)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, exportTimeout)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// newResource describes the client and the stream it is attached to, so
// every span carries the endpoint and channel without repeating them.
func newResource(cfg Config) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			AttrStreamURL.String(redactURL(cfg.StreamURL)),
			AttrChannel.String(cfg.Channel),
		),
	)
}

// Tracer возвращает tracer проекта из глобального provider'а.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSession opens the span for one connection attempt.
func StartSession(ctx context.Context, streamURL, channel string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "session.Run",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrStreamURL.String(redactURL(streamURL)),
			AttrChannel.String(channel),
		))
}

// ConnectionEstablished records the id issued on connect.
func ConnectionEstablished(span trace.Span, connectionID string) {
	span.SetAttributes(AttrConnectionID.String(connectionID))
	span.AddEvent("connected")
}

// EndSession closes the span with how the connection ended. An outcome
// carrying an error marks the span as failed.
func EndSession(span trace.Span, outcome string, closeCode int, err error) {
	span.SetAttributes(
		AttrOutcome.String(outcome),
		AttrCloseCode.Int(closeCode),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// redactURL drops the query so the API token never reaches a collector.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
