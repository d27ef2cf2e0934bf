package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "callkit"

// Span attributes shared by the adapter, the websocket bridge and the HTTP API.
var (
	ChannelKey   = attribute.Key("call.channel")
	UIDKey       = attribute.Key("call.uid")
	OperationKey = attribute.Key("call.operation")
	RemoteUIDKey = attribute.Key("call.remote_uid")
	MediaKindKey = attribute.Key("media.kind")
	AttemptsKey  = attribute.Key("retry.attempts")
	OutcomeKey   = attribute.Key("retry.outcome")
	ErrorCodeKey = attribute.Key("call.error_code")
	CommandKey   = attribute.Key("ws.command")
	ConnIDKey    = attribute.Key("ws.conn_id")
	RequestIDKey = attribute.Key("http.request_id")
)

type Config struct {
	Enabled     bool
	ServiceName string
	JaegerURL   string
	Environment string
	// SampleRate is the fraction of root spans kept. Child spans follow
	// their parent's decision.
	SampleRate float64
}

func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		ServiceName: "callkit",
		JaegerURL:   "http://localhost:14268/api/traces",
		Environment: "development",
		SampleRate:  1.0,
	}
}

// Provider owns the SDK tracer provider installed by Init. The zero value is
// what Init returns when tracing is off; its Shutdown is a no-op.
type Provider struct {
	tp *tracesdk.TracerProvider
}

// Init installs a global tracer provider exporting to Jaeger. With tracing
// disabled the global no-op provider stays in place.
func Init(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerURL)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(cfg.ServiceName)}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("environment", cfg.Environment))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
		tracesdk.WithSampler(Sampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{tp: tp}, nil
}

// Sampler maps a sample rate onto a parent-based sampler. Rates at or above
// one keep every root span; rates at or below zero drop them all.
func Sampler(rate float64) tracesdk.Sampler {
	var root tracesdk.Sampler
	switch {
	case rate >= 1:
		root = tracesdk.AlwaysSample()
	case rate <= 0:
		root = tracesdk.NeverSample()
	default:
		root = tracesdk.TraceIDRatioBased(rate)
	}
	return tracesdk.ParentBased(root)
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down tracer provider: %w", err)
	}
	return nil
}

func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// AddSpanAttributes annotates the span carried by ctx, if it is recording.
func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// RecordError marks the span carried by ctx as failed. A nil err is ignored.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// TraceCallOperation starts a span for an adapter operation on a channel.
func TraceCallOperation(ctx context.Context, operation, channel string) (context.Context, trace.Span) {
	return StartSpan(ctx, "call."+operation,
		trace.WithAttributes(
			OperationKey.String(operation),
			ChannelKey.String(channel),
		),
	)
}

// TraceSubscribe starts a span covering a whole subscribe retry run.
// FinishRetry closes it.
func TraceSubscribe(ctx context.Context, remoteUID, kind string) (context.Context, trace.Span) {
	return StartSpan(ctx, "call.subscribe",
		trace.WithAttributes(
			OperationKey.String("subscribe"),
			RemoteUIDKey.String(remoteUID),
			MediaKindKey.String(kind),
		),
	)
}

// FinishRetry records how a retry run ended and ends the span. Only an
// exhausted run marks the span as failed; an abort is a normal outcome.
func FinishRetry(span trace.Span, outcome string, attempts int, err error) {
	span.SetAttributes(
		OutcomeKey.String(outcome),
		AttemptsKey.Int(attempts),
	)
	if outcome == "exhausted" && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TraceHTTPRequest starts a server span for an API route.
func TraceHTTPRequest(ctx context.Context, method, route string) (context.Context, trace.Span) {
	return StartSpan(ctx, method+" "+route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPMethodKey.String(method),
			semconv.HTTPRouteKey.String(route),
		),
	)
}

// TraceWebSocketMessage starts a span for one command received on the bridge.
func TraceWebSocketMessage(ctx context.Context, command, connID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "ws."+command,
		trace.WithAttributes(
			CommandKey.String(command),
			ConnIDKey.String(connID),
		),
	)
}
