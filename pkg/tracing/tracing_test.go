package tracing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func attrs(s tracesdk.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "callkit", cfg.ServiceName)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInit_Disabled(t *testing.T) {
	p, err := Init(DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.True(t, strings.HasPrefix(Sampler(1).Description(), "ParentBased{root:AlwaysOnSampler"))
	assert.True(t, strings.HasPrefix(Sampler(2).Description(), "ParentBased{root:AlwaysOnSampler"))
	assert.True(t, strings.HasPrefix(Sampler(0).Description(), "ParentBased{root:AlwaysOffSampler"))
	assert.Contains(t, Sampler(0.25).Description(), "root:TraceIDRatioBased{0.25}")
}

func TestTraceCallOperation(t *testing.T) {
	rec := recordSpans(t)

	ctx, span := TraceCallOperation(context.Background(), "join", "demo")
	AddSpanAttributes(ctx, UIDKey.String("42"))
	RecordError(ctx, errors.New("boom"))
	RecordError(ctx, nil)
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "call.join", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	a := attrs(spans[0])
	assert.Equal(t, "demo", a[ChannelKey].AsString())
	assert.Equal(t, "42", a[UIDKey].AsString())
}

func TestFinishRetry(t *testing.T) {
	rec := recordSpans(t)

	_, span := TraceSubscribe(context.Background(), "7", "video")
	FinishRetry(span, "exhausted", 5, errors.New("not queryable"))
	_, span = TraceSubscribe(context.Background(), "8", "audio")
	FinishRetry(span, "aborted", 1, errors.New("left"))

	spans := rec.Ended()
	require.Len(t, spans, 2)

	a := attrs(spans[0])
	assert.Equal(t, "7", a[RemoteUIDKey].AsString())
	assert.Equal(t, int64(5), a[AttemptsKey].AsInt64())
	assert.Equal(t, "exhausted", a[OutcomeKey].AsString())
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	assert.Equal(t, "aborted", attrs(spans[1])[OutcomeKey].AsString())
	assert.NotEqual(t, codes.Error, spans[1].Status().Code)
}

func TestTraceHTTPRequest(t *testing.T) {
	rec := recordSpans(t)

	_, span := TraceHTTPRequest(context.Background(), "POST", "/api/v1/call/join")
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST /api/v1/call/join", spans[0].Name())
}
