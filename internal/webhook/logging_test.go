package webhook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"hookrelay/internal/logger"
	"hookrelay/internal/tracker"
	"hookrelay/pkg/logging"
)

func newObservedPipeline(t *testing.T) (*Pipeline, *Registry, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	log := &logger.SugaredLogger{SugaredLogger: zap.New(core).Sugar()}

	filter, err := NewFilter(nil, log)
	require.NoError(t, err)

	registry := NewRegistry()
	store := tracker.NewMemoryStore()
	p := NewPipeline(registry, tracker.New(store, log), filter, Dependencies{Processor: newFakeProcessor()}, log)
	return p, registry, logs
}

func TestPipeline_HandlerLogsCarryEventFieldsOnce(t *testing.T) {
	p, registry, logs := newObservedPipeline(t)
	registry.Register(subscriptionCreated, func(ctx context.Context, hc *HandlerContext) error {
		hc.Logger.InfowCtx(ctx, "granting access")
		return nil
	})

	out := p.Process(context.Background(), newEvent("evt_1", subscriptionCreated, "sub_A", unix("2024-01-01T12:00:00Z")))
	require.Equal(t, Handled, out.Kind)

	entries := logs.FilterMessage("granting access").All()
	require.Len(t, entries, 1)

	counts := map[string]int{}
	for _, field := range entries[0].Context {
		counts[field.Key]++
	}
	for _, key := range []string{"event_id", "event_type", "resource_id"} {
		assert.Equal(t, 1, counts[key], key)
	}

	fields := entries[0].ContextMap()
	assert.Equal(t, "evt_1", fields["event_id"])
	assert.Equal(t, subscriptionCreated, fields["event_type"])
	assert.Equal(t, "sub_A", fields["resource_id"])
}

func useTracerProvider(t *testing.T, tp trace.TracerProvider) {
	t.Helper()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestPipeline_ContextCarriesTraceID(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	useTracerProvider(t, tp)

	p, registry, logs := newObservedPipeline(t)

	var sc trace.SpanContext
	registry.Register(subscriptionCreated, func(ctx context.Context, hc *HandlerContext) error {
		sc = trace.SpanContextFromContext(ctx)
		hc.Logger.InfowCtx(ctx, "granting access")
		return nil
	})

	out := p.Process(context.Background(), newEvent("evt_1", subscriptionCreated, "sub_A", unix("2024-01-01T12:00:00Z")))
	require.Equal(t, Handled, out.Kind)

	require.True(t, sc.HasTraceID())
	entries := logs.FilterMessage("granting access").All()
	require.Len(t, entries, 1)
	assert.Equal(t, sc.TraceID().String(), entries[0].ContextMap()[string(logging.TraceIDKey)])
}

func TestPipeline_NoTraceIDWithoutRecordingProvider(t *testing.T) {
	useTracerProvider(t, tracenoop.NewTracerProvider())

	p, registry, logs := newObservedPipeline(t)
	registry.Register(subscriptionCreated, func(ctx context.Context, hc *HandlerContext) error {
		hc.Logger.InfowCtx(ctx, "granting access")
		return nil
	})

	p.Process(context.Background(), newEvent("evt_1", subscriptionCreated, "sub_A", unix("2024-01-01T12:00:00Z")))

	entries := logs.FilterMessage("granting access").All()
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].ContextMap(), string(logging.TraceIDKey))
}
