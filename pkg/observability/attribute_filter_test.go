package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/corpuscan/pkg/observability"
)

func spanAttrMap(span tracetest.SpanStub) map[string]any {
	out := make(map[string]any, len(span.Attributes))
	for _, kv := range span.Attributes {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}

	return out
}

func newFilteredProvider(logger *slog.Logger) (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	filter := observability.NewAttributeFilter(sdktrace.NewSimpleSpanProcessor(exporter), logger)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(filter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	return exporter, tp
}

func TestAttributeFilter_AllowsKnownKeys(t *testing.T) {
	t.Parallel()

	exporter, tp := newFilteredProvider(nil)

	_, span := tp.Tracer("test").Start(context.Background(), "corpuscan.file")
	span.SetAttributes(
		attribute.String("file.id", "c4-train.00000-of-01024"),
		attribute.Int("batch.seq", 3),
		attribute.String("error", "boom"),
	)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	attrs := spanAttrMap(spans[0])
	assert.Equal(t, "c4-train.00000-of-01024", attrs["file.id"])
	assert.Equal(t, int64(3), attrs["batch.seq"])
	assert.Equal(t, "boom", attrs["error"])
}

func TestAttributeFilter_BlocksRecordText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	exporter, tp := newFilteredProvider(slog.New(slog.NewTextHandler(&buf, nil)))

	_, span := tp.Tracer("test").Start(context.Background(), "corpuscan.batch")
	span.SetAttributes(
		attribute.String("text", "Call John at 555-123-4567"),
		attribute.String("record.payload", "secret"),
		attribute.String("email", "bob@example.com"),
		attribute.String("unknown", "x"),
		attribute.Int("batch.records", 10),
	)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	attrs := spanAttrMap(spans[0])
	assert.Equal(t, map[string]any{"batch.records": int64(10)}, attrs)
	assert.Contains(t, buf.String(), "attribute blocked by filter")
}
