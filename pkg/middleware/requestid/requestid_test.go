package requestid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestHandlerSetsULID(t *testing.T) {
	var seen string
	h := Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		require.True(t, ok)
		seen = id
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/echo_tree", nil))

	header := rec.Header().Get(RequestIDHeader)
	require.Equal(t, seen, header)
	_, err := ulid.Parse(header)
	require.NoError(t, err)
}

func TestHandlerUsesTraceID(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "request")
	h := Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/echo_tree", nil).WithContext(ctx))
	span.End()

	traceID := span.SpanContext().TraceID().String()
	require.Equal(t, traceID, rec.Header().Get(RequestIDHeader))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Contains(t, spans[0].Attributes, attribute.String(requestIDTraceKey, traceID))
}

func TestFromContextWithoutHandler(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)
}
