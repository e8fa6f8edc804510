package telemetry

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerProvider is a trace.TracerProvider that flushes pending spans on Close.
type TracerProvider interface {
	trace.TracerProvider

	Close(context.Context) error
	RegisterSpanProcessor(sdktrace.SpanProcessor)
}

type tracerProvider struct {
	embedded.TracerProvider

	tp *sdktrace.TracerProvider
}

func (t *tracerProvider) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	return t.tp.Tracer(name, options...)
}

func (t *tracerProvider) Close(ctx context.Context) error {
	if err := t.tp.ForceFlush(ctx); err != nil {
		return err
	}
	return t.tp.Shutdown(ctx)
}

func (t *tracerProvider) RegisterSpanProcessor(spanProcessor sdktrace.SpanProcessor) {
	t.tp.RegisterSpanProcessor(spanProcessor)
}

type noopTracerProvider struct {
	noop.TracerProvider
}

func (noopTracerProvider) Close(context.Context) error {
	return nil
}

func (noopTracerProvider) RegisterSpanProcessor(sdktrace.SpanProcessor) {}

// Noop returns a TracerProvider that records nothing, for when tracing is disabled.
func Noop() TracerProvider {
	return noopTracerProvider{TracerProvider: noop.NewTracerProvider()}
}
