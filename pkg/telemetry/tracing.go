// Package telemetry sets up OpenTelemetry tracing for the echotree server.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/echotree/echotree/internal/build"
)

type TracerOption func(d *CustomTracer)

func WithOTLPEndpoint(endpoint string) TracerOption {
	return func(d *CustomTracer) {
		d.endpoint = endpoint
	}
}

// WithOTLPTLS dials the collector over TLS with the system roots.
func WithOTLPTLS(enabled bool) TracerOption {
	return func(d *CustomTracer) {
		d.tls = enabled
	}
}

func WithServiceName(serviceName string) TracerOption {
	return func(d *CustomTracer) {
		d.serviceName = serviceName
	}
}

func WithSamplingRatio(samplingRatio float64) TracerOption {
	return func(d *CustomTracer) {
		d.samplingRatio = samplingRatio
	}
}

// WithExporter replaces the OTLP exporter.
func WithExporter(exporter sdktrace.SpanExporter) TracerOption {
	return func(d *CustomTracer) {
		d.exporter = exporter
	}
}

type CustomTracer struct {
	endpoint    string
	tls         bool
	serviceName string

	samplingRatio float64

	exporter sdktrace.SpanExporter
}

// NewTracerProvider builds a tracer provider exporting to an OTLP collector and installs it,
// along with W3C trace context propagation, as the global provider.
func NewTracerProvider(ctx context.Context, opts ...TracerOption) (TracerProvider, error) {
	tracer := &CustomTracer{
		serviceName: build.ProjectName,
	}

	for _, opt := range opts {
		opt(tracer)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceNameKey.String(tracer.serviceName),
			semconv.ServiceVersionKey.String(build.Version),
		))
	if err != nil {
		return nil, err
	}

	exp := tracer.exporter
	if exp == nil {
		exporterOpts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(tracer.endpoint),
			otlptracegrpc.WithDialOption(grpc.WithUserAgent(build.ProjectName + "/" + build.Version)),
		}
		if tracer.tls {
			exporterOpts = append(exporterOpts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
		} else {
			exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
		}

		exp, err = otlptracegrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to establish a connection with the otlp exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tracer.samplingRatio))),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exp)),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	otel.SetTracerProvider(tp)

	return &tracerProvider{tp: tp}, nil
}

// MustNewTracerProvider is NewTracerProvider that panics on error.
func MustNewTracerProvider(ctx context.Context, opts ...TracerOption) TracerProvider {
	tp, err := NewTracerProvider(ctx, opts...)
	if err != nil {
		panic(err)
	}
	return tp
}

func TraceError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
