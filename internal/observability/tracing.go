package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type tracerConfig struct {
	version     string
	sampleRatio float64
}

// TracerOption configures InitTracer.
type TracerOption func(*tracerConfig)

// WithServiceVersion tags every span with the build version of the binary.
func WithServiceVersion(v string) TracerOption {
	return func(c *tracerConfig) { c.version = v }
}

// WithSampleRatio samples the given fraction of new traces. Child spans
// follow their parent's decision.
func WithSampleRatio(r float64) TracerOption {
	return func(c *tracerConfig) { c.sampleRatio = r }
}

// InitTracer initializes the global trace provider exporting to an OTLP gRPC
// collector. With an empty collectorAddr only the propagator is installed.
// It returns a shutdown function that should be called on app exit.
func InitTracer(ctx context.Context, serviceName, collectorAddr string, opts ...TracerOption) (func(context.Context) error, error) {
	cfg := tracerConfig{sampleRatio: 1}
	for _, opt := range opts {
		opt(&cfg)
	}

	// Incoming traceparent headers are honoured even without a collector
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	)
	if collectorAddr == "" {
		return func(context.Context) error { return nil }, nil
	}

	// Create OTLP Exporter; the gRPC connection is established lazily
	exporter, err := otlptracegrpc.New(
		ctx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(collectorAddr),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := newResource(ctx, serviceName, cfg.version)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.sampleRatio)),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// newResource describes this process: service name and version plus the
// host it builds on, which tells apart several build servers.
func newResource(ctx context.Context, serviceName, version string) (*resource.Resource, error) {
	attrs := resource.WithAttributes(semconv.ServiceName(serviceName))
	opts := []resource.Option{attrs, resource.WithHost()}
	if version != "" {
		opts = append(opts, resource.WithAttributes(semconv.ServiceVersion(version)))
	}
	return resource.New(ctx, opts...)
}

func newSampler(ratio float64) sdktrace.Sampler {
	if ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
