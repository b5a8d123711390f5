// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// BuildMetrics holds the instruments recorded by the generator pipeline.
type BuildMetrics struct {
	// Builds counts finished builds by status (succeeded, failed).
	Builds metric.Int64Counter
	// Duration records build wall time in seconds.
	Duration metric.Float64Histogram
	// ValidationFailures counts rejected requests.
	ValidationFailures metric.Int64Counter
}

// NewBuildMetrics creates the pipeline instruments on the given meter.
func NewBuildMetrics(meter metric.Meter) (*BuildMetrics, error) {
	builds, err := meter.Int64Counter("layerplane.builds",
		metric.WithDescription("Number of finished layer builds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create builds counter: %w", err)
	}

	duration, err := meter.Float64Histogram("layerplane.build.duration",
		metric.WithDescription("Duration of layer builds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(5, 15, 30, 60, 120, 300, 600, 900),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	failures, err := meter.Int64Counter("layerplane.validation.failures",
		metric.WithDescription("Number of requests rejected by validation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation counter: %w", err)
	}

	return &BuildMetrics{
		Builds:             builds,
		Duration:           duration,
		ValidationFailures: failures,
	}, nil
}
