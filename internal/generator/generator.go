// Package generator runs the layer pipeline end to end: validate, render,
// build, then publish and record the outcome.
package generator

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"layerplane/internal/layer"
	"layerplane/internal/logger"
	"layerplane/internal/objectstore"
	"layerplane/internal/observability"
	"layerplane/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// Steps owned by the pipeline itself; the builder reports its own.
const (
	StepRender = "render"
	StepQueue  = "queue"
	StepBuild  = "build"
)

// Validator checks a request before any build resource is allocated.
type Validator interface {
	Validate(ctx context.Context, req layer.Request) layer.Result
}

// Builder turns a rendered spec into the final archive.
type Builder interface {
	Build(ctx context.Context, spec layer.BuildSpec) ([]byte, error)
}

// Publisher uploads a finished archive and returns its object key.
type Publisher interface {
	Publish(ctx context.Context, key string, data []byte) (string, error)
}

// Recorder persists the outcome of a build.
type Recorder interface {
	RecordBuild(ctx context.Context, build *store.Build) error
}

// Config holds configuration for the pipeline.
type Config struct {
	BuildTimeout  time.Duration // Budget for one build (default: 15m)
	MaxConcurrent int           // Simultaneous builds (default: 2)
}

// Generator runs the layer pipeline.
type Generator struct {
	validator Validator
	builder   Builder
	publisher Publisher
	recorder  Recorder
	metrics   *observability.BuildMetrics
	sem       *semaphore.Weighted
	inFlight  atomic.Int64
	config    Config
	logger    *slog.Logger
}

// Option configures optional pipeline stages.
type Option func(*Generator)

// WithPublisher uploads every successful artifact.
func WithPublisher(p Publisher) Option {
	return func(g *Generator) { g.publisher = p }
}

// WithRecorder records every build outcome.
func WithRecorder(r Recorder) Option {
	return func(g *Generator) { g.recorder = r }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *observability.BuildMetrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// New creates a new generator.
func New(v Validator, b Builder, config Config, log *slog.Logger, opts ...Option) *Generator {
	if config.BuildTimeout <= 0 {
		config.BuildTimeout = 15 * time.Minute
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 2
	}
	if log == nil {
		log = slog.Default()
	}

	g := &Generator{
		validator: v,
		builder:   b,
		config:    config,
		logger:    log,
		sem:       semaphore.NewWeighted(int64(config.MaxConcurrent)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate validates req and, if valid, builds the layer archive.
//
// Validation failures are returned as *layer.ValidationError; every later
// failure as *layer.BuildError. Once a build has started it runs to
// completion even if ctx is cancelled, so its resources are always released.
func (g *Generator) Generate(ctx context.Context, req layer.Request) (layer.Artifact, error) {
	tracer := otel.Tracer("generator")
	ctx, span := tracer.Start(ctx, "generate_layer", trace.WithAttributes(
		attribute.String("layer.name", req.LayerName),
		attribute.String("layer.runtime_version", req.RuntimeVersion),
		attribute.Int("layer.packages", len(req.Packages)),
	))
	defer span.End()

	log := logger.FromContext(ctx, g.logger)

	_, vspan := tracer.Start(ctx, "validate")
	res := g.validator.Validate(ctx, req)
	vspan.End()
	if !res.OK {
		if g.metrics != nil {
			g.metrics.ValidationFailures.Add(ctx, 1)
		}
		log.Info("layer request rejected", "layer", req.LayerName, "errors", res.Errors)
		span.SetStatus(codes.Error, "validation failed")
		return layer.Artifact{}, &layer.ValidationError{Errors: res.Errors}
	}

	token := uuid.NewString()
	span.SetAttributes(attribute.String("build.token", token))
	log = log.With("build_token", token, "layer", req.LayerName)

	spec, err := layer.Render(token, req.RuntimeVersion, req.LayerName, req.Packages)
	if err != nil {
		buildErr := &layer.BuildError{Step: StepRender, Err: err}
		log.Error("failed to render recipe", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return layer.Artifact{}, buildErr
	}

	// Nothing is allocated yet, so waiting for a slot stays cancellable.
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return layer.Artifact{}, &layer.BuildError{Step: StepQueue, Err: err}
	}
	defer g.sem.Release(1)
	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.config.BuildTimeout)
	defer cancel()

	record := &store.Build{
		ID:             uuid.MustParse(token),
		LayerName:      req.LayerName,
		RuntimeVersion: req.RuntimeVersion,
		Packages:       req.Packages,
		StartedAt:      time.Now().UTC(),
	}

	log.Info("building layer", "runtime_version", req.RuntimeVersion, "packages", req.Packages)
	data, err := g.builder.Build(buildCtx, spec)
	record.CompletedAt = time.Now().UTC()

	if err != nil {
		var buildErr *layer.BuildError
		if !errors.As(err, &buildErr) {
			buildErr = &layer.BuildError{Step: StepBuild, Err: err}
		}
		log.Error("layer build failed", "step", buildErr.Step, "error", buildErr.Err)
		span.RecordError(buildErr)
		span.SetStatus(codes.Error, "build failed")

		record.Status = store.BuildStatusFailed
		record.Error = buildErr.Error()
		g.finish(buildCtx, log, record)
		return layer.Artifact{}, buildErr
	}

	artifact := layer.Artifact{
		Filename: layer.Filename(req.LayerName),
		Data:     data,
	}
	record.Status = store.BuildStatusSucceeded
	record.ArtifactSize = len(data)

	if g.publisher != nil {
		key, err := g.publisher.Publish(buildCtx, objectstore.ObjectKey(token, artifact.Filename), data)
		if err != nil {
			log.Warn("failed to publish artifact", "error", err)
		} else {
			record.ObjectKey = key
		}
	}

	g.finish(buildCtx, log, record)
	log.Info("layer built", "size", len(data), "duration", record.CompletedAt.Sub(record.StartedAt).String())
	return artifact, nil
}

// InFlight returns the number of builds currently running.
func (g *Generator) InFlight() int64 {
	return g.inFlight.Load()
}

// finish records the outcome. Neither step can fail the request.
func (g *Generator) finish(ctx context.Context, log *slog.Logger, record *store.Build) {
	if g.metrics != nil {
		status := metric.WithAttributes(attribute.String("status", string(record.Status)))
		g.metrics.Builds.Add(ctx, 1, status)
		g.metrics.Duration.Record(ctx, record.CompletedAt.Sub(record.StartedAt).Seconds(), status)
	}
	if g.recorder != nil {
		if err := g.recorder.RecordBuild(ctx, record); err != nil {
			log.Warn("failed to record build", "error", err)
		}
	}
}
