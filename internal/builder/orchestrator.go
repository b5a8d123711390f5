package builder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"layerplane/internal/layer"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Build steps, reported in BuildError.Step.
const (
	StepWorkspace = "workspace"
	StepRecipe    = "recipe"
	StepImage     = "build_image"
	StepContainer = "create_container"
	StepCopy      = "copy_artifact"
	StepAssemble  = "assemble"
)

// Config holds configuration for the orchestrator.
type Config struct {
	WorkDir        string
	CleanupTimeout time.Duration // Budget for the finalization step (default: 2m)
}

// Handle records the resources a build has created so far. Every field is
// set before the corresponding resource may exist, so release never misses one.
type Handle struct {
	Workspace string
	Image     string
	Container string
}

// Orchestrator runs builds against an Environment.
type Orchestrator struct {
	env    Environment
	config Config
	logger *slog.Logger
}

// New creates a new orchestrator.
func New(env Environment, config Config, logger *slog.Logger) *Orchestrator {
	if config.CleanupTimeout <= 0 {
		config.CleanupTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{env: env, config: config, logger: logger}
}

// Build runs the full lifecycle for one spec and returns the assembled archive.
// Whatever happens, every resource created on the way is released before
// Build returns. Failures are returned as *layer.BuildError.
func (o *Orchestrator) Build(ctx context.Context, spec layer.BuildSpec) ([]byte, error) {
	tracer := otel.Tracer("builder")
	ctx, span := tracer.Start(ctx, "build_layer", trace.WithAttributes(
		attribute.String("build.token", spec.Token),
		attribute.String("build.runtime_version", spec.RuntimeVersion),
	))
	defer span.End()

	h := &Handle{}
	defer o.release(ctx, h)

	data, err := o.run(ctx, spec, h)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("build.artifact_size", len(data)))
	return data, nil
}

func (o *Orchestrator) run(ctx context.Context, spec layer.BuildSpec, h *Handle) ([]byte, error) {
	if err := os.MkdirAll(o.config.WorkDir, 0o755); err != nil {
		return nil, &layer.BuildError{Step: StepWorkspace, Err: err}
	}
	workspace := filepath.Join(o.config.WorkDir, spec.Token)
	if err := os.Mkdir(workspace, 0o700); err != nil {
		// Not ours: never record it for removal.
		return nil, &layer.BuildError{Step: StepWorkspace, Err: err}
	}
	h.Workspace = workspace

	if err := writeExclusive(filepath.Join(workspace, RecipeFile), []byte(spec.Recipe)); err != nil {
		return nil, &layer.BuildError{Step: StepRecipe, Err: err}
	}

	labels := BuildLabels(spec.Token)

	h.Image = spec.ImageTag()
	if err := o.env.BuildImage(ctx, workspace, h.Image, labels); err != nil {
		return nil, &layer.BuildError{Step: StepImage, Err: err}
	}

	h.Container = spec.ContainerName()
	id, err := o.env.CreateContainer(ctx, h.Image, h.Container, labels)
	if err != nil {
		return nil, &layer.BuildError{Step: StepContainer, Err: err}
	}
	h.Container = id

	staged := filepath.Join(workspace, spec.RuntimeVersion+".zip")
	if err := o.copyArtifact(ctx, id, spec.ArtifactPath(), staged); err != nil {
		return nil, &layer.BuildError{Step: StepCopy, Err: err}
	}

	data, err := layer.Assemble(staged, spec.LayerName)
	if err != nil {
		return nil, &layer.BuildError{Step: StepAssemble, Err: err}
	}
	return data, nil
}

func (o *Orchestrator) copyArtifact(ctx context.Context, containerID, src, dst string) error {
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if err := o.env.CopyFile(ctx, containerID, src, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeExclusive creates path and fails if it already exists.
func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// release is the single finalization point of a build. It runs detached from
// the caller's cancellation and only logs failures.
func (o *Orchestrator) release(ctx context.Context, h *Handle) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.CleanupTimeout)
	defer cancel()

	if h.Container != "" {
		if err := o.env.RemoveContainer(ctx, h.Container); err != nil {
			o.logger.Warn("failed to remove container", "container", h.Container, "error", err)
		}
	}
	if h.Image != "" {
		if err := o.env.RemoveImage(ctx, h.Image); err != nil {
			o.logger.Warn("failed to remove image", "image", h.Image, "error", err)
		}
	}
	if h.Workspace != "" {
		if err := os.RemoveAll(h.Workspace); err != nil {
			o.logger.Warn("failed to remove workspace", "workspace", h.Workspace, "error", err)
		}
	}
}

// Sweep removes leftovers of a previous process: labelled containers and
// images, and workspaces named after a build token.
func (o *Orchestrator) Sweep(ctx context.Context) (int, error) {
	removed, err := o.env.Prune(ctx)

	entries, readErr := os.ReadDir(o.config.WorkDir)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return removed, err
		}
		o.logger.Warn("failed to read work directory", "dir", o.config.WorkDir, "error", readErr)
		return removed, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, parseErr := uuid.Parse(e.Name()); parseErr != nil {
			continue
		}
		if rmErr := os.RemoveAll(filepath.Join(o.config.WorkDir, e.Name())); rmErr != nil {
			o.logger.Warn("failed to remove stale workspace", "workspace", e.Name(), "error", rmErr)
			continue
		}
		removed++
	}
	return removed, err
}

// Ping reports whether the build environment is reachable.
func (o *Orchestrator) Ping(ctx context.Context) error {
	return o.env.Ping(ctx)
}
