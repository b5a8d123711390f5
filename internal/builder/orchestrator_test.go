package builder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"layerplane/internal/layer"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
)

// MockEnvironment implements Environment in memory and can fail at any step.
type MockEnvironment struct {
	mu sync.Mutex

	// FailAt names the step that returns an error.
	FailAt string
	// Artifact is the content returned by CopyFile.
	Artifact []byte
	// RecipeSeen holds the recipe found in the build context.
	RecipeSeen string

	images     map[string]bool
	containers map[string]string // id -> name

	RemoveContainerCalls []string
	RemoveImageCalls     []string
}

func NewMockEnvironment() *MockEnvironment {
	return &MockEnvironment{
		Artifact:   []byte("inner layer archive"),
		images:     make(map[string]bool),
		containers: make(map[string]string),
	}
}

func (m *MockEnvironment) BuildImage(ctx context.Context, contextDir, tag string, labels map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	recipe, err := os.ReadFile(filepath.Join(contextDir, RecipeFile))
	if err != nil {
		return err
	}
	m.RecipeSeen = string(recipe)
	if m.FailAt == StepImage {
		// A failed build can still leave a tagged image behind.
		m.images[tag] = true
		return errors.New("pip install returned a non-zero code: 1")
	}
	m.images[tag] = true
	return nil
}

func (m *MockEnvironment) CreateContainer(ctx context.Context, image, name string, labels map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAt == StepContainer {
		return "", errors.New("conflict: container name in use")
	}
	id := "id-" + name
	m.containers[id] = name
	return id, nil
}

func (m *MockEnvironment) CopyFile(ctx context.Context, containerID, srcPath string, dst io.Writer) error {
	if m.FailAt == StepCopy {
		return ErrArtifactMissing
	}
	if m.FailAt == StepAssemble {
		// Report success but leave nothing staged to assemble.
		if f, ok := dst.(*os.File); ok {
			return os.Remove(f.Name())
		}
	}
	_, err := dst.Write(m.Artifact)
	return err
}

func (m *MockEnvironment) RemoveContainer(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveContainerCalls = append(m.RemoveContainerCalls, ref)
	for id, name := range m.containers {
		if id == ref || name == ref {
			delete(m.containers, id)
		}
	}
	return nil
}

func (m *MockEnvironment) RemoveImage(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveImageCalls = append(m.RemoveImageCalls, ref)
	delete(m.images, ref)
	return nil
}

func (m *MockEnvironment) Prune(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.images) + len(m.containers)
	m.images = make(map[string]bool)
	m.containers = make(map[string]string)
	return n, nil
}

func (m *MockEnvironment) Ping(ctx context.Context) error {
	return nil
}

func (m *MockEnvironment) live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.images) + len(m.containers)
}

func renderSpec(t *testing.T) layer.BuildSpec {
	t.Helper()
	spec, err := layer.Render(uuid.NewString(), "3.11", "MyLayer", []string{"requests"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	return spec
}

func assertNoResidue(t *testing.T, env *MockEnvironment, workDir string) {
	t.Helper()
	if n := env.live(); n != 0 {
		t.Errorf("expected no live images or containers, got %d", n)
	}
	entries, err := os.ReadDir(workDir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty work dir, found %d entries", len(entries))
	}
}

func TestBuild_Success(t *testing.T) {
	env := NewMockEnvironment()
	workDir := t.TempDir()
	o := New(env, Config{WorkDir: workDir}, nil)
	spec := renderSpec(t)

	data, err := o.Build(context.Background(), spec)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("result is not a zip: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "MyLayer.zip" {
		t.Errorf("unexpected archive entries: %v", zr.File)
	}
	if env.RecipeSeen != spec.Recipe {
		t.Error("build context did not contain the rendered recipe")
	}

	assertNoResidue(t, env, workDir)
}

func TestBuild_FailureAtEveryStepReleasesEverything(t *testing.T) {
	for _, step := range []string{StepImage, StepContainer, StepCopy, StepAssemble} {
		t.Run(step, func(t *testing.T) {
			env := NewMockEnvironment()
			env.FailAt = step
			workDir := t.TempDir()
			o := New(env, Config{WorkDir: workDir}, nil)

			data, err := o.Build(context.Background(), renderSpec(t))

			var buildErr *layer.BuildError
			if !errors.As(err, &buildErr) {
				t.Fatalf("err = %v, want *layer.BuildError", err)
			}
			if buildErr.Step != step {
				t.Errorf("Step = %q, want %q", buildErr.Step, step)
			}
			if buildErr.Message() != layer.BuildFailedMessage {
				t.Errorf("Message() = %q", buildErr.Message())
			}
			if data != nil {
				t.Error("expected no data on failure")
			}

			assertNoResidue(t, env, workDir)
		})
	}
}

func TestBuild_EmptyArtifactStillAssembles(t *testing.T) {
	env := NewMockEnvironment()
	env.Artifact = nil
	workDir := t.TempDir()
	o := New(env, Config{WorkDir: workDir}, nil)

	if _, err := o.Build(context.Background(), renderSpec(t)); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	assertNoResidue(t, env, workDir)
}

func TestBuild_ExistingWorkspaceIsNotRemoved(t *testing.T) {
	env := NewMockEnvironment()
	workDir := t.TempDir()
	o := New(env, Config{WorkDir: workDir}, nil)
	spec := renderSpec(t)

	foreign := filepath.Join(workDir, spec.Token)
	if err := os.Mkdir(foreign, 0o700); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(foreign, "keep")
	if err := os.WriteFile(marker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := o.Build(context.Background(), spec)

	var buildErr *layer.BuildError
	if !errors.As(err, &buildErr) || buildErr.Step != StepWorkspace {
		t.Fatalf("err = %v, want workspace BuildError", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("pre-existing workspace was touched: %v", err)
	}
	if len(env.RemoveImageCalls) != 0 || len(env.RemoveContainerCalls) != 0 {
		t.Error("release touched resources that were never created")
	}
}

func TestBuild_CancelledContextStillCleansUp(t *testing.T) {
	env := NewMockEnvironment()
	env.FailAt = StepCopy
	workDir := t.TempDir()
	o := New(env, Config{WorkDir: workDir}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := o.Build(ctx, renderSpec(t)); err == nil {
		t.Fatal("expected failure")
	}
	assertNoResidue(t, env, workDir)
}

func TestBuild_SequentialBuildsAreIndependent(t *testing.T) {
	env := NewMockEnvironment()
	workDir := t.TempDir()
	o := New(env, Config{WorkDir: workDir}, nil)

	first, second := renderSpec(t), renderSpec(t)
	if _, err := o.Build(context.Background(), first); err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	if _, err := o.Build(context.Background(), second); err != nil {
		t.Fatalf("second build failed: %v", err)
	}

	if first.ImageTag() == second.ImageTag() {
		t.Error("builds shared an image tag")
	}
	assertNoResidue(t, env, workDir)
}

func TestSweep(t *testing.T) {
	env := NewMockEnvironment()
	env.images["layerplane-python3.9:old"] = true
	workDir := t.TempDir()

	stale := filepath.Join(workDir, uuid.NewString())
	if err := os.Mkdir(stale, 0o700); err != nil {
		t.Fatal(err)
	}
	other := filepath.Join(workDir, "not-a-build")
	if err := os.Mkdir(other, 0o700); err != nil {
		t.Fatal(err)
	}

	o := New(env, Config{WorkDir: workDir}, nil)
	removed, err := o.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale workspace was not removed")
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("unrelated directory was removed")
	}
}
