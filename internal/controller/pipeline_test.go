package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"testing"

	"layerplane/internal/builder"
	"layerplane/internal/generator"
	"layerplane/internal/layer"
	"layerplane/internal/registry"
	"layerplane/pkg/api"

	"github.com/klauspost/compress/zip"
)

type everyPackageExists struct{}

func (everyPackageExists) Lookup(ctx context.Context, name string) registry.Existence {
	return registry.Exists
}

// fakeEnvironment keeps images and containers in memory.
type fakeEnvironment struct {
	mu         sync.Mutex
	images     map[string]bool
	containers map[string]bool
	failBuild  bool
}

func newFakeEnvironment() *fakeEnvironment {
	return &fakeEnvironment{images: map[string]bool{}, containers: map[string]bool{}}
}

func (e *fakeEnvironment) BuildImage(ctx context.Context, contextDir, tag string, labels map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failBuild {
		return errors.New("pip install failed")
	}
	e.images[tag] = true
	return nil
}

func (e *fakeEnvironment) CreateContainer(ctx context.Context, image, name string, labels map[string]string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.containers[name] = true
	return name, nil
}

func (e *fakeEnvironment) CopyFile(ctx context.Context, containerID, srcPath string, dst io.Writer) error {
	_, err := dst.Write([]byte("python-site-packages"))
	return err
}

func (e *fakeEnvironment) RemoveContainer(ctx context.Context, ref string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.containers, ref)
	return nil
}

func (e *fakeEnvironment) RemoveImage(ctx context.Context, ref string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.images, ref)
	return nil
}

func (e *fakeEnvironment) Prune(ctx context.Context) (int, error) { return 0, nil }

func (e *fakeEnvironment) Ping(ctx context.Context) error { return nil }

func (e *fakeEnvironment) live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.images) + len(e.containers)
}

func TestGenerateLayer_FullPipeline(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		failBuild  bool
		wantStatus int
		wantDetail string
	}{
		{
			name:       "success",
			form:       url.Values{"python_version": {"3.11"}, "layer_name": {"MyLayer1"}, "requirements": {"requests"}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "unsupported version",
			form:       url.Values{"python_version": {"2.7"}, "layer_name": {"MyLayer1"}, "requirements": {"requests"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "name too long",
			form:       url.Values{"python_version": {"3.11"}, "layer_name": {"ThisNameIsTooLong1"}, "requirements": {"requests"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "image build fails",
			form:       url.Values{"python_version": {"3.11"}, "layer_name": {"MyLayer1"}, "requirements": {"requests"}},
			failBuild:  true,
			wantStatus: http.StatusInternalServerError,
			wantDetail: layer.BuildFailedMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newFakeEnvironment()
			env.failBuild = tt.failBuild
			workDir := t.TempDir()

			orch := builder.New(env, builder.Config{WorkDir: workDir}, nil)
			gen := generator.New(layer.NewValidator(everyPackageExists{}), orch, generator.Config{}, nil)
			srv := newServerWith(t, gen, orch)

			resp, err := http.PostForm(srv.URL+"/generate_layer/", tt.form)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("got %d, want %d (body %s)", resp.StatusCode, tt.wantStatus, body)
			}

			switch tt.wantStatus {
			case http.StatusOK:
				zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
				if err != nil {
					t.Fatalf("response is not a zip archive: %v", err)
				}
				if len(zr.File) != 1 || zr.File[0].Name != "MyLayer1.zip" {
					names := make([]string, 0, len(zr.File))
					for _, f := range zr.File {
						names = append(names, f.Name)
					}
					t.Errorf("archive entries = %v, want [MyLayer1.zip]", names)
				}
			case http.StatusBadRequest:
				var verr api.ValidationErrorResponse
				if err := json.Unmarshal(body, &verr); err != nil || len(verr.Detail) == 0 {
					t.Errorf("expected a list of violations, got %s", body)
				}
			case http.StatusInternalServerError:
				var herr api.ErrorResponse
				if err := json.Unmarshal(body, &herr); err != nil {
					t.Fatalf("decode error body: %v", err)
				}
				if herr.Detail != tt.wantDetail {
					t.Errorf("detail = %q, want %q", herr.Detail, tt.wantDetail)
				}
			}

			if n := env.live(); n != 0 {
				t.Errorf("%d images or containers left behind", n)
			}
			entries, err := os.ReadDir(workDir)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 0 {
				t.Errorf("workdir not empty: %d entries left", len(entries))
			}
		})
	}
}
