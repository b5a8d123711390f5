package builder

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
)

// ErrArtifactMissing is returned when the copied tar stream holds no regular file.
var ErrArtifactMissing = errors.New("artifact not found in container")

// tailSize bounds how much build output is kept for error reports.
const tailSize = 4 << 10

// DockerEnvironment implements Environment using the Docker SDK.
type DockerEnvironment struct {
	client   *client.Client
	platform string
}

// NewDockerEnvironment creates a Docker-backed environment. An empty host uses
// the standard environment variables (DOCKER_HOST, etc.).
func NewDockerEnvironment(host, platform string) (*DockerEnvironment, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &DockerEnvironment{client: cli, platform: platform}, nil
}

// Close releases the underlying client.
func (d *DockerEnvironment) Close() error {
	return d.client.Close()
}

// BuildImage implements Environment.BuildImage.
func (d *DockerEnvironment) BuildImage(ctx context.Context, contextDir, tag string, labels map[string]string) error {
	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("failed to archive build context: %w", err)
	}
	defer buildCtx.Close()

	resp, err := d.client.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  RecipeFile,
		Labels:      labels,
		Remove:      true,
		ForceRemove: true,
		Platform:    d.platform,
	})
	if err != nil {
		return fmt.Errorf("failed to start image build: %w", err)
	}
	defer resp.Body.Close()

	// The engine reports build failures inside the stream with a 200 status.
	out := &tailBuffer{max: tailSize}
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, out, 0, false, nil); err != nil {
		return fmt.Errorf("image build failed: %w\n%s", err, out.String())
	}
	return nil
}

// CreateContainer implements Environment.CreateContainer.
func (d *DockerEnvironment) CreateContainer(ctx context.Context, img, name string, labels map[string]string) (string, error) {
	resp, err := d.client.ContainerCreate(ctx, &container.Config{
		Image:  img,
		Labels: labels,
	}, nil, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	return resp.ID, nil
}

// CopyFile implements Environment.CopyFile.
func (d *DockerEnvironment) CopyFile(ctx context.Context, containerID, srcPath string, dst io.Writer) error {
	rc, _, err := d.client.CopyFromContainer(ctx, containerID, srcPath)
	if err != nil {
		return fmt.Errorf("failed to copy %s from container: %w", srcPath, err)
	}
	defer rc.Close()

	return extractSingleFile(rc, dst)
}

// extractSingleFile writes the first regular file of a tar stream to dst.
func extractSingleFile(r io.Reader, dst io.Writer) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return ErrArtifactMissing
		}
		if err != nil {
			return fmt.Errorf("failed to read artifact stream: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if _, err := io.Copy(dst, tr); err != nil {
			return fmt.Errorf("failed to extract artifact: %w", err)
		}
		return nil
	}
}

// RemoveContainer implements Environment.RemoveContainer.
func (d *DockerEnvironment) RemoveContainer(ctx context.Context, ref string) error {
	err := d.client.ContainerRemove(ctx, ref, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", ref, err)
	}
	return nil
}

// RemoveImage implements Environment.RemoveImage.
func (d *DockerEnvironment) RemoveImage(ctx context.Context, ref string) error {
	_, err := d.client.ImageRemove(ctx, ref, image.RemoveOptions{
		Force:         true,
		PruneChildren: true,
	})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove image %s: %w", ref, err)
	}
	return nil
}

// Prune implements Environment.Prune.
func (d *DockerEnvironment) Prune(ctx context.Context) (int, error) {
	managed := filters.NewArgs(filters.Arg("label", LabelManagedBy+"="+ManagedByValue))

	containers, err := d.client.ContainerList(ctx, container.ListOptions{All: true, Filters: managed})
	if err != nil {
		return 0, fmt.Errorf("failed to list containers: %w", err)
	}

	removed := 0
	var errs []error
	for _, c := range containers {
		if err := d.RemoveContainer(ctx, c.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	images, err := d.client.ImageList(ctx, image.ListOptions{Filters: managed})
	if err != nil {
		return removed, errors.Join(append(errs, fmt.Errorf("failed to list images: %w", err))...)
	}
	for _, img := range images {
		if err := d.RemoveImage(ctx, img.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}

// Ping implements Environment.Ping.
func (d *DockerEnvironment) Ping(ctx context.Context) error {
	if _, err := d.client.Ping(ctx); err != nil {
		return fmt.Errorf("docker unreachable: %w", err)
	}
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}
