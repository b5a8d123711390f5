// Package builder drives the lifecycle of an isolated build environment:
// build an image from a recipe, create a container from it, copy the layer
// archive out and destroy everything that was created.
package builder

import (
	"context"
	"io"
)

// RecipeFile is the name of the recipe written into each workspace.
const RecipeFile = "Dockerfile"

// Labels attached to every image and container a build creates.
const (
	LabelManagedBy  = "layerplane.managed-by"
	LabelBuildToken = "layerplane.build-token"
	ManagedByValue  = "layerplane"
)

// Environment defines the primitives of a build environment.
// Implementations include Docker; tests use an in-memory fake.
type Environment interface {
	// BuildImage builds contextDir/RecipeFile and tags the result. It returns
	// an error if the build output reports one.
	BuildImage(ctx context.Context, contextDir, tag string, labels map[string]string) error

	// CreateContainer creates (but does not start) a named container.
	CreateContainer(ctx context.Context, image, name string, labels map[string]string) (string, error)

	// CopyFile streams the regular file at srcPath inside the container to dst.
	CopyFile(ctx context.Context, containerID, srcPath string, dst io.Writer) error

	// RemoveContainer force-removes a container. A missing container is not an error.
	RemoveContainer(ctx context.Context, ref string) error

	// RemoveImage force-removes an image. A missing image is not an error.
	RemoveImage(ctx context.Context, ref string) error

	// Prune removes every container and image carrying the managed-by label
	// and returns how many were removed.
	Prune(ctx context.Context) (int, error)

	// Ping checks that the environment is reachable.
	Ping(ctx context.Context) error
}

// BuildLabels returns the labels for resources created by the given build.
func BuildLabels(token string) map[string]string {
	return map[string]string{
		LabelManagedBy:  ManagedByValue,
		LabelBuildToken: token,
	}
}
