package handlers

import (
	"context"
	"errors"

	"layerplane/internal/layer"
	"layerplane/internal/store"
)

// mockGenerator implements LayerGenerator for testing.
type mockGenerator struct {
	artifact layer.Artifact
	err      error

	// Spy
	captured *layer.Request
}

func (m *mockGenerator) Generate(ctx context.Context, req layer.Request) (layer.Artifact, error) {
	m.captured = &req
	return m.artifact, m.err
}

// mockStore implements store.BuildStore for testing.
type mockStore struct {
	builds  []store.Build
	listErr error
	pingErr error

	capturedLimit  int
	capturedOffset int
}

func (m *mockStore) RecordBuild(ctx context.Context, b *store.Build) error {
	m.builds = append(m.builds, *b)
	return nil
}

func (m *mockStore) ListBuilds(ctx context.Context, limit, offset int) ([]store.Build, error) {
	m.capturedLimit = limit
	m.capturedOffset = offset
	return m.builds, m.listErr
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.pingErr
}

// mockPinger stands in for the Docker daemon.
type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}

var errBoom = errors.New("boom")
