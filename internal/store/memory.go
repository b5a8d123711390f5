package store

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps the most recent builds in process memory. It is used
// when no database is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	builds []Build
	max    int
}

// NewMemoryStore creates a store that retains at most max builds.
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 1000
	}
	return &MemoryStore{max: max}
}

func (m *MemoryStore) RecordBuild(ctx context.Context, build *Build) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := *build
	b.Packages = slices.Clone(build.Packages)
	m.builds = append(m.builds, b)
	if over := len(m.builds) - m.max; over > 0 {
		m.builds = slices.Delete(m.builds, 0, over)
	}
	return nil
}

func (m *MemoryStore) ListBuilds(ctx context.Context, limit, offset int) ([]Build, error) {
	limit, offset = ClampPage(limit, offset)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Build, 0, limit)
	for i := len(m.builds) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.builds[i])
	}
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
