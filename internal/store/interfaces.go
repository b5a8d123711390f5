package store

import "context"

// Default and maximum page sizes for ListBuilds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// BuildStore handles the persistence of build history.
type BuildStore interface {
	// RecordBuild inserts a finished build.
	RecordBuild(ctx context.Context, build *Build) error

	// ListBuilds returns builds, most recent first.
	ListBuilds(ctx context.Context, limit, offset int) ([]Build, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

// ClampPage normalizes paging parameters.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
