// Package store contains the build history layer for layerplane.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Build records the outcome of one layer build.
type Build struct {
	ID             uuid.UUID
	LayerName      string
	RuntimeVersion string
	Packages       []string
	Status         BuildStatus
	Error          string // Internal cause, empty on success
	ArtifactSize   int
	ObjectKey      string // Set when the artifact was published
	StartedAt      time.Time
	CompletedAt    time.Time
}

// BuildStatus represents the final state of a build.
type BuildStatus string

const (
	BuildStatusSucceeded BuildStatus = "succeeded"
	BuildStatusFailed    BuildStatus = "failed"
)
