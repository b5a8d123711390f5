// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import "time"

// Form fields of POST /generate_layer/.
const (
	FieldPythonVersion = "python_version"
	FieldLayerName     = "layer_name"
	FieldRequirements  = "requirements"
)

// ValidationErrorResponse is returned with 400 and lists every violation.
type ValidationErrorResponse struct {
	Detail []string `json:"detail"`
}

// ErrorResponse is returned for every other failure.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// VersionsResponse lists the supported Python runtimes.
type VersionsResponse struct {
	Versions []string `json:"versions"`
}

// BuildResponse represents a recorded build in API responses.
type BuildResponse struct {
	ID             string     `json:"id"`
	LayerName      string     `json:"layer_name"`
	RuntimeVersion string     `json:"python_version"`
	Packages       []string   `json:"requirements"`
	Status         string     `json:"status"`
	ArtifactSize   int        `json:"artifact_size"`
	ObjectKey      string     `json:"object_key,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// ListBuildsResponse is the response body of GET /builds.
type ListBuildsResponse struct {
	Builds []BuildResponse `json:"builds"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}
