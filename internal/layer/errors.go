package layer

import (
	"errors"
	"fmt"
	"strings"
)

// BuildFailedMessage is the only build failure detail a client ever sees.
const BuildFailedMessage = "Failed to generate Python layer"

var (
	ErrInvalidRecipeInput = errors.New("invalid recipe input")
	ErrArtifactRead       = errors.New("failed to read staged artifact")
)

// ValidationError carries every validation failure for a request.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// BuildError is returned when any step after validation fails. Err holds the
// internal cause for logs; Message is what the caller is allowed to see.
type BuildError struct {
	Step string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed at %s: %v", e.Step, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Message returns the client-facing description of the failure.
func (e *BuildError) Message() string {
	return BuildFailedMessage
}
