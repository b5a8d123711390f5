// Package layer contains the request model and the pure steps of the layer
// pipeline: validation, recipe rendering and artifact assembly.
package layer

import (
	"regexp"
	"slices"
)

// SupportedVersions lists the Python runtimes a layer can be built for.
var SupportedVersions = []string{"3.8", "3.9", "3.10", "3.11", "3.12"}

// Layer names and package names share the same identifier rule.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9]{1,16}$`)

// Request describes a single layer build.
type Request struct {
	RuntimeVersion string
	LayerName      string
	Packages       []string
}

// IsSupportedVersion reports whether v is one of SupportedVersions.
func IsSupportedVersion(v string) bool {
	return slices.Contains(SupportedVersions, v)
}

// ValidName reports whether s is a valid layer or package identifier.
func ValidName(s string) bool {
	return namePattern.MatchString(s)
}
