package layer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Platform and ABI every layer is installed for.
const targetPlatform = "manylinux2014_x86_64"

var versionPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+$`)

// BuildSpec is the rendered recipe for one build, plus the identifiers of
// every resource the build will create. All identifiers derive from Token so
// that concurrent builds never share a path, tag or container.
type BuildSpec struct {
	Token          string
	RuntimeVersion string
	LayerName      string
	Recipe         string
}

// ImageTag is the tag of the build image.
func (s BuildSpec) ImageTag() string {
	return fmt.Sprintf("layerplane-python%s:%s", s.RuntimeVersion, s.Token)
}

// ContainerName is the name of the container created from the image.
func (s BuildSpec) ContainerName() string {
	return "layerplane-" + s.Token
}

// ArtifactPath is the in-container path of the archive the recipe produces.
func (s BuildSpec) ArtifactPath() string {
	return fmt.Sprintf("/python-layer-%s.zip", s.RuntimeVersion)
}

// SitePackages is the layer directory packages are installed into.
func SitePackages(runtimeVersion string) string {
	return fmt.Sprintf("/python/lib/python%s/site-packages/", runtimeVersion)
}

// Render turns a version and package list into a Dockerfile recipe.
//
// It performs no I/O. The install step uses the exec form with every argument
// JSON-encoded, so no package name can escape its argument or start a new
// instruction. Names that could still be abused (empty, option-like or with
// control characters) are rejected.
func Render(token, runtimeVersion, layerName string, packages []string) (BuildSpec, error) {
	if token == "" {
		return BuildSpec{}, fmt.Errorf("%w: empty build token", ErrInvalidRecipeInput)
	}
	if !versionPattern.MatchString(runtimeVersion) {
		return BuildSpec{}, fmt.Errorf("%w: runtime version %q", ErrInvalidRecipeInput, runtimeVersion)
	}
	if len(packages) == 0 {
		return BuildSpec{}, fmt.Errorf("%w: no packages", ErrInvalidRecipeInput)
	}
	for _, p := range packages {
		if p == "" || strings.HasPrefix(p, "-") || strings.ContainsFunc(p, unicode.IsControl) {
			return BuildSpec{}, fmt.Errorf("%w: package name %q", ErrInvalidRecipeInput, p)
		}
	}

	site := SitePackages(runtimeVersion)

	args := []string{"pip", "install", "--no-cache-dir"}
	args = append(args, packages...)
	args = append(args,
		"--platform", targetPlatform,
		"--only-binary=:all:",
		"--upgrade",
		"-t", site,
	)
	var install bytes.Buffer
	enc := json.NewEncoder(&install)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(args); err != nil {
		return BuildSpec{}, fmt.Errorf("%w: %v", ErrInvalidRecipeInput, err)
	}

	spec := BuildSpec{
		Token:          token,
		RuntimeVersion: runtimeVersion,
		LayerName:      layerName,
	}

	var b strings.Builder
	fmt.Fprintf(&b, "FROM python:%s-slim\n\n", runtimeVersion)
	b.WriteString("RUN apt-get update && apt-get upgrade -y \\\n    && apt-get install -y zip\n\n")
	b.WriteString("RUN pip install --no-cache-dir --upgrade pip\n\n")
	fmt.Fprintf(&b, "RUN mkdir -p %s\n\n", site)
	fmt.Fprintf(&b, "RUN %s\n\n", bytes.TrimSpace(install.Bytes()))
	b.WriteString("WORKDIR /\n")
	fmt.Fprintf(&b, "RUN zip -r %s python\n\n", spec.ArtifactPath())
	b.WriteString("CMD [\"/bin/bash\"]\n")

	spec.Recipe = b.String()
	return spec, nil
}
