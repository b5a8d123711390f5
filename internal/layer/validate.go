package layer

import (
	"context"
	"fmt"

	"layerplane/internal/registry"

	"golang.org/x/sync/errgroup"
)

// Oracle answers whether a package exists on the package index.
type Oracle interface {
	Lookup(ctx context.Context, name string) registry.Existence
}

// UnknownPolicy decides what happens to a package whose existence could not
// be determined.
type UnknownPolicy string

const (
	// RejectUnknown treats an unanswered lookup as "does not exist".
	RejectUnknown UnknownPolicy = "reject"
	// AllowUnknown lets the package through to the build.
	AllowUnknown UnknownPolicy = "allow"
)

// Result is the outcome of validating a Request. OK is true iff Errors is empty.
type Result struct {
	OK     bool
	Errors []string
}

// Validator checks a Request before any build resource is allocated.
type Validator struct {
	oracle      Oracle
	concurrency int
	policy      UnknownPolicy
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithConcurrency bounds the number of simultaneous oracle lookups.
func WithConcurrency(n int) ValidatorOption {
	return func(v *Validator) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// WithUnknownPolicy sets how Unknown lookups are treated.
func WithUnknownPolicy(p UnknownPolicy) ValidatorOption {
	return func(v *Validator) {
		if p != "" {
			v.policy = p
		}
	}
}

// NewValidator creates a Validator backed by the given oracle.
func NewValidator(oracle Oracle, opts ...ValidatorOption) *Validator {
	v := &Validator{
		oracle:      oracle,
		concurrency: 4,
		policy:      RejectUnknown,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate evaluates every rule and reports all violations in one pass.
// Errors are ordered: layer name, packages (input order), runtime version.
func (v *Validator) Validate(ctx context.Context, req Request) Result {
	var errs []string

	if !ValidName(req.LayerName) {
		errs = append(errs, fmt.Sprintf("Invalid '%s' Layer name.", req.LayerName))
	}

	if len(req.Packages) == 0 {
		errs = append(errs, "At least one package is required.")
	}
	errs = append(errs, v.checkPackages(ctx, req.Packages)...)

	if !IsSupportedVersion(req.RuntimeVersion) {
		errs = append(errs, fmt.Sprintf("Python version '%s' is not supported.", req.RuntimeVersion))
	}

	return Result{OK: len(errs) == 0, Errors: errs}
}

// checkPackages looks up every well-formed package concurrently and returns
// the package errors in input order.
func (v *Validator) checkPackages(ctx context.Context, packages []string) []string {
	found := make([]registry.Existence, len(packages))

	var g errgroup.Group
	g.SetLimit(v.concurrency)
	for i, name := range packages {
		if !ValidName(name) {
			continue
		}
		g.Go(func() error {
			found[i] = v.oracle.Lookup(ctx, name)
			return nil
		})
	}
	g.Wait()

	var errs []string
	for i, name := range packages {
		if !ValidName(name) {
			errs = append(errs, fmt.Sprintf("Invalid '%s' package name.", name))
			continue
		}

		switch found[i] {
		case registry.Exists:
		case registry.Unknown:
			if v.policy == AllowUnknown {
				continue
			}
			errs = append(errs, fmt.Sprintf("Package '%s' does not exist.", name))
		default:
			errs = append(errs, fmt.Sprintf("Package '%s' does not exist.", name))
		}
	}
	return errs
}
