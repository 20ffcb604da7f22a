package traverse

import (
	"errors"
	"fmt"
)

var (
	// ErrDependencyNotFound is returned by [ResolveDependency] when no
	// candidate matches the requested version and source.
	ErrDependencyNotFound = errors.New("no matching package")

	// ErrAmbiguousDependency is returned by [ResolveDependency] when more than
	// one candidate matches at the most specific level the dependency string states.
	ErrAmbiguousDependency = errors.New("multiple matching packages")

	// ErrInvalidDependency is returned for a blank dependency name.
	ErrInvalidDependency = errors.New("invalid dependency string")
)

// DependencySpec is a parsed dependency reference. Version and Source are
// empty when the reference does not qualify them.
type DependencySpec struct {
	Name    string
	Version string
	Source  string
}

// String renders s in Cargo.lock dependency string form.
func (s DependencySpec) String() string {
	out := s.Name
	if s.Version != "" {
		out += " " + s.Version
	}
	if s.Source != "" {
		out += " (" + s.Source + ")"
	}
	return out
}

// PackageRef identifies a candidate package. An empty Source marks a local
// package.
type PackageRef struct {
	Name    string
	Version string
	Source  string
}

// IsLocal reports whether the package has no external source.
func (p PackageRef) IsLocal() bool { return p.Source == "" }

// ResolveDependency returns the index of the single candidate matching spec.
//
// Candidates are filtered by name, then by version when the dependency states one,
// then by source when the dependency states one. Zero matches yield
// ErrDependencyNotFound and more than one yields ErrAmbiguousDependency; both
// are wrapped with the dependency string for context.
func ResolveDependency(spec DependencySpec, candidates []PackageRef) (int, error) {
	if spec.Name == "" {
		return -1, ErrInvalidDependency
	}

	match := -1
	for i, c := range candidates {
		if c.Name != spec.Name {
			continue
		}
		if spec.Version != "" && c.Version != spec.Version {
			continue
		}
		if spec.Source != "" && c.Source != spec.Source {
			continue
		}
		if match >= 0 {
			return -1, fmt.Errorf("%w for %q", ErrAmbiguousDependency, spec)
		}
		match = i
	}
	if match < 0 {
		return -1, fmt.Errorf("%w for %q", ErrDependencyNotFound, spec)
	}
	return match, nil
}
