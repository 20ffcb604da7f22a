package component

import "slices"

// DetectedComponent is the aggregate view of one component across every
// location it was recorded in.
type DetectedComponent struct {
	Component Component

	// FilePaths is the sorted set of manifest locations (and their related
	// files) that reference the component.
	FilePaths []string

	// DevelopmentDependency is nil when no location stated a dev flag, false
	// when any location uses the component outside development, and true
	// only when every location that stated a value marked it dev.
	DevelopmentDependency *bool

	// DependencyScope is the broadest scope seen across locations.
	DependencyScope Scope

	// TargetFrameworks lists the frameworks the component was resolved for.
	TargetFrameworks []string

	// DependencyRoots holds the ids of explicit components whose dependency
	// closure contains this component, including itself when explicit.
	DependencyRoots []string
}

// NewDetectedComponent returns a DetectedComponent with no locations.
func NewDetectedComponent(c Component) *DetectedComponent {
	return &DetectedComponent{Component: c}
}

// ID returns the id of the underlying component.
func (d *DetectedComponent) ID() string { return d.Component.ID() }

// IsDev reports whether the component is known to be dev-only.
func (d *DetectedComponent) IsDev() bool {
	return d.DevelopmentDependency != nil && *d.DevelopmentDependency
}

// AddFilePath records a location, keeping FilePaths sorted and unique.
func (d *DetectedComponent) AddFilePath(path string) {
	d.FilePaths = insertSorted(d.FilePaths, path)
}

// AddTargetFramework records a target framework, keeping the list sorted and unique.
func (d *DetectedComponent) AddTargetFramework(tfm string) {
	if tfm == "" {
		return
	}
	d.TargetFrameworks = insertSorted(d.TargetFrameworks, tfm)
}

// AddDependencyRoot records an explicit root id.
func (d *DetectedComponent) AddDependencyRoot(id string) {
	d.DependencyRoots = insertSorted(d.DependencyRoots, id)
}

func insertSorted(s []string, v string) []string {
	i, found := slices.BinarySearch(s, v)
	if found {
		return s
	}
	return slices.Insert(s, i, v)
}
