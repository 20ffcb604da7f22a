package recorder

import (
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/component"
)

// Option configures a ComponentRecorder.
type Option func(*ComponentRecorder)

// WithLogger sets the logger used for registration diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(r *ComponentRecorder) {
		if l != nil {
			r.logger = l
		}
	}
}

func discardLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

// usage holds the attributes of a single RegisterUsage call.
type usage struct {
	explicit        bool
	parent          string
	dev             *bool
	scope           component.Scope
	targetFramework string
}

// UsageOption sets one attribute of a component usage.
type UsageOption func(*usage)

// Explicit marks the component as declared directly by the manifest's owner.
func Explicit(explicit bool) UsageOption {
	return func(u *usage) { u.explicit = u.explicit || explicit }
}

// Parent records an edge from the given component id to the registered
// component. The edge is dropped when the parent is not tracked.
func Parent(id string) UsageOption {
	return func(u *usage) { u.parent = id }
}

// Dev states whether the usage is development-only.
func Dev(dev bool) UsageOption {
	return func(u *usage) { u.dev = &dev }
}

// DevPtr states the dev flag when dev is non-nil and leaves it unstated
// otherwise.
func DevPtr(dev *bool) UsageOption {
	return func(u *usage) {
		if dev != nil {
			v := *dev
			u.dev = &v
		}
	}
}

// WithScope sets the dependency scope of the usage.
func WithScope(scope component.Scope) UsageOption {
	return func(u *usage) { u.scope = scope }
}

// TargetFramework records the framework the component was resolved for.
func TargetFramework(tfm string) UsageOption {
	return func(u *usage) { u.targetFramework = tfm }
}
