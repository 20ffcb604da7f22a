package recorder

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/depgraph"
	"github.com/matzehuels/depscan/pkg/errors"
)

// ComponentRecorder owns the single-file recorders of one scan.
//
// The zero value is not usable; use New.
type ComponentRecorder struct {
	mu        sync.RWMutex
	recorders map[string]*SingleFileComponentRecorder
	logger    *log.Logger
}

// New creates an empty ComponentRecorder.
func New(opts ...Option) *ComponentRecorder {
	r := &ComponentRecorder{
		recorders: make(map[string]*SingleFileComponentRecorder),
		logger:    discardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateSingleFileComponentRecorder returns the recorder for location,
// creating it on first use. Concurrent callers for the same location receive
// the same recorder.
func (r *ComponentRecorder) CreateSingleFileComponentRecorder(location string) (*SingleFileComponentRecorder, error) {
	if err := errors.ValidateLocation(location); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "create recorder")
	}

	r.mu.RLock()
	s, ok := r.recorders[location]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.recorders[location]; ok {
		return s, nil
	}
	s = newSingleFileComponentRecorder(location, r)
	r.recorders[location] = s
	return s, nil
}

// Stage returns a recorder for location that is not yet part of r. A
// detector writes into it and the caller either passes it to Commit or drops
// it, so a failed file leaves no partial graph behind. Parent() of the staged
// recorder is r, so usages attributed to other locations go straight to r.
func (r *ComponentRecorder) Stage(location string) (*SingleFileComponentRecorder, error) {
	if err := errors.ValidateLocation(location); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "stage recorder")
	}
	return newSingleFileComponentRecorder(location, r), nil
}

// Commit merges a recorder returned by Stage into the recorder for its
// location, creating that recorder on first use. Registrations already made
// there by other detectors are kept.
func (r *ComponentRecorder) Commit(staged *SingleFileComponentRecorder) {
	if staged == nil || staged.parent != r {
		return
	}
	target, err := r.CreateSingleFileComponentRecorder(staged.location)
	if err != nil || target == staged {
		return
	}
	target.merge(staged)
}

// Discard drops the recorder for location together with everything
// registered there, including usages attributed to it by other files.
func (r *ComponentRecorder) Discard(location string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.recorders, location)
}

// Locations returns the sorted locations that have a recorder.
func (r *ComponentRecorder) Locations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.recorders))
}

// snapshot returns the recorders sorted by location.
func (r *ComponentRecorder) snapshot() []*SingleFileComponentRecorder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*SingleFileComponentRecorder, 0, len(r.recorders))
	for _, loc := range slices.Sorted(maps.Keys(r.recorders)) {
		out = append(out, r.recorders[loc])
	}
	return out
}

// GetDependencyGraphsByLocation returns the graphs that hold at least one
// component, keyed by location.
func (r *ComponentRecorder) GetDependencyGraphsByLocation() map[string]*depgraph.Graph {
	graphs := make(map[string]*depgraph.Graph)
	for _, s := range r.snapshot() {
		if s.graph.HasComponents() {
			graphs[s.location] = s.graph
		}
	}
	return graphs
}

// GetComponent returns the component registered under id in any location.
func (r *ComponentRecorder) GetComponent(id string) (component.Component, bool) {
	for _, s := range r.snapshot() {
		if c, ok := s.Component(id); ok {
			return c, true
		}
	}
	return component.Component{}, false
}

// GetSkippedComponents returns every parse failure description, sorted and
// de-duplicated across locations.
func (r *ComponentRecorder) GetSkippedComponents() []string {
	seen := make(map[string]struct{})
	for _, s := range r.snapshot() {
		for _, f := range s.Failures() {
			seen[f] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// GetDetectedComponents merges every location's graph into one entry per
// component id, sorted by id.
func (r *ComponentRecorder) GetDetectedComponents() []*component.DetectedComponent {
	byID := make(map[string]*component.DetectedComponent)
	for _, s := range r.snapshot() {
		g := s.graph
		related := g.AdditionalRelatedFiles()
		for _, id := range g.GetComponents() {
			d, ok := byID[id]
			if !ok {
				c, _ := s.Component(id)
				d = component.NewDetectedComponent(c)
				byID[id] = d
			}
			d.AddFilePath(s.location)
			for _, f := range related {
				d.AddFilePath(f)
			}
			for _, tfm := range s.TargetFrameworks(id) {
				d.AddTargetFramework(tfm)
			}
			d.DependencyScope = component.MergeScope(d.DependencyScope, g.GetDependencyScope(id))
			d.DevelopmentDependency = mergeDev(d.DevelopmentDependency, g.IsDevelopmentDependency(id))
			for _, root := range g.GetExplicitReferencedDependencyIDs(id) {
				d.AddDependencyRoot(root)
			}
		}
	}

	out := make([]*component.DetectedComponent, 0, len(byID))
	for _, id := range slices.Sorted(maps.Keys(byID)) {
		out = append(out, byID[id])
	}
	return out
}

// IsComponentExplicitlyReferenced reports whether id is an explicit root in
// any location.
func (r *ComponentRecorder) IsComponentExplicitlyReferenced(id string) bool {
	for _, s := range r.snapshot() {
		if s.graph.IsComponentExplicitlyReferenced(id) {
			return true
		}
	}
	return false
}

// ExplicitReferencesFor returns the sorted union, over all locations, of the
// explicit roots that reach id.
func (r *ComponentRecorder) ExplicitReferencesFor(id string) []string {
	roots := make(map[string]struct{})
	for _, s := range r.snapshot() {
		for _, root := range s.graph.GetExplicitReferencedDependencyIDs(id) {
			roots[root] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(roots))
}

// GetEffectiveDevDependencyValue returns the dev flag of id across all
// locations: nil when no location stated one, false when any location uses
// it outside development, true otherwise.
func (r *ComponentRecorder) GetEffectiveDevDependencyValue(id string) *bool {
	var dev *bool
	for _, s := range r.snapshot() {
		if !s.graph.Contains(id) {
			continue
		}
		dev = mergeDev(dev, s.graph.IsDevelopmentDependency(id))
	}
	return dev
}

func mergeDev(stored, incoming *bool) *bool {
	if incoming == nil {
		return stored
	}
	v := *incoming
	if stored != nil {
		v = *stored && v
	}
	return &v
}

// IsDependencyOfExplicitlyReferencedComponents reports whether id is tracked
// somewhere and every predicate selects a detected component that is an
// explicit root reaching id.
func (r *ComponentRecorder) IsDependencyOfExplicitlyReferencedComponents(id string, preds ...func(component.Component) bool) bool {
	if !r.tracked(id) {
		return false
	}
	roots := r.ExplicitReferencesFor(id)
	detected := r.GetDetectedComponents()
	for _, pred := range preds {
		c, ok := findComponent(detected, pred)
		if !ok || !slices.Contains(roots, c.ID()) {
			return false
		}
	}
	return true
}

// AssertAllExplicitlyReferencedComponents checks that the explicit roots
// reaching id are exactly the components selected by preds. It returns an
// error describing the first mismatch.
func (r *ComponentRecorder) AssertAllExplicitlyReferencedComponents(id string, preds ...func(component.Component) bool) error {
	if !r.tracked(id) {
		return errors.New(errors.ErrCodeNotFound, "component %s is not in any dependency graph", id)
	}

	roots := r.ExplicitReferencesFor(id)
	remaining := make(map[string]struct{}, len(roots))
	for _, root := range roots {
		remaining[root] = struct{}{}
	}

	detected := r.GetDetectedComponents()
	for i, pred := range preds {
		c, ok := findComponent(detected, pred)
		if !ok {
			return errors.New(errors.ErrCodeNotFound, "predicate %d matched no detected component", i)
		}
		if !slices.Contains(roots, c.ID()) {
			return errors.New(errors.ErrCodeInvalidInput, "expected %s to have %s as an explicit root", id, c.ID())
		}
		delete(remaining, c.ID())
	}

	if len(remaining) > 0 {
		return errors.New(errors.ErrCodeInvalidInput, "component %s has unverified explicit roots (%s)",
			id, strings.Join(slices.Sorted(maps.Keys(remaining)), ","))
	}
	return nil
}

func (r *ComponentRecorder) tracked(id string) bool {
	for _, s := range r.snapshot() {
		if s.graph.Contains(id) {
			return true
		}
	}
	return false
}

func findComponent(detected []*component.DetectedComponent, pred func(component.Component) bool) (component.Component, bool) {
	for _, d := range detected {
		if pred(d.Component) {
			return d.Component, true
		}
	}
	return component.Component{}, false
}

// ByID returns a predicate matching the component with the given id.
func ByID(id string) func(component.Component) bool {
	return func(c component.Component) bool { return c.ID() == id }
}

// ByName returns a predicate matching components of typ named name.
func ByName(typ component.Type, name string) func(component.Component) bool {
	return func(c component.Component) bool { return c.Type == typ && c.Name == name }
}
