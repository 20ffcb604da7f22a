package recorder

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/depgraph"
)

// SingleFileComponentRecorder records the components of one manifest location.
type SingleFileComponentRecorder struct {
	location string
	parent   *ComponentRecorder
	graph    *depgraph.Graph
	logger   *log.Logger

	mu         sync.Mutex
	components map[string]component.Component
	frameworks map[string]map[string]struct{}
	failures   map[string]struct{}
}

func newSingleFileComponentRecorder(location string, parent *ComponentRecorder) *SingleFileComponentRecorder {
	return &SingleFileComponentRecorder{
		location:   location,
		parent:     parent,
		graph:      depgraph.New(),
		logger:     parent.logger,
		components: make(map[string]component.Component),
		frameworks: make(map[string]map[string]struct{}),
		failures:   make(map[string]struct{}),
	}
}

// Location returns the manifest location this recorder is keyed by.
func (s *SingleFileComponentRecorder) Location() string { return s.location }

// DependencyGraph returns the location's graph.
func (s *SingleFileComponentRecorder) DependencyGraph() *depgraph.Graph { return s.graph }

// Parent returns the aggregate recorder that created s.
func (s *SingleFileComponentRecorder) Parent() *ComponentRecorder { return s.parent }

// RegisterUsage records one occurrence of c in this location.
//
// The first registration of an id creates its node; later registrations merge
// into it (explicit is OR'd, dev is AND'ed, scope broadens). When a parent is
// given and tracked, the parent → c edge is added. A zero component is
// ignored.
func (s *SingleFileComponentRecorder) RegisterUsage(c component.Component, opts ...UsageOption) {
	if c.IsZero() {
		s.logger.Warn("ignoring usage with empty component", "location", s.location)
		return
	}

	var u usage
	for _, opt := range opts {
		opt(&u)
	}

	id := c.ID()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.components[id]; !ok {
		s.components[id] = c
	}
	if tfm := strings.TrimSpace(u.targetFramework); tfm != "" {
		set, ok := s.frameworks[id]
		if !ok {
			set = make(map[string]struct{})
			s.frameworks[id] = set
		}
		set[tfm] = struct{}{}
	}

	s.graph.AddNode(id, u.explicit, u.dev, u.scope)
	s.graph.AddEdge(u.parent, id)
}

// RegisterPackageParseFailure records an entry the detector could not
// interpret. Duplicate descriptions collapse.
func (s *SingleFileComponentRecorder) RegisterPackageParseFailure(description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[description] = struct{}{}
	s.logger.Debug("package parse failure", "location", s.location, "entry", description)
}

// Failures returns the sorted parse failure descriptions.
func (s *SingleFileComponentRecorder) Failures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.failures))
}

// Component returns the component registered under id.
func (s *SingleFileComponentRecorder) Component(id string) (component.Component, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.components[id]
	return c, ok
}

// TargetFrameworks returns the sorted frameworks recorded for id.
func (s *SingleFileComponentRecorder) TargetFrameworks(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.frameworks[id]))
}

// AddAdditionalRelatedFile records a file that contributed to this location's
// graph, such as the Cargo.toml next to a Cargo.lock.
func (s *SingleFileComponentRecorder) AddAdditionalRelatedFile(path string) {
	s.graph.AddAdditionalRelatedFile(path)
}

// merge copies the components, frameworks, failures and graph of from into s.
func (s *SingleFileComponentRecorder) merge(from *SingleFileComponentRecorder) {
	from.mu.Lock()
	components := maps.Clone(from.components)
	frameworks := make(map[string][]string, len(from.frameworks))
	for id, set := range from.frameworks {
		frameworks[id] = slices.Collect(maps.Keys(set))
	}
	failures := slices.Collect(maps.Keys(from.failures))
	from.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range components {
		if _, ok := s.components[id]; !ok {
			s.components[id] = c
		}
	}
	for id, tfms := range frameworks {
		set, ok := s.frameworks[id]
		if !ok {
			set = make(map[string]struct{})
			s.frameworks[id] = set
		}
		for _, tfm := range tfms {
			set[tfm] = struct{}{}
		}
	}
	for _, f := range failures {
		s.failures[f] = struct{}{}
	}
	s.graph.Merge(from.graph)
}
