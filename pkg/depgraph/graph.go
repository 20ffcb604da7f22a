package depgraph

import (
	"maps"
	"slices"
	"sync"

	"github.com/matzehuels/depscan/pkg/component"
)

// Scope is the dependency scope of a node.
type Scope = component.Scope

type node struct {
	explicit   bool
	dev        *bool
	scope      Scope
	deps       map[string]struct{}
	dependents map[string]struct{}
}

// Graph is the dependency graph of a single manifest location.
//
// The zero value is not usable; use New.
type Graph struct {
	mu      sync.RWMutex
	nodes   map[string]*node
	related map[string]struct{}
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		nodes:   make(map[string]*node),
		related: make(map[string]struct{}),
	}
}

// Contains reports whether id is tracked.
func (g *Graph) Contains(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// AddNode tracks id or merges attributes into an existing node.
// Calling AddNode twice with the same arguments leaves the graph unchanged.
// An empty id is ignored.
func (g *Graph) AddNode(id string, explicit bool, dev *bool, scope Scope) {
	if id == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		n = &node{
			deps:       make(map[string]struct{}),
			dependents: make(map[string]struct{}),
		}
		g.nodes[id] = n
	}
	n.explicit = n.explicit || explicit
	if dev != nil {
		merged := (n.dev == nil || *n.dev) && *dev
		n.dev = &merged
	}
	n.scope = component.MergeScope(n.scope, scope)
}

// AddEdge records that parent depends on child. It is a no-op when parent is
// empty or either endpoint is untracked. Duplicate edges collapse and a
// self-loop is recorded once.
func (g *Graph) AddEdge(parent, child string) {
	if parent == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.nodes[parent]
	if !ok {
		return
	}
	c, ok := g.nodes[child]
	if !ok {
		return
	}
	p.deps[child] = struct{}{}
	c.dependents[parent] = struct{}{}
}

// GetDependenciesForComponent returns the sorted direct children of id.
// It returns nil when id is untracked.
func (g *Graph) GetDependenciesForComponent(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(n.deps))
}

// GetDependents returns the sorted direct parents of id.
func (g *Graph) GetDependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(n.dependents))
}

// IsComponentExplicitlyReferenced reports whether id is an explicit root.
func (g *Graph) IsComponentExplicitlyReferenced(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return ok && n.explicit
}

// IsDevelopmentDependency returns the stored dev flag for id, or nil when no
// registration stated one (or id is untracked).
func (g *Graph) IsDevelopmentDependency(id string) *bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok || n.dev == nil {
		return nil
	}
	v := *n.dev
	return &v
}

// GetDependencyScope returns the merged scope of id.
func (g *Graph) GetDependencyScope(id string) Scope {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n, ok := g.nodes[id]; ok {
		return n.scope
	}
	return ""
}

// GetComponents returns every tracked id, sorted.
func (g *Graph) GetComponents() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Sorted(maps.Keys(g.nodes))
}

// HasComponents reports whether at least one node is tracked.
func (g *Graph) HasComponents() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes) > 0
}

// Len returns the number of tracked nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	count := 0
	for _, n := range g.nodes {
		count += len(n.deps)
	}
	return count
}

// GetAllExplicitlyReferencedComponents returns the sorted ids of all roots.
func (g *Graph) GetAllExplicitlyReferencedComponents() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ids []string
	for id, n := range g.nodes {
		if n.explicit {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// GetExplicitReferencedDependencyIDs returns the sorted ids of the explicit
// roots that reach id, including id itself when it is explicit. Parents are
// walked with a visited set, so cycles terminate.
func (g *Graph) GetExplicitReferencedDependencyIDs(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[id]; !ok {
		return nil
	}

	var roots []string
	visited := map[string]bool{id: true}
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := g.nodes[cur]
		if n.explicit {
			roots = append(roots, cur)
		}
		for p := range n.dependents {
			if !visited[p] {
				visited[p] = true
				stack = append(stack, p)
			}
		}
	}
	slices.Sort(roots)
	return roots
}

// GetAncestors returns every transitive parent of id ordered by distance,
// nearest first. Ties are broken by id. id itself is never included.
func (g *Graph) GetAncestors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}

	var ancestors []string
	visited := map[string]bool{id: true}
	level := slices.Sorted(maps.Keys(n.dependents))
	for len(level) > 0 {
		var next []string
		for _, p := range level {
			if visited[p] {
				continue
			}
			visited[p] = true
			ancestors = append(ancestors, p)
			next = append(next, slices.Sorted(maps.Keys(g.nodes[p].dependents))...)
		}
		slices.Sort(next)
		level = slices.Compact(next)
	}
	return ancestors
}

// AddAdditionalRelatedFile records a file that contributed to this graph.
// Related files are reported as locations of every component in the graph.
func (g *Graph) AddAdditionalRelatedFile(path string) {
	if path == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.related[path] = struct{}{}
}

// AdditionalRelatedFiles returns the sorted related files.
func (g *Graph) AdditionalRelatedFiles() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Sorted(maps.Keys(g.related))
}

// Merge adds every node, edge and related file of other to g. Node
// attributes merge as in AddNode.
func (g *Graph) Merge(other *Graph) {
	if other == nil || other == g {
		return
	}

	type entry struct {
		id       string
		explicit bool
		dev      *bool
		scope    Scope
		deps     []string
	}
	other.mu.RLock()
	entries := make([]entry, 0, len(other.nodes))
	for _, id := range slices.Sorted(maps.Keys(other.nodes)) {
		n := other.nodes[id]
		e := entry{id: id, explicit: n.explicit, scope: n.scope, deps: slices.Sorted(maps.Keys(n.deps))}
		if n.dev != nil {
			v := *n.dev
			e.dev = &v
		}
		entries = append(entries, e)
	}
	related := slices.Collect(maps.Keys(other.related))
	other.mu.RUnlock()

	for _, e := range entries {
		g.AddNode(e.id, e.explicit, e.dev, e.scope)
	}
	for _, e := range entries {
		for _, d := range e.deps {
			g.AddEdge(e.id, d)
		}
	}
	for _, p := range related {
		g.AddAdditionalRelatedFile(p)
	}
}
