package traverse

import (
	"maps"
	"slices"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/recorder"
)

// OwnershipMap maps a package key to the sorted manifest locations that own it.
type OwnershipMap map[string][]string

// Owners returns the owners of key, or nil.
func (m OwnershipMap) Owners(key string) []string {
	if m == nil {
		return nil
	}
	return m[key]
}

// Manifests returns every distinct owner location, sorted.
func (m OwnershipMap) Manifests() []string {
	set := make(map[string]struct{})
	for _, owners := range m {
		for _, o := range owners {
			set[o] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

// Merge adds the owners of other to m and returns the result. A nil m is
// allocated on first use.
func (m OwnershipMap) Merge(other OwnershipMap) OwnershipMap {
	for key, owners := range other {
		if m == nil {
			m = make(OwnershipMap, len(other))
		}
		merged := append(slices.Clone(m[key]), owners...)
		slices.Sort(merged)
		m[key] = slices.Compact(merged)
	}
	return m
}

// BuildOwnership propagates ownership from local packages along resolved
// edges.
//
// locals maps each local package key to its manifest location; every local
// package owns itself. edges maps a package key to the keys it depends on.
// Ownership flows from a package to each dependency with a multi-source
// breadth-first walk that re-queues a package only when its owner set grew,
// so cycles terminate.
func BuildOwnership(locals map[string]string, edges map[string][]string) OwnershipMap {
	owners := make(map[string]map[string]struct{}, len(locals))
	var queue []string
	inQueue := make(map[string]bool)

	for _, key := range slices.Sorted(maps.Keys(locals)) {
		owners[key] = map[string]struct{}{locals[key]: {}}
		queue = append(queue, key)
		inQueue[key] = true
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		inQueue[cur] = false

		deps, ok := edges[cur]
		if !ok {
			continue
		}
		for _, dep := range deps {
			set, ok := owners[dep]
			if !ok {
				set = make(map[string]struct{})
				owners[dep] = set
			}
			before := len(set)
			for o := range owners[cur] {
				set[o] = struct{}{}
			}
			if len(set) > before && !inQueue[dep] {
				queue = append(queue, dep)
				inQueue[dep] = true
			}
		}
	}

	m := make(OwnershipMap, len(owners))
	for key, set := range owners {
		m[key] = slices.Sorted(maps.Keys(set))
	}
	return m
}

// Attributor registers components against the recorders of their owning
// manifests.
//
// When the owner map has no entry (or an empty one) for a key, when the map
// is nil, or when there is no parent recorder to create owner recorders
// from, registrations go to Fallback.
type Attributor struct {
	Parent   *recorder.ComponentRecorder
	Owners   OwnershipMap
	Fallback *recorder.SingleFileComponentRecorder
}

// Register records c under every owner of key. parent is passed to an
// owner's recorder only when that owner's graph already tracks it;
// otherwise c becomes an explicit root of that owner's graph.
func (a *Attributor) Register(key string, c component.Component, parent string, opts ...recorder.UsageOption) {
	owners := a.Owners.Owners(key)
	if a.Parent == nil || len(owners) == 0 {
		a.register(a.Fallback, c, parent, opts)
		return
	}

	for _, owner := range owners {
		rec, err := a.recorderFor(owner)
		if err != nil {
			a.register(a.Fallback, c, parent, opts)
			continue
		}
		switch {
		case parent == "":
			a.register(rec, c, "", opts)
		case rec.DependencyGraph().Contains(parent):
			a.register(rec, c, parent, opts)
		default:
			a.register(rec, c, "", append(slices.Clip(opts), recorder.Explicit(true)))
		}
	}
}

// recorderFor returns Fallback when owner is its own location, so a staged
// fallback keeps the usages of the file being processed.
func (a *Attributor) recorderFor(owner string) (*recorder.SingleFileComponentRecorder, error) {
	if a.Fallback != nil && a.Fallback.Location() == owner {
		return a.Fallback, nil
	}
	return a.Parent.CreateSingleFileComponentRecorder(owner)
}

func (a *Attributor) register(rec *recorder.SingleFileComponentRecorder, c component.Component, parent string, opts []recorder.UsageOption) {
	if rec == nil {
		return
	}
	if parent != "" {
		opts = append(slices.Clip(opts), recorder.Parent(parent))
	}
	rec.RegisterUsage(c, opts...)
}
