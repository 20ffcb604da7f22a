package rust

import (
	"maps"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/matzehuels/depscan/pkg/traverse"
)

// Workspace holds the cargo metadata runs of one scan.
//
// The cargo-cli detector fills it in Prepare, before any file is executed.
// Every directory holding a local package of a successful run is marked as
// covered by that run's Cargo.toml: the cargo-cli detector skips other
// Cargo.toml files there and the cargo-lock detector skips their Cargo.lock.
// The crate ownership of all runs is merged so the cargo-sbom detector can
// attribute SBOM crates to member manifests. Package ids in cargo metadata
// and in SBOMs use the same spec format, so the keys line up.
//
// A Workspace belongs to one scan at a time; Prepare resets it.
type Workspace struct {
	mu        sync.RWMutex
	runs      map[string]preparedRun
	covered   map[string]string
	ownership traverse.OwnershipMap
}

type preparedRun struct {
	run *metadataRun
	err error
}

// NewWorkspace returns an empty Workspace.
func NewWorkspace() *Workspace {
	w := &Workspace{}
	w.reset()
	return w
}

func (w *Workspace) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runs = make(map[string]preparedRun)
	w.covered = make(map[string]string)
	w.ownership = nil
}

// CoveredBy returns the Cargo.toml location whose metadata run resolved the
// directory of location, when that is another manifest than location itself.
func (w *Workspace) CoveredBy(location string) (string, bool) {
	if w == nil {
		return "", false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	by, ok := w.covered[path.Dir(location)]
	if !ok || by == location {
		return "", false
	}
	return by, true
}

// Ownership returns the crate ownership merged over every run, or nil.
func (w *Workspace) Ownership() traverse.OwnershipMap {
	if w == nil {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return maps.Clone(w.ownership)
}

// prepared returns the run recorded for location.
func (w *Workspace) prepared(location string) (preparedRun, bool) {
	if w == nil {
		return preparedRun{}, false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.runs[location]
	return p, ok
}

// record stores the outcome of the metadata run for location. A failed run
// covers nothing, so its members are run on their own.
func (w *Workspace) record(location string, run *metadataRun, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runs[location] = preparedRun{run: run, err: err}
	if err != nil {
		return
	}
	for _, dir := range append([]string{path.Dir(location)}, run.memberDirs(location)...) {
		if _, ok := w.covered[dir]; !ok {
			w.covered[dir] = location
		}
	}
	w.ownership = w.ownership.Merge(run.md.ownership(ownerLocation(run.dir, location)))
}

// metadataRun is the decoded cargo metadata of one Cargo.toml.
type metadataRun struct {
	md   cargoMetadata
	dir  string // absolute directory of the manifest
	lock bool   // a Cargo.lock sits next to the manifest
}

// memberDirs returns the scan-relative directories of the run's local
// packages that live below the manifest at location.
func (r *metadataRun) memberDirs(location string) []string {
	base := path.Dir(location)
	var dirs []string
	for _, abs := range r.md.localDirectories() {
		rel, err := filepath.Rel(r.dir, filepath.FromSlash(abs))
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		dirs = append(dirs, path.Join(base, filepath.ToSlash(rel)))
	}
	return dirs
}
