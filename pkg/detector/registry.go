package detector

import (
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/errors"
)

// Registry is a lookup table of detectors keyed by id.
//
// The zero value is not usable; use NewRegistry.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]Detector
}

// NewRegistry creates a registry holding ds. It panics on a duplicate id,
// which is a programming error in the caller's detector list.
func NewRegistry(ds ...Detector) *Registry {
	r := &Registry{byID: make(map[string]Detector)}
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds d. It returns an error if the id is empty or taken, or if a
// search pattern is not a valid glob.
func (r *Registry) Register(d Detector) error {
	id := d.ID()
	if id == "" {
		return errors.New(errors.ErrCodeInvalidInput, "detector id cannot be empty")
	}
	for _, p := range d.SearchPatterns() {
		if !doublestar.ValidatePattern(p) {
			return errors.New(errors.ErrCodeInvalidInput, "detector %s: invalid search pattern %q", id, p)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; ok {
		return errors.New(errors.ErrCodeInvalidInput, "detector %s already registered", id)
	}
	r.byID[id] = d
	return nil
}

// Lookup returns the detector with the given id.
func (r *Registry) Lookup(id string) (Detector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// IDs returns the registered ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// All returns every detector sorted by id.
func (r *Registry) All() []Detector {
	ids := r.IDs()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Detector, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	return out
}

// ForType returns the detectors that register components of typ.
func (r *Registry) ForType(typ component.Type) []Detector {
	var out []Detector
	for _, d := range r.All() {
		if slices.Contains(d.SupportedTypes(), typ) {
			out = append(out, d)
		}
	}
	return out
}

// Filter returns a registry restricted to ids. An empty list returns r
// unchanged; an unknown id is an error.
func (r *Registry) Filter(ids []string) (*Registry, error) {
	if len(ids) == 0 {
		return r, nil
	}
	out := &Registry{byID: make(map[string]Detector, len(ids))}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		d, ok := r.Lookup(id)
		if !ok {
			return nil, errors.New(errors.ErrCodeNotFound, "unknown detector %q (available: %s)", id, strings.Join(r.IDs(), ", "))
		}
		out.byID[id] = d
	}
	return out, nil
}

// Match is a pair of detector and the search pattern that selected a file.
type Match struct {
	Detector Detector
	Pattern  string
}

// Match returns the detectors whose search patterns match p, sorted by id.
// Each detector appears at most once, with its first matching pattern.
func (r *Registry) Match(p string) []Match {
	slashed := filepath.ToSlash(p)
	base := path.Base(slashed)

	var out []Match
	for _, d := range r.All() {
		for _, pattern := range d.SearchPatterns() {
			target := base
			if strings.Contains(pattern, "/") {
				target = slashed
			}
			if ok, _ := doublestar.Match(pattern, target); ok {
				out = append(out, Match{Detector: d, Pattern: pattern})
				break
			}
		}
	}
	return out
}
