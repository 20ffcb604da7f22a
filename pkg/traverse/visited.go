package traverse

import "strings"

// Visited is a set of composite traversal keys.
type Visited map[string]struct{}

// NewVisited creates an empty Visited set.
func NewVisited() Visited { return make(Visited) }

// Add records the key built from parts and reports whether it was new.
func (v Visited) Add(parts ...string) bool {
	key := strings.Join(parts, "\x00")
	if _, ok := v[key]; ok {
		return false
	}
	v[key] = struct{}{}
	return true
}

// Has reports whether the key built from parts was recorded.
func (v Visited) Has(parts ...string) bool {
	_, ok := v[strings.Join(parts, "\x00")]
	return ok
}
