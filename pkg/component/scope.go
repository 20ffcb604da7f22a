package component

import "strings"

// Scope is the Maven-style dependency scope of a component in one graph.
// The empty Scope means no scope was stated.
type Scope string

// Dependency scopes, from broadest to narrowest.
const (
	ScopeCompile  Scope = "compile"
	ScopeRuntime  Scope = "runtime"
	ScopeProvided Scope = "provided"
	ScopeSystem   Scope = "system"
	ScopeTest     Scope = "test"
)

var scopeRank = map[Scope]int{
	ScopeCompile:  5,
	ScopeRuntime:  4,
	ScopeProvided: 3,
	ScopeSystem:   2,
	ScopeTest:     1,
}

// ParseScope maps a scope name to a Scope. Unknown names map to
// ScopeCompile, matching how Maven treats an unrecognized scope.
func ParseScope(s string) Scope {
	sc := Scope(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := scopeRank[sc]; ok {
		return sc
	}
	return ScopeCompile
}

// MergeScope returns the broader of a and b. An empty scope never wins over
// a stated one.
func MergeScope(a, b Scope) Scope {
	if scopeRank[b] > scopeRank[a] {
		return b
	}
	return a
}
