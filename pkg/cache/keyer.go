package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Keyer derives cache keys.
type Keyer interface {
	// CommandKey returns the key for the output of a command run over the
	// given input file contents.
	CommandKey(command string, args []string, inputs ...[]byte) string
}

// DefaultKeyer hashes commands and inputs into "cmd:<sha256>" keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a DefaultKeyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// CommandKey implements Keyer. Inputs are hashed individually first so large
// files do not get re-encoded into the key material.
func (DefaultKeyer) CommandKey(command string, args []string, inputs ...[]byte) string {
	sums := make([]string, len(inputs))
	for i, in := range inputs {
		sums[i] = Hash(in)
	}
	material, _ := json.Marshal(struct {
		Command string   `json:"c"`
		Args    []string `json:"a"`
		Inputs  []string `json:"i"`
	}{command, args, sums})
	return "cmd:" + Hash(material)
}

// Hash returns the hex SHA-256 digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ScopedKeyer prefixes the keys of another Keyer so several tools can share
// one Redis database.
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "depscan:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer wraps inner, or a DefaultKeyer when inner is nil.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

func (k *ScopedKeyer) CommandKey(command string, args []string, inputs ...[]byte) string {
	return k.prefix + k.inner.CommandKey(command, args, inputs...)
}
