// Package cache stores the output of expensive external commands between
// scans.
//
// The cargo-cli detector runs `cargo metadata` for every Cargo.toml it sees.
// The output depends only on the manifest, the lockfile and the toolchain, so
// it is cached under a key derived from those inputs ([Keyer.CommandKey]).
//
// Three backends implement [Cache]:
//
//   - [FileCache] stores entries as JSON files under a directory (CLI default)
//   - [RedisCache] shares entries between machines through Redis
//   - [NullCache] stores nothing (--no-cache)
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
type Cache interface {
	// Get returns the value for key and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. A zero ttl never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}

// NullCache never stores anything; every Get is a miss. It backs --no-cache.
type NullCache struct{}

// NewNullCache creates a NullCache.
func NewNullCache() Cache { return &NullCache{} }

func (*NullCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (*NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (*NullCache) Delete(context.Context, string) error                     { return nil }
func (*NullCache) Close() error                                             { return nil }
