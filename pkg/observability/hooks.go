// Package observability provides hooks for scan metrics and tracing.
//
// Libraries emit events through the registered hooks without depending on a
// particular backend. The defaults do nothing; the CLI registers [Metrics]
// when asked to export Prometheus metrics.
//
// # Usage
//
// Register hooks at application startup:
//
//	m := observability.NewMetrics(prometheus.NewRegistry())
//	observability.SetScanHooks(m)
//	observability.SetCacheHooks(m)
//
// Libraries call hooks to emit events:
//
//	observability.Scan().OnFileStart(ctx, detectorID, location)
//	// ... run the detector ...
//	observability.Scan().OnFileComplete(ctx, detectorID, location, components, duration, err)
package observability

import (
	"context"
	"sync/atomic"
	"time"
)

// =============================================================================
// Scan Hooks
// =============================================================================

// ScanHooks receives events from the scan orchestrator.
type ScanHooks interface {
	OnScanStart(ctx context.Context, root string)
	OnFileStart(ctx context.Context, detectorID, location string)
	OnFileComplete(ctx context.Context, detectorID, location string, components int, duration time.Duration, err error)
	OnScanComplete(ctx context.Context, root string, files int, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache lookups made by detectors.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopScanHooks is a no-op implementation of ScanHooks.
type NoopScanHooks struct{}

func (NoopScanHooks) OnScanStart(context.Context, string)          {}
func (NoopScanHooks) OnFileStart(context.Context, string, string) {}
func (NoopScanHooks) OnFileComplete(context.Context, string, string, int, time.Duration, error) {
}
func (NoopScanHooks) OnScanComplete(context.Context, string, int, time.Duration, error) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

type hookSet struct {
	scan  ScanHooks
	cache CacheHooks
}

var current atomic.Pointer[hookSet]

func init() { Reset() }

// SetScanHooks registers h for all later scans. A nil h is ignored.
func SetScanHooks(h ScanHooks) {
	if h == nil {
		return
	}
	for {
		old := current.Load()
		if current.CompareAndSwap(old, &hookSet{scan: h, cache: old.cache}) {
			return
		}
	}
}

// SetCacheHooks registers h for all later cache lookups. A nil h is ignored.
func SetCacheHooks(h CacheHooks) {
	if h == nil {
		return
	}
	for {
		old := current.Load()
		if current.CompareAndSwap(old, &hookSet{scan: old.scan, cache: h}) {
			return
		}
	}
}

// Scan returns the registered scan hooks.
func Scan() ScanHooks { return current.Load().scan }

// Cache returns the registered cache hooks.
func Cache() CacheHooks { return current.Load().cache }

// Reset restores the no-op hooks.
func Reset() {
	current.Store(&hookSet{scan: NoopScanHooks{}, cache: NoopCacheHooks{}})
}
