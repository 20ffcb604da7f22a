package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matzehuels/depscan/pkg/errors"
)

// Metrics implements ScanHooks and CacheHooks with Prometheus collectors.
type Metrics struct {
	scansTotal     prometheus.Counter
	scanDuration   prometheus.Histogram
	filesTotal     *prometheus.CounterVec
	fileDuration   *prometheus.HistogramVec
	componentsSeen *prometheus.CounterVec
	cacheRequests  *prometheus.CounterVec
	cacheBytes     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "depscan_scans_total",
			Help: "Number of completed scans.",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "depscan_scan_duration_seconds",
			Help:    "Time taken to scan a source tree.",
			Buckets: prometheus.DefBuckets,
		}),
		filesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depscan_files_total",
			Help: "Number of manifest files processed by detector and outcome.",
		}, []string{"detector", "outcome"}),
		fileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "depscan_file_duration_seconds",
			Help:    "Time taken by a detector to process one file.",
			Buckets: prometheus.DefBuckets,
		}, []string{"detector"}),
		componentsSeen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depscan_components_registered_total",
			Help: "Number of components registered by detector.",
		}, []string{"detector"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depscan_cache_requests_total",
			Help: "Number of cache lookups by key type and result.",
		}, []string{"key_type", "result"}),
		cacheBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depscan_cache_written_bytes_total",
			Help: "Bytes written to the cache by key type.",
		}, []string{"key_type"}),
	}
	reg.MustRegister(
		m.scansTotal,
		m.scanDuration,
		m.filesTotal,
		m.fileDuration,
		m.componentsSeen,
		m.cacheRequests,
		m.cacheBytes,
	)
	return m
}

func (m *Metrics) OnScanStart(context.Context, string)          {}
func (m *Metrics) OnFileStart(context.Context, string, string) {}

func (m *Metrics) OnFileComplete(_ context.Context, detectorID, _ string, components int, d time.Duration, err error) {
	m.filesTotal.WithLabelValues(detectorID, outcome(err)).Inc()
	m.fileDuration.WithLabelValues(detectorID).Observe(d.Seconds())
	m.componentsSeen.WithLabelValues(detectorID).Add(float64(components))
}

func (m *Metrics) OnScanComplete(_ context.Context, _ string, _ int, d time.Duration, _ error) {
	m.scansTotal.Inc()
	m.scanDuration.Observe(d.Seconds())
}

func (m *Metrics) OnCacheHit(_ context.Context, keyType string) {
	m.cacheRequests.WithLabelValues(keyType, "hit").Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.cacheRequests.WithLabelValues(keyType, "miss").Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, keyType string, size int) {
	m.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

// outcome labels a file result: ok, skipped (unsupported input) or failed.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errors.ErrCodeUnsupported):
		return "skipped"
	default:
		return "failed"
	}
}
