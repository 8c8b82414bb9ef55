// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	CollectionCycles prometheus.Counter
	SnapshotsWritten prometheus.Counter
	StreamsCollected *prometheus.CounterVec // by platform
	PlatformFailures *prometheus.CounterVec // by platform
	MalformedRecords *prometheus.CounterVec // by platform

	// Histograms (seconds)
	CycleDuration prometheus.Observer

	// Gauges
	TrackedChannelsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CollectionCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "streamlens_collection_cycles_total", Help: "Number of collection cycles run"})
		SnapshotsWritten = promauto.NewCounter(prometheus.CounterOpts{Name: "streamlens_snapshots_written_total", Help: "Number of live snapshots persisted"})
		StreamsCollected = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamlens_streams_collected_total", Help: "Number of live streams observed per platform"}, []string{"platform"})
		PlatformFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamlens_platform_failures_total", Help: "Number of failed per-platform collection attempts"}, []string{"platform"})
		MalformedRecords = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamlens_malformed_records_total", Help: "Number of malformed platform records skipped"}, []string{"platform"})
		CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "streamlens_collection_cycle_duration_seconds", Help: "Collection cycle duration seconds", Buckets: prometheus.DefBuckets})
		TrackedChannelsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamlens_tracked_channels", Help: "Current number of known channels"})
	})
}

// ObserveMalformed counts a skipped malformed record for a platform.
func ObserveMalformed(platform string) {
	if MalformedRecords != nil {
		MalformedRecords.WithLabelValues(platform).Inc()
	}
}

// ObserveStreams counts streams observed for a platform in one cycle.
func ObserveStreams(platform string, n int) {
	if StreamsCollected != nil {
		StreamsCollected.WithLabelValues(platform).Add(float64(n))
	}
}

// ObservePlatformFailure counts a failed collection attempt for a platform.
func ObservePlatformFailure(platform string) {
	if PlatformFailures != nil {
		PlatformFailures.WithLabelValues(platform).Inc()
	}
}

// ObserveSnapshot counts one persisted snapshot.
func ObserveSnapshot() {
	if SnapshotsWritten != nil {
		SnapshotsWritten.Inc()
	}
}

// SetTrackedChannels records the current channel count.
func SetTrackedChannels(n int) {
	if TrackedChannelsGauge != nil {
		TrackedChannelsGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
