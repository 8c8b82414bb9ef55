package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if CollectionCycles == nil {
		t.Error("CollectionCycles counter not initialized")
	}
	if CycleDuration == nil {
		t.Error("CycleDuration histogram not initialized")
	}
	if StreamsCollected == nil {
		t.Error("StreamsCollected counter vec not initialized")
	}
}

func TestHelpersAreNilSafe(t *testing.T) {
	// These helpers are called from client code that may run in tests
	// without Init; they must not panic whether or not metrics exist.
	ObserveMalformed("twitch")
	ObserveStreams("kick", 5)
	ObservePlatformFailure("youtube")
	ObserveSnapshot()
	SetTrackedChannels(3)
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	Init()

	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})
	prometheus.MustRegister(testHistogram)
	defer prometheus.Unregister(testHistogram)

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil || *metric.Histogram.SampleCount == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelationContext(t *testing.T) {
	ctx := WithCorrelation(t.Context(), "corr-123")
	if got := GetCorrelation(ctx); got != "corr-123" {
		t.Errorf("GetCorrelation = %q, want corr-123", got)
	}
	if got := GetCorrelation(t.Context()); got != "" {
		t.Errorf("GetCorrelation without value = %q, want empty", got)
	}
}
