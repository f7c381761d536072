// Package observe provides OpenTelemetry metrics for the voice pipeline.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all roomvoice metrics.
const meterName = "github.com/ambientworks/roomvoice"

// Metrics holds all OpenTelemetry metric instruments for the voice pipeline.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TranscriptionDuration tracks speech-to-text latency. Use with
	// attribute.String("source", "native"|"remote").
	TranscriptionDuration metric.Float64Histogram

	// DispatchDuration tracks backend command dispatch latency.
	DispatchDuration metric.Float64Histogram

	// --- Counters ---

	// Utterances counts finalized utterances handed to the gateway.
	Utterances metric.Int64Counter

	// Detections counts wake-phrase detections. Use with
	// attribute.String("method", ...).
	Detections metric.Int64Counter

	// Dispatches counts commands dispatched to the backend. Use with
	// attribute.String("status", "ok"|"error").
	Dispatches metric.Int64Counter

	// TranscriptionFallbacks counts native-to-remote gateway fallbacks.
	TranscriptionFallbacks metric.Int64Counter

	// TranscriptionErrors counts utterances both transcription tiers failed on.
	TranscriptionErrors metric.Int64Counter

	// --- Gauges ---

	// Listening is 1 while the listening loop worker is running.
	Listening metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for transcription and backend round-trip latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("roomvoice.transcription.duration",
		metric.WithDescription("Latency of utterance transcription by source."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DispatchDuration, err = m.Float64Histogram("roomvoice.dispatch.duration",
		metric.WithDescription("Latency of backend command dispatch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Utterances, err = m.Int64Counter("roomvoice.utterances",
		metric.WithDescription("Total finalized utterances forwarded to transcription."),
	); err != nil {
		return nil, err
	}
	if met.Detections, err = m.Int64Counter("roomvoice.detections",
		metric.WithDescription("Total wake-phrase detections by method."),
	); err != nil {
		return nil, err
	}
	if met.Dispatches, err = m.Int64Counter("roomvoice.dispatches",
		metric.WithDescription("Total backend command dispatches by status."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionFallbacks, err = m.Int64Counter("roomvoice.transcription.fallbacks",
		metric.WithDescription("Total utterances that fell back to remote transcription."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionErrors, err = m.Int64Counter("roomvoice.transcription.errors",
		metric.WithDescription("Total utterances dropped because both transcription tiers failed."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.Listening, err = m.Int64UpDownCounter("roomvoice.listening",
		metric.WithDescription("Whether the listening loop worker is running."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}
