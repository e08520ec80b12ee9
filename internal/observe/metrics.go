// Package observe provides the observability primitives shared by the
// read-along engine: OpenTelemetry metrics, tracing helpers, trace-aware
// structured logging, and HTTP middleware for the ops server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// Prometheus scraping via [InitProvider]. [DefaultMetrics] is a lazily built
// package-level instance; tests should build their own with [NewMetrics] and
// a manual reader to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/readalong"

// Recording outcomes used as the "status" attribute of RecordingsTotal.
const (
	StatusFinished  = "finished"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
	StatusOK        = "ok"
	StatusError     = "error"
)

// Metrics holds all OpenTelemetry instruments. All fields are safe for
// concurrent use.
type Metrics struct {
	// RecordingDuration tracks the wall-clock length of finished recordings.
	RecordingDuration metric.Float64Histogram

	// FinalizeDuration tracks how long the recognizer takes to deliver its
	// last final after the microphone stops.
	FinalizeDuration metric.Float64Histogram

	// ComparisonAccuracy tracks the word accuracy of compared recordings.
	ComparisonAccuracy metric.Float64Histogram

	// ScoringDuration tracks pronunciation-scoring latency. Use with
	// attribute.String("status", ...).
	ScoringDuration metric.Float64Histogram

	// RecordingsTotal counts recording attempts by outcome. Use with
	// attribute.String("status", ...).
	RecordingsTotal metric.Int64Counter

	// ProviderRequests counts provider calls. Use with attributes
	// "provider", "kind" and "status".
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes
	// "provider" and "kind".
	ProviderErrors metric.Int64Counter

	// UpdatesDropped counts capture updates discarded because the consumer
	// lagged. Use with attribute.String("kind", ...).
	UpdatesDropped metric.Int64Counter

	// ActiveRecordings tracks microphones currently held open.
	ActiveRecordings metric.Int64UpDownCounter

	// ActiveSessions tracks open practice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks ops-server request time. Use with
	// attributes "method" and "path".
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds for provider calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// recordingBuckets are boundaries in seconds for spoken sentences.
var recordingBuckets = []float64{
	0.5, 1, 2, 3, 5, 8, 13, 21, 34, 60,
}

// ratioBuckets are boundaries for values on the 0–1 scale.
var ratioBuckets = []float64{
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1,
}

// NewMetrics creates all instruments using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RecordingDuration, err = m.Float64Histogram("readalong.recording.duration",
		metric.WithDescription("Wall-clock length of finished recordings."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(recordingBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FinalizeDuration, err = m.Float64Histogram("readalong.stt.finalize.duration",
		metric.WithDescription("Time from microphone stop to the last final transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ComparisonAccuracy, err = m.Float64Histogram("readalong.comparison.accuracy",
		metric.WithDescription("Word accuracy of compared recordings."),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(ratioBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ScoringDuration, err = m.Float64Histogram("readalong.scoring.duration",
		metric.WithDescription("Latency of pronunciation-scoring requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.RecordingsTotal, err = m.Int64Counter("readalong.recordings",
		metric.WithDescription("Recording attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("readalong.provider.requests",
		metric.WithDescription("Provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("readalong.provider.errors",
		metric.WithDescription("Provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.UpdatesDropped, err = m.Int64Counter("readalong.capture.updates_dropped",
		metric.WithDescription("Capture updates dropped because the consumer lagged."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.ActiveRecordings, err = m.Int64UpDownCounter("readalong.active_recordings",
		metric.WithDescription("Microphones currently held open."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("readalong.active_sessions",
		metric.WithDescription("Open practice sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("readalong.http.request.duration",
		metric.WithDescription("Ops-server request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], creating it on first
// call from [otel.GetMeterProvider]. Panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordRecording records the outcome of a recording attempt. d is only
// observed for finished recordings.
func (m *Metrics) RecordRecording(ctx context.Context, status string, d time.Duration) {
	m.RecordingsTotal.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
	if status == StatusFinished {
		m.RecordingDuration.Record(ctx, d.Seconds())
	}
}

// RecordScoring records the latency and outcome of a scoring request.
func (m *Metrics) RecordScoring(ctx context.Context, status string, d time.Duration) {
	m.ScoringDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("status", status)))
}

// RecordProviderRequest increments ProviderRequests.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError increments ProviderErrors.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordDroppedUpdate increments UpdatesDropped for the given update kind.
func (m *Metrics) RecordDroppedUpdate(ctx context.Context, kind string) {
	m.UpdatesDropped.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind)))
}
