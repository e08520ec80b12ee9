package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the data point of a sum metric carrying
// key=value, or -1 when there is none.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return -1
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"readalong.recording.duration", m.RecordingDuration},
		{"readalong.stt.finalize.duration", m.FinalizeDuration},
		{"readalong.comparison.accuracy", m.ComparisonAccuracy},
		{"readalong.scoring.duration", m.ScoringDuration},
		{"readalong.http.request.duration", m.HTTPRequestDuration},
	}
	for _, tc := range histograms {
		tc.h.Record(ctx, 0.25)
		tc.h.Record(ctx, 0.75)
	}

	rm := collect(t, reader)
	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordRecording(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRecording(ctx, StatusFinished, 3*time.Second)
	m.RecordRecording(ctx, StatusFinished, 4*time.Second)
	m.RecordRecording(ctx, StatusCancelled, time.Second)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "readalong.recordings", "status", StatusFinished); got != 2 {
		t.Errorf("finished = %d, want 2", got)
	}
	if got := sumFor(t, rm, "readalong.recordings", "status", StatusCancelled); got != 1 {
		t.Errorf("cancelled = %d, want 1", got)
	}

	// Only finished recordings feed the duration histogram.
	hist := findMetric(rm, "readalong.recording.duration").Data.(metricdata.Histogram[float64])
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("duration samples = %d, want 2", got)
	}
	if got := hist.DataPoints[0].Sum; got != 7 {
		t.Errorf("duration sum = %v, want 7", got)
	}
}

func TestRecordScoring(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordScoring(context.Background(), StatusError, 200*time.Millisecond)

	rm := collect(t, reader)
	hist := findMetric(rm, "readalong.scoring.duration").Data.(metricdata.Histogram[float64])
	dp := hist.DataPoints[0]
	if v, ok := dp.Attributes.Value("status"); !ok || v.AsString() != StatusError {
		t.Errorf("status attribute = %v, want %q", v, StatusError)
	}
}

func TestProviderCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "deepgram", "stt", StatusOK)
	m.RecordProviderRequest(ctx, "deepgram", "stt", StatusOK)
	m.RecordProviderRequest(ctx, "deepgram", "stt", StatusError)
	m.RecordProviderError(ctx, "httpscore", "scoring")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "readalong.provider.requests", "status", StatusOK); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumFor(t, rm, "readalong.provider.errors", "provider", "httpscore"); got != 1 {
		t.Errorf("httpscore errors = %d, want 1", got)
	}
}

func TestDroppedUpdates(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordDroppedUpdate(context.Background(), "level")
	m.RecordDroppedUpdate(context.Background(), "level")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "readalong.capture.updates_dropped", "kind", "level"); got != 2 {
		t.Errorf("dropped level updates = %d, want 2", got)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveRecordings.Add(ctx, 1)
	m.ActiveRecordings.Add(ctx, 1)
	m.ActiveRecordings.Add(ctx, -1)
	m.ActiveSessions.Add(ctx, 3)

	rm := collect(t, reader)
	gauges := []struct {
		name string
		want int64
	}{
		{"readalong.active_recordings", 1},
		{"readalong.active_sessions", 3},
	}
	for _, tc := range gauges {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) == 0 {
				t.Fatalf("metric %q has no sum data", tc.name)
			}
			if got := sum.DataPoints[0].Value; got != tc.want {
				t.Errorf("gauge value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different pointers")
	}
}
