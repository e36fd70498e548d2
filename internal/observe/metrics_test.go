package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/atl/pkg/atl"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
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

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
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

// sumWith returns the value of the counter data point carrying key=value.
func sumWith(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q: no data point with %s=%s", name, key, value)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"atl.request.queue.duration", m.RequestQueueDuration},
		{"atl.request.blocking_wait.duration", m.BlockingWaitDuration},
		{"atl.http.request.duration", m.HTTPRequestDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.0012)
		tc.h.Record(ctx, 0.004)
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

func TestRemoteCommandsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRemoteCommand(ctx, "execute_trigger", "success")
	m.RecordRemoteCommand(ctx, "execute_trigger", "success")
	m.RecordRemoteCommand(ctx, "execute_trigger", "failure_invalid_control_id")

	rm := collect(t, reader)
	if got := sumWith(t, rm, "atl.remote.commands", "status", "success"); got != 2 {
		t.Errorf("counter value = %d, want 2", got)
	}
}

func TestRemoteSessionsUpDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RemoteSessions.Add(ctx, 1)
	m.RemoteSessions.Add(ctx, 1)
	m.RemoteSessions.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "atl.remote.sessions")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("metric is not a sum with data points")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("sessions = %d, want 1", got)
	}
}

func TestTelemetry_RecordsRuntimeMeasurements(t *testing.T) {
	m, reader := newTestMetrics(t)
	var tel atl.Telemetry = NewTelemetry(m)

	tel.RequestProcessed("execute_trigger", atl.CategoryObject, atl.StatusSuccess, 2*time.Millisecond)
	tel.RequestProcessed("execute_trigger", atl.CategoryObject, atl.StatusSuccess, time.Millisecond)
	tel.BlockingWait("set_impl", 5*time.Millisecond)
	tel.PoolUsage(3, 7, 1)
	tel.PoolUsage(2, 4, 0)
	tel.Anomaly("negative_playing_count")
	tel.ImplChanged("null", true)

	rm := collect(t, reader)

	if got := sumWith(t, rm, "atl.requests", "kind", "execute_trigger"); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
	if got := sumWith(t, rm, "atl.invariant.anomalies", "kind", "negative_playing_count"); got != 1 {
		t.Errorf("anomalies = %d, want 1", got)
	}
	if got := sumWith(t, rm, "atl.impl.changes", "fallback", "true"); got != 1 {
		t.Errorf("impl changes = %d, want 1", got)
	}

	gauges := []struct {
		name string
		want int64
	}{
		{"atl.active_objects", 2},
		{"atl.active_events", 4},
		{"atl.active_files", 0},
	}
	for _, tc := range gauges {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			g, ok := met.Data.(metricdata.Gauge[int64])
			if !ok {
				t.Fatalf("metric %q is not a gauge", tc.name)
			}
			if len(g.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := g.DataPoints[0].Value; got != tc.want {
				t.Errorf("gauge value = %d, want %d", got, tc.want)
			}
		})
	}

	met := findMetric(rm, "atl.request.blocking_wait.duration")
	if met == nil {
		t.Fatal("blocking wait histogram not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Errorf("blocking wait data points = %+v", hist.DataPoints)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
