package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/atl/pkg/atl"
)

// Telemetry records runtime measurements of an [atl.System] into [Metrics].
// All methods return without blocking.
type Telemetry struct {
	m *Metrics
}

var _ atl.Telemetry = (*Telemetry)(nil)

// NewTelemetry returns an [atl.Telemetry] backed by m. A nil m uses
// [DefaultMetrics].
func NewTelemetry(m *Metrics) *Telemetry {
	if m == nil {
		m = DefaultMetrics()
	}
	return &Telemetry{m: m}
}

// RequestProcessed implements [atl.Telemetry].
func (t *Telemetry) RequestProcessed(kind string, category atl.Category, status atl.Status, queued time.Duration) {
	ctx := context.Background()
	t.m.Requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("category", category.String()),
		attribute.String("status", status.String()),
	))
	t.m.RequestQueueDuration.Record(ctx, queued.Seconds())
}

// BlockingWait implements [atl.Telemetry].
func (t *Telemetry) BlockingWait(kind string, waited time.Duration) {
	t.m.BlockingWaitDuration.Record(context.Background(), waited.Seconds(),
		metric.WithAttributes(attribute.String("kind", kind)))
}

// PoolUsage implements [atl.Telemetry].
func (t *Telemetry) PoolUsage(objects, events, files int) {
	ctx := context.Background()
	t.m.ActiveObjects.Record(ctx, int64(objects))
	t.m.ActiveEvents.Record(ctx, int64(events))
	t.m.ActiveFiles.Record(ctx, int64(files))
}

// Anomaly implements [atl.Telemetry].
func (t *Telemetry) Anomaly(kind string) {
	t.m.Anomalies.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("kind", kind)))
}

// ImplChanged implements [atl.Telemetry].
func (t *Telemetry) ImplChanged(name string, fallback bool) {
	t.m.RecordImplChange(context.Background(), name, fallback)
}
