// Package observe provides application-wide observability primitives for the
// atl daemon: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all atl metrics.
const meterName = "github.com/MrWong99/atl"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Request processing ---

	// Requests counts processed requests. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("category", ...), attribute.String("status", ...)
	Requests metric.Int64Counter

	// RequestQueueDuration tracks how long a request waited in the queue
	// before the audio goroutine processed it.
	RequestQueueDuration metric.Float64Histogram

	// BlockingWaitDuration tracks how long a producer waited on a blocking
	// request. Use with attribute:
	//   attribute.String("kind", ...)
	BlockingWaitDuration metric.Float64Histogram

	// --- Entity gauges ---

	ActiveObjects metric.Int64Gauge
	ActiveEvents  metric.Int64Gauge
	ActiveFiles   metric.Int64Gauge

	// --- Anomalies and backend changes ---

	// Anomalies counts tolerated lifecycle invariant violations. Use with
	// attribute:
	//   attribute.String("kind", ...)
	Anomalies metric.Int64Counter

	// ImplChanges counts backend swaps. Use with attributes:
	//   attribute.String("impl", ...), attribute.Bool("fallback", ...)
	ImplChanges metric.Int64Counter

	// --- Remote control ---

	// RemoteSessions tracks the number of connected remote control sessions.
	RemoteSessions metric.Int64UpDownCounter

	// RemoteCommands counts remote commands. Use with attributes:
	//   attribute.String("command", ...), attribute.String("status", ...)
	RemoteCommands metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// queueBuckets defines histogram bucket boundaries (in seconds) for request
// queueing. A request normally waits for less than one update tick.
var queueBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Requests.
	if met.Requests, err = m.Int64Counter("atl.requests",
		metric.WithDescription("Total processed requests by kind, category, and status."),
	); err != nil {
		return nil, err
	}
	if met.RequestQueueDuration, err = m.Float64Histogram("atl.request.queue.duration",
		metric.WithDescription("Time a request spent queued before processing."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(queueBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BlockingWaitDuration, err = m.Float64Histogram("atl.request.blocking_wait.duration",
		metric.WithDescription("Time a producer waited for a blocking request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(queueBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.ActiveObjects, err = m.Int64Gauge("atl.active_objects",
		metric.WithDescription("Number of live audio objects."),
	); err != nil {
		return nil, err
	}
	if met.ActiveEvents, err = m.Int64Gauge("atl.active_events",
		metric.WithDescription("Number of pooled events in use."),
	); err != nil {
		return nil, err
	}
	if met.ActiveFiles, err = m.Int64Gauge("atl.active_files",
		metric.WithDescription("Number of pooled standalone files in use."),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Anomalies, err = m.Int64Counter("atl.invariant.anomalies",
		metric.WithDescription("Total tolerated lifecycle invariant violations by kind."),
	); err != nil {
		return nil, err
	}
	if met.ImplChanges, err = m.Int64Counter("atl.impl.changes",
		metric.WithDescription("Total backend swaps by backend name."),
	); err != nil {
		return nil, err
	}
	if met.RemoteSessions, err = m.Int64UpDownCounter("atl.remote.sessions",
		metric.WithDescription("Number of connected remote control sessions."),
	); err != nil {
		return nil, err
	}
	if met.RemoteCommands, err = m.Int64Counter("atl.remote.commands",
		metric.WithDescription("Total remote commands by command and status."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("atl.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordRemoteCommand is a convenience method that records a remote command
// counter increment with the standard attribute set.
func (m *Metrics) RecordRemoteCommand(ctx context.Context, command, status string) {
	m.RemoteCommands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		),
	)
}

// RecordImplChange records a backend swap.
func (m *Metrics) RecordImplChange(ctx context.Context, name string, fallback bool) {
	m.ImplChanges.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("impl", name),
			attribute.String("fallback", strconv.FormatBool(fallback)),
		),
	)
}
