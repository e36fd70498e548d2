package atl

import "time"

// Telemetry receives runtime measurements from the audio goroutine. It must
// not block. internal/observe provides an OpenTelemetry implementation.
type Telemetry interface {
	// RequestProcessed is called once per processed request with the time it
	// spent queued.
	RequestProcessed(kind string, category Category, status Status, queued time.Duration)

	// BlockingWait is called on the producer goroutine after a blocking
	// request completed.
	BlockingWait(kind string, waited time.Duration)

	// PoolUsage reports the live entity counts after every update tick.
	PoolUsage(objects, events, files int)

	// Anomaly counts a tolerated invariant violation.
	Anomaly(kind string)

	// ImplChanged is called after every backend swap. fallback is true when
	// the requested backend failed and the null backend took over.
	ImplChanged(name string, fallback bool)
}

// NopTelemetry discards all measurements.
type NopTelemetry struct{}

var _ Telemetry = NopTelemetry{}

func (NopTelemetry) RequestProcessed(string, Category, Status, time.Duration) {}
func (NopTelemetry) BlockingWait(string, time.Duration)                       {}
func (NopTelemetry) PoolUsage(int, int, int)                                  {}
func (NopTelemetry) Anomaly(string)                                           {}
func (NopTelemetry) ImplChanged(string, bool)                                 {}
