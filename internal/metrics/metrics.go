// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Registration metrics
	IncRegistration(status string) // status: "success" or "failed"

	// Birthday scan metrics
	IncScanRun(status string) // status: "success" or "failed"
	ObserveScanDuration(duration time.Duration)
	ObserveScanMatches(count int)

	// Mail delivery metrics
	IncMailDelivery(status string) // status: "sent", "failed", "skipped"
	ObserveMailSendDuration(duration time.Duration)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
