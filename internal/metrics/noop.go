package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncRegistration is a no-op.
func (n *NoopRecorder) IncRegistration(status string) {}

// IncScanRun is a no-op.
func (n *NoopRecorder) IncScanRun(status string) {}

// ObserveScanDuration is a no-op.
func (n *NoopRecorder) ObserveScanDuration(duration time.Duration) {}

// ObserveScanMatches is a no-op.
func (n *NoopRecorder) ObserveScanMatches(count int) {}

// IncMailDelivery is a no-op.
func (n *NoopRecorder) IncMailDelivery(status string) {}

// ObserveMailSendDuration is a no-op.
func (n *NoopRecorder) ObserveMailSendDuration(duration time.Duration) {}
