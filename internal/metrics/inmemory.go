package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	RegistrationsSucceeded uint64
	RegistrationsFailed    uint64
	ScansSucceeded         uint64
	ScansFailed            uint64
	ScanMatches            uint64
	MailsSent              uint64
	MailsFailed            uint64
	MailsSkipped           uint64
	MailSendCount          uint64
	MailSendTotalNs        int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	registrationsSucceeded uint64
	registrationsFailed    uint64
	scansSucceeded         uint64
	scansFailed            uint64
	scanMatches            uint64
	mailsSent              uint64
	mailsFailed            uint64
	mailsSkipped           uint64
	mailSendCount          uint64
	mailSendTotalNs        int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		RegistrationsSucceeded: atomic.LoadUint64(&m.registrationsSucceeded),
		RegistrationsFailed:    atomic.LoadUint64(&m.registrationsFailed),
		ScansSucceeded:         atomic.LoadUint64(&m.scansSucceeded),
		ScansFailed:            atomic.LoadUint64(&m.scansFailed),
		ScanMatches:            atomic.LoadUint64(&m.scanMatches),
		MailsSent:              atomic.LoadUint64(&m.mailsSent),
		MailsFailed:            atomic.LoadUint64(&m.mailsFailed),
		MailsSkipped:           atomic.LoadUint64(&m.mailsSkipped),
		MailSendCount:          atomic.LoadUint64(&m.mailSendCount),
		MailSendTotalNs:        atomic.LoadInt64(&m.mailSendTotalNs),
	}
}

// IncRegistration increments the registration counter for status.
func (m *InMemoryRecorder) IncRegistration(status string) {
	if status == "success" {
		atomic.AddUint64(&m.registrationsSucceeded, 1)
		return
	}
	atomic.AddUint64(&m.registrationsFailed, 1)
}

// IncScanRun increments the scan run counter for status.
func (m *InMemoryRecorder) IncScanRun(status string) {
	if status == "success" {
		atomic.AddUint64(&m.scansSucceeded, 1)
		return
	}
	atomic.AddUint64(&m.scansFailed, 1)
}

// ObserveScanDuration is not tracked in memory.
func (m *InMemoryRecorder) ObserveScanDuration(duration time.Duration) {}

// ObserveScanMatches adds to the matched users counter.
func (m *InMemoryRecorder) ObserveScanMatches(count int) {
	atomic.AddUint64(&m.scanMatches, uint64(count))
}

// IncMailDelivery increments the delivery counter for status.
func (m *InMemoryRecorder) IncMailDelivery(status string) {
	switch status {
	case "sent":
		atomic.AddUint64(&m.mailsSent, 1)
	case "skipped":
		atomic.AddUint64(&m.mailsSkipped, 1)
	default:
		atomic.AddUint64(&m.mailsFailed, 1)
	}
}

// ObserveMailSendDuration records a single send attempt duration.
func (m *InMemoryRecorder) ObserveMailSendDuration(duration time.Duration) {
	atomic.AddUint64(&m.mailSendCount, 1)
	atomic.AddInt64(&m.mailSendTotalNs, duration.Nanoseconds())
}
