package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder on top of Prometheus collectors.
type PrometheusRecorder struct {
	registrations *prometheus.CounterVec
	scanRuns      *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	scanMatches   prometheus.Counter
	mailDelivery  *prometheus.CounterVec
	mailDuration  prometheus.Histogram
}

// NewPrometheus creates a PrometheusRecorder and registers its collectors with reg.
func NewPrometheus(reg prometheus.Registerer) *PrometheusRecorder {
	p := &PrometheusRecorder{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wishday_registrations_total",
			Help: "User registrations by outcome.",
		}, []string{"status"}),
		scanRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wishday_birthday_scans_total",
			Help: "Birthday scan runs by outcome.",
		}, []string{"status"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wishday_birthday_scan_duration_seconds",
			Help:    "Wall time of a birthday scan run.",
			Buckets: prometheus.DefBuckets,
		}),
		scanMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wishday_birthday_matches_total",
			Help: "Users matched by birthday scans.",
		}),
		mailDelivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wishday_mail_deliveries_total",
			Help: "Birthday mail deliveries by outcome.",
		}, []string{"status"}),
		mailDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wishday_mail_send_duration_seconds",
			Help:    "Latency of a single mail transport call.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		p.registrations,
		p.scanRuns,
		p.scanDuration,
		p.scanMatches,
		p.mailDelivery,
		p.mailDuration,
	)

	return p
}

// IncRegistration counts a registration attempt.
func (p *PrometheusRecorder) IncRegistration(status string) {
	p.registrations.WithLabelValues(status).Inc()
}

// IncScanRun counts a scan run.
func (p *PrometheusRecorder) IncScanRun(status string) {
	p.scanRuns.WithLabelValues(status).Inc()
}

// ObserveScanDuration records how long a scan took.
func (p *PrometheusRecorder) ObserveScanDuration(duration time.Duration) {
	p.scanDuration.Observe(duration.Seconds())
}

// ObserveScanMatches adds the number of matched users.
func (p *PrometheusRecorder) ObserveScanMatches(count int) {
	p.scanMatches.Add(float64(count))
}

// IncMailDelivery counts a delivery outcome.
func (p *PrometheusRecorder) IncMailDelivery(status string) {
	p.mailDelivery.WithLabelValues(status).Inc()
}

// ObserveMailSendDuration records a transport call latency.
func (p *PrometheusRecorder) ObserveMailSendDuration(duration time.Duration) {
	p.mailDuration.Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
