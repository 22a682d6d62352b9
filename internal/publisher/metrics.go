package publisher

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/imagepub/internal/image"
)

// Metrics exposes Prometheus collectors that report publish activity.
// It implements Recorder and ServiceEventListener so a single value can be
// attached to a Session for both.
type Metrics struct {
	published     *prometheus.CounterVec
	skipped       prometheus.Counter
	failures      prometheus.Counter
	payloadChars  prometheus.Histogram
	serviceEvents *prometheus.CounterVec
	runDuration   prometheus.Gauge
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Callers supply a fresh registry when unique metric names are required
// (for example in tests). Registration errors panic, mirroring promauto.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "imagepub",
				Name:      "messages_published_total",
				Help:      "Messages handed to the broker client, by content type.",
			},
			[]string{"content_type"},
		),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imagepub",
			Name:      "files_skipped_total",
			Help:      "Image files skipped because they could not be read.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imagepub",
			Name:      "publish_failures_total",
			Help:      "Publishes reported as failed by the broker client.",
		}),
		payloadChars: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "imagepub",
			Name:      "payload_size_chars",
			Help:      "Size of published base64 payloads in characters.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		serviceEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "imagepub",
				Name:      "service_events_total",
				Help:      "Connection lifecycle notifications, by kind.",
			},
			[]string{"kind"},
		),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "imagepub",
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the most recent publish run.",
		}),
	}

	collectors := []prometheus.Collector{
		m.published, m.skipped, m.failures, m.payloadChars, m.serviceEvents, m.runDuration,
	}
	reg.MustRegister(collectors...)

	return m
}

func (m *Metrics) RecordPublished(msg *image.Message) {
	m.published.WithLabelValues(msg.ContentType()).Inc()
	m.payloadChars.Observe(float64(len(msg.Body)))
}

func (m *Metrics) RecordSkipped(_ image.File, _ error) {
	m.skipped.Inc()
}

func (m *Metrics) RecordFailed(_ FailureEvent) {
	m.failures.Inc()
}

func (m *Metrics) OnReconnected(_ ServiceEvent) {
	m.serviceEvents.WithLabelValues(string(EventReconnected)).Inc()
}

func (m *Metrics) OnReconnecting(_ ServiceEvent) {
	m.serviceEvents.WithLabelValues(string(EventReconnecting)).Inc()
}

func (m *Metrics) OnServiceInterrupted(_ ServiceEvent) {
	m.serviceEvents.WithLabelValues(string(EventServiceInterrupted)).Inc()
}

// ObserveRunDuration records the wall time of a run in seconds.
func (m *Metrics) ObserveRunDuration(seconds float64) {
	m.runDuration.Set(seconds)
}

// MultiListener fans service events out to several listeners.
type MultiListener []ServiceEventListener

func (ml MultiListener) OnReconnected(ev ServiceEvent) {
	for _, l := range ml {
		l.OnReconnected(ev)
	}
}

func (ml MultiListener) OnReconnecting(ev ServiceEvent) {
	for _, l := range ml {
		l.OnReconnecting(ev)
	}
}

func (ml MultiListener) OnServiceInterrupted(ev ServiceEvent) {
	for _, l := range ml {
		l.OnServiceInterrupted(ev)
	}
}
