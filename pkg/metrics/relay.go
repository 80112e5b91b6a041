package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics records outbox relay throughput.
type RelayMetrics struct {
	published     *prometheus.CounterVec
	failed        *prometheus.CounterVec
	batchDuration prometheus.Histogram
}

// NewRelayMetrics registers the relay metrics on the provided registerer.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox events delivered to the broker.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_failed_total",
		Help: "Outbox publish failures by reason.",
	}, []string{"reason"})
	batchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_batch_duration_seconds",
		Help:    "Duration of one relay batch.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(published, failed, batchDuration)
	return &RelayMetrics{
		published:     published,
		failed:        failed,
		batchDuration: batchDuration,
	}
}

func (m *RelayMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *RelayMetrics) IncFailed(reason string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *RelayMetrics) ObserveBatch(duration time.Duration) {
	if m == nil || m.batchDuration == nil {
		return
	}
	m.batchDuration.Observe(duration.Seconds())
}
