package metrics

import "github.com/prometheus/client_golang/prometheus"

// Результаты публикации outbox для метки result.
const (
	PublishSent       = "sent"
	PublishRetryError = "retry_error"
	PublishFailed     = "failed"
	PublishDLQFailed  = "dlq_failed"
	PublishRejected   = "rejected"
)

// OutboxMetrics описывает backlog и исходы публикации transactional outbox.
type OutboxMetrics struct {
	publishAttempts *prometheus.CounterVec
	pending         prometheus.Gauge
	oldestAge       prometheus.Gauge
}

// NewOutboxMetrics создаёт метрики в глобальном registry.
func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOutboxMetricsWithRegisterer создаёт метрики в указанном registry.
func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &OutboxMetrics{
		publishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "albaran_outbox_publish_attempts_total",
			Help: "Total number of albaran event publish attempts grouped by event type and result.",
		}, []string{"event_type", "result"}),
		pending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "albaran_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox.",
		}),
		oldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "albaran_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		}),
	}
}

// RecordPublish учитывает попытку публикации события eventType.
func (m *OutboxMetrics) RecordPublish(eventType, result string) {
	m.publishAttempts.WithLabelValues(eventType, result).Inc()
}

// SetBacklog обновляет размер backlog и возраст самой старой записи.
func (m *OutboxMetrics) SetBacklog(pending int, oldestAgeSeconds float64) {
	if oldestAgeSeconds < 0 {
		oldestAgeSeconds = 0
	}
	m.pending.Set(float64(pending))
	m.oldestAge.Set(oldestAgeSeconds)
}
