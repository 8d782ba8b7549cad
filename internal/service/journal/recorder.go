// Package journal записывает события жизненного цикла альбарана
// в transactional outbox и timeline.
package journal

import (
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
	"github.com/vladislavdragonenkov/albaran/internal/metrics"
)

// AggregateType — тип агрегата в outbox.
const AggregateType = "albaran"

// Типы событий.
const (
	EventAlbaranCreated      = "AlbaranCreated"
	EventAlbaranReviewed     = "AlbaranReviewed"
	EventAlbaranExported     = "AlbaranExported"
	EventAlbaranExportFailed = "AlbaranExportFailed"
	EventAlbaranRequeued     = "AlbaranRequeued"
)

var knownEvents = map[string]struct{}{
	EventAlbaranCreated:      {},
	EventAlbaranReviewed:     {},
	EventAlbaranExported:     {},
	EventAlbaranExportFailed: {},
	EventAlbaranRequeued:     {},
}

// IsKnownEvent сообщает, является ли eventType событием жизненного цикла альбарана.
func IsKnownEvent(eventType string) bool {
	_, ok := knownEvents[eventType]
	return ok
}

// Recorder публикует событие в outbox и timeline. Ошибки записи только логируются:
// состояние альбарана к этому моменту уже сохранено.
type Recorder struct {
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	metrics  *metrics.LifecycleMetrics
	logger   *log.Entry
	now      func() time.Time
}

// NewRecorder создаёт Recorder. Любая из зависимостей может быть nil.
func NewRecorder(
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	lifecycleMetrics *metrics.LifecycleMetrics,
	logger *log.Entry,
) *Recorder {
	if logger == nil {
		logger = log.New().WithField("component", "journal")
	}
	return &Recorder{
		outbox:   outbox,
		timeline: timeline,
		metrics:  lifecycleMetrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Record фиксирует событие eventType для альбарана в его текущем состоянии.
func (r *Recorder) Record(order domain.Order, eventType, reason string) {
	if r == nil {
		return
	}
	occurred := order.UpdatedAt
	if occurred.IsZero() {
		occurred = r.now()
	}

	payload := map[string]interface{}{
		"order_id":  order.ID,
		"client_id": order.ClientID,
		"status":    string(order.Status),
		"total":     order.Total.String(),
		"ts":        occurred.Format(time.RFC3339Nano),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	if order.ExternalRef != "" {
		payload["external_ref"] = order.ExternalRef
	}

	r.enqueue(order.ID, eventType, payload)
	r.appendTimeline(domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     eventType,
		Status:   order.Status,
		Reason:   reason,
		Occurred: occurred,
	})
}

func (r *Recorder) enqueue(orderID, eventType string, payload map[string]interface{}) {
	if r.outbox == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: AggregateType,
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := r.outbox.Enqueue(msg); err != nil {
		r.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Error("enqueue event failed")
		return
	}
	if r.metrics != nil {
		r.metrics.RecordOutboxEvent()
	}
}

func (r *Recorder) appendTimeline(event domain.TimelineEvent) {
	if r.timeline == nil {
		return
	}
	if err := r.timeline.Append(event); err != nil {
		r.logger.WithError(err).WithFields(log.Fields{
			"order_id": event.OrderID,
			"event":    event.Type,
		}).Warn("append timeline event failed")
		return
	}
	if r.metrics != nil {
		r.metrics.RecordTimelineEvent()
	}
}
