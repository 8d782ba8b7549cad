package domain

import (
	"context"
	"strings"
	"time"
)

// ClientDirectory — внешний справочник клиентов.
type ClientDirectory interface {
	// Resolve возвращает клиента или NotFoundError.
	Resolve(ctx context.Context, clientID string) (Client, error)
	// List возвращает всех клиентов справочника.
	List(ctx context.Context) ([]Client, error)
}

// ExportRequest — данные, которые уходят в ERP.
type ExportRequest struct {
	Order  Order
	Client Client
}

// ExportReceipt — подтверждение от ERP.
type ExportReceipt struct {
	// DocumentNumber — номер альбарана на стороне Factusol, может быть пустым.
	DocumentNumber string
}

// ExportGateway описывает интеграцию с Factusol.
// Любая ошибка трактуется как отказ ERP; текст ошибки сохраняется как причина.
type ExportGateway interface {
	Submit(ctx context.Context, req ExportRequest) (ExportReceipt, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла альбарана.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// ValidateOutboxMessage проверяет, что событие привязано к альбарану и имеет тип.
func ValidateOutboxMessage(msg OutboxMessage) error {
	switch {
	case strings.TrimSpace(msg.AggregateID) == "":
		return NewValidationError("aggregate_id", ErrOutboxMessageInvalid)
	case strings.TrimSpace(msg.EventType) == "":
		return NewValidationError("event_type", ErrOutboxMessageInvalid)
	}
	return nil
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
