package journal

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
	"github.com/vladislavdragonenkov/albaran/internal/metrics"
	"github.com/vladislavdragonenkov/albaran/internal/storage/memory"
)

type failingOutbox struct {
	domain.OutboxRepository
}

func (failingOutbox) Enqueue(domain.OutboxMessage) (domain.OutboxMessage, error) {
	return domain.OutboxMessage{}, errors.New("outbox down")
}

func testOrder() domain.Order {
	return domain.Order{
		ID:          "#00003",
		ClientID:    "c-1",
		Status:      domain.StatusFactusolError,
		Total:       decimal.RequireFromString("9.075"),
		ExternalRef: "",
		UpdatedAt:   time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestRecorder_Record(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	rec := NewRecorder(outbox, timeline, metrics.NewLifecycleMetricsWithRegisterer(prometheus.NewRegistry()), log.New().WithField("test", "journal"))

	rec.Record(testOrder(), EventAlbaranExportFailed, "factusol: 503")

	pending := outbox.AllPending()
	if len(pending) != 1 {
		t.Fatalf("expected 1 outbox event, got %d", len(pending))
	}
	msg := pending[0]
	if msg.AggregateType != AggregateType || msg.AggregateID != "#00003" || msg.EventType != EventAlbaranExportFailed {
		t.Fatalf("unexpected outbox message: %+v", msg)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["status"] != "FACTUSOL_ERROR" || payload["reason"] != "factusol: 503" || payload["total"] != "9.075" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if _, ok := payload["external_ref"]; ok {
		t.Fatal("empty external_ref must be omitted")
	}

	events, err := timeline.List("#00003")
	if err != nil {
		t.Fatalf("timeline list: %v", err)
	}
	if len(events) != 1 || events[0].Reason != "factusol: 503" || !events[0].Occurred.Equal(testOrder().UpdatedAt) {
		t.Fatalf("unexpected timeline: %+v", events)
	}
}

func TestRecorder_OutboxFailureStillWritesTimeline(t *testing.T) {
	timeline := memory.NewTimelineRepository()
	rec := NewRecorder(failingOutbox{}, timeline, nil, nil)

	rec.Record(testOrder(), EventAlbaranReviewed, "")

	events, _ := timeline.List("#00003")
	if len(events) != 1 {
		t.Fatalf("expected timeline event despite outbox failure, got %d", len(events))
	}
}

func TestRecorder_NilSafe(t *testing.T) {
	var rec *Recorder
	rec.Record(testOrder(), EventAlbaranCreated, "")

	NewRecorder(nil, nil, nil, nil).Record(testOrder(), EventAlbaranCreated, "")
}

func TestIsKnownEvent(t *testing.T) {
	for _, eventType := range []string{
		EventAlbaranCreated, EventAlbaranReviewed, EventAlbaranExported, EventAlbaranExportFailed, EventAlbaranRequeued,
	} {
		if !IsKnownEvent(eventType) {
			t.Fatalf("expected %s to be known", eventType)
		}
	}
	for _, eventType := range []string{"", "OrderCreated", "albaranCreated"} {
		if IsKnownEvent(eventType) {
			t.Fatalf("expected %q to be unknown", eventType)
		}
	}
}
