package memory

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
)

func TestTimelineRepository_AppendList(t *testing.T) {
	repo := NewTimelineRepository()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	events := []domain.TimelineEvent{
		{OrderID: "#00001", Type: "AlbaranExportFailed", Status: domain.StatusFactusolError, Reason: "timeout", Occurred: base.Add(2 * time.Minute)},
		{OrderID: "#00001", Type: "AlbaranCreated", Status: domain.StatusManualReview, Occurred: base},
		{OrderID: "#00002", Type: "AlbaranCreated", Status: domain.StatusManualReview, Occurred: base},
	}
	for _, e := range events {
		if err := repo.Append(e); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	got, err := repo.List("#00001")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != "AlbaranCreated" || got[1].Reason != "timeout" {
		t.Fatalf("events are not chronological: %+v", got)
	}

	got[0].Type = "mutated"
	again, _ := repo.List("#00001")
	if again[0].Type != "AlbaranCreated" {
		t.Fatal("list must return a copy")
	}
}
