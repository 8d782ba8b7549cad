package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
)

const (
	appendTimelineSQL = `
		INSERT INTO timeline_events (order_id, type, status, reason, occurred)
		VALUES ($1, $2, $3, $4, $5)`

	// id — BIGSERIAL: при равном occurred события идут в порядке записи.
	listTimelineSQL = `
		SELECT type, status, reason, occurred
		FROM timeline_events
		WHERE order_id = $1
		ORDER BY occurred, id`
)

type timelineRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewTimelineRepository создаёт PostgreSQL-реализацию истории альбарана.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Append записывает событие; для неизвестного альбарана возвращает NotFoundError.
func (r *timelineRepository) Append(event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = r.now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, appendTimelineSQL,
		event.OrderID, event.Type, string(event.Status), event.Reason, event.Occurred.UTC(),
	)
	if isForeignKeyViolation(err) {
		return domain.NewNotFoundError("albaran", event.OrderID)
	}
	if err != nil {
		return fmt.Errorf("append %s to albaran %s timeline: %w", event.Type, event.OrderID, err)
	}
	return nil
}

func (r *timelineRepository) List(orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, listTimelineSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("list albaran %s timeline: %w", orderID, err)
	}
	defer rows.Close()

	events := make([]domain.TimelineEvent, 0)
	for rows.Next() {
		event := domain.TimelineEvent{OrderID: orderID}
		var status string
		if err := rows.Scan(&event.Type, &status, &event.Reason, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan albaran %s timeline: %w", orderID, err)
		}
		event.Status = domain.Status(status)
		event.Occurred = event.Occurred.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate albaran %s timeline: %w", orderID, err)
	}
	return events, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
