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
	opTimeout = 5 * time.Second
)

const selectOrderColumns = `
	SELECT id, client_id, date, channel, status, total, failure_reason, external_ref, created_at, updated_at
	FROM albaranes
`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, selectOrderColumns+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.NewNotFoundError("albaran", id)
		}
		return domain.Order{}, fmt.Errorf("select albaran: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items[order.ID]
	if order.Items == nil {
		order.Items = make([]domain.OrderItem, 0)
	}

	return order, nil
}

func (r *orderRepository) List(ctx context.Context) ([]domain.Order, error) {
	return r.FindByStatus(ctx, domain.StatusAll)
}

func (r *orderRepository) FindByStatus(ctx context.Context, status domain.Status) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		rows *sql.Rows
		err  error
	)
	if status == domain.StatusAll {
		rows, err = r.db.QueryContext(ctx, selectOrderColumns)
	} else {
		rows, err = r.db.QueryContext(ctx, selectOrderColumns+` WHERE status = $1`, string(status))
	}
	if err != nil {
		return nil, fmt.Errorf("list albaranes: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan albaran row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate albaran rows: %w", err)
	}
	rows.Close()

	if len(orders) > 0 {
		ids := make([]string, len(orders))
		for idx := range orders {
			ids[idx] = orders[idx].ID
		}
		items, err := r.loadItems(ctx, ids...)
		if err != nil {
			return nil, err
		}
		for idx := range orders {
			orders[idx].Items = items[orders[idx].ID]
			if orders[idx].Items == nil {
				orders[idx].Items = make([]domain.OrderItem, 0)
			}
		}
	}

	// Порядок по номеру "#NNNNN" не выражается через ORDER BY по тексту.
	domain.SortNewestFirst(orders)
	return orders, nil
}

// Upsert заменяет шапку и все позиции альбарана в одной транзакции.
func (r *orderRepository) Upsert(ctx context.Context, order domain.Order) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	channel := order.Channel
	if channel == "" {
		channel = domain.ChannelManual
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO albaranes (
			id, client_id, date, channel, status, total, failure_reason, external_ref, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			date = EXCLUDED.date,
			channel = EXCLUDED.channel,
			status = EXCLUDED.status,
			total = EXCLUDED.total,
			failure_reason = EXCLUDED.failure_reason,
			external_ref = EXCLUDED.external_ref,
			updated_at = EXCLUDED.updated_at
	`,
		order.ID, order.ClientID, domain.DateOnly(order.Date), string(channel), string(order.Status),
		order.Total, order.FailureReason, order.ExternalRef, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isCheckViolation(err) {
			return domain.NewValidationError("albaran", err)
		}
		return fmt.Errorf("upsert albaran: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM albaran_items WHERE order_id = $1`, order.ID); err != nil {
		return fmt.Errorf("delete albaran items: %w", err)
	}

	for position, item := range order.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO albaran_items (
				order_id, id, position, code, concept, quantity, price, discount
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			order.ID, item.ID, position, item.Code, item.Concept, item.Quantity, item.Price, item.Discount,
		); err != nil {
			if isCheckViolation(err) {
				return domain.NewValidationError(fmt.Sprintf("items[%d]", position), err)
			}
			return fmt.Errorf("insert albaran item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert albaran: %w", err)
	}

	return nil
}

// loadItems загружает позиции всех указанных альбаранов одним запросом.
func (r *orderRepository) loadItems(ctx context.Context, orderIDs ...string) (map[string][]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, id, code, concept, quantity, price, discount
		FROM albaran_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position ASC
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load albaran items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ID, &item.Code, &item.Concept, &item.Quantity, &item.Price, &item.Discount); err != nil {
			return nil, fmt.Errorf("scan albaran item: %w", err)
		}
		items[orderID] = append(items[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate albaran items: %w", err)
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order   domain.Order
		channel string
		status  string
	)
	if err := row.Scan(
		&order.ID, &order.ClientID, &order.Date, &channel, &status, &order.Total,
		&order.FailureReason, &order.ExternalRef, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Channel = domain.Channel(channel)
	order.Status = domain.Status(status)
	order.Date = domain.DateOnly(order.Date)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
