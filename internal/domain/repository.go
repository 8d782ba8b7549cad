package domain

import "context"

// OrderRepository описывает требования к хранилищу альбаранов.
// Все методы чтения возвращают независимые копии.
type OrderRepository interface {
	// Get возвращает альбаран или NotFoundError.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает все альбараны, самые новые первыми.
	List(ctx context.Context) ([]Order, error)
	// Upsert полностью заменяет запись с тем же ID (или вставляет новую).
	Upsert(ctx context.Context, order Order) error
	// FindByStatus фильтрует по статусу; StatusAll возвращает всё.
	FindByStatus(ctx context.Context, status Status) ([]Order, error)
}
