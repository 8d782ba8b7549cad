package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий, опционально заполненный seed-данными.
func NewOrderRepository(seed ...domain.Order) domain.OrderRepository {
	repo := &orderRepositoryInMemory{
		items: make(map[string]domain.Order, len(seed)),
	}
	for _, order := range seed {
		repo.items[order.ID] = order.Clone()
	}
	return repo
}

// Get возвращает копию альбарана или NotFoundError.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.NewNotFoundError("albaran", id)
	}
	return order.Clone(), nil
}

// List возвращает снимок всех альбаранов, новые первыми.
func (r *orderRepositoryInMemory) List(ctx context.Context) ([]domain.Order, error) {
	return r.FindByStatus(ctx, domain.StatusAll)
}

// FindByStatus возвращает снимок альбаранов в статусе status (StatusAll — все).
func (r *orderRepositoryInMemory) FindByStatus(_ context.Context, status domain.Status) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if status != domain.StatusAll && order.Status != status {
			continue
		}
		result = append(result, order.Clone())
	}

	domain.SortNewestFirst(result)
	return result, nil
}

// Upsert заменяет запись целиком. Хранится собственная копия, внешние мутации не видны.
func (r *orderRepositoryInMemory) Upsert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[order.ID] = order.Clone()
	return nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
