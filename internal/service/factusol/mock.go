package factusol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
)

// MockGateway — конфигурируемая заглушка ExportGateway для dev-окружения и тестов.
type MockGateway struct {
	mu sync.Mutex

	// Err, если задан, возвращается из каждого вызова Submit.
	Err error
	// Delay имитирует задержку ERP; прерывается отменой ctx.
	Delay time.Duration

	calls    int
	requests []domain.ExportRequest
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// Submit сохраняет запрос и возвращает настроенный результат.
func (m *MockGateway) Submit(ctx context.Context, req domain.ExportRequest) (domain.ExportReceipt, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.requests = append(m.requests, domain.ExportRequest{Order: req.Order.Clone(), Client: req.Client})
	delay, err := m.Delay, m.Err
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.ExportReceipt{}, ctx.Err()
		case <-timer.C:
		}
	}
	if err != nil {
		return domain.ExportReceipt{}, err
	}
	return domain.ExportReceipt{DocumentNumber: fmt.Sprintf("FS-%06d", call)}, nil
}

// SetError меняет результат последующих вызовов.
func (m *MockGateway) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// Calls возвращает количество вызовов Submit.
func (m *MockGateway) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests возвращает копию полученных запросов.
func (m *MockGateway) Requests() []domain.ExportRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ExportRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

var _ domain.ExportGateway = (*MockGateway)(nil)
