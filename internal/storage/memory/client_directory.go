package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
)

// ClientDirectory — read-only справочник клиентов в памяти.
type ClientDirectory struct {
	mu      sync.RWMutex
	clients map[string]domain.Client
}

// NewClientDirectory создаёт справочник из переданного списка.
func NewClientDirectory(clients ...domain.Client) *ClientDirectory {
	dir := &ClientDirectory{clients: make(map[string]domain.Client, len(clients))}
	for _, c := range clients {
		dir.clients[c.ID] = c
	}
	return dir
}

// Resolve возвращает клиента по ID или NotFoundError.
func (d *ClientDirectory) Resolve(_ context.Context, clientID string) (domain.Client, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	client, ok := d.clients[clientID]
	if !ok {
		return domain.Client{}, domain.NewNotFoundError("client", clientID)
	}
	return client, nil
}

// List возвращает клиентов, отсортированных по имени.
func (d *ClientDirectory) List(_ context.Context) ([]domain.Client, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]domain.Client, 0, len(d.clients))
	for _, c := range d.clients {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

var _ domain.ClientDirectory = (*ClientDirectory)(nil)
