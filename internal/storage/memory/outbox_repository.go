package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
)

type outboxStatus uint8

const (
	outboxPending outboxStatus = iota
	outboxSent
	outboxFailed
)

const defaultPullLimit = 100

type outboxRecord struct {
	msg      domain.OutboxMessage
	status   outboxStatus
	seq      uint64
	queuedAt time.Time
}

// outboxRepositoryInMemory хранит события альбаранов в порядке постановки.
type outboxRepositoryInMemory struct {
	mu      sync.RWMutex
	records map[string]*outboxRecord
	nextSeq uint64
	now     func() time.Time
}

// NewOutboxRepository создаёт in-memory outbox.
func NewOutboxRepository() *outboxRepositoryInMemory {
	return &outboxRepositoryInMemory{
		records: make(map[string]*outboxRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue ставит событие альбарана в очередь.
func (r *outboxRepositoryInMemory) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := domain.ValidateOutboxMessage(msg); err != nil {
		return domain.OutboxMessage{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	r.nextSeq++
	r.records[msg.ID] = &outboxRecord{
		msg:      cloneOutboxMessage(msg),
		status:   outboxPending,
		seq:      r.nextSeq,
		queuedAt: r.now(),
	}
	return msg, nil
}

// PullPending возвращает до limit pending-событий в порядке постановки.
func (r *outboxRepositoryInMemory) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultPullLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	pending := r.pendingLocked()
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return messagesOf(pending), nil
}

// Stats возвращает размер backlog и время постановки самого старого события.
func (r *outboxRepositoryInMemory) Stats() (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pending := r.pendingLocked()
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].queuedAt
	}
	return stats, nil
}

// MarkSent закрывает pending-событие как доставленное.
func (r *outboxRepositoryInMemory) MarkSent(id string) error {
	return r.close(id, outboxSent)
}

// MarkFailed закрывает pending-событие как недоставленное.
func (r *outboxRepositoryInMemory) MarkFailed(id string) error {
	return r.close(id, outboxFailed)
}

func (r *outboxRepositoryInMemory) close(id string, status outboxStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok || record.status != outboxPending {
		return domain.ErrOutboxPublish
	}
	record.status = status
	return nil
}

// AllPending возвращает все pending-события (для тестов).
func (r *outboxRepositoryInMemory) AllPending() []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return messagesOf(r.pendingLocked())
}

func (r *outboxRepositoryInMemory) pendingLocked() []*outboxRecord {
	pending := make([]*outboxRecord, 0, len(r.records))
	for _, rec := range r.records {
		if rec.status == outboxPending {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	return pending
}

func messagesOf(records []*outboxRecord) []domain.OutboxMessage {
	result := make([]domain.OutboxMessage, 0, len(records))
	for _, rec := range records {
		result = append(result, cloneOutboxMessage(rec.msg))
	}
	return result
}

func cloneOutboxMessage(msg domain.OutboxMessage) domain.OutboxMessage {
	if msg.Payload != nil {
		msg.Payload = append([]byte(nil), msg.Payload...)
	}
	return msg
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
