// Package creation создаёт новые альбараны в статусе MANUAL_REVIEW.
package creation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
	"github.com/vladislavdragonenkov/albaran/internal/metrics"
	"github.com/vladislavdragonenkov/albaran/internal/pricing"
	"github.com/vladislavdragonenkov/albaran/internal/service/journal"
)

// Draft — входные данные нового альбарана.
type Draft struct {
	ClientID string
	Channel  domain.Channel
	Items    []domain.OrderItem
}

// Service присваивает номер, считает сумму и сохраняет альбаран.
type Service struct {
	orders   domain.OrderRepository
	clients  domain.ClientDirectory
	recorder *journal.Recorder
	metrics  *metrics.LifecycleMetrics
	logger   *log.Entry
	now      func() time.Time

	// mu держит вычисление номера и вставку как одну операцию.
	mu sync.Mutex
}

// Option настраивает Service.
type Option func(*Service)

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.LifecycleMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт сервис создания альбаранов.
func NewService(
	orders domain.OrderRepository,
	clients domain.ClientDirectory,
	recorder *journal.Recorder,
	logger *log.Entry,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "creation")
	}
	s := &Service{
		orders:   orders,
		clients:  clients,
		recorder: recorder,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder проверяет позиции и клиента, присваивает следующий номер
// и сохраняет альбаран в статусе MANUAL_REVIEW.
func (s *Service) CreateOrder(ctx context.Context, draft Draft) (domain.Order, error) {
	if err := domain.ValidateItems(draft.Items, false); err != nil {
		return domain.Order{}, err
	}

	channel := draft.Channel
	if channel == "" {
		channel = domain.ChannelManual
	}
	if !channel.Valid() {
		return domain.Order{}, domain.NewValidationError("channel", domain.ErrChannelInvalid)
	}

	if _, err := s.clients.Resolve(ctx, draft.ClientID); err != nil {
		return domain.Order{}, err
	}

	items := domain.NormalizeItemIDs(draft.Items)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.orders.List(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("list albaranes: %w", err)
	}

	id, err := NextOrderID(existing)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:        id,
		ClientID:  draft.ClientID,
		Date:      domain.DateOnly(now),
		Channel:   channel,
		Items:     items,
		Status:    domain.StatusManualReview,
		Total:     pricing.Total(items),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orders.Upsert(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("save albaran %s: %w", order.ID, err)
	}

	if s.metrics != nil {
		s.metrics.RecordCreated()
	}
	s.logger.WithFields(log.Fields{
		"order_id":  order.ID,
		"client_id": order.ClientID,
		"channel":   string(order.Channel),
		"items":     len(order.Items),
	}).Info("albaran created")
	s.recorder.Record(order, journal.EventAlbaranCreated, "")

	return order.Clone(), nil
}

// NextOrderID возвращает номер, следующий за максимальным из существующих.
// Номера, не разбираемые как "#<цифры>", считаются нулём.
// Если максимальный номер уже равен math.MaxInt, новый номер не выдаётся.
func NextOrderID(orders []domain.Order) (string, error) {
	maxSeq := 0
	for _, order := range orders {
		if seq, ok := domain.ParseOrderSequence(order.ID); ok && seq > maxSeq {
			maxSeq = seq
		}
	}
	if maxSeq == math.MaxInt {
		return "", domain.NewValidationError("id", domain.ErrOrderSequenceExhausted)
	}
	return domain.FormatOrderID(maxSeq + 1), nil
}
