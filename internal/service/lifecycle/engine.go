// Package lifecycle реализует конечный автомат альбарана:
// ручная проверка, экспорт в Factusol и (опционально) повторная постановка в очередь.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
	"github.com/vladislavdragonenkov/albaran/internal/metrics"
	"github.com/vladislavdragonenkov/albaran/internal/pricing"
	"github.com/vladislavdragonenkov/albaran/internal/service/journal"
)

// Engine применяет переходы статусов. Все переходы одного альбарана выполняются
// последовательно, переходы разных альбаранов не блокируют друг друга.
type Engine struct {
	orders   domain.OrderRepository
	clients  domain.ClientDirectory
	gateway  domain.ExportGateway
	recorder *journal.Recorder
	logger   *log.Entry
	metrics  *metrics.LifecycleMetrics

	allowRetry bool
	now        func() time.Time
	locks      *keyedMutex
}

// Option настраивает Engine.
type Option func(*Engine)

// WithMetrics подключает prometheus-метрики.
func WithMetrics(m *metrics.LifecycleMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithExportRetry разрешает переход FACTUSOL_ERROR -> PENDING_FACTUSOL.
func WithExportRetry(enabled bool) Option {
	return func(e *Engine) {
		e.allowRetry = enabled
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine создаёт движок жизненного цикла.
func NewEngine(
	orders domain.OrderRepository,
	clients domain.ClientDirectory,
	gateway domain.ExportGateway,
	recorder *journal.Recorder,
	logger *log.Entry,
	opts ...Option,
) *Engine {
	if logger == nil {
		logger = log.New().WithField("component", "lifecycle")
	}
	e := &Engine{
		orders:   orders,
		clients:  clients,
		gateway:  gateway,
		recorder: recorder,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		locks:    newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RetryEnabled сообщает, доступен ли повторный экспорт.
func (e *Engine) RetryEnabled() bool {
	return e.allowRetry
}

// AllowedActions возвращает действия, допустимые для статуса.
func (e *Engine) AllowedActions(status domain.Status) []domain.Action {
	switch status {
	case domain.StatusManualReview:
		return []domain.Action{domain.ActionReview}
	case domain.StatusPendingFactusol:
		return []domain.Action{domain.ActionExport}
	case domain.StatusCompleted:
		return []domain.Action{domain.ActionViewDocument}
	case domain.StatusFactusolError:
		if e.allowRetry {
			return []domain.Action{domain.ActionViewLog, domain.ActionRetryExport}
		}
		return []domain.Action{domain.ActionViewLog}
	default:
		return nil
	}
}

// ReviewAndSave заменяет позиции проверенного альбарана, пересчитывает сумму
// и переводит его в PENDING_FACTUSOL. Позиции проверяются целиком до любых изменений.
func (e *Engine) ReviewAndSave(ctx context.Context, orderID string, items []domain.OrderItem) (domain.Order, error) {
	unlock := e.locks.Lock(orderID)
	defer unlock()

	order, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	next, err := e.next(order, domain.TriggerReviewAndSave)
	if err != nil {
		return domain.Order{}, err
	}
	if err := domain.ValidateItems(items, false); err != nil {
		e.reject(order, domain.TriggerReviewAndSave, err)
		return domain.Order{}, err
	}

	order.Items = domain.NormalizeItemIDs(items)
	order.Total = pricing.Total(order.Items)
	order.Status = next
	order.FailureReason = ""
	order.UpdatedAt = e.now()

	if err := e.orders.Upsert(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("save reviewed albaran %s: %w", orderID, err)
	}

	e.applied(order, domain.TriggerReviewAndSave)
	e.recorder.Record(order, journal.EventAlbaranReviewed, "")
	return order.Clone(), nil
}

// ExportToErp отправляет альбаран в Factusol. Отказ ERP не является ошибкой вызова:
// альбаран переходит в FACTUSOL_ERROR с причиной, позиции и сумма не меняются.
func (e *Engine) ExportToErp(ctx context.Context, orderID string) (domain.Order, error) {
	unlock := e.locks.Lock(orderID)
	defer unlock()

	order, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if _, err := e.next(order, domain.TriggerExportToErp); err != nil {
		return domain.Order{}, err
	}

	client, err := e.clients.Resolve(ctx, order.ClientID)
	if err != nil {
		e.reject(order, domain.TriggerExportToErp, err)
		return domain.Order{}, err
	}

	logger := e.logger.WithFields(log.Fields{
		"order_id":  order.ID,
		"client_id": client.ID,
	})
	logger.Info("exporting albaran to factusol")

	// Экспорт и сохранение исхода доводятся до конца даже после отмены ctx.
	exportCtx := context.WithoutCancel(ctx)
	receipt, exportErr := e.submit(exportCtx, order, client)

	order.UpdatedAt = e.now()
	event := journal.EventAlbaranExported
	reason := ""
	if exportErr != nil {
		order.Status = domain.StatusFactusolError
		order.FailureReason = exportErr.Error()
		event = journal.EventAlbaranExportFailed
		reason = order.FailureReason
	} else {
		order.Status = domain.StatusCompleted
		order.FailureReason = ""
		order.ExternalRef = receipt.DocumentNumber
	}

	if err := e.orders.Upsert(exportCtx, order); err != nil {
		entry := logger.WithError(err).WithField("status", string(order.Status))
		if exportErr == nil {
			// документ уже создан в Factusol, сверка вручную по номеру
			entry = entry.WithField("external_ref", receipt.DocumentNumber)
		}
		entry.Error("failed to save export outcome")
		return domain.Order{}, fmt.Errorf("save exported albaran %s: %w", orderID, err)
	}

	if exportErr != nil {
		logger.WithError(exportErr).Warn("factusol rejected albaran")
	} else {
		logger.WithField("external_ref", order.ExternalRef).Info("albaran exported")
	}
	e.applied(order, domain.TriggerExportToErp)
	e.recorder.Record(order, event, reason)
	return order.Clone(), nil
}

// RetryExport возвращает альбаран из FACTUSOL_ERROR в очередь на экспорт.
// Без WithExportRetry(true) всегда отклоняется как недопустимый переход.
func (e *Engine) RetryExport(ctx context.Context, orderID string) (domain.Order, error) {
	unlock := e.locks.Lock(orderID)
	defer unlock()

	order, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !e.allowRetry {
		err := domain.NewInvalidTransitionError(order.ID, order.Status, domain.TriggerRetryExport)
		e.reject(order, domain.TriggerRetryExport, err)
		return domain.Order{}, err
	}
	next, err := e.next(order, domain.TriggerRetryExport)
	if err != nil {
		return domain.Order{}, err
	}

	previous := order.FailureReason
	order.Status = next
	order.FailureReason = ""
	order.UpdatedAt = e.now()

	if err := e.orders.Upsert(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("requeue albaran %s: %w", orderID, err)
	}

	e.applied(order, domain.TriggerRetryExport)
	e.recorder.Record(order, journal.EventAlbaranRequeued, previous)
	return order.Clone(), nil
}

func (e *Engine) next(order domain.Order, trigger domain.Trigger) (domain.Status, error) {
	next, ok := order.Status.Next(trigger)
	if !ok {
		err := domain.NewInvalidTransitionError(order.ID, order.Status, trigger)
		e.reject(order, trigger, err)
		return "", err
	}
	return next, nil
}

func (e *Engine) submit(ctx context.Context, order domain.Order, client domain.Client) (domain.ExportReceipt, error) {
	start := time.Now()
	if e.metrics != nil {
		e.metrics.RecordExportStarted()
	}
	receipt, err := e.gateway.Submit(ctx, domain.ExportRequest{Order: order.Clone(), Client: client})
	if e.metrics != nil {
		e.metrics.RecordExportFinished(err == nil, time.Since(start))
	}
	return receipt, err
}

func (e *Engine) applied(order domain.Order, trigger domain.Trigger) {
	if e.metrics != nil {
		e.metrics.RecordTransition(string(trigger), metrics.ResultApplied)
	}
	e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"trigger":  string(trigger),
		"status":   string(order.Status),
	}).Info("albaran transition applied")
}

func (e *Engine) reject(order domain.Order, trigger domain.Trigger, err error) {
	if e.metrics != nil {
		e.metrics.RecordTransition(string(trigger), metrics.ResultRejected)
	}
	e.logger.WithError(err).WithFields(log.Fields{
		"order_id": order.ID,
		"trigger":  string(trigger),
		"status":   string(order.Status),
	}).Warn("albaran transition rejected")
}
