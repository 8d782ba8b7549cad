// Package outbox доставляет события жизненного цикла альбаранов из outbox в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
	"github.com/vladislavdragonenkov/albaran/internal/metrics"
	"github.com/vladislavdragonenkov/albaran/internal/service/journal"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 30 * time.Second

	// метка для событий вне journal, чтобы не раздувать кардинальность
	unknownEventLabel = "unknown"
)

// ErrUnroutable — сообщение не является событием альбарана и не публикуется.
var ErrUnroutable = errors.New("outbox message is not an albaran event")

type settings struct {
	logger         *log.Entry
	metrics        *metrics.OutboxMetrics
	dlq            domain.OutboxPublisher
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*settings)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *settings) { s.logger = logger }
}

// WithMetrics задаёт метрики; по умолчанию используется глобальный registry.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithDLQPublisher задаёт publisher для событий, которые не удалось доставить.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(s *settings) { s.dlq = publisher }
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(s *settings) { s.pollInterval = interval }
}

// WithBatchSize задаёт размер выборки за один цикл.
func WithBatchSize(batchSize int) Option {
	return func(s *settings) { s.batchSize = batchSize }
}

// WithMaxAttempts задаёт число попыток публикации одного события.
func WithMaxAttempts(maxAttempts int) Option {
	return func(s *settings) { s.maxAttempts = maxAttempts }
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(s *settings) { s.retryBaseDelay = delay }
}

func (s *settings) normalize() {
	if s.logger == nil {
		s.logger = log.WithField("component", "outbox")
	}
	if s.metrics == nil {
		s.metrics = metrics.NewOutboxMetrics()
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.retryBaseDelay < 0 {
		s.retryBaseDelay = 0
	}
}

// Worker публикует события альбаранов (journal) в порядке записи.
// Состояние альбаранов он не меняет.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	cfg       settings
	now       func() time.Time
}

// NewWorker создаёт worker поверх outbox-репозитория.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	cfg := settings{
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&cfg)
	}
	cfg.normalize()

	return &Worker{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.cfg.logger.Warn("outbox worker выключен: нет repo или publisher")
		return
	}

	w.cfg.logger.WithFields(log.Fields{
		"poll_interval": w.cfg.pollInterval.String(),
		"batch_size":    w.cfg.batchSize,
		"max_attempts":  w.cfg.maxAttempts,
		"dlq":           w.cfg.dlq != nil,
	}).Info("outbox worker started")

	ticker := time.NewTicker(w.cfg.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			w.cfg.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce доставляет одну выборку и возвращает число опубликованных событий.
// При отмене ctx недоставленные события остаются в статусе pending.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer w.refreshBacklog()

	batch, err := w.repo.PullPending(w.cfg.batchSize)
	if err != nil {
		w.cfg.logger.WithError(err).Warn("failed to pull pending albaran events")
		return 0
	}

	delivered := 0
	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}

		err := w.deliver(ctx, msg)
		switch {
		case err == nil:
			if markErr := w.repo.MarkSent(msg.ID); markErr != nil {
				w.entry(msg).WithError(markErr).Warn("failed to mark albaran event as sent")
			}
			delivered++
		case ctx.Err() != nil:
			return delivered
		default:
			w.bury(msg, err)
		}
	}

	if len(batch) > 0 {
		w.cfg.logger.WithFields(log.Fields{
			"pulled":    len(batch),
			"delivered": delivered,
		}).Debug("outbox batch processed")
	}
	return delivered
}

func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) error {
	if err := routable(msg); err != nil {
		w.cfg.metrics.RecordPublish(eventLabel(msg), metrics.PublishRejected)
		return err
	}

	label := eventLabel(msg)
	var lastErr error
	for attempt := 1; attempt <= w.cfg.maxAttempts; attempt++ {
		lastErr = w.publisher.Publish(msg)
		if lastErr == nil {
			w.cfg.metrics.RecordPublish(label, metrics.PublishSent)
			return nil
		}
		w.cfg.metrics.RecordPublish(label, metrics.PublishRetryError)
		w.entry(msg).WithError(lastErr).WithField("attempt", attempt).Debug("albaran event publish attempt failed")

		if attempt == w.cfg.maxAttempts {
			break
		}
		if delay := w.backoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return fmt.Errorf("publish %s after %d attempts: %w", msg.EventType, w.cfg.maxAttempts, lastErr)
}

// bury переводит событие в failed и копирует его в DLQ.
func (w *Worker) bury(msg domain.OutboxMessage, cause error) {
	label := eventLabel(msg)
	w.entry(msg).WithError(cause).Error("albaran event was not delivered")
	w.cfg.metrics.RecordPublish(label, metrics.PublishFailed)

	if err := w.publishDeadLetter(msg, cause); err != nil {
		w.entry(msg).WithError(err).Warn("failed to publish albaran event to DLQ")
		w.cfg.metrics.RecordPublish(label, metrics.PublishDLQFailed)
	}
	if err := w.repo.MarkFailed(msg.ID); err != nil {
		w.entry(msg).WithError(err).Warn("failed to mark albaran event as failed")
	}
}

// deadLetter — содержимое сообщения в DLQ.
type deadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	OrderID       string          `json:"order_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Error         string          `json:"error"`
	FailedAt      time.Time       `json:"failed_at"`
}

func (w *Worker) publishDeadLetter(msg domain.OutboxMessage, cause error) error {
	if w.cfg.dlq == nil {
		return nil
	}

	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		quoted, err := json.Marshal(string(msg.Payload))
		if err != nil {
			return fmt.Errorf("quote dlq payload: %w", err)
		}
		payload = quoted
	}

	body, err := json.Marshal(deadLetter{
		OutboxID:      msg.ID,
		OrderID:       msg.AggregateID,
		AggregateType: msg.AggregateType,
		EventType:     msg.EventType,
		Payload:       payload,
		Error:         cause.Error(),
		FailedAt:      w.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}

	dead := msg
	dead.Payload = body
	if err := w.cfg.dlq.Publish(dead); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

func (w *Worker) refreshBacklog() {
	stats, err := w.repo.Stats()
	if err != nil {
		w.cfg.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	age := 0.0
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt).Seconds()
	}
	w.cfg.metrics.SetBacklog(stats.PendingCount, age)
}

// backoff: base, 2*base, 4*base... не больше maxRetryDelay.
func (w *Worker) backoff(attempt int) time.Duration {
	delay := w.cfg.retryBaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		if delay >= maxRetryDelay/2 {
			return maxRetryDelay
		}
		delay *= 2
	}
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

func (w *Worker) entry(msg domain.OutboxMessage) *log.Entry {
	return w.cfg.logger.WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"order_id":   msg.AggregateID,
		"event_type": msg.EventType,
	})
}

func routable(msg domain.OutboxMessage) error {
	if msg.AggregateType != journal.AggregateType || !journal.IsKnownEvent(msg.EventType) {
		return fmt.Errorf("%w: %s/%s", ErrUnroutable, msg.AggregateType, msg.EventType)
	}
	return nil
}

func eventLabel(msg domain.OutboxMessage) string {
	if journal.IsKnownEvent(msg.EventType) {
		return msg.EventType
	}
	return unknownEventLabel
}
