package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/IBM/sarama/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
	"github.com/vladislavdragonenkov/albaran/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/albaran/internal/metrics"
	"github.com/vladislavdragonenkov/albaran/internal/service/creation"
	"github.com/vladislavdragonenkov/albaran/internal/service/factusol"
	"github.com/vladislavdragonenkov/albaran/internal/service/journal"
	"github.com/vladislavdragonenkov/albaran/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/albaran/internal/service/outbox"
	"github.com/vladislavdragonenkov/albaran/internal/storage/memory"
)

// AlbaranLifecycleTestSuite прогоняет альбаран через все сервисы на in-memory хранилищах.
type AlbaranLifecycleTestSuite struct {
	suite.Suite
	logger   *log.Entry
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	outbox   domain.OutboxRepository
	gateway  *factusol.MockGateway
	creator  *creation.Service
	engine   *lifecycle.Engine
}

func (s *AlbaranLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	s.logger = baseLogger.WithField("component", "integration-test")

	s.orders = memory.NewOrderRepository()
	s.timeline = memory.NewTimelineRepository()
	s.outbox = memory.NewOutboxRepository()
	s.gateway = factusol.NewMockGateway()

	clients := memory.NewClientDirectory(
		domain.Client{ID: "c-1", Name: "Asador El Montalvo", TaxID: "B37000001", Address: "Salamanca"},
	)
	lifecycleMetrics := metrics.NewLifecycleMetricsWithRegisterer(prometheus.NewRegistry())
	recorder := journal.NewRecorder(s.outbox, s.timeline, lifecycleMetrics, s.logger)

	s.creator = creation.NewService(s.orders, clients, recorder, s.logger, creation.WithMetrics(lifecycleMetrics))
	s.engine = lifecycle.NewEngine(
		s.orders, clients, s.gateway, recorder, s.logger,
		lifecycle.WithMetrics(lifecycleMetrics),
		lifecycle.WithExportRetry(true),
	)
}

func (s *AlbaranLifecycleTestSuite) create() domain.Order {
	order, err := s.creator.CreateOrder(context.Background(), creation.Draft{
		ClientID: "c-1",
		Channel:  domain.ChannelTelegram,
		Items: []domain.OrderItem{
			{Code: "ACE-01", Concept: "Aceite", Quantity: 2, Price: decimal.RequireFromString("10.00"), Discount: decimal.Zero},
		},
	})
	s.Require().NoError(err)
	return order
}

func (s *AlbaranLifecycleTestSuite) TestHappyPathPublishesEvents() {
	ctx := context.Background()
	t := s.T()

	order := s.create()
	require.Equal(t, "#00001", order.ID)
	require.Equal(t, domain.StatusManualReview, order.Status)
	require.True(t, order.Total.Equal(decimal.RequireFromString("24.20")), order.Total.String())

	reviewed, err := s.engine.ReviewAndSave(ctx, order.ID, []domain.OrderItem{
		{Code: "QUE-02", Concept: "Queso", Quantity: 3, Price: decimal.RequireFromString("5.00"), Discount: decimal.NewFromInt(50)},
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPendingFactusol, reviewed.Status)
	require.True(t, reviewed.Total.Equal(decimal.RequireFromString("9.075")), reviewed.Total.String())

	exported, err := s.engine.ExportToErp(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, exported.Status)
	require.Equal(t, "FS-000001", exported.ExternalRef)

	events, err := s.timeline.List(order.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)

	producer := mocks.NewSyncProducer(t, nil)
	var (
		mu        sync.Mutex
		published []string
	)
	for i := 0; i < 3; i++ {
		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			envelope, err := kafka.ParseEnvelope(val)
			if err != nil {
				return err
			}
			if envelope.AggregateID != order.ID {
				return errors.New("unexpected aggregate id " + envelope.AggregateID)
			}
			mu.Lock()
			published = append(published, envelope.EventType)
			mu.Unlock()
			return nil
		})
	}
	publisher := kafka.NewOutboxPublisher(kafka.NewProducerFromSync(producer, s.logger), kafka.TopicAlbaranEvents)
	worker := outbox.NewWorker(s.outbox, publisher,
		outbox.WithLogger(s.logger),
		outbox.WithMetrics(metrics.NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())),
	)
	worker.ProcessOnce(ctx)
	require.NoError(t, producer.Close())

	require.Equal(t, []string{
		journal.EventAlbaranCreated,
		journal.EventAlbaranReviewed,
		journal.EventAlbaranExported,
	}, published)

	stats, err := s.outbox.Stats()
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
}

func (s *AlbaranLifecycleTestSuite) TestExportBeforeReviewIsRejected() {
	ctx := context.Background()
	order := s.create()

	_, err := s.engine.ExportToErp(ctx, order.ID)
	s.Require().ErrorIs(err, domain.ErrInvalidTransition)

	stored, err := s.orders.Get(ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.StatusManualReview, stored.Status)
	s.Require().Zero(s.gateway.Calls())
}

func (s *AlbaranLifecycleTestSuite) TestExportFailureThenRetry() {
	ctx := context.Background()
	t := s.T()

	order := s.create()
	reviewed, err := s.engine.ReviewAndSave(ctx, order.ID, order.Items)
	require.NoError(t, err)

	s.gateway.SetError(errors.New("factusol responded 503"))
	failed, err := s.engine.ExportToErp(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFactusolError, failed.Status)
	require.Equal(t, "factusol responded 503", failed.FailureReason)
	require.Equal(t, reviewed.Items, failed.Items)
	require.True(t, reviewed.Total.Equal(failed.Total))

	requeued, err := s.engine.RetryExport(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPendingFactusol, requeued.Status)
	require.Empty(t, requeued.FailureReason)

	s.gateway.SetError(nil)
	completed, err := s.engine.ExportToErp(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, completed.Status)
	require.Equal(t, 2, s.gateway.Calls())

	events, err := s.timeline.List(order.ID)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, event := range events {
		types = append(types, event.Type)
	}
	require.Equal(t, []string{
		journal.EventAlbaranCreated,
		journal.EventAlbaranReviewed,
		journal.EventAlbaranExportFailed,
		journal.EventAlbaranRequeued,
		journal.EventAlbaranExported,
	}, types)
}

func (s *AlbaranLifecycleTestSuite) TestConcurrentExportAppliesOnce() {
	ctx := context.Background()
	t := s.T()

	order := s.create()
	_, err := s.engine.ReviewAndSave(ctx, order.ID, order.Items)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
		invalid int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.engine.ExportToErp(ctx, order.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case errors.Is(err, domain.ErrInvalidTransition):
				invalid++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, applied)
	require.Equal(t, 1, invalid)
	require.Equal(t, 1, s.gateway.Calls())
}

func TestAlbaranLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(AlbaranLifecycleTestSuite))
}
