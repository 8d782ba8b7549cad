package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/albaran/internal/domain"
	"github.com/vladislavdragonenkov/albaran/internal/metrics"
	"github.com/vladislavdragonenkov/albaran/internal/service/factusol"
	"github.com/vladislavdragonenkov/albaran/internal/service/journal"
	"github.com/vladislavdragonenkov/albaran/internal/storage/memory"
)

var fixedNow = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

func item(id int, qty int32, price, discount string) domain.OrderItem {
	return domain.OrderItem{
		ID:       id,
		Code:     "ART-" + price,
		Concept:  "Artículo",
		Quantity: qty,
		Price:    decimal.RequireFromString(price),
		Discount: decimal.RequireFromString(discount),
	}
}

type blockingGateway struct {
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (g *blockingGateway) Submit(ctx context.Context, req domain.ExportRequest) (domain.ExportReceipt, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	g.started <- struct{}{}
	<-g.release
	return domain.ExportReceipt{DocumentNumber: "FS-1"}, nil
}

type EngineSuite struct {
	suite.Suite

	ctx      context.Context
	orders   domain.OrderRepository
	outbox   interface{ AllPending() []domain.OutboxMessage }
	timeline domain.TimelineRepository
	gateway  *factusol.MockGateway
	registry *prometheus.Registry
	metrics  *metrics.LifecycleMetrics
	engine   *Engine
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.orders = memory.NewOrderRepository(
		domain.Order{
			ID: "#00001", ClientID: "c-1", Status: domain.StatusManualReview,
			Items: []domain.OrderItem{item(1, 2, "10.00", "0")},
			Total: decimal.RequireFromString("24.20"),
		},
		domain.Order{
			ID: "#00002", ClientID: "c-1", Status: domain.StatusPendingFactusol,
			Items: []domain.OrderItem{item(1, 3, "5.00", "50")},
			Total: decimal.RequireFromString("9.075"),
		},
		domain.Order{
			ID: "#00003", ClientID: "c-1", Status: domain.StatusCompleted,
			Items: []domain.OrderItem{item(1, 1, "1", "0")}, Total: decimal.RequireFromString("1.21"),
		},
		domain.Order{
			ID: "#00004", ClientID: "c-1", Status: domain.StatusFactusolError, FailureReason: "timeout",
			Items: []domain.OrderItem{item(1, 1, "1", "0")}, Total: decimal.RequireFromString("1.21"),
		},
		domain.Order{
			ID: "#00005", ClientID: "ghost", Status: domain.StatusPendingFactusol,
			Items: []domain.OrderItem{item(1, 1, "1", "0")}, Total: decimal.RequireFromString("1.21"),
		},
	)
	outbox := memory.NewOutboxRepository()
	s.outbox = outbox
	s.timeline = memory.NewTimelineRepository()
	s.gateway = factusol.NewMockGateway()
	s.registry = prometheus.NewRegistry()
	s.metrics = metrics.NewLifecycleMetricsWithRegisterer(s.registry)

	logger := log.New()
	logger.SetLevel(log.ErrorLevel)
	recorder := journal.NewRecorder(outbox, s.timeline, s.metrics, logger.WithField("component", "journal"))

	clients := memory.NewClientDirectory(domain.Client{ID: "c-1", Name: "Bar Pepe", TaxID: "B11111111"})
	s.engine = NewEngine(s.orders, clients, s.gateway, recorder, logger.WithField("component", "lifecycle"),
		WithMetrics(s.metrics),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func (s *EngineSuite) get(id string) domain.Order {
	order, err := s.orders.Get(s.ctx, id)
	s.Require().NoError(err)
	return order
}

func (s *EngineSuite) TestReviewAndSave() {
	items := []domain.OrderItem{item(1, 3, "5.00", "50"), item(0, 1, "2", "0")}

	updated, err := s.engine.ReviewAndSave(s.ctx, "#00001", items)
	s.Require().NoError(err)
	s.Equal(domain.StatusPendingFactusol, updated.Status)
	s.True(decimal.RequireFromString("11.495").Equal(updated.Total), updated.Total.String())
	s.Equal([]int{1, 2}, []int{updated.Items[0].ID, updated.Items[1].ID})
	s.Equal(fixedNow, updated.UpdatedAt)

	stored := s.get("#00001")
	s.Equal(domain.StatusPendingFactusol, stored.Status)
	s.True(updated.Total.Equal(stored.Total))

	events, err := s.timeline.List("#00001")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(journal.EventAlbaranReviewed, events[0].Type)
}

func (s *EngineSuite) TestReviewAndSave_AllOrNothing() {
	before := s.get("#00001")
	items := []domain.OrderItem{item(1, 3, "5.00", "50"), item(2, 1, "2", "101")}

	_, err := s.engine.ReviewAndSave(s.ctx, "#00001", items)
	s.Require().Error(err)
	s.True(domain.IsValidation(err))
	s.True(errors.Is(err, domain.ErrItemDiscountInvalid))

	after := s.get("#00001")
	s.Equal(before.Status, after.Status)
	s.Equal(before.Items, after.Items)
	s.True(before.Total.Equal(after.Total))
	s.Empty(s.outbox.AllPending())
}

func (s *EngineSuite) TestReviewAndSave_EmptyItems() {
	_, err := s.engine.ReviewAndSave(s.ctx, "#00001", nil)
	s.True(errors.Is(err, domain.ErrItemsRequired))
	s.Equal(domain.StatusManualReview, s.get("#00001").Status)
}

func (s *EngineSuite) TestExportFromManualReviewRejected() {
	_, err := s.engine.ExportToErp(s.ctx, "#00001")

	var transitionErr *domain.InvalidTransitionError
	s.Require().True(errors.As(err, &transitionErr))
	s.Equal(domain.StatusManualReview, transitionErr.From)
	s.Equal(domain.StatusManualReview, s.get("#00001").Status)
	s.Zero(s.gateway.Calls())
}

func (s *EngineSuite) TestExportSuccess() {
	before := s.get("#00002")

	exported, err := s.engine.ExportToErp(s.ctx, "#00002")
	s.Require().NoError(err)
	s.Equal(domain.StatusCompleted, exported.Status)
	s.Equal("FS-000001", exported.ExternalRef)
	s.Empty(exported.FailureReason)
	s.Equal(before.Items, exported.Items)
	s.True(before.Total.Equal(exported.Total))

	req := s.gateway.Requests()
	s.Require().Len(req, 1)
	s.Equal("Bar Pepe", req[0].Client.Name)
	s.Equal("#00002", req[0].Order.ID)

	s.Equal(domain.StatusCompleted, s.get("#00002").Status)
	pending := s.outbox.AllPending()
	s.Require().Len(pending, 1)
	s.Equal(journal.EventAlbaranExported, pending[0].EventType)
}

func (s *EngineSuite) TestExportGatewayFailure() {
	s.gateway.SetError(errors.New("factusol responded 503"))
	before := s.get("#00002")

	result, err := s.engine.ExportToErp(s.ctx, "#00002")
	s.Require().NoError(err)
	s.Equal(domain.StatusFactusolError, result.Status)
	s.Equal("factusol responded 503", result.FailureReason)

	stored := s.get("#00002")
	s.Equal(before.ID, stored.ID)
	s.Equal(before.Items, stored.Items)
	s.True(before.Total.Equal(stored.Total))
	s.Equal("factusol responded 503", stored.FailureReason)

	events, _ := s.timeline.List("#00002")
	s.Require().Len(events, 1)
	s.Equal(journal.EventAlbaranExportFailed, events[0].Type)
	s.Equal("factusol responded 503", events[0].Reason)
}

func (s *EngineSuite) TestExportClientMissing() {
	_, err := s.engine.ExportToErp(s.ctx, "#00005")
	s.True(domain.IsNotFound(err))
	s.Equal(domain.StatusPendingFactusol, s.get("#00005").Status)
	s.Zero(s.gateway.Calls())
}

func (s *EngineSuite) TestOrderNotFound() {
	_, err := s.engine.ReviewAndSave(s.ctx, "#00404", []domain.OrderItem{item(1, 1, "1", "0")})
	s.True(domain.IsNotFound(err))
	_, err = s.engine.ExportToErp(s.ctx, "#00404")
	s.True(domain.IsNotFound(err))
	_, err = s.engine.RetryExport(s.ctx, "#00404")
	s.True(domain.IsNotFound(err))
}

func (s *EngineSuite) TestInvalidTransitionsLeaveStateUnchanged() {
	valid := []domain.OrderItem{item(1, 1, "1", "0")}
	cases := []struct {
		id      string
		trigger domain.Trigger
	}{
		{"#00001", domain.TriggerRetryExport},
		{"#00002", domain.TriggerReviewAndSave},
		{"#00002", domain.TriggerRetryExport},
		{"#00003", domain.TriggerReviewAndSave},
		{"#00003", domain.TriggerExportToErp},
		{"#00003", domain.TriggerRetryExport},
		{"#00004", domain.TriggerReviewAndSave},
		{"#00004", domain.TriggerExportToErp},
		{"#00004", domain.TriggerRetryExport},
	}

	for _, tc := range cases {
		before := s.get(tc.id)

		var err error
		switch tc.trigger {
		case domain.TriggerReviewAndSave:
			_, err = s.engine.ReviewAndSave(s.ctx, tc.id, valid)
		case domain.TriggerExportToErp:
			_, err = s.engine.ExportToErp(s.ctx, tc.id)
		case domain.TriggerRetryExport:
			_, err = s.engine.RetryExport(s.ctx, tc.id)
		}

		s.True(domain.IsInvalidTransition(err), "%s on %s: %v", tc.trigger, tc.id, err)
		after := s.get(tc.id)
		s.Equal(before.Status, after.Status, "%s on %s", tc.trigger, tc.id)
		s.Equal(before.Items, after.Items)
		s.Equal(before.FailureReason, after.FailureReason)
	}
	s.Zero(s.gateway.Calls())
	s.Empty(s.outbox.AllPending())
}

func (s *EngineSuite) TestRetryExportWhenEnabled() {
	WithExportRetry(true)(s.engine)

	requeued, err := s.engine.RetryExport(s.ctx, "#00004")
	s.Require().NoError(err)
	s.Equal(domain.StatusPendingFactusol, requeued.Status)
	s.Empty(requeued.FailureReason)

	events, _ := s.timeline.List("#00004")
	s.Require().Len(events, 1)
	s.Equal(journal.EventAlbaranRequeued, events[0].Type)
	s.Equal("timeout", events[0].Reason)

	exported, err := s.engine.ExportToErp(s.ctx, "#00004")
	s.Require().NoError(err)
	s.Equal(domain.StatusCompleted, exported.Status)
}

func (s *EngineSuite) TestAllowedActions() {
	s.Equal([]domain.Action{domain.ActionReview}, s.engine.AllowedActions(domain.StatusManualReview))
	s.Equal([]domain.Action{domain.ActionExport}, s.engine.AllowedActions(domain.StatusPendingFactusol))
	s.Equal([]domain.Action{domain.ActionViewDocument}, s.engine.AllowedActions(domain.StatusCompleted))
	s.Equal([]domain.Action{domain.ActionViewLog}, s.engine.AllowedActions(domain.StatusFactusolError))
	s.Nil(s.engine.AllowedActions(domain.StatusAll))

	WithExportRetry(true)(s.engine)
	s.Equal([]domain.Action{domain.ActionViewLog, domain.ActionRetryExport}, s.engine.AllowedActions(domain.StatusFactusolError))
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func TestEngine_ConcurrentExportAppliesOnce(t *testing.T) {
	ctx := context.Background()
	orders := memory.NewOrderRepository(domain.Order{
		ID: "#00010", ClientID: "c-1", Status: domain.StatusPendingFactusol,
		Items: []domain.OrderItem{item(1, 1, "1", "0")}, Total: decimal.RequireFromString("1.21"),
	})
	gateway := &blockingGateway{started: make(chan struct{}, 2), release: make(chan struct{})}
	clients := memory.NewClientDirectory(domain.Client{ID: "c-1", Name: "Bar Pepe"})
	engine := NewEngine(orders, clients, gateway, nil, nil)

	type outcome struct {
		order domain.Order
		err   error
	}
	results := make(chan outcome, 2)
	run := func() {
		order, err := engine.ExportToErp(ctx, "#00010")
		results <- outcome{order, err}
	}

	go run()
	<-gateway.started
	go run()

	// второй вызов не должен дойти до шлюза, пока первый держит блокировку
	select {
	case <-gateway.started:
		t.Fatal("second export reached the gateway concurrently")
	case <-time.After(50 * time.Millisecond):
	}
	close(gateway.release)

	var applied, rejected int
	for i := 0; i < 2; i++ {
		res := <-results
		switch {
		case res.err == nil:
			applied++
			require.Equal(t, domain.StatusCompleted, res.order.Status)
		case domain.IsInvalidTransition(res.err):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", res.err)
		}
	}
	require.Equal(t, 1, applied)
	require.Equal(t, 1, rejected)
	require.Equal(t, 1, gateway.calls)
	require.Zero(t, engine.locks.size())

	stored, err := orders.Get(ctx, "#00010")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, stored.Status)
}

func TestEngine_ExportIgnoresCallerCancellation(t *testing.T) {
	orders := memory.NewOrderRepository(domain.Order{
		ID: "#00011", ClientID: "c-1", Status: domain.StatusPendingFactusol,
		Items: []domain.OrderItem{item(1, 1, "1", "0")}, Total: decimal.RequireFromString("1.21"),
	})
	gateway := &factusol.MockGateway{Delay: 10 * time.Millisecond}
	engine := NewEngine(orders, memory.NewClientDirectory(domain.Client{ID: "c-1"}), gateway, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.ExportToErp(ctx, "#00011")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, result.Status)
}

type failingUpsertRepository struct {
	domain.OrderRepository
	err error
}

func (r failingUpsertRepository) Upsert(context.Context, domain.Order) error {
	return r.err
}

func TestEngine_ExportSaveFailureLogsExternalRef(t *testing.T) {
	orders := failingUpsertRepository{
		OrderRepository: memory.NewOrderRepository(domain.Order{
			ID: "#00012", ClientID: "c-1", Status: domain.StatusPendingFactusol,
			Items: []domain.OrderItem{item(1, 1, "1", "0")}, Total: decimal.RequireFromString("1.21"),
		}),
		err: errors.New("connection reset"),
	}
	logger, hook := logtest.NewNullLogger()
	gateway := factusol.NewMockGateway()
	engine := NewEngine(orders, memory.NewClientDirectory(domain.Client{ID: "c-1"}), gateway, nil,
		logger.WithField("component", "lifecycle"))

	_, err := engine.ExportToErp(context.Background(), "#00012")
	require.ErrorIs(t, err, orders.err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, log.ErrorLevel, entry.Level)
	require.Equal(t, "FS-000001", entry.Data["external_ref"])
	require.Equal(t, "#00012", entry.Data["order_id"])

	stored, err := orders.Get(context.Background(), "#00012")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPendingFactusol, stored.Status)
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	locks := newKeyedMutex()
	unlockA := locks.Lock("#00001")

	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("#00002")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
	unlockA()
	require.Zero(t, locks.size())
}
