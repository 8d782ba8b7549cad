package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/albaran/internal/config"
	"github.com/vladislavdragonenkov/albaran/internal/domain"
	"github.com/vladislavdragonenkov/albaran/internal/service/factusol"
	"github.com/vladislavdragonenkov/albaran/internal/storage/memory"
	"github.com/vladislavdragonenkov/albaran/internal/storage/postgres"
)

// runtimeDependencies — хранилища, выбранные по Config.StorageDriver.
type runtimeDependencies struct {
	repo         domain.OrderRepository
	outboxRepo   domain.OutboxRepository
	timelineRepo domain.TimelineRepository
	clients      domain.ClientDirectory
	store        *postgres.Store
}

// close освобождает подключение к БД, если оно открывалось.
func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.store == nil {
		return
	}
	if err := d.store.Close(); err != nil {
		logger.WithError(err).Warn("failed to close postgres store")
	}
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	clients := memory.NewClientDirectory()
	if cfg.SeedDemoClients {
		clients = memory.NewClientDirectory(DemoClients()...)
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	switch driver {
	case "", StorageDriverMemory:
		logger.WithField("storage", StorageDriverMemory).Info("используем in-memory хранилище")
		return &runtimeDependencies{
			repo:         memory.NewOrderRepository(),
			outboxRepo:   memory.NewOutboxRepository(),
			timelineRepo: memory.NewTimelineRepository(),
			clients:      clients,
		}, nil
	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return nil, fmt.Errorf("postgres storage requires dsn")
		}
		pgCfg := postgres.DefaultConfig(dsn)
		pgCfg.MaxOpenConns = cfg.PostgresMaxConns
		store, err := postgres.OpenWithConfig(ctx, pgCfg, logger.WithField("component", "postgres"))
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		logger.WithFields(log.Fields{
			"storage":      StorageDriverPostgres,
			"auto_migrate": cfg.PostgresAutoMigrate,
			"max_conns":    store.Config().MaxOpenConns,
		}).Info("используем postgres хранилище")
		return &runtimeDependencies{
			repo:         postgres.NewOrderRepository(store),
			outboxRepo:   postgres.NewOutboxRepository(store),
			timelineRepo: postgres.NewTimelineRepository(store),
			clients:      clients,
			store:        store,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// newExportGateway выбирает HTTP-шлюз Factusol, если задан endpoint, иначе mock.
func newExportGateway(settings *config.Settings, cfg Config, logger *log.Entry) domain.ExportGateway {
	snap := settings.Snapshot()
	if snap.FactusolEndpoint == "" {
		logger.Warn("factusol endpoint не задан, используем mock gateway")
		return factusol.NewMockGateway()
	}

	logger.WithField("endpoint", snap.FactusolEndpoint).Info("factusol http gateway configured")
	return factusol.NewHTTPGateway(
		snap.FactusolEndpoint,
		factusol.Credentials{
			ClientID:     snap.Credentials.ClientID,
			ClientSecret: snap.Credentials.ClientSecret,
		},
		factusol.WithTimeout(cfg.GatewayTimeout),
		factusol.WithLogger(logger.WithField("component", "factusol")),
	)
}

// DemoClients — справочник для локального запуска.
func DemoClients() []domain.Client {
	return []domain.Client{
		{ID: "c-001", Name: "Asador El Montalvo", TaxID: "B37000001", Address: "Ctra. Salamanca-Vecinos km 3, Salamanca", Email: "pedidos@asadormontalvo.es"},
		{ID: "c-002", Name: "Bar La Plaza Mayor", TaxID: "B37000002", Address: "Plaza Mayor 12, Salamanca", Email: "barplaza@example.es"},
		{ID: "c-003", Name: "Hotel Río Tormes", TaxID: "A37000003", Address: "Paseo de la Estación 45, Salamanca"},
		{ID: "c-004", Name: "María Sánchez Hernández", TaxID: "12345678Z", Address: "C/ Toro 8, Salamanca", Email: "maria.sanchez@example.es"},
	}
}
