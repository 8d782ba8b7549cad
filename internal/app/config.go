package app

import (
	"time"

	"github.com/vladislavdragonenkov/albaran/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/albaran/internal/service/document"
	"github.com/vladislavdragonenkov/albaran/internal/service/factusol"
	"github.com/vladislavdragonenkov/albaran/internal/storage/postgres"
)

// Драйверы хранилища альбаранов.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает инфраструктурные настройки запуска приложения.
// Бизнес-настройки (Factusol, скидки) живут в config.Settings.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	PostgresMaxConns    int

	// KafkaBrokers — список брокеров через запятую; пусто — события только в лог.
	KafkaBrokers string
	KafkaTopic   string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int

	GatewayTimeout time.Duration
	// SeedDemoClients заполняет справочник демо-клиентами.
	SeedDemoClients bool

	Company document.Company
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		PostgresMaxConns:    postgres.DefaultMaxOpenConns,
		KafkaTopic:          kafka.TopicAlbaranEvents,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		OutboxMaxPending:    1000,
		GatewayTimeout:      factusol.DefaultTimeout,
		SeedDemoClients:     true,
		Company:             document.DefaultCompany(),
	}
}
