package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/albaran/internal/app"
	"github.com/vladislavdragonenkov/albaran/internal/version"
)

const (
	envHTTPAddr            = "ALBARAN_HTTP_ADDR"
	envGRPCAddr            = "ALBARAN_GRPC_ADDR"
	envMetricsAddr         = "ALBARAN_METRICS_ADDR"
	envStorageDriver       = "ALBARAN_STORAGE_DRIVER"
	envPostgresDSN         = "ALBARAN_POSTGRES_DSN"
	envPostgresAutoMigrate = "ALBARAN_POSTGRES_AUTO_MIGRATE"
	envPostgresMaxConns    = "ALBARAN_POSTGRES_MAX_CONNS"
	envKafkaBrokers        = "ALBARAN_KAFKA_BROKERS"
	envKafkaTopic          = "ALBARAN_KAFKA_TOPIC"
	envOutboxPollInterval  = "ALBARAN_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "ALBARAN_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "ALBARAN_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "ALBARAN_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending    = "ALBARAN_OUTBOX_MAX_PENDING"
	envGatewayTimeout      = "ALBARAN_FACTUSOL_TIMEOUT"
	envSeedDemoClients     = "ALBARAN_SEED_DEMO_CLIENTS"
	envCompanyName         = "ALBARAN_COMPANY_NAME"
	envCompanyTaxID        = "ALBARAN_COMPANY_TAX_ID"
	envCompanyAddress      = "ALBARAN_COMPANY_ADDRESS"
)

type envLookup func(string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
}

// readConfigFromEnv формирует конфигурацию приложения.
// Некорректные значения не валят запуск: остаётся значение по умолчанию, ошибка уходит в warnings.
func readConfigFromEnv(lookup envLookup) (app.Config, []error) {
	cfg := app.DefaultConfig()
	var warnings []error

	setString := func(key string, target *string) {
		if v, ok := lookup(key); ok {
			if v = strings.TrimSpace(v); v != "" {
				*target = v
			}
		}
	}

	setString(envHTTPAddr, &cfg.HTTPAddr)
	setString(envGRPCAddr, &cfg.GRPCAddr)
	setString(envMetricsAddr, &cfg.MetricsAddr)
	setString(envPostgresDSN, &cfg.PostgresDSN)
	setString(envKafkaBrokers, &cfg.KafkaBrokers)
	setString(envKafkaTopic, &cfg.KafkaTopic)
	setString(envCompanyName, &cfg.Company.Name)
	setString(envCompanyTaxID, &cfg.Company.TaxID)
	setString(envCompanyAddress, &cfg.Company.Address)

	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}

	boolVars := []struct {
		key    string
		target *bool
	}{
		{envPostgresAutoMigrate, &cfg.PostgresAutoMigrate},
		{envSeedDemoClients, &cfg.SeedDemoClients},
	}
	for _, bv := range boolVars {
		if v, ok := lookup(bv.key); ok {
			parsed, err := parseBool(v)
			if err != nil {
				warnings = append(warnings, fmt.Errorf("%s: %w", bv.key, err))
				continue
			}
			*bv.target = parsed
		}
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	intVars := []struct {
		key    string
		target *int
		valid  func(int) bool
		rule   string
	}{
		{envPostgresMaxConns, &cfg.PostgresMaxConns, positive, "must be > 0"},
		{envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0"},
		{envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0"},
		{envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0"},
	}
	for _, iv := range intVars {
		if v, ok := lookup(iv.key); ok {
			parsed, err := parseInt(v, iv.valid, iv.rule)
			if err != nil {
				warnings = append(warnings, fmt.Errorf("%s: %w", iv.key, err))
				continue
			}
			*iv.target = parsed
		}
	}

	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }
	durationVars := []struct {
		key    string
		target *time.Duration
		valid  func(time.Duration) bool
		rule   string
	}{
		{envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0"},
		{envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0"},
		{envGatewayTimeout, &cfg.GatewayTimeout, positiveDuration, "must be > 0"},
	}
	for _, dv := range durationVars {
		if v, ok := lookup(dv.key); ok {
			parsed, err := parseDuration(v, dv.valid, dv.rule)
			if err != nil {
				warnings = append(warnings, fmt.Errorf("%s: %w", dv.key, err))
				continue
			}
			*dv.target = parsed
		}
	}

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func main() {
	setupLogger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("не удалось прочитать .env")
	}

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.WithError(w).Warn("некорректная переменная окружения, используем значение по умолчанию")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":      version.GetVersion(),
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
	}).Info("запускаем albaran-service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("albaran-service остановлен")
}
