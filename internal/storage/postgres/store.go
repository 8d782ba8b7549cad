// Package postgres хранит альбараны, их позиции, timeline и outbox в PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

// AlbaranMigrationLockKey — ключ pg_advisory_lock миграций сервиса ("alba" в ASCII).
const AlbaranMigrationLockKey = int64(0x616C6261)

// Пул рассчитан на один офис: единицы операторов и один outbox worker.
const (
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 4
	DefaultConnMaxLifetime = 30 * time.Minute
	DefaultConnMaxIdleTime = 5 * time.Minute
	DefaultPingTimeout     = 5 * time.Second
)

var errStoreNotInitialized = errors.New("albaran postgres store is not initialized")

// Config — параметры подключения к базе альбаранов.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	// MigrationLockKey отделяет миграции этого сервиса от соседей по базе.
	MigrationLockKey int64
}

// DefaultConfig возвращает настройки пула для dsn.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:              dsn,
		MaxOpenConns:     DefaultMaxOpenConns,
		MaxIdleConns:     DefaultMaxIdleConns,
		ConnMaxLifetime:  DefaultConnMaxLifetime,
		ConnMaxIdleTime:  DefaultConnMaxIdleTime,
		PingTimeout:      DefaultPingTimeout,
		MigrationLockKey: AlbaranMigrationLockKey,
	}
}

// withDefaults заполняет нулевые поля значениями DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig(c.DSN)
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = def.MaxOpenConns
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = def.MaxIdleConns
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = def.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = def.ConnMaxIdleTime
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = def.PingTimeout
	}
	if c.MigrationLockKey == 0 {
		c.MigrationLockKey = def.MigrationLockKey
	}
	return c
}

// Store держит пул подключений к базе альбаранов.
type Store struct {
	db     *sql.DB
	cfg    Config
	logger *log.Entry
}

// Open подключается с настройками по умолчанию.
func Open(ctx context.Context, dsn string) (*Store, error) {
	return OpenWithConfig(ctx, DefaultConfig(dsn), nil)
}

// OpenWithConfig открывает пул и проверяет доступность базы.
func OpenWithConfig(ctx context.Context, cfg Config, logger *log.Entry) (*Store, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("albaran postgres dsn is empty")
	}
	if logger == nil {
		logger = log.WithField("component", "postgres")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open albaran database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	store := &Store{db: db, cfg: cfg, logger: logger}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping albaran database: %w", err)
	}

	logger.WithFields(log.Fields{
		"max_open_conns": cfg.MaxOpenConns,
		"max_idle_conns": cfg.MaxIdleConns,
	}).Info("albaran database connected")
	return store, nil
}

// DB возвращает пул для репозиториев.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Config возвращает итоговые настройки пула.
func (s *Store) Config() Config {
	return s.cfg
}

// Ping проверяет доступность базы; используется health checker'ом.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.PingTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все недостающие миграции альбаранов.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает пул.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
