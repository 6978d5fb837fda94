// Package store provides GORM-based persistence for the mirror tables.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps the GORM connection to the mirror database.
type Store struct {
	DB    *gorm.DB
	sqlDB *sql.DB
}

// Config holds database connection settings.
type Config struct {
	DSN      string
	MaxConns int
	LogLevel logger.LogLevel
}

// NewStore opens a pooled PostgreSQL connection.
func NewStore(cfg Config) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:      logger.Default.LogMode(cfg.LogLevel),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 50
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns / 2)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{DB: db, sqlDB: sqlDB}, nil
}

var (
	sharedMu  sync.Mutex
	sharedOne *Store
)

// Shared returns the process-wide store, opening it on first use.
// Subsequent calls ignore cfg and return the same handle.
func Shared(cfg Config) (*Store, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedOne != nil {
		return sharedOne, nil
	}
	s, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}
	sharedOne = s
	return s, nil
}

// NewDedicated opens an isolated pool for jobs that prefer not to share
// connections with the rest of the process.
func NewDedicated(cfg Config) (*Store, error) {
	return NewStore(cfg)
}

// WithTx runs fn against a transaction-scoped view of the store.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx, sqlDB: s.sqlDB})
	})
}

// Ping verifies the connection is alive.
func (s *Store) Ping() error {
	return s.sqlDB.Ping()
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}
