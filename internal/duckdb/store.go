// Package duckdb is the upstream population store: a DuckDB database holding
// one row per person, read in full on every rebuild.
package duckdb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/tinytelemetry/cohortlens/internal/duckdb/migrate"
	"github.com/tinytelemetry/cohortlens/internal/model"
	"go.uber.org/zap"
)

// Config holds optional settings for a Store.
type Config struct {
	// QueryTimeout bounds each statement. Defaults to model.DefaultQueryTimeout.
	QueryTimeout time.Duration
	Logger       *zap.Logger
}

// Store manages the DuckDB connection.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	logger       *zap.Logger
	QueryTimeout time.Duration
}

// NewStore opens or creates a DuckDB database and applies pending migrations.
// If dbPath is empty, an in-memory database is used.
func NewStore(dbPath string, conf ...Config) (*Store, error) {
	var cfg Config
	if len(conf) > 0 {
		cfg = conf[0]
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = model.DefaultQueryTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout)
	defer cancel()
	applied, err := migrate.NewRunner(db).Run(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if applied > 0 {
		cfg.Logger.Info("duckdb: schema migrated", zap.Int("applied", applied), zap.String("path", dbPath))
	}

	return &Store{
		db:           db,
		dbPath:       dbPath,
		logger:       cfg.Logger,
		QueryTimeout: cfg.QueryTimeout,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// queryCtx bounds parent by the store's query timeout.
func (s *Store) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.QueryTimeout)
}
