package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"

	"sector-dashboard/internal/config"
	"sector-dashboard/internal/metrics"
	"sector-dashboard/internal/sector"
	"sector-dashboard/internal/timeseries"
)

var (
	// ErrNotConfigured indicates the storage handle was not initialised.
	ErrNotConfigured = errors.New("storage: not configured")
)

// SchemaError reports a missing ticker table or column.
type SchemaError struct {
	Table  string
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("storage: table %q: %s", e.Table, e.Detail)
}

// TimeSeriesStore persists one derived-metrics table per ticker.
type TimeSeriesStore interface {
	// EnsureTable creates the ticker table if absent.
	EnsureTable(ctx context.Context, ticker string) error
	// Append inserts rows whose date is not stored yet and returns how many were written.
	Append(ctx context.Context, ticker string, rows []metrics.Row) (int64, error)
	// ReadAll returns every stored row ascending by date, or a *SchemaError.
	ReadAll(ctx context.Context, ticker string) ([]metrics.Row, error)
	// LastDate returns the newest stored date; ok is false for an empty or missing table.
	LastDate(ctx context.Context, ticker string) (last time.Time, ok bool, err error)
	// JoinColumn left-joins one column of each ticker onto the dates of the first ticker.
	JoinColumn(ctx context.Context, tickers []string, column string) (*timeseries.Table, error)
	Close()
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

var tableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// TableName maps a ticker to its table, rejecting names unsafe as identifiers.
func TableName(ticker string) (string, error) {
	name := sector.StoreName(ticker)
	if !tableNamePattern.MatchString(name) {
		return "", fmt.Errorf("storage: ticker %q has no valid table name", ticker)
	}
	return name, nil
}

func knownColumn(column string) bool {
	for _, c := range metrics.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// OpenSQLite opens a single-writer SQLite database. Use ":memory:" for tests.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database.sqlite_path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable wal: %w", err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}
