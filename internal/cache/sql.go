package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createPostgresSQL = `CREATE TABLE IF NOT EXISTS cache_entries (
        key         TEXT PRIMARY KEY,
        payload     BYTEA NOT NULL,
        inserted_at TIMESTAMPTZ NOT NULL,
        ttl_seconds BIGINT NOT NULL
    );`

	upsertPostgresSQL = `INSERT INTO cache_entries (key, payload, inserted_at, ttl_seconds)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (key) DO UPDATE
    SET payload     = EXCLUDED.payload,
        inserted_at = EXCLUDED.inserted_at,
        ttl_seconds = EXCLUDED.ttl_seconds;`

	getPostgresSQL    = `SELECT payload, inserted_at, ttl_seconds FROM cache_entries WHERE key = $1;`
	deletePostgresSQL = `DELETE FROM cache_entries WHERE key = $1;`

	createSQLiteSQL = `CREATE TABLE IF NOT EXISTS cache_entries (
        key            TEXT PRIMARY KEY,
        payload        BLOB NOT NULL,
        inserted_at_ms INTEGER NOT NULL,
        ttl_seconds    INTEGER NOT NULL
    );`

	upsertSQLiteSQL = `INSERT INTO cache_entries (key, payload, inserted_at_ms, ttl_seconds)
    VALUES (?, ?, ?, ?)
    ON CONFLICT (key) DO UPDATE
    SET payload        = excluded.payload,
        inserted_at_ms = excluded.inserted_at_ms,
        ttl_seconds    = excluded.ttl_seconds;`

	getSQLiteSQL    = `SELECT payload, inserted_at_ms, ttl_seconds FROM cache_entries WHERE key = ?;`
	deleteSQLiteSQL = `DELETE FROM cache_entries WHERE key = ?;`
)

// Postgres keeps entries in a cache_entries table through pgx.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates the cache table if absent.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, createPostgresSQL); err != nil {
		return nil, fmt.Errorf("create cache table: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) (Entry, error) {
	entry := Entry{Key: key}
	var ttlSeconds int64
	err := p.pool.QueryRow(ctx, getPostgresSQL, key).Scan(&entry.Payload, &entry.InsertedAt, &ttlSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, fmt.Errorf("select cache entry: %w", err)
	}
	entry.TTL = time.Duration(ttlSeconds) * time.Second
	return entry, nil
}

func (p *Postgres) Set(ctx context.Context, entry Entry) error {
	if _, err := p.pool.Exec(ctx, upsertPostgresSQL, entry.Key, entry.Payload, entry.InsertedAt.UTC(), int64(entry.TTL/time.Second)); err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, deletePostgresSQL, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// SQLite keeps entries in a cache_entries table on a database/sql handle.
type SQLite struct {
	db *sql.DB
}

// NewSQLite creates the cache table if absent.
func NewSQLite(ctx context.Context, db *sql.DB) (*SQLite, error) {
	if _, err := db.ExecContext(ctx, createSQLiteSQL); err != nil {
		return nil, fmt.Errorf("create cache table: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (Entry, error) {
	entry := Entry{Key: key}
	var insertedMs, ttlSeconds int64
	err := s.db.QueryRowContext(ctx, getSQLiteSQL, key).Scan(&entry.Payload, &insertedMs, &ttlSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, fmt.Errorf("select cache entry: %w", err)
	}
	entry.InsertedAt = time.UnixMilli(insertedMs).UTC()
	entry.TTL = time.Duration(ttlSeconds) * time.Second
	return entry, nil
}

func (s *SQLite) Set(ctx context.Context, entry Entry) error {
	if _, err := s.db.ExecContext(ctx, upsertSQLiteSQL, entry.Key, entry.Payload, entry.InsertedAt.UnixMilli(), int64(entry.TTL/time.Second)); err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, deleteSQLiteSQL, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

var (
	_ Backend = (*Postgres)(nil)
	_ Backend = (*SQLite)(nil)
)
