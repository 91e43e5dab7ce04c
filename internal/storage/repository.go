package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sector-dashboard/internal/metrics"
	"sector-dashboard/internal/timeseries"
)

const (
	listColumnsPostgresSQL = `SELECT column_name
    FROM information_schema.columns
    WHERE table_schema = current_schema()
      AND table_name = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store keeps ticker tables in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the pool for components sharing the database, such as the cache.
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureTable creates the ticker table if absent.
func (s *Store) EnsureTable(ctx context.Context, ticker string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	table, err := TableName(ticker)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, postgresDialect.createTableSQL(table)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// Append inserts rows not already stored; existing dates are left untouched.
func (s *Store) Append(ctx context.Context, ticker string, rows []metrics.Row) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	table, err := TableName(ticker)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	insertSQL := postgresDialect.insertRowSQL(table)
	batch := &pgx.Batch{}
	for _, r := range rows {
		args := append([]any{timeseries.Day(r.Date)}, metricArgs(r)...)
		batch.Queue(insertSQL, args...)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range rows {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert into %s: %w", table, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// ReadAll returns the stored rows ascending by date.
func (s *Store) ReadAll(ctx context.Context, ticker string) ([]metrics.Row, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	table, err := TableName(ticker)
	if err != nil {
		return nil, err
	}
	if err := s.checkSchema(ctx, pool, table); err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, selectAllSQL(table))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var out []metrics.Row
	for rows.Next() {
		var (
			date time.Time
			dest metricDest
		)
		if err := rows.Scan(append([]any{&date}, dest.targets()...)...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		r := dest.row()
		r.Date = timeseries.Day(date)
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// LastDate returns the newest stored date.
func (s *Store) LastDate(ctx context.Context, ticker string) (time.Time, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, false, err
	}
	table, err := TableName(ticker)
	if err != nil {
		return time.Time{}, false, err
	}
	var schemaErr *SchemaError
	if err := s.checkSchema(ctx, pool, table); errors.As(err, &schemaErr) {
		return time.Time{}, false, nil
	} else if err != nil {
		return time.Time{}, false, err
	}

	var last *time.Time
	if err := pool.QueryRow(ctx, lastDateSQL(table)).Scan(&last); err != nil {
		return time.Time{}, false, fmt.Errorf("last date %s: %w", table, err)
	}
	if last == nil {
		return time.Time{}, false, nil
	}
	return timeseries.Day(*last), true, nil
}

// JoinColumn left-joins column across tickers on the first ticker's dates.
// Result columns are named by table name.
func (s *Store) JoinColumn(ctx context.Context, tickers []string, column string) (*timeseries.Table, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	tables, err := s.joinTables(ctx, pool, tickers, column)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, joinSQL(tables, column))
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", column, err)
	}
	defer rows.Close()

	acc := newJoinAccumulator(tables)
	for rows.Next() {
		var date time.Time
		if err := rows.Scan(append([]any{&date}, acc.targets()...)...); err != nil {
			return nil, fmt.Errorf("scan join %s: %w", column, err)
		}
		acc.add(date)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return acc.table()
}

func (s *Store) joinTables(ctx context.Context, pool *pgxpool.Pool, tickers []string, column string) ([]string, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("join %s: no tickers", column)
	}
	if !knownColumn(column) {
		return nil, fmt.Errorf("join: unknown column %q", column)
	}
	tables := make([]string, len(tickers))
	for i, ticker := range tickers {
		table, err := TableName(ticker)
		if err != nil {
			return nil, err
		}
		if err := s.checkSchema(ctx, pool, table); err != nil {
			return nil, err
		}
		tables[i] = table
	}
	return tables, nil
}

func (s *Store) checkSchema(ctx context.Context, pool *pgxpool.Pool, table string) error {
	rows, err := pool.Query(ctx, listColumnsPostgresSQL, table)
	if err != nil {
		return fmt.Errorf("list columns %s: %w", table, err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("list columns %s: %w", table, err)
	}
	return checkColumns(table, found)
}

var (
	_ TimeSeriesStore = (*Store)(nil)
	_ AdvisoryLocker  = (*Store)(nil)
)
