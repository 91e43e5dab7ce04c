package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sector-dashboard/internal/metrics"
	"sector-dashboard/internal/timeseries"
)

const listColumnsSQLiteSQL = `SELECT name FROM pragma_table_info(?);`

// SQLiteStore keeps ticker tables in a SQLite database. Dates are stored as YYYY-MM-DD text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// DB exposes the handle for components sharing the database, such as the cache.
func (s *SQLiteStore) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// EnsureTable creates the ticker table if absent.
func (s *SQLiteStore) EnsureTable(ctx context.Context, ticker string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	table, err := TableName(ticker)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, sqliteDialect.createTableSQL(table)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// Append inserts rows not already stored inside one transaction.
func (s *SQLiteStore) Append(ctx context.Context, ticker string, rows []metrics.Row) (int64, error) {
	db, err := s.getDB()
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

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append %s: %w", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, sqliteDialect.insertRowSQL(table))
	if err != nil {
		return 0, fmt.Errorf("prepare insert %s: %w", table, err)
	}
	defer stmt.Close()

	var inserted int64
	for _, r := range rows {
		args := append([]any{timeseries.Day(r.Date).Format(timeseries.DateLayout)}, metricArgs(r)...)
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected %s: %w", table, err)
		}
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append %s: %w", table, err)
	}
	return inserted, nil
}

// ReadAll returns the stored rows ascending by date.
func (s *SQLiteStore) ReadAll(ctx context.Context, ticker string) ([]metrics.Row, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	table, err := TableName(ticker)
	if err != nil {
		return nil, err
	}
	if err := s.checkSchema(ctx, db, table); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, selectAllSQL(table))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var out []metrics.Row
	for rows.Next() {
		var (
			date string
			dest metricDest
		)
		if err := rows.Scan(append([]any{&date}, dest.targets()...)...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		day, err := parseDate(date)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		r := dest.row()
		r.Date = day
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// LastDate returns the newest stored date.
func (s *SQLiteStore) LastDate(ctx context.Context, ticker string) (time.Time, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return time.Time{}, false, err
	}
	table, err := TableName(ticker)
	if err != nil {
		return time.Time{}, false, err
	}
	var schemaErr *SchemaError
	if err := s.checkSchema(ctx, db, table); errors.As(err, &schemaErr) {
		return time.Time{}, false, nil
	} else if err != nil {
		return time.Time{}, false, err
	}

	var last sql.NullString
	if err := db.QueryRowContext(ctx, lastDateSQL(table)).Scan(&last); err != nil {
		return time.Time{}, false, fmt.Errorf("last date %s: %w", table, err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	day, err := parseDate(last.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last date %s: %w", table, err)
	}
	return day, true, nil
}

// JoinColumn left-joins column across tickers on the first ticker's dates.
func (s *SQLiteStore) JoinColumn(ctx context.Context, tickers []string, column string) (*timeseries.Table, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
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
		if err := s.checkSchema(ctx, db, table); err != nil {
			return nil, err
		}
		tables[i] = table
	}

	rows, err := db.QueryContext(ctx, joinSQL(tables, column))
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", column, err)
	}
	defer rows.Close()

	acc := newJoinAccumulator(tables)
	for rows.Next() {
		var date string
		if err := rows.Scan(append([]any{&date}, acc.targets()...)...); err != nil {
			return nil, fmt.Errorf("scan join %s: %w", column, err)
		}
		day, err := parseDate(date)
		if err != nil {
			return nil, fmt.Errorf("scan join %s: %w", column, err)
		}
		acc.add(day)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return acc.table()
}

func (s *SQLiteStore) checkSchema(ctx context.Context, db *sql.DB, table string) error {
	rows, err := db.QueryContext(ctx, listColumnsSQLiteSQL, table)
	if err != nil {
		return fmt.Errorf("list columns %s: %w", table, err)
	}
	defer rows.Close()

	var found []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("list columns %s: %w", table, err)
		}
		found = append(found, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list columns %s: %w", table, err)
	}
	return checkColumns(table, found)
}

func parseDate(s string) (time.Time, error) {
	if len(s) > len(timeseries.DateLayout) {
		s = s[:len(timeseries.DateLayout)]
	}
	day, err := time.Parse(timeseries.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return day, nil
}

var _ TimeSeriesStore = (*SQLiteStore)(nil)
