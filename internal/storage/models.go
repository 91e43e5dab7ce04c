package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"sector-dashboard/internal/metrics"
	"sector-dashboard/internal/timeseries"
)

// indexColumn holds the trading date of each row.
const indexColumn = "datetime_index"

// dialect captures the SQL differences between the two drivers.
type dialect struct {
	dateType  string
	floatType string
	bind      func(n int) string
}

var (
	postgresDialect = dialect{
		dateType:  "DATE",
		floatType: "DOUBLE PRECISION",
		bind:      func(n int) string { return "$" + strconv.Itoa(n) },
	}
	sqliteDialect = dialect{
		dateType:  "TEXT",
		floatType: "REAL",
		bind:      func(int) string { return "?" },
	}
)

func quote(ident string) string { return `"` + ident + `"` }

func (d dialect) createTableSQL(table string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n        %s %s PRIMARY KEY", quote(table), indexColumn, d.dateType)
	for _, c := range metrics.Columns {
		switch c {
		case metrics.ColumnClose:
			fmt.Fprintf(&b, ",\n        %s %s NOT NULL", c, d.floatType)
		case metrics.ColumnDividends:
			fmt.Fprintf(&b, ",\n        %s %s NOT NULL DEFAULT 0", c, d.floatType)
		default:
			fmt.Fprintf(&b, ",\n        %s %s", c, d.floatType)
		}
	}
	b.WriteString("\n    );")
	return b.String()
}

func (d dialect) insertRowSQL(table string) string {
	cols := append([]string{indexColumn}, metrics.Columns...)
	binds := make([]string, len(cols))
	for i := range cols {
		binds[i] = d.bind(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s)\n    VALUES (%s)\n    ON CONFLICT (%s) DO NOTHING;",
		quote(table), strings.Join(cols, ", "), strings.Join(binds, ","), indexColumn)
}

func selectAllSQL(table string) string {
	return fmt.Sprintf("SELECT %s, %s FROM %s ORDER BY %s;",
		indexColumn, strings.Join(metrics.Columns, ", "), quote(table), indexColumn)
}

func lastDateSQL(table string) string {
	return fmt.Sprintf("SELECT MAX(%s) FROM %s;", indexColumn, quote(table))
}

// joinSQL selects column from every table keyed on the dates of tables[0].
func joinSQL(tables []string, column string) string {
	var sel, from strings.Builder
	fmt.Fprintf(&sel, "SELECT t0.%s", indexColumn)
	for i, table := range tables {
		alias := "t" + strconv.Itoa(i)
		fmt.Fprintf(&sel, ", %s.%s", alias, column)
		if i == 0 {
			fmt.Fprintf(&from, "%s AS %s", quote(table), alias)
			continue
		}
		fmt.Fprintf(&from, "\n    LEFT JOIN %s AS %s ON %s.%s = t0.%s", quote(table), alias, alias, indexColumn, indexColumn)
	}
	return fmt.Sprintf("%s\n    FROM %s\n    ORDER BY t0.%s;", sel.String(), from.String(), indexColumn)
}

// metricArgs are the bind values after the date, in metrics.Columns order.
func metricArgs(r metrics.Row) []any {
	return []any{
		r.Close,
		r.Dividend,
		r.Volatility.Ptr(),
		r.DivYield.Ptr(),
		r.RSI.Ptr(),
		r.Sharpe.Ptr(),
		r.YTDPct.Ptr(),
	}
}

// metricDest holds scan targets for the metric columns of a row.
type metricDest struct {
	close, dividends                          float64
	volatility, divYield, rsi, sharpe, ytdPct *float64
}

func (m *metricDest) targets() []any {
	return []any{&m.close, &m.dividends, &m.volatility, &m.divYield, &m.rsi, &m.sharpe, &m.ytdPct}
}

func (m *metricDest) row() metrics.Row {
	var r metrics.Row
	r.Close = m.close
	r.Dividend = m.dividends
	r.Volatility = null.FloatFromPtr(m.volatility)
	r.DivYield = null.FloatFromPtr(m.divYield)
	r.RSI = null.FloatFromPtr(m.rsi)
	r.Sharpe = null.FloatFromPtr(m.sharpe)
	r.YTDPct = null.FloatFromPtr(m.ytdPct)
	return r
}

// checkColumns turns the columns found for table into a *SchemaError when incomplete.
func checkColumns(table string, found []string) error {
	if len(found) == 0 {
		return &SchemaError{Table: table, Detail: "table does not exist"}
	}
	have := make(map[string]bool, len(found))
	for _, c := range found {
		have[strings.ToLower(c)] = true
	}
	for _, want := range append([]string{indexColumn}, metrics.Columns...) {
		if !have[want] {
			return &SchemaError{Table: table, Detail: fmt.Sprintf("missing column %q", want)}
		}
	}
	return nil
}

// joinAccumulator collects the rows of a JoinColumn query.
type joinAccumulator struct {
	tables []string
	index  []time.Time
	cols   [][]null.Float
	scan   []*float64
}

func newJoinAccumulator(tables []string) *joinAccumulator {
	return &joinAccumulator{
		tables: tables,
		cols:   make([][]null.Float, len(tables)),
		scan:   make([]*float64, len(tables)),
	}
}

func (a *joinAccumulator) targets() []any {
	out := make([]any, len(a.scan))
	for i := range a.scan {
		a.scan[i] = nil
		out[i] = &a.scan[i]
	}
	return out
}

func (a *joinAccumulator) add(date time.Time) {
	a.index = append(a.index, timeseries.Day(date))
	for i, v := range a.scan {
		a.cols[i] = append(a.cols[i], nullable(v))
	}
}

func (a *joinAccumulator) table() (*timeseries.Table, error) {
	t := timeseries.New(a.index)
	for i, name := range a.tables {
		vals := a.cols[i]
		if vals == nil {
			vals = []null.Float{}
		}
		if err := t.Set(name, vals); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func nullable(v *float64) null.Float {
	if v == nil {
		return null.Float{}
	}
	return timeseries.Finite(*v)
}
