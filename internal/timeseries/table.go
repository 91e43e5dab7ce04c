package timeseries

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/guregu/null/v6"
)

// DateLayout is the calendar-day format used for indexes and CSV payloads.
const DateLayout = "2006-01-02"

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Finite wraps f as a valid value, or null when f is NaN or infinite.
func Finite(f float64) null.Float {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return null.Float{}
	}
	return null.FloatFrom(f)
}

// Point is one observation of a series.
type Point struct {
	Date  time.Time
	Value null.Float
}

// Series is an ordered sequence of observations.
type Series []Point

// Sorted returns a copy ordered by date with duplicate dates collapsed to the last observation.
func (s Series) Sorted() Series {
	out := make(Series, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	dedup := out[:0]
	for _, p := range out {
		p.Date = Day(p.Date)
		if n := len(dedup); n > 0 && dedup[n-1].Date.Equal(p.Date) {
			dedup[n-1] = p
			continue
		}
		dedup = append(dedup, p)
	}
	return dedup
}

// Table is a date-indexed set of named nullable float columns.
type Table struct {
	index   []time.Time
	columns []string
	values  map[string][]null.Float
}

// New builds an empty table over index.
func New(index []time.Time) *Table {
	idx := make([]time.Time, len(index))
	for i, t := range index {
		idx[i] = Day(t)
	}
	return &Table{index: idx, values: make(map[string][]null.Float)}
}

// Align builds a table over the union of the series' dates, one column per name.
func Align(names []string, series []Series) (*Table, error) {
	if len(names) != len(series) {
		return nil, fmt.Errorf("align: %d names for %d series", len(names), len(series))
	}

	seen := make(map[time.Time]struct{})
	sorted := make([]Series, len(series))
	for i, s := range series {
		sorted[i] = s.Sorted()
		for _, p := range sorted[i] {
			seen[p.Date] = struct{}{}
		}
	}

	index := make([]time.Time, 0, len(seen))
	for d := range seen {
		index = append(index, d)
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j]) })

	pos := make(map[time.Time]int, len(index))
	for i, d := range index {
		pos[d] = i
	}

	t := New(index)
	for i, name := range names {
		col := make([]null.Float, len(index))
		for _, p := range sorted[i] {
			col[pos[p.Date]] = p.Value
		}
		if err := t.Set(name, col); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Len returns the row count.
func (t *Table) Len() int { return len(t.index) }

// Index returns the row dates. Callers must not modify it.
func (t *Table) Index() []time.Time { return t.index }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Has reports whether the column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.values[name]
	return ok
}

// Column returns a column's values. Callers must not modify it.
func (t *Table) Column(name string) ([]null.Float, bool) {
	vals, ok := t.values[name]
	return vals, ok
}

// Set adds or replaces a column.
func (t *Table) Set(name string, vals []null.Float) error {
	if len(vals) != len(t.index) {
		return fmt.Errorf("column %q has %d values for %d rows", name, len(vals), len(t.index))
	}
	if _, ok := t.values[name]; !ok {
		t.columns = append(t.columns, name)
	}
	t.values[name] = vals
	return nil
}

// Drop removes columns; unknown names are ignored.
func (t *Table) Drop(names ...string) {
	for _, name := range names {
		if _, ok := t.values[name]; !ok {
			continue
		}
		delete(t.values, name)
		for i, c := range t.columns {
			if c == name {
				t.columns = append(t.columns[:i], t.columns[i+1:]...)
				break
			}
		}
	}
}

// Rename changes column names in place, keeping their position.
func (t *Table) Rename(mapping map[string]string) {
	for i, c := range t.columns {
		to, ok := mapping[c]
		if !ok || to == c {
			continue
		}
		t.values[to] = t.values[c]
		delete(t.values, c)
		t.columns[i] = to
	}
}

// Select returns a table with the named columns in the given order; absent names are skipped.
func (t *Table) Select(names ...string) *Table {
	out := New(t.index)
	for _, name := range names {
		if vals, ok := t.values[name]; ok && !out.Has(name) {
			_ = out.Set(name, append([]null.Float(nil), vals...))
		}
	}
	return out
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	return t.Select(t.columns...)
}

// Filter keeps the rows for which keep returns true.
func (t *Table) Filter(keep func(i int) bool) *Table {
	rows := make([]int, 0, len(t.index))
	for i := range t.index {
		if keep(i) {
			rows = append(rows, i)
		}
	}

	index := make([]time.Time, len(rows))
	for j, i := range rows {
		index[j] = t.index[i]
	}
	out := New(index)
	for _, name := range t.columns {
		src := t.values[name]
		col := make([]null.Float, len(rows))
		for j, i := range rows {
			col[j] = src[i]
		}
		_ = out.Set(name, col)
	}
	return out
}

// Since keeps rows dated on or after from.
func (t *Table) Since(from time.Time) *Table {
	from = Day(from)
	return t.Filter(func(i int) bool { return !t.index[i].Before(from) })
}

// Row returns the values of row i in column order.
func (t *Table) Row(i int) []null.Float {
	row := make([]null.Float, len(t.columns))
	for j, name := range t.columns {
		row[j] = t.values[name][i]
	}
	return row
}

// YearStarts returns the first index date of each calendar year present.
func (t *Table) YearStarts() []time.Time {
	var out []time.Time
	lastYear := 0
	for _, d := range t.index {
		if d.Year() != lastYear {
			out = append(out, d)
			lastYear = d.Year()
		}
	}
	return out
}

type tableJSON struct {
	Columns []string       `json:"columns"`
	Index   []string       `json:"index"`
	Data    [][]null.Float `json:"data"`
}

// MarshalJSON encodes the table in split orientation: columns, index, row-major data.
func (t *Table) MarshalJSON() ([]byte, error) {
	payload := tableJSON{
		Columns: t.Columns(),
		Index:   make([]string, len(t.index)),
		Data:    make([][]null.Float, len(t.index)),
	}
	for i, d := range t.index {
		payload.Index[i] = d.Format(DateLayout)
		payload.Data[i] = t.Row(i)
	}
	return json.Marshal(payload)
}
