package metrics

import (
	"fmt"
	"time"

	"github.com/guregu/null/v6"

	"sector-dashboard/internal/timeseries"
)

// RowsTable lays out derived rows as a table of the stored columns.
func RowsTable(rows []Row) *timeseries.Table {
	index := make([]time.Time, len(rows))
	cols := make(map[string][]null.Float, len(Columns))
	for _, c := range Columns {
		cols[c] = make([]null.Float, len(rows))
	}
	for i, r := range rows {
		index[i] = r.Date
		cols[ColumnClose][i] = null.FloatFrom(r.Close)
		cols[ColumnDividends][i] = null.FloatFrom(r.Dividend)
		cols[ColumnVolatility][i] = r.Volatility
		cols[ColumnDivYield][i] = r.DivYield
		cols[ColumnRSI][i] = r.RSI
		cols[ColumnSharpe][i] = r.Sharpe
		cols[ColumnYTD][i] = r.YTDPct
	}
	t := timeseries.New(index)
	for _, c := range Columns {
		_ = t.Set(c, cols[c])
	}
	return t
}

// BarsTable lays out bars as a close/dividends table.
func BarsTable(bars []Bar) *timeseries.Table {
	index := make([]time.Time, len(bars))
	closes := make([]null.Float, len(bars))
	divs := make([]null.Float, len(bars))
	for i, b := range bars {
		index[i] = b.Date
		closes[i] = null.FloatFrom(b.Close)
		divs[i] = null.FloatFrom(b.Dividend)
	}
	t := timeseries.New(index)
	_ = t.Set(ColumnClose, closes)
	_ = t.Set(ColumnDividends, divs)
	return t
}

// BarsFromTable decodes a table written by BarsTable.
func BarsFromTable(t *timeseries.Table) ([]Bar, error) {
	closes, ok := t.Column(ColumnClose)
	if !ok {
		return nil, fmt.Errorf("bars table missing %q column", ColumnClose)
	}
	divs, _ := t.Column(ColumnDividends)

	out := make([]Bar, 0, t.Len())
	for i, d := range t.Index() {
		if !closes[i].Valid {
			continue
		}
		b := Bar{Date: d, Close: closes[i].Float64}
		if divs != nil {
			b.Dividend = divs[i].ValueOrZero()
		}
		out = append(out, b)
	}
	return out, nil
}
