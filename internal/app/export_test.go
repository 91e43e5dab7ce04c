package app

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v6"

	"sector-dashboard/internal/service"
	"sector-dashboard/internal/timeseries"
)

func testTable(n int) *timeseries.Table {
	index := make([]time.Time, n)
	vals := make([]null.Float, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range index {
		index[i] = start.AddDate(0, 0, i)
		vals[i] = null.FloatFrom(float64(i))
	}
	t := timeseries.New(index)
	_ = t.Set("XLK", vals)
	return t
}

func TestDownsampleKeepsEndpoints(t *testing.T) {
	table := testTable(100)
	out := downsample(table, 10)
	if out.Len() != 10 {
		t.Fatalf("expected 10 rows, got %d", out.Len())
	}
	if !out.Index()[0].Equal(table.Index()[0]) || !out.Index()[9].Equal(table.Index()[99]) {
		t.Fatalf("first and last rows must survive: %v .. %v", out.Index()[0], out.Index()[9])
	}
}

func TestDownsampleShortTableUntouched(t *testing.T) {
	table := testTable(5)
	if out := downsample(table, 10); out != table {
		t.Fatal("a table under the limit must be returned as is")
	}
	if out := downsample(table, 0); out != table {
		t.Fatal("a zero limit disables downsampling")
	}
}

func TestWriteBarsCSV(t *testing.T) {
	bars := &service.BarChart{
		YAxis: "RSI",
		Bars: []service.BarValue{
			{Ticker: "XLK", Sector: "Technology", Value: null.FloatFrom(61.5)},
			{Ticker: "XLE", Sector: "Energy"},
		},
		Benchmark:     null.FloatFrom(55),
		BenchmarkName: "S&P 500",
	}

	var buf bytes.Buffer
	if err := writeBarsCSV(&buf, bars); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"ticker,sector,RSI",
		"XLK,Technology,61.5000",
		"XLE,Energy,",
		"S&P 500,,55.0000",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %q", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
