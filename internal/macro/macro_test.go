package macro

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"

	"sector-dashboard/internal/timeseries"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func monthly(from time.Time, n int, value func(i int) float64) timeseries.Series {
	s := make(timeseries.Series, n)
	for i := range s {
		s[i] = timeseries.Point{Date: from.AddDate(0, i, 0), Value: null.FloatFrom(value(i))}
	}
	return s
}

func valueAt(s timeseries.Series, d time.Time) null.Float {
	for _, p := range s {
		if p.Date.Equal(d) {
			return p.Value
		}
	}
	return null.Float{}
}

func TestYoYThirtyWeekRule(t *testing.T) {
	s := monthly(day(2020, 1, 1), 24, func(i int) float64 { return 100 + float64(i) })
	yoy := YoY(s)

	if v := valueAt(yoy, day(2020, 7, 1)); v.Valid {
		t.Fatalf("baseline under 30 weeks back must be omitted, got %v", v)
	}
	if v := valueAt(yoy, day(2020, 8, 1)); !v.Valid || math.Abs(v.Float64-7) > 1e-9 {
		t.Fatalf("expected 7%% from the earliest point, got %v", v)
	}
	if v := valueAt(yoy, day(2021, 1, 1)); !v.Valid || math.Abs(v.Float64-12) > 1e-9 {
		t.Fatalf("expected 12%%, got %v", v)
	}
	if len(yoy) != len(s) {
		t.Fatal("yoy keeps every date")
	}
}

func TestYoYZeroBaselineIsNull(t *testing.T) {
	s := monthly(day(2020, 1, 1), 13, func(i int) float64 {
		if i == 0 {
			return 0
		}
		return 10
	})
	if v := valueAt(YoY(s), day(2021, 1, 1)); v.Valid {
		t.Fatalf("zero baseline must be null, got %v", v)
	}
}

func TestDiffScaled(t *testing.T) {
	s := monthly(day(2024, 1, 1), 3, func(i int) float64 { return []float64{150.0, 150.2, 150.1}[i] })
	d := Diff(s, 1000)
	if d[0].Value.Valid {
		t.Fatal("first difference is null")
	}
	if math.Abs(d[1].Value.Float64-200) > 1e-6 || math.Abs(d[2].Value.Float64+100) > 1e-6 {
		t.Fatalf("unexpected diffs: %v %v", d[1].Value, d[2].Value)
	}
}

type fakeSource struct {
	series map[string]timeseries.Series
	fail   map[string]bool
	calls  map[string]int
	from   time.Time
}

func (f *fakeSource) Series(_ context.Context, id string, from, _ time.Time) (timeseries.Series, error) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[id]++
	f.from = from
	if f.fail[id] {
		return nil, errors.New("provider down")
	}
	return f.series[id], nil
}

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	return c
}

func TestDefaultCatalogGroups(t *testing.T) {
	c := testCatalog(t)
	want := []string{"economic_growth", "labor_market", "inflation_prices", "housing_market", GroupInterestRates}
	if !reflect.DeepEqual(c.Keys(), want) {
		t.Fatalf("unexpected groups: %v", c.Keys())
	}
	g, _ := c.Group(GroupInterestRates)
	spreads := 0
	for _, ind := range g.Indicators {
		if ind.Spread != nil {
			spreads++
		}
	}
	if spreads != 7 {
		t.Fatalf("expected 7 spreads, got %d", spreads)
	}
	if _, err := c.Group("nope"); !errors.Is(err, ErrUnknownGroup) {
		t.Fatalf("expected ErrUnknownGroup, got %v", err)
	}
}

func TestLoadCatalogRejectsDanglingSpread(t *testing.T) {
	doc := `groups:
  - key: rates
    indicators:
      - {name: 2-Year Yield, source: DGS2}
      - {name: 2s10s Spread, spread: {long: 10-Year Yield, short: 2-Year Yield}}
`
	if _, err := LoadCatalog(strings.NewReader(doc)); err == nil {
		t.Fatal("spread with a missing operand should be rejected")
	}
}

func TestAssembleLaborMarket(t *testing.T) {
	src := &fakeSource{series: map[string]timeseries.Series{
		"UNRATE": monthly(day(2022, 1, 1), 6, func(i int) float64 { return 4 }),
		"PAYEMS": monthly(day(2022, 1, 1), 6, func(i int) float64 { return 150 + 0.1*float64(i) }),
	}}
	asm := NewAssembler(src, testCatalog(t), zerolog.Nop()).WithClock(func() time.Time { return day(2024, 6, 15) })

	tbl, err := asm.Assemble(context.Background(), "labor_market", 1)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !src.from.Equal(day(2022, 1, 1)) {
		t.Fatalf("fetch should start on Jan 1 of now.year-years-1, got %s", src.from)
	}
	payrolls, ok := tbl.Column("Nonfarm Payrolls 1M Change")
	if !ok {
		t.Fatalf("missing payrolls column: %v", tbl.Columns())
	}
	if payrolls[0].Valid {
		t.Fatal("first payroll difference stays null after interpolation")
	}
	if math.Abs(payrolls[1].Float64-100) > 1e-6 {
		t.Fatalf("payroll change should be scaled by 1000, got %v", payrolls[1].Float64)
	}
}

func TestAssembleFetchesSharedSourceOnceAndSkipsFailures(t *testing.T) {
	src := &fakeSource{
		series: map[string]timeseries.Series{
			"CPIAUCSL": monthly(day(2021, 1, 1), 30, func(i int) float64 { return 100 + float64(i) }),
			"CPILFESL": monthly(day(2021, 1, 1), 30, func(i int) float64 { return 200 + float64(i) }),
		},
		fail: map[string]bool{"PPIACO": true},
	}
	asm := NewAssembler(src, testCatalog(t), zerolog.Nop()).WithClock(func() time.Time { return day(2024, 1, 15) })

	tbl, err := asm.Assemble(context.Background(), "inflation_prices", 2)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if src.calls["CPIAUCSL"] != 1 {
		t.Fatalf("CPI should be fetched once, got %d", src.calls["CPIAUCSL"])
	}
	if tbl.Has("PPI") || tbl.Has("PPI YoY") {
		t.Fatal("failed series should be left out")
	}
	if !tbl.Has("CPI YoY") || !tbl.Has("Core CPI") {
		t.Fatalf("unexpected columns: %v", tbl.Columns())
	}
}

func TestAssembleFailsWhenEverySeriesFails(t *testing.T) {
	src := &fakeSource{fail: map[string]bool{"UNRATE": true, "PAYEMS": true}}
	asm := NewAssembler(src, testCatalog(t), zerolog.Nop())
	if _, err := asm.Assemble(context.Background(), "labor_market", 1); err == nil {
		t.Fatal("expected an error when no series could be fetched")
	}
}

func TestApplySpreadsAfterInterpolation(t *testing.T) {
	g, _ := testCatalog(t).Group(GroupInterestRates)
	tbl := timeseries.New([]time.Time{day(2024, 1, 1), day(2024, 1, 2)})
	_ = tbl.Set("2-Year Yield", []null.Float{null.FloatFrom(4.5), null.FloatFrom(4.4)})
	_ = tbl.Set("10-Year Yield", []null.Float{{}, null.FloatFrom(4.0)})
	_ = tbl.Set("3-Month Yield", []null.Float{null.FloatFrom(5.0), null.FloatFrom(5.1)})

	out := ApplySpreads(g, tbl)
	s, _ := out.Column("2s10s Spread")
	if s[0].Valid {
		t.Fatal("spread needs both operands")
	}
	if math.Abs(s[1].Float64-(-0.4)) > 1e-9 {
		t.Fatalf("2s10s = %v, want -0.4", s[1].Float64)
	}
	if m, _ := out.Column("3m2y Spread"); math.Abs(m[0].Float64-(-0.5)) > 1e-9 {
		t.Fatalf("3m2y = %v, want -0.5", m[0].Float64)
	}
	if fives, _ := out.Column("2s5s Spread"); fives[0].Valid || fives[1].Valid {
		t.Fatal("absent operand column yields an all-null spread")
	}
}

func TestInterestRateColumnsRegressionPair(t *testing.T) {
	single, err := InterestRateColumns([]string{"2 Year"})
	if err != nil {
		t.Fatal(err)
	}
	wantSingle := []string{"2-Year Yield", "2s5s Spread", "2s10s Spread", "2s30s Spread", "3m2y Spread"}
	if !reflect.DeepEqual(single, wantSingle) {
		t.Fatalf("single maturity: got %v", single)
	}

	pair, err := InterestRateColumns([]string{"2 Year", "10 Year"})
	if err != nil {
		t.Fatal(err)
	}
	wantPair := []string{"2-Year Yield", "10-Year Real Yield", "10-Year Yield", "2s10s Spread", FedFunds}
	if !reflect.DeepEqual(pair, wantPair) {
		t.Fatalf("pair: got %v", pair)
	}
}

func TestInterestRateColumnsNoIntersectionTakesOwnSpreads(t *testing.T) {
	got, err := InterestRateColumns([]string{"3 Month", "5 Year"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"3-Month Yield", "5-Year Real Yield", "5-Year Yield", "3m10y Spread", "3m2y Spread", "2s5s Spread", "5s30s Spread", FedFunds}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v", got)
	}
}

func TestInterestRateColumnsAsymmetricRule(t *testing.T) {
	// 3 Month shares 3m2y with 2 Year; 30 Year shares 2s30s with 2 Year.
	got, err := InterestRateColumns([]string{"3 Month", "2 Year", "30 Year"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"3-Month Yield", "2-Year Yield", "30-Year MBS Yield", "30-Year Yield", "3m2y Spread", "2s30s Spread", FedFunds}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v", got)
	}
	if _, err := InterestRateColumns([]string{"7 Year"}); !errors.Is(err, ErrUnknownMaturity) {
		t.Fatalf("expected ErrUnknownMaturity, got %v", err)
	}
}

func TestWindowAnchorsOnDecember31(t *testing.T) {
	now := day(2024, 3, 1)
	if !FetchStart(now, 4).Equal(day(2019, 1, 1)) || !WindowStart(now, 4).Equal(day(2019, 12, 31)) {
		t.Fatalf("unexpected horizon: %s %s", FetchStart(now, 4), WindowStart(now, 4))
	}
	tbl := timeseries.New([]time.Time{day(2019, 12, 30), day(2019, 12, 31), day(2020, 1, 2)})
	_ = tbl.Set("v", []null.Float{null.FloatFrom(1), null.FloatFrom(2), null.FloatFrom(3)})
	if got := Window(tbl, now, 4); got.Len() != 2 {
		t.Fatalf("expected 2 rows in window, got %d", got.Len())
	}
}
