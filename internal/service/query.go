package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"sector-dashboard/internal/macro"
	"sector-dashboard/internal/metrics"
	"sector-dashboard/internal/sector"
	"sector-dashboard/internal/timeseries"
	"sector-dashboard/internal/watchlist"
)

var (
	// ErrUnknownMetric is returned for a metric name outside the closed set.
	ErrUnknownMetric = errors.New("service: unknown metric")
	// ErrUnknownTicker is returned for a ticker that is not tracked.
	ErrUnknownTicker = errors.New("service: unknown ticker")
)

// SeriesStyle carries the presentation hints of one table column.
type SeriesStyle struct {
	Name          string `json:"name"`
	Label         string `json:"label,omitempty"`
	Hidden        bool   `json:"hidden"`
	SecondaryAxis bool   `json:"secondary_axis"`
	Bar           bool   `json:"bar"`
}

// Chart is a chart-ready table with its presentation metadata.
type Chart struct {
	Title        string            `json:"title"`
	YAxis        string            `json:"y_axis"`
	Y2Axis       string            `json:"y2_axis,omitempty"`
	Table        *timeseries.Table `json:"table"`
	Series       []SeriesStyle     `json:"series"`
	YearDividers []time.Time       `json:"year_dividers"`
}

// BarValue is one fund's bar in a snapshot chart.
type BarValue struct {
	Ticker string     `json:"ticker"`
	Sector string     `json:"sector"`
	Value  null.Float `json:"value"`
}

// BarChart is the latest value of a metric per fund against a benchmark line.
type BarChart struct {
	Title         string     `json:"title"`
	YAxis         string     `json:"y_axis"`
	Date          time.Time  `json:"date"`
	Bars          []BarValue `json:"bars"`
	Benchmark     null.Float `json:"benchmark"`
	BenchmarkName string     `json:"benchmark_name"`
}

// MetricView holds exactly one of Chart or Bars.
type MetricView struct {
	Chart *Chart    `json:"chart,omitempty"`
	Bars  *BarChart `json:"bars,omitempty"`
}

// MetricQuery selects a cross-sector metric chart.
type MetricQuery struct {
	Metric    string
	Years     int
	Smoothing int
	AsBar     bool
}

const vixColumn = "VIX"

// MetricSeries plots one metric across every tracked fund.
func (s *Service) MetricSeries(ctx context.Context, q MetricQuery) (*MetricView, error) {
	kind, err := metrics.ParseKind(q.Metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, q.Metric)
	}

	stores := make([]string, 0, len(sector.Tickers()))
	for _, t := range sector.Tickers() {
		stores = append(stores, sector.StoreName(t))
	}
	table, err := s.store.JoinColumn(ctx, sector.Tickers(), kind.Column())
	if err != nil {
		return nil, err
	}
	rename := make(map[string]string, len(stores))
	for _, name := range stores {
		rename[name] = sector.DisplayName(name)
	}
	table.Rename(rename)

	switch kind {
	case metrics.KindDividendYield:
		table = dropZeroRows(table)
		table.Drop(sector.Benchmark)
	case metrics.KindPrice:
		table.Drop(sector.Benchmark)
	case metrics.KindVolatility:
		vix, err := s.overlay(ctx, sector.VIX)
		if err != nil {
			return nil, err
		}
		if err := table.Set(vixColumn, lookup(vix, metrics.ColumnClose, table.Index())); err != nil {
			return nil, err
		}
	}

	if q.AsBar {
		return &MetricView{Bars: barChart(kind, table)}, nil
	}

	if q.Smoothing > 1 {
		table = table.Rolling(q.Smoothing)
	}
	table = table.Since(yearStart(s.now(), q.Years))

	chart := &Chart{
		Title:        kind.String() + " by Sector",
		YAxis:        kind.String(),
		Table:        table,
		YearDividers: table.YearStarts(),
	}
	for _, col := range table.Columns() {
		style := SeriesStyle{Name: col, Hidden: sector.HiddenByDefault(col)}
		if etf, ok := sector.Lookup(col); ok {
			style.Label = etf.Sector
		}
		chart.Series = append(chart.Series, style)
	}
	return &MetricView{Chart: chart}, nil
}

func barChart(kind metrics.Kind, t *timeseries.Table) *BarChart {
	chart := &BarChart{
		Title:         kind.String() + " by Sector",
		YAxis:         kind.String(),
		BenchmarkName: sector.Benchmark,
	}
	if t.Len() == 0 {
		return chart
	}
	last := t.Len() - 1
	chart.Date = t.Index()[last]

	var sum float64
	var count int
	for _, col := range t.Columns() {
		vals, _ := t.Column(col)
		v := vals[last]
		switch col {
		case vixColumn:
			continue
		case sector.Benchmark:
			chart.Benchmark = v
			continue
		}
		label := col
		if etf, ok := sector.Lookup(col); ok {
			label = etf.Sector
		}
		chart.Bars = append(chart.Bars, BarValue{Ticker: col, Sector: label, Value: v})
		if v.Valid {
			sum += v.Float64
			count++
		}
	}
	if !t.Has(sector.Benchmark) {
		chart.BenchmarkName = "Average " + kind.String()
		if count > 0 {
			chart.Benchmark = null.FloatFrom(sum / float64(count))
		}
	}
	return chart
}

// SectorSeries plots every derived metric of one ticker, Sharpe on the secondary axis.
func (s *Service) SectorSeries(ctx context.Context, ticker string, years, smoothing int) (*Chart, error) {
	if !sector.IsTracked(ticker) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTicker, ticker)
	}
	ticker = sector.Canonical(ticker)

	rows, err := s.store.ReadAll(ctx, ticker)
	if err != nil {
		return nil, err
	}
	table := metrics.RowsTable(rows)
	table.Drop(metrics.ColumnDividends)
	if smoothing > 1 {
		table = table.Rolling(smoothing)
	}
	table = table.Since(yearStart(s.now(), years))

	labels := make(map[string]string, len(metrics.Columns))
	for _, k := range metrics.Kinds() {
		labels[k.Column()] = k.String()
	}
	table.Rename(labels)

	sharpe := metrics.KindSharpe.String()
	chart := &Chart{
		Title:        ticker + " Sector Data",
		YAxis:        "Primary Metrics",
		Y2Axis:       sharpe,
		Table:        table,
		YearDividers: table.YearStarts(),
	}
	for _, col := range table.Columns() {
		if col == sharpe {
			continue
		}
		chart.Series = append(chart.Series, SeriesStyle{Name: col})
	}
	chart.Series = append(chart.Series, SeriesStyle{Name: sharpe, SecondaryAxis: true})
	return chart, nil
}

// MacroSeries plots one indicator group. Maturities apply to the interest rate group only.
func (s *Service) MacroSeries(ctx context.Context, groupKey string, years int, maturities []string) (*Chart, error) {
	if s.macro == nil {
		return nil, errors.New("macro assembler not configured")
	}
	group, err := s.macro.Catalog().Group(groupKey)
	if err != nil {
		return nil, err
	}

	var selected map[string]struct{}
	if group.Key == macro.GroupInterestRates {
		cols, err := macro.InterestRateColumns(maturities)
		if err != nil {
			return nil, err
		}
		selected = make(map[string]struct{}, len(cols))
		for _, c := range cols {
			selected[c] = struct{}{}
		}
	}

	table, err := s.macroTable(ctx, groupKey)
	if err != nil {
		return nil, err
	}
	table = table.Since(yearStart(s.now(), years))

	var primary, secondary, bars []SeriesStyle
	for _, ind := range group.Indicators {
		if !table.Has(ind.Name) {
			continue
		}
		style := SeriesStyle{Name: ind.Name, Hidden: ind.Hidden, SecondaryAxis: ind.SecondaryAxis || ind.Bar, Bar: ind.Bar}
		if selected != nil && !ind.Bar {
			if _, ok := selected[ind.Name]; !ok {
				continue
			}
		}
		switch {
		case ind.Bar:
			bars = append(bars, style)
		case ind.SecondaryAxis:
			secondary = append(secondary, style)
		default:
			primary = append(primary, style)
		}
	}
	series := append(append(primary, secondary...), bars...)

	names := make([]string, len(series))
	for i, st := range series {
		names[i] = st.Name
	}
	table = table.Select(names...)

	return &Chart{
		Title:        group.Title,
		YAxis:        group.YAxis,
		Y2Axis:       group.Y2Axis,
		Table:        table,
		Series:       series,
		YearDividers: table.YearStarts(),
	}, nil
}

// Watchlist returns the default view, optionally narrowed to one fund's sector.
func (s *Service) Watchlist(ctx context.Context, fund string) ([]watchlist.Entry, error) {
	entries, err := s.watchlistSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return watchlist.FilterSector(entries, fund)
}

// SectorWeightings sums watchlist market cap per sector.
func (s *Service) SectorWeightings(ctx context.Context) ([]watchlist.Weighting, error) {
	entries, err := s.watchlistSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return watchlist.Weightings(entries), nil
}

// RiskReturnPoint is one fund in one quarter.
type RiskReturnPoint struct {
	Quarter          string     `json:"quarter"`
	Start            time.Time  `json:"start"`
	Sector           string     `json:"sector"`
	ETF              string     `json:"etf"`
	AnnualizedReturn float64    `json:"annualized_return"`
	AnnualizedRisk   null.Float `json:"annualized_risk"`
}

// RiskReturnView is the per-quarter scatter of every fund.
type RiskReturnView struct {
	Title    string            `json:"title"`
	Quarters []string          `json:"quarters"`
	Points   []RiskReturnPoint `json:"points"`
	Missing  []string          `json:"missing,omitempty"`
}

// RiskReturn collects quarterly risk/return per fund. Unless animated, only the latest
// quarter is kept. A fund that fails is listed in Missing; the call fails only if all do.
func (s *Service) RiskReturn(ctx context.Context, animated bool) (*RiskReturnView, error) {
	view := &RiskReturnView{Title: "Sector Risk vs. Returns Over Time"}
	var errs []error
	for _, etf := range sector.ETFs {
		stats, err := s.riskReturn(ctx, etf.Ticker)
		if err != nil {
			s.logger.Error().Err(err).Str("ticker", etf.Ticker).Msg("risk/return unavailable")
			view.Missing = append(view.Missing, etf.Ticker)
			errs = append(errs, fmt.Errorf("%s: %w", etf.Ticker, err))
			continue
		}
		for _, st := range stats {
			view.Points = append(view.Points, RiskReturnPoint{
				Quarter:          st.Quarter,
				Start:            st.Start,
				Sector:           etf.Sector,
				ETF:              etf.Ticker,
				AnnualizedReturn: st.AnnualizedReturn,
				AnnualizedRisk:   st.AnnualizedRisk,
			})
		}
	}
	if len(view.Missing) == len(sector.ETFs) {
		return nil, errors.Join(errs...)
	}

	sort.SliceStable(view.Points, func(i, j int) bool { return view.Points[i].Start.Before(view.Points[j].Start) })
	if !animated && len(view.Points) > 0 {
		latest := view.Points[len(view.Points)-1].Start
		kept := view.Points[:0]
		for _, p := range view.Points {
			if p.Start.Equal(latest) {
				kept = append(kept, p)
			}
		}
		view.Points = kept
		view.Title = "Sector Risk vs. Returns"
	}
	for _, p := range view.Points {
		if n := len(view.Quarters); n == 0 || view.Quarters[n-1] != p.Quarter {
			view.Quarters = append(view.Quarters, p.Quarter)
		}
	}
	return view, nil
}

// yearStart is January 1 of now.year - years.
func yearStart(now time.Time, years int) time.Time {
	if years < 0 {
		years = 0
	}
	return time.Date(now.Year()-years, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// dropZeroRows removes rows where every value is exactly zero. Nulls keep a row.
func dropZeroRows(t *timeseries.Table) *timeseries.Table {
	cols := t.Columns()
	return t.Filter(func(i int) bool {
		for _, c := range cols {
			vals, _ := t.Column(c)
			if !vals[i].Valid || vals[i].Float64 != 0 {
				return true
			}
		}
		return len(cols) == 0
	})
}

// lookup aligns one column of src onto index by date.
func lookup(src *timeseries.Table, column string, index []time.Time) []null.Float {
	out := make([]null.Float, len(index))
	vals, ok := src.Column(column)
	if !ok {
		return out
	}
	byDate := make(map[time.Time]null.Float, src.Len())
	for i, d := range src.Index() {
		byDate[d] = vals[i]
	}
	for i, d := range index {
		out[i] = byDate[d]
	}
	return out
}

// ParseMaturities splits a comma separated maturity selection.
func ParseMaturities(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
