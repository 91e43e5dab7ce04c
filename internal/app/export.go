package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"sector-dashboard/internal/service"
	"sector-dashboard/internal/timeseries"
	"sector-dashboard/internal/watchlist"
)

// Export renders a dashboard chart or the watchlist to files.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" && opts.XLSXPath == "" {
		return errors.New("at least one of --csv, --png or --xlsx must be provided")
	}
	if opts.XLSXPath != "" && opts.Target != TargetWatchlist {
		return errors.New("--xlsx is only supported for the watchlist")
	}
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	res, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(res, nil)
	if err != nil {
		return err
	}

	if opts.Target == TargetWatchlist {
		return a.exportWatchlist(ctx, svc, opts)
	}

	var c *service.Chart
	var bars *service.BarChart
	switch opts.Target {
	case TargetMetric:
		view, err := svc.MetricSeries(ctx, service.MetricQuery{Metric: opts.Name, Years: opts.Years, Smoothing: opts.Smoothing, AsBar: opts.AsBar})
		if err != nil {
			return err
		}
		c, bars = view.Chart, view.Bars
	case TargetSector:
		if c, err = svc.SectorSeries(ctx, opts.Name, opts.Years, opts.Smoothing); err != nil {
			return err
		}
	case TargetMacro:
		if c, err = svc.MacroSeries(ctx, opts.Name, opts.Years, opts.Maturities); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown export target %q", opts.Target)
	}

	if bars != nil {
		if opts.CSVPath != "" {
			if err := writeFile(opts.CSVPath, func(w io.Writer) error { return writeBarsCSV(w, bars) }); err != nil {
				return err
			}
		}
		if opts.PNGPath != "" {
			return writeFile(opts.PNGPath, func(w io.Writer) error { return a.renderBars(w, bars) })
		}
		return nil
	}

	table := downsample(c.Table, opts.MaxPoints)
	a.Logger.Info().Str("title", c.Title).Int("total", c.Table.Len()).Int("exported", table.Len()).Msg("exporting chart")

	if opts.CSVPath != "" {
		if err := writeFile(opts.CSVPath, table.WriteCSV); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeFile(opts.PNGPath, func(w io.Writer) error { return a.renderChart(w, c, table) }); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) exportWatchlist(ctx context.Context, svc *service.Service, opts ExportOptions) error {
	entries, err := svc.Watchlist(ctx, opts.Sector)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("entries", len(entries)).Str("sector", opts.Sector).Msg("exporting watchlist")

	if opts.CSVPath != "" {
		if err := writeFile(opts.CSVPath, func(w io.Writer) error { return watchlist.WriteCSV(w, entries) }); err != nil {
			return err
		}
	}
	if opts.XLSXPath != "" {
		if err := writeFile(opts.XLSXPath, func(w io.Writer) error { return watchlist.WriteXLSX(w, entries) }); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		weights, err := svc.SectorWeightings(ctx)
		if err != nil {
			return err
		}
		return writeFile(opts.PNGPath, func(w io.Writer) error { return a.renderWeightings(w, weights) })
	}
	return nil
}

// downsample keeps at most max evenly spaced rows, always including the first and last.
func downsample(t *timeseries.Table, max int) *timeseries.Table {
	if max <= 1 || t.Len() <= max {
		return t
	}

	keep := make(map[int]struct{}, max)
	step := float64(t.Len()-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= t.Len() {
			idx = t.Len() - 1
		}
		keep[idx] = struct{}{}
	}
	return t.Filter(func(i int) bool {
		_, ok := keep[i]
		return ok
	})
}

func writeBarsCSV(w io.Writer, bars *service.BarChart) error {
	if _, err := fmt.Fprintf(w, "ticker,sector,%s\n", bars.YAxis); err != nil {
		return err
	}
	for _, b := range bars.Bars {
		if _, err := fmt.Fprintf(w, "%s,%s,%s\n", b.Ticker, b.Sector, formatFloat(b.Value.Float64, b.Value.Valid)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%s,,%s\n", bars.BenchmarkName, formatFloat(bars.Benchmark.Float64, bars.Benchmark.Valid))
	return err
}

func (a *App) renderChart(w io.Writer, c *service.Chart, t *timeseries.Table) error {
	formatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  c.Title,
		Width:  a.Config.Export.Width,
		Height: a.Config.Export.Height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           c.YAxis,
			ValueFormatter: formatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           c.Y2Axis,
			ValueFormatter: formatter,
		},
	}

	for _, style := range c.Series {
		if style.Hidden {
			continue
		}
		vals, ok := t.Column(style.Name)
		if !ok {
			continue
		}
		var x []time.Time
		var y []float64
		for i, d := range t.Index() {
			if vals[i].Valid {
				x = append(x, d)
				y = append(y, vals[i].Float64)
			}
		}
		if len(x) < 2 {
			continue
		}
		series := chart.TimeSeries{Name: style.Name, XValues: x, YValues: y}
		if style.SecondaryAxis {
			series.YAxis = chart.YAxisSecondary
		}
		graph.Series = append(graph.Series, series)
	}
	if len(graph.Series) == 0 {
		return errors.New("nothing to plot: every series is hidden or empty")
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

func (a *App) renderBars(w io.Writer, bars *service.BarChart) error {
	graph := chart.BarChart{
		Title:    bars.Title,
		Width:    a.Config.Export.Width,
		Height:   a.Config.Export.Height,
		BarWidth: 40,
	}
	for _, b := range bars.Bars {
		if !b.Value.Valid {
			continue
		}
		graph.Bars = append(graph.Bars, chart.Value{Label: b.Ticker, Value: b.Value.Float64})
	}
	if len(graph.Bars) == 0 {
		return errors.New("nothing to plot: no bar has a value")
	}
	return graph.Render(chart.PNG, w)
}

func (a *App) renderWeightings(w io.Writer, weights []watchlist.Weighting) error {
	graph := chart.PieChart{
		Title:  "Sector Weighting by Market Cap in S&P 500",
		Width:  a.Config.Export.Height,
		Height: a.Config.Export.Height,
	}
	for _, wt := range weights {
		graph.Values = append(graph.Values, chart.Value{Label: wt.Sector, Value: wt.MarketCap.InexactFloat64()})
	}
	if len(graph.Values) == 0 {
		return errors.New("nothing to plot: no sector weightings")
	}
	return graph.Render(chart.PNG, w)
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatFloat(v float64, valid bool) string {
	if !valid {
		return ""
	}
	return decimal.NewFromFloat(v).StringFixed(4)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
