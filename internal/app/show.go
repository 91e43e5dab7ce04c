package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"sector-dashboard/internal/sector"
	"sector-dashboard/internal/service"
	"sector-dashboard/internal/timeseries"
	"sector-dashboard/internal/watchlist"
)

// Show prints the latest derived rows of one ticker, or the watchlist.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	res, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.Watchlist {
		svc, err := a.newService(res, nil)
		if err != nil {
			return err
		}
		entries, err := svc.Watchlist(ctx, opts.Sector)
		if err != nil {
			return err
		}
		printWatchlist(entries)
		return nil
	}

	if !sector.IsTracked(opts.Ticker) {
		return fmt.Errorf("%w: %q", service.ErrUnknownTicker, opts.Ticker)
	}
	ticker := sector.Canonical(opts.Ticker)
	rows, err := res.store.ReadAll(ctx, ticker)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintf(os.Stdout, "no rows stored for %s\n", ticker)
		return nil
	}
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[len(rows)-opts.Limit:]
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tClose\tDividends\tVolatility\tDividend Yield\tRSI\tSharpe\tYTD %")
	for _, r := range rows {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Date.Format(timeseries.DateLayout),
			formatDecimal(decimal.NewFromFloat(r.Close), 2),
			formatDecimal(decimal.NewFromFloat(r.Dividend), 4),
			formatNull(r.Volatility, 4),
			formatNull(r.DivYield, 4),
			formatNull(r.RSI, 2),
			formatNull(r.Sharpe, 3),
			formatNull(r.YTDPct, 2),
		)
	}
	writer.Flush()
	return nil
}

func printWatchlist(entries []watchlist.Entry) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, strings.Join(watchlist.Header(), "\t"))
	for _, e := range entries {
		mcap := watchlist.NotAvailable
		if e.MarketCap.Available() {
			mcap = formatDecimal(decimal.NewFromFloat(e.MarketCap.Float64).Div(decimal.NewFromInt(1_000_000_000)), 1) + "B"
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Ticker,
			sanitizeInline(e.Name.ValueOrZero()),
			e.Sector,
			mcap,
			e.Price.Text(),
			e.PERatio.Text(),
			e.EarningsGrowth.Text(),
			e.EPS.Text(),
			e.PctChange1M.Text(),
			e.PctChange6M.Text(),
			e.MovingAvg200D.Text(),
			e.PEGRatio.Text(),
			e.Beta.Text(),
		)
	}
	writer.Flush()
}

func formatNull(v null.Float, places int32) string {
	if !v.Valid {
		return "-"
	}
	return formatDecimal(decimal.NewFromFloat(v.Float64), places)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
