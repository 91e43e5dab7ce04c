package service

import (
	"context"
	"errors"
	"fmt"

	"sector-dashboard/internal/cache"
	"sector-dashboard/internal/macro"
	"sector-dashboard/internal/metrics"
	"sector-dashboard/internal/timeseries"
	"sector-dashboard/internal/watchlist"
)

var riskReturnCodec = cache.Codec[[]metrics.QuarterStat]{
	Encode: func(stats []metrics.QuarterStat) ([]byte, error) {
		return timeseries.MarshalCSV(metrics.RiskReturnTable(stats))
	},
	Decode: func(payload []byte) ([]metrics.QuarterStat, error) {
		t, err := timeseries.UnmarshalCSV(payload)
		if err != nil {
			return nil, err
		}
		return metrics.RiskReturnFromTable(t)
	},
}

// macroTable is the assembled, spread-extended and windowed table of one group,
// spanning the configured macro horizon.
func (s *Service) macroTable(ctx context.Context, groupKey string) (*timeseries.Table, error) {
	if s.macro == nil {
		return nil, errors.New("macro assembler not configured")
	}
	group, err := s.macro.Catalog().Group(groupKey)
	if err != nil {
		return nil, err
	}
	years := s.opts.MacroYears
	return cache.Fetch(ctx, s.cache, cache.MacroKey(groupKey), cache.TableCodec, func(ctx context.Context) (*timeseries.Table, error) {
		t, err := s.macro.Assemble(ctx, groupKey, years)
		if err != nil {
			return nil, err
		}
		return macro.Window(macro.ApplySpreads(group, t), s.now(), years), nil
	})
}

// watchlistSnapshot is the full watchlist, including rows with an Unknown sector.
func (s *Service) watchlistSnapshot(ctx context.Context) ([]watchlist.Entry, error) {
	if s.watchlist == nil {
		return nil, errors.New("watchlist builder not configured")
	}
	return cache.Fetch(ctx, s.cache, cache.WatchlistKey(), watchlist.Codec, func(ctx context.Context) ([]watchlist.Entry, error) {
		res, err := s.watchlist.Build(ctx, s.opts.WatchlistTickers)
		if err != nil {
			return nil, err
		}
		if len(res.Entries) == 0 && len(res.Dropped) > 0 {
			errs := make([]error, len(res.Dropped))
			for i, d := range res.Dropped {
				errs[i] = d.Err
			}
			return nil, fmt.Errorf("every watchlist ticker dropped: %w", errors.Join(errs...))
		}
		return res.Entries, nil
	})
}

// riskReturn is the quarterly risk/return of one fund from the configured start.
func (s *Service) riskReturn(ctx context.Context, ticker string) ([]metrics.QuarterStat, error) {
	return cache.Fetch(ctx, s.cache, cache.RiskReturnKey(ticker), riskReturnCodec, func(ctx context.Context) ([]metrics.QuarterStat, error) {
		bars, err := s.prices.History(ctx, ticker, s.opts.RiskReturnStart, s.now())
		if err != nil {
			return nil, err
		}
		bars = metrics.SortBars(bars)
		start := timeseries.Day(s.opts.RiskReturnStart)
		for len(bars) > 0 && bars[0].Date.Before(start) {
			bars = bars[1:]
		}
		return metrics.QuarterlyRiskReturn(bars), nil
	})
}

// overlay is the close history of a symbol plotted next to the funds.
func (s *Service) overlay(ctx context.Context, symbol string) (*timeseries.Table, error) {
	return cache.Fetch(ctx, s.cache, cache.PricesKey(symbol), cache.TableCodec, func(ctx context.Context) (*timeseries.Table, error) {
		bars, err := s.prices.History(ctx, symbol, s.opts.PriceStart, s.now())
		if err != nil {
			return nil, err
		}
		return metrics.BarsTable(metrics.SortBars(bars)).Select(metrics.ColumnClose), nil
	})
}
