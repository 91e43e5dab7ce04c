package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sector-dashboard/internal/alerting"
	"sector-dashboard/internal/cache"
	"sector-dashboard/internal/metrics"
	"sector-dashboard/internal/sector"
)

// Unit kinds recorded in a Report.
const (
	UnitSector     = "sector"
	UnitCache      = "cache"
	UnitMacro      = "macro"
	UnitWatchlist  = "watchlist"
	UnitRiskReturn = "risk_return"
	UnitOverlay    = "overlay"
)

// ErrLockHeld is returned when another process holds the refresh lock.
var ErrLockHeld = errors.New("service: refresh lock held elsewhere")

// Unit is the outcome of one unit of refresh work.
type Unit struct {
	Kind     string
	ID       string
	Rows     int64
	Skipped  bool
	Duration time.Duration
	Err      error
}

// Name identifies the unit in logs and notifications.
func (u Unit) Name() string {
	if u.ID == "" {
		return u.Kind
	}
	return u.Kind + ":" + u.ID
}

// Report lists every unit of one refresh run in execution order.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Units      []Unit
}

// Failures returns the units that ended in error.
func (r Report) Failures() []Unit {
	var out []Unit
	for _, u := range r.Units {
		if u.Err != nil {
			out = append(out, u)
		}
	}
	return out
}

// Err joins the unit errors, or nil when every unit succeeded.
func (r Report) Err() error {
	var errs []error
	for _, u := range r.Failures() {
		errs = append(errs, fmt.Errorf("%s: %w", u.Name(), u.Err))
	}
	return errors.Join(errs...)
}

// Notification summarises the report for alerting.
func (r Report) Notification(job string) alerting.Notification {
	note := alerting.Notification{
		Job:       job,
		StartedAt: r.StartedAt,
		Duration:  r.FinishedAt.Sub(r.StartedAt),
	}
	for _, u := range r.Units {
		if u.Err != nil {
			note.Failures = append(note.Failures, alerting.Failure{Unit: u.Name(), Error: u.Err.Error()})
			continue
		}
		note.Succeeded++
	}
	return note
}

// Refresh runs the daily batch: sector histories, cache invalidation, macro groups, the
// watchlist, per-fund risk/return and the VIX overlay. A failed unit is recorded and
// the batch moves on.
func (s *Service) Refresh(ctx context.Context) (Report, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return Report{}, err
	}
	if !proceed {
		s.logger.Info().Msg("skip refresh because advisory lock held elsewhere")
		return Report{}, ErrLockHeld
	}
	if unlock != nil {
		defer unlock()
	}

	report := Report{StartedAt: s.now()}
	record := func(u Unit) {
		report.Units = append(report.Units, u)
		event := s.logger.Info()
		if u.Err != nil {
			event = s.logger.Error().Err(u.Err)
		}
		event.Str("unit", u.Name()).Int64("rows", u.Rows).Bool("skipped", u.Skipped).
			Dur("duration", u.Duration).Msg("refresh unit finished")
	}

	for _, ticker := range sector.Tickers() {
		if ctx.Err() != nil {
			break
		}
		record(s.timed(UnitSector, ticker, func() (int64, bool, error) {
			return s.updateTicker(ctx, ticker)
		}))
	}

	record(s.timed(UnitCache, "", func() (int64, bool, error) {
		return 0, false, s.cache.InvalidateAll(ctx, s.cacheKeys()...)
	}))

	if s.macro != nil {
		for _, group := range s.macro.Catalog().Keys() {
			record(s.timed(UnitMacro, group, func() (int64, bool, error) {
				t, err := s.macroTable(ctx, group)
				if err != nil {
					return 0, false, err
				}
				return int64(t.Len()), false, nil
			}))
		}
	}

	if s.watchlist != nil {
		record(s.timed(UnitWatchlist, "", func() (int64, bool, error) {
			entries, err := s.watchlistSnapshot(ctx)
			return int64(len(entries)), false, err
		}))
	}

	for _, etf := range sector.ETFs {
		record(s.timed(UnitRiskReturn, etf.Ticker, func() (int64, bool, error) {
			stats, err := s.riskReturn(ctx, etf.Ticker)
			return int64(len(stats)), false, err
		}))
	}

	record(s.timed(UnitOverlay, sector.VIX, func() (int64, bool, error) {
		t, err := s.overlay(ctx, sector.VIX)
		if err != nil {
			return 0, false, err
		}
		return int64(t.Len()), false, nil
	}))

	report.FinishedAt = s.now()
	s.notify(ctx, report)

	failed := len(report.Failures())
	s.logger.Info().Int("units", len(report.Units)).Int("failed", failed).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).Msg("refresh finished")
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, report.Err()
}

func (s *Service) timed(kind, id string, fn func() (int64, bool, error)) Unit {
	start := s.now()
	rows, skipped, err := fn()
	return Unit{Kind: kind, ID: id, Rows: rows, Skipped: skipped, Err: err, Duration: s.now().Sub(start)}
}

func (s *Service) notify(ctx context.Context, report Report) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, report.Notification("refresh")); err != nil {
		s.logger.Error().Err(err).Msg("failed to dispatch refresh report")
	}
}

// cacheKeys lists every key the refresh recomputes.
func (s *Service) cacheKeys() []string {
	keys := []string{cache.WatchlistKey(), cache.PricesKey(sector.VIX)}
	if s.macro != nil {
		for _, group := range s.macro.Catalog().Keys() {
			keys = append(keys, cache.MacroKey(group))
		}
	}
	for _, etf := range sector.ETFs {
		keys = append(keys, cache.RiskReturnKey(etf.Ticker))
	}
	return keys
}

// updateTicker brings one ticker table up to date. An empty table gets a full build from
// the configured start; otherwise new bars are merged onto the stored history, metrics are
// recomputed over the whole history and only rows after the last stored date are appended.
func (s *Service) updateTicker(ctx context.Context, ticker string) (int64, bool, error) {
	if err := s.store.EnsureTable(ctx, ticker); err != nil {
		return 0, false, err
	}
	last, ok, err := s.store.LastDate(ctx, ticker)
	if err != nil {
		return 0, false, err
	}
	now := s.now()

	if !ok {
		bars, err := s.prices.History(ctx, sector.ProviderSymbol(ticker), s.opts.PriceStart, now)
		if err != nil {
			return 0, false, err
		}
		n, err := s.store.Append(ctx, ticker, metrics.Derive(metrics.SortBars(bars)))
		return n, false, err
	}

	if s.calendar != nil && s.calendar.Covered(last, now) {
		return 0, true, nil
	}

	stored, err := s.store.ReadAll(ctx, ticker)
	if err != nil {
		return 0, false, err
	}
	fetched, err := s.prices.History(ctx, sector.ProviderSymbol(ticker), last, now)
	if err != nil {
		return 0, false, err
	}
	merged := merge(stored, fetched)
	rows := after(metrics.Derive(merged), last)
	if len(rows) == 0 {
		return 0, false, nil
	}
	n, err := s.store.Append(ctx, ticker, rows)
	return n, false, err
}

// Backfill rebuilds a ticker's metrics from an earlier start and appends the dates not yet stored.
func (s *Service) Backfill(ctx context.Context, ticker string, from time.Time) (int64, error) {
	if !sector.IsTracked(ticker) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTicker, ticker)
	}
	ticker = sector.Canonical(ticker)
	if err := s.store.EnsureTable(ctx, ticker); err != nil {
		return 0, err
	}

	stored, err := s.store.ReadAll(ctx, ticker)
	if err != nil {
		return 0, err
	}

	fetched, err := s.prices.History(ctx, sector.ProviderSymbol(ticker), from, s.now())
	if err != nil {
		return 0, err
	}
	n, err := s.store.Append(ctx, ticker, metrics.Derive(merge(stored, fetched)))
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("ticker", ticker).Time("from", from).Int64("rows", n).Msg("backfill finished")
	return n, nil
}

// merge combines stored rows with fetched bars. Stored dates win over fetched ones.
func merge(stored []metrics.Row, fetched []metrics.Bar) []metrics.Bar {
	have := make(map[time.Time]struct{}, len(stored))
	bars := make([]metrics.Bar, 0, len(stored)+len(fetched))
	for _, r := range stored {
		have[r.Date] = struct{}{}
		bars = append(bars, r.Bar)
	}
	for _, b := range metrics.SortBars(fetched) {
		if _, dup := have[b.Date]; dup {
			continue
		}
		bars = append(bars, b)
	}
	return metrics.SortBars(bars)
}

func after(rows []metrics.Row, last time.Time) []metrics.Row {
	for i, r := range rows {
		if r.Date.After(last) {
			return rows[i:]
		}
	}
	return nil
}
