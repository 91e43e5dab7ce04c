package watchlist

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"sector-dashboard/internal/fetcher"
	"sector-dashboard/internal/metrics"
	"sector-dashboard/internal/sector"
	"sector-dashboard/internal/timeseries"
)

// DefaultWorkers bounds concurrent per-ticker fetches.
const DefaultWorkers = 10

// Source supplies fundamentals and recent price history.
type Source interface {
	Summary(ctx context.Context, symbol string) (fetcher.Summary, error)
	History(ctx context.Context, symbol string, from, to time.Time) ([]metrics.Bar, error)
}

// Dropped records a ticker left out of the snapshot.
type Dropped struct {
	Ticker string
	Err    error
}

// Result is one build of the watchlist.
type Result struct {
	Entries []Entry
	Dropped []Dropped
}

// Builder fetches and normalizes company fundamentals.
type Builder struct {
	source  Source
	workers int
	now     func() time.Time
	logger  zerolog.Logger
}

// NewBuilder constructs a Builder. A non-positive workers falls back to DefaultWorkers.
func NewBuilder(source Source, workers int, logger zerolog.Logger) *Builder {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Builder{
		source:  source,
		workers: workers,
		now:     time.Now,
		logger:  logger.With().Str("component", "watchlist").Logger(),
	}
}

// WithClock overrides the clock used for the percent-change windows.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build fetches every ticker on a bounded pool. Entries are ordered by market cap, largest first.
func (b *Builder) Build(ctx context.Context, tickers []string) (Result, error) {
	type slot struct {
		entry Entry
		err   error
	}
	slots := make([]slot, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, ticker := range tickers {
		g.Go(func() error {
			entry, err := b.entry(gctx, strings.ToUpper(strings.TrimSpace(ticker)))
			slots[i] = slot{entry: entry, err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("build watchlist: %w", err)
	}

	var res Result
	for i, s := range slots {
		if s.err != nil {
			b.logger.Error().Err(s.err).Str("ticker", tickers[i]).Msg("ticker dropped from watchlist")
			res.Dropped = append(res.Dropped, Dropped{Ticker: tickers[i], Err: s.err})
			continue
		}
		res.Entries = append(res.Entries, s.entry)
	}
	SortByMarketCap(res.Entries)

	b.logger.Info().Int("entries", len(res.Entries)).Int("dropped", len(res.Dropped)).Msg("watchlist built")
	return res, nil
}

// entry builds one row; an error means the ticker is dropped.
func (b *Builder) entry(ctx context.Context, ticker string) (Entry, error) {
	summary, err := b.source.Summary(ctx, ticker)
	if err != nil {
		return Entry{}, err
	}

	e := Entry{Ticker: ticker}

	name, err := summary.ShortName.String()
	if err != nil {
		return Entry{}, &FieldError{Ticker: ticker, Field: FieldName, Err: err}
	}
	e.Name = name

	providerSector, err := summary.Sector.String()
	if err != nil {
		return Entry{}, &FieldError{Ticker: ticker, Field: FieldSector, Err: err}
	}
	e.Sector = sector.Normalize(providerSector.ValueOrZero())

	if e.MarketCap, err = required(summary.MarketCap); err != nil {
		return Entry{}, &FieldError{Ticker: ticker, Field: FieldMarketCap, Err: err}
	}

	optional := []struct {
		name  string
		value fetcher.Value
		dst   *Field
	}{
		{FieldPrice, summary.Open, &e.Price},
		{FieldPERatio, summary.TrailingPE, &e.PERatio},
		{FieldEarningsGrowth, summary.EarningsGrowth, &e.EarningsGrowth},
		{FieldEPS, summary.TrailingEPS, &e.EPS},
		{FieldMovingAvg200D, summary.TwoHundredDayAverage, &e.MovingAvg200D},
		{FieldPEGRatio, summary.PEGRatio, &e.PEGRatio},
		{FieldBeta, summary.Beta, &e.Beta},
	}
	for _, f := range optional {
		*f.dst = b.optional(ticker, f.name, f.value)
	}

	e.PctChange1M, e.PctChange6M = b.changes(ctx, ticker)
	return e, nil
}

func required(v fetcher.Value) (Field, error) {
	f, err := v.Float()
	if err != nil {
		return Field{}, err
	}
	return Field{Float: f}, nil
}

func (b *Builder) optional(ticker, name string, v fetcher.Value) Field {
	f, err := v.Float()
	if err != nil {
		fieldErr := &FieldError{Ticker: ticker, Field: name, Err: err}
		b.logger.Warn().Err(fieldErr).Str("ticker", ticker).Msg("field unavailable")
		return Unavailable(fieldErr)
	}
	return Field{Float: f}
}

// changes returns the 1-month and 6-month percent changes from one 6-month history.
func (b *Builder) changes(ctx context.Context, ticker string) (Field, Field) {
	now := b.now()
	sixMonths := now.AddDate(0, -6, 0)
	bars, err := b.source.History(ctx, ticker, sixMonths, now)
	if err != nil {
		b.logger.Warn().Err(err).Str("ticker", ticker).Msg("price history unavailable")
		return Unavailable(err), Unavailable(err)
	}
	return PctChange(bars, now.AddDate(0, -1, 0)), PctChange(bars, sixMonths)
}

// PctChange is the percent change from the first close on or after since to the last close.
func PctChange(bars []metrics.Bar, since time.Time) Field {
	bars = metrics.SortBars(bars)
	start := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(dayOf(since)) })
	window := bars[start:]
	if len(window) < 2 {
		return Unavailable(nil)
	}
	first, last := window[0].Close, window[len(window)-1].Close
	if first == 0 {
		return Unavailable(nil)
	}
	return Field{Float: timeseries.Finite((last/first - 1) * 100)}
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SortByMarketCap orders entries largest first; unavailable caps sort last, ties by ticker.
func SortByMarketCap(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].MarketCap, entries[j].MarketCap
		if a.Valid != b.Valid {
			return a.Valid
		}
		if a.Valid && a.Float64 != b.Float64 {
			return a.Float64 > b.Float64
		}
		return entries[i].Ticker < entries[j].Ticker
	})
}
