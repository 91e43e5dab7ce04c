package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sector-dashboard/internal/alerting"
	"sector-dashboard/internal/cache"
	"sector-dashboard/internal/macro"
	"sector-dashboard/internal/metrics"
	"sector-dashboard/internal/scheduler"
	"sector-dashboard/internal/storage"
	"sector-dashboard/internal/tradingday"
	"sector-dashboard/internal/watchlist"
)

// PriceSource fetches daily bars for a provider symbol.
type PriceSource interface {
	History(ctx context.Context, symbol string, from, to time.Time) ([]metrics.Bar, error)
}

// Deps are the collaborators a Service is built from. Store, Prices and Cache are required.
type Deps struct {
	Store     storage.TimeSeriesStore
	Prices    PriceSource
	Cache     *cache.Layer
	Macro     *macro.Assembler
	Watchlist *watchlist.Builder
	Calendar  *tradingday.Calendar
	Notifier  alerting.Notifier
	Scheduler *scheduler.Scheduler
}

// Options tune the refresh job and the queries.
type Options struct {
	PriceStart       time.Time
	RiskReturnStart  time.Time
	MacroYears       int
	WatchlistTickers []string
	AdvisoryLockKey  int64
}

// Service runs the refresh job and answers the dashboard queries.
type Service struct {
	store     storage.TimeSeriesStore
	prices    PriceSource
	cache     *cache.Layer
	macro     *macro.Assembler
	watchlist *watchlist.Builder
	calendar  *tradingday.Calendar
	notifier  alerting.Notifier
	scheduler *scheduler.Scheduler
	locker    storage.AdvisoryLocker

	opts   Options
	now    func() time.Time
	logger zerolog.Logger
}

// New constructs the service.
func New(deps Deps, opts Options, logger zerolog.Logger) (*Service, error) {
	if deps.Store == nil || deps.Prices == nil || deps.Cache == nil {
		return nil, errors.New("service: store, prices and cache are required")
	}
	if opts.MacroYears <= 0 {
		opts.MacroYears = 4
	}

	var locker storage.AdvisoryLocker
	if l, ok := deps.Store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		store:     deps.Store,
		prices:    deps.Prices,
		cache:     deps.Cache,
		macro:     deps.Macro,
		watchlist: deps.Watchlist,
		calendar:  deps.Calendar,
		notifier:  deps.Notifier,
		scheduler: deps.Scheduler,
		locker:    locker,
		opts:      opts,
		now:       time.Now,
		logger:    logger.With().Str("component", "service").Logger(),
	}, nil
}

// WithClock overrides the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run triggers Refresh on every scheduler tick until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, firedAt time.Time) error {
		s.logger.Info().Time("fired_at", firedAt).Msg("scheduled refresh started")
		_, err := s.Refresh(ctx)
		return err
	})
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.AdvisoryLockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
