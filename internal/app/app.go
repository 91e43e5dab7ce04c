package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"sector-dashboard/internal/alerting"
	"sector-dashboard/internal/api"
	"sector-dashboard/internal/cache"
	"sector-dashboard/internal/config"
	"sector-dashboard/internal/fetcher"
	"sector-dashboard/internal/macro"
	"sector-dashboard/internal/scheduler"
	"sector-dashboard/internal/service"
	"sector-dashboard/internal/storage"
	"sector-dashboard/internal/tradingday"
	"sector-dashboard/internal/watchlist"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetchers() (*fetcher.Market, *fetcher.Official) {
	market := fetcher.NewMarket(fetcher.MarketOptions{
		ChartURL:   a.Config.Yahoo.ChartURL,
		SummaryURL: a.Config.Yahoo.SummaryURL,
		Timeout:    a.Config.Yahoo.RequestTimeout,
		UserAgent:  a.Config.Yahoo.UserAgent,
	}, a.Logger)

	official := fetcher.NewOfficial(fetcher.OfficialOptions{
		BaseURL: a.Config.FRED.BaseURL,
		APIKey:  a.Config.FRED.APIKey,
		Timeout: a.Config.FRED.RequestTimeout,
	}, a.Logger)

	return market, official
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled || !a.Config.Alerting.Telegram.Enabled {
		return nil
	}
	cfg := a.Config.Alerting.Telegram
	return alerting.Filter{
		Next:         alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger),
		OnlyFailures: a.Config.Alerting.OnlyFailures,
	}
}

// resources are the handles opened for one command.
type resources struct {
	store storage.TimeSeriesStore
	cache *cache.Layer
}

// openStore opens the configured time-series store and the cache layer beside it.
func (a *App) openStore(ctx context.Context) (*resources, func(), error) {
	var (
		store   storage.TimeSeriesStore
		backend cache.Backend
		err     error
	)

	switch a.Config.Database.Driver {
	case config.DriverPostgres:
		pool, perr := storage.NewPool(ctx, a.Config.Database)
		if perr != nil {
			return nil, nil, perr
		}
		pg := storage.NewStore(pool)
		store = pg
		if a.Config.Cache.Backend == config.CachePostgres {
			backend, err = cache.NewPostgres(ctx, pg.Pool())
		}
	case config.DriverSQLite:
		db, serr := storage.OpenSQLite(ctx, a.Config.Database.SQLitePath)
		if serr != nil {
			return nil, nil, serr
		}
		lite := storage.NewSQLiteStore(db)
		store = lite
		if a.Config.Cache.Backend == config.CacheSQLite {
			backend, err = cache.NewSQLite(ctx, lite.DB())
		}
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", a.Config.Database.Driver)
	}
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("open cache backend: %w", err)
	}
	if backend == nil {
		backend = cache.NewMemory()
	}

	res := &resources{
		store: store,
		cache: cache.New(backend, a.Config.Cache.TTL, a.Logger),
	}
	a.Logger.Debug().Str("driver", a.Config.Database.Driver).Str("cache", a.Config.Cache.Backend).Msg("storage opened")
	return res, store.Close, nil
}

// newService wires the service over opened resources. A nil sched leaves Run unusable.
func (a *App) newService(res *resources, sched *scheduler.Scheduler) (*service.Service, error) {
	market, official := a.newFetchers()

	catalog, err := macro.DefaultCatalog()
	if err != nil {
		return nil, err
	}

	return service.New(service.Deps{
		Store:     res.store,
		Prices:    market,
		Cache:     res.cache,
		Macro:     macro.NewAssembler(official, catalog, a.Logger),
		Watchlist: watchlist.NewBuilder(market, a.Config.Watchlist.Workers, a.Logger),
		Calendar:  tradingday.NYSE(a.Logger),
		Notifier:  a.newNotifier(),
		Scheduler: sched,
	}, service.Options{
		PriceStart:       a.Config.Prices.Start(),
		RiskReturnStart:  a.Config.RiskReturn.Start(),
		MacroYears:       a.Config.Macro.Years,
		WatchlistTickers: a.Config.WatchlistTickers(),
		AdvisoryLockKey:  a.Config.Scheduler.AdvisoryLockKey,
	}, a.Logger)
}

func (a *App) newServer(svc *service.Service) *api.Server {
	return api.NewServer(svc, api.Options{
		Addr: a.Config.Server.Addr,
		Mode: a.Config.Server.Mode,
	}, a.Logger)
}

// Run executes the scheduled refresh and serves the query API until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sched, err := scheduler.New(scheduler.Options{
		Spec:         a.Config.Scheduler.Cron,
		Location:     a.Config.Scheduler.Location(),
		RunOnStart:   a.Config.Scheduler.RunOnStart,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	if err != nil {
		return err
	}

	svc, err := a.newService(res, sched)
	if err != nil {
		return err
	}
	server := a.newServer(svc)

	a.Logger.Info().Str("cron", a.Config.Scheduler.Cron).Time("next", sched.Next(time.Now())).Msg("starting dashboard service")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("dashboard service stopped")
	return nil
}

// Serve runs the query API without the scheduler.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(res, nil)
	if err != nil {
		return err
	}
	err = a.newServer(svc).Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// ExportOptions select the chart or table to export.
type ExportOptions struct {
	Target     string
	Name       string
	Years      int
	Smoothing  int
	Maturities []string
	Sector     string
	AsBar      bool
	CSVPath    string
	PNGPath    string
	XLSXPath   string
	MaxPoints  int
}

// Export targets.
const (
	TargetMetric    = "metric"
	TargetSector    = "sector"
	TargetMacro     = "macro"
	TargetWatchlist = "watchlist"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	Ticker    string
	Limit     int
	Watchlist bool
	Sector    string
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	Tickers []string
	From    time.Time
}
