package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"sector-dashboard/internal/logging"
)

const dateLayout = "2006-01-02"

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Yahoo      YahooConfig      `mapstructure:"yahoo"`
	FRED       FREDConfig       `mapstructure:"fred"`
	Prices     PricesConfig     `mapstructure:"prices"`
	Macro      MacroConfig      `mapstructure:"macro"`
	Watchlist  WatchlistConfig  `mapstructure:"watchlist"`
	RiskReturn RiskReturnConfig `mapstructure:"risk_return"`
	Server     ServerConfig     `mapstructure:"server"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig selects and tunes the time-series store.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Cache backends.
const (
	CacheMemory   = "memory"
	CachePostgres = "postgres"
	CacheSQLite   = "sqlite"
)

// CacheConfig picks where cached payloads live.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// SchedulerConfig governs the daily refresh.
type SchedulerConfig struct {
	Cron            string        `mapstructure:"cron"`
	TimeZone        string        `mapstructure:"time_zone"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// Location resolves TimeZone, falling back to UTC.
func (s SchedulerConfig) Location() *time.Location {
	if s.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// YahooConfig covers the market data provider.
type YahooConfig struct {
	ChartURL       string        `mapstructure:"chart_url"`
	SummaryURL     string        `mapstructure:"summary_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// FREDConfig covers the macro data provider.
type FREDConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PricesConfig bounds the sector history.
type PricesConfig struct {
	StartDate string `mapstructure:"start_date"`
}

// Start parses StartDate.
func (p PricesConfig) Start() time.Time { return mustDate(p.StartDate) }

// MacroConfig sets the default macro window.
type MacroConfig struct {
	Years int `mapstructure:"years"`
}

// WatchlistConfig lists the screened tickers.
type WatchlistConfig struct {
	Tickers []string `mapstructure:"tickers"`
	Workers int      `mapstructure:"workers"`
}

// RiskReturnConfig bounds the quarterly statistics.
type RiskReturnConfig struct {
	StartDate string `mapstructure:"start_date"`
}

// Start parses StartDate.
func (r RiskReturnConfig) Start() time.Time { return mustDate(r.StartDate) }

// ServerConfig controls the HTTP query surface.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"`
}

// AlertingConfig defines refresh report routing.
type AlertingConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	OnlyFailures bool           `mapstructure:"only_failures"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 推送参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
	Width         int `mapstructure:"width"`
	Height        int `mapstructure:"height"`
}

// DefaultWatchlist is screened when no tickers are configured.
var DefaultWatchlist = []string{
	"AAPL", "MSFT", "NVDA", "GOOGL", "AMZN", "META", "BRK-B", "JPM", "V", "UNH",
	"XOM", "JNJ", "PG", "HD", "COST", "LLY", "AVGO", "CVX", "KO", "PEP",
	"NEE", "LIN", "CAT", "AMT", "PLD", "TSLA", "NFLX", "DIS", "WMT", "BA",
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SECTORDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sectordash")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.sqlite_path", "sectordash.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("cache.backend", CacheSQLite)
	v.SetDefault("cache.ttl", "24h")

	v.SetDefault("scheduler.cron", "0 30 17 * * 1-5")
	v.SetDefault("scheduler.time_zone", "America/New_York")
	v.SetDefault("scheduler.run_on_start", false)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x53454354))

	v.SetDefault("yahoo.chart_url", "https://query1.finance.yahoo.com/v8/finance/chart")
	v.SetDefault("yahoo.summary_url", "https://query2.finance.yahoo.com/v10/finance/quoteSummary")
	v.SetDefault("yahoo.request_timeout", "15s")
	v.SetDefault("yahoo.user_agent", "Mozilla/5.0 (compatible; sectordash/1.0)")

	v.SetDefault("fred.base_url", "https://api.stlouisfed.org/fred")
	v.SetDefault("fred.request_timeout", "15s")

	v.SetDefault("prices.start_date", "2019-12-31")
	v.SetDefault("macro.years", 4)
	v.SetDefault("watchlist.tickers", DefaultWatchlist)
	v.SetDefault("watchlist.workers", 10)
	v.SetDefault("risk_return.start_date", "2019-12-31")

	v.SetDefault("server.addr", ":8050")
	v.SetDefault("server.mode", "release")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.only_failures", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
	v.SetDefault("export.width", 1600)
	v.SetDefault("export.height", 900)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	switch c.Cache.Backend {
	case CacheMemory:
	case CachePostgres, CacheSQLite:
		if c.Cache.Backend != c.Database.Driver {
			return fmt.Errorf("cache.backend %q requires database.driver %q", c.Cache.Backend, c.Cache.Backend)
		}
	default:
		return fmt.Errorf("cache.backend %q is not supported", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be greater than zero")
	}
	if c.Watchlist.Workers < 1 || c.Watchlist.Workers > 64 {
		return fmt.Errorf("watchlist.workers must be between 1 and 64")
	}
	if c.Macro.Years < 1 {
		return fmt.Errorf("macro.years must be at least 1")
	}
	if _, err := time.Parse(dateLayout, c.Prices.StartDate); err != nil {
		return fmt.Errorf("prices.start_date: %w", err)
	}
	if _, err := time.Parse(dateLayout, c.RiskReturn.StartDate); err != nil {
		return fmt.Errorf("risk_return.start_date: %w", err)
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// WatchlistTickers returns the configured tickers or the default list.
func (c *Config) WatchlistTickers() []string {
	if len(c.Watchlist.Tickers) == 0 {
		return DefaultWatchlist
	}
	return c.Watchlist.Tickers
}

func mustDate(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	return t
}
