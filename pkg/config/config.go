package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	Store    StoreConfig
	Forecast ForecastConfig
	Cache    CacheConfig
	Redis    RedisConfig
	DB       DBConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOCKPULSE_APP_ENV" required:"true"`
	Port         string `envconfig:"STOCKPULSE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"STOCKPULSE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOCKPULSE_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma-separated list of dashboard origins.
	CORSOrigins []string `envconfig:"STOCKPULSE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// StoreConfig holds the WooCommerce connection settings. Empty values fall back
// to the client's placeholder defaults.
type StoreConfig struct {
	URL            string        `envconfig:"STOCKPULSE_WC_URL"`
	ConsumerKey    string        `envconfig:"STOCKPULSE_WC_CONSUMER_KEY"`
	ConsumerSecret string        `envconfig:"STOCKPULSE_WC_CONSUMER_SECRET"`
	Version        string        `envconfig:"STOCKPULSE_WC_VERSION" default:"v3"`
	Timeout        time.Duration `envconfig:"STOCKPULSE_WC_TIMEOUT" default:"30s"`
	FailurePolicy  string        `envconfig:"STOCKPULSE_WC_FAILURE_POLICY" default:"empty"`
	CurrencySymbol string        `envconfig:"STOCKPULSE_WC_CURRENCY_SYMBOL" default:"$"`
	UserAgent      string        `envconfig:"STOCKPULSE_WC_USER_AGENT" default:"stockpulse-backend"`
}

// UsesPlaceholderURL reports whether the store URL was left unset.
func (s StoreConfig) UsesPlaceholderURL() bool {
	return strings.TrimSpace(s.URL) == ""
}

type ForecastConfig struct {
	Source              string        `envconfig:"STOCKPULSE_FORECAST_SOURCE" default:"orders"`
	Ranking             string        `envconfig:"STOCKPULSE_FORECAST_RANKING" default:"sales"`
	DefaultReorderPoint int           `envconfig:"STOCKPULSE_FORECAST_DEFAULT_REORDER_POINT" default:"30"`
	OrderLookback       time.Duration `envconfig:"STOCKPULSE_FORECAST_ORDER_LOOKBACK" default:"8760h"`
	BaselineTTL         time.Duration `envconfig:"STOCKPULSE_BASELINE_TTL" default:"168h"`
}

type CacheConfig struct {
	StaleTime       time.Duration `envconfig:"STOCKPULSE_CACHE_STALE_TIME" default:"0s"`
	FetchTimeout    time.Duration `envconfig:"STOCKPULSE_CACHE_FETCH_TIMEOUT" default:"45s"`
	RefreshInterval time.Duration `envconfig:"STOCKPULSE_REFRESH_INTERVAL" default:"0s"`
	ReadWait        time.Duration `envconfig:"STOCKPULSE_CACHE_READ_WAIT" default:"10s"`
	// MaxIdleListings caps product listings kept after their last reader.
	MaxIdleListings int `envconfig:"STOCKPULSE_CACHE_MAX_IDLE_LISTINGS" default:"64"`
}

// RedisConfig is optional; when neither URL nor Address is set the service
// keeps popularity baselines in memory.
type RedisConfig struct {
	URL          string        `envconfig:"STOCKPULSE_REDIS_URL"`
	Address      string        `envconfig:"STOCKPULSE_REDIS_ADDR"`
	Password     string        `envconfig:"STOCKPULSE_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKPULSE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKPULSE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKPULSE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKPULSE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKPULSE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKPULSE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// DBConfig is optional; when DSN is set popularity baselines are kept as a
// history in Postgres instead of redis or memory.
type DBConfig struct {
	DSN             string        `envconfig:"STOCKPULSE_DB_DSN"`
	MaxOpenConns    int           `envconfig:"STOCKPULSE_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"STOCKPULSE_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKPULSE_DB_CONN_MAX_LIFETIME" default:"30m"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKPULSE_DB_CONN_MAX_IDLE_TIME" default:"5m"`
	AutoMigrate     bool          `envconfig:"STOCKPULSE_DB_AUTO_MIGRATE" default:"false"`
	SlowQuery       time.Duration `envconfig:"STOCKPULSE_DB_SLOW_QUERY" default:"200ms"`
	// BaselineHistory caps stored snapshots per metric. Zero keeps everything.
	BaselineHistory int `envconfig:"STOCKPULSE_DB_BASELINE_HISTORY" default:"52"`
}

func (d DBConfig) Enabled() bool {
	return strings.TrimSpace(d.DSN) != ""
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Store.FailurePolicy)) {
	case FailurePolicyEmpty, FailurePolicyLoud:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvStoreFailurePolicy, FailurePolicyEmpty, FailurePolicyLoud)
	}
	switch strings.ToLower(strings.TrimSpace(c.Forecast.Source)) {
	case ForecastSourceOrders, ForecastSourceStatic:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvForecastSource, ForecastSourceOrders, ForecastSourceStatic)
	}
	switch strings.ToLower(strings.TrimSpace(c.Forecast.Ranking)) {
	case RankingSales, RankingStock:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvForecastRanking, RankingSales, RankingStock)
	}
	if c.DB.BaselineHistory < 0 {
		return fmt.Errorf("baseline history must not be negative")
	}
	if c.Cache.StaleTime < 0 || c.Cache.RefreshInterval < 0 {
		return fmt.Errorf("cache durations must not be negative")
	}
	if c.Cache.MaxIdleListings < 0 {
		return fmt.Errorf("cache idle listing cap must not be negative")
	}
	return nil
}
