package config

const EnvPrefix = "STOCKPULSE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv             = "STOCKPULSE_APP_ENV"
	EnvPort               = "STOCKPULSE_APP_PORT"
	EnvStoreURL           = "STOCKPULSE_WC_URL"
	EnvStoreKey           = "STOCKPULSE_WC_CONSUMER_KEY"
	EnvStoreSecret        = "STOCKPULSE_WC_CONSUMER_SECRET"
	EnvStoreFailurePolicy = "STOCKPULSE_WC_FAILURE_POLICY"
	EnvForecastSource     = "STOCKPULSE_FORECAST_SOURCE"
	EnvForecastRanking    = "STOCKPULSE_FORECAST_RANKING"
	EnvRedisURL           = "STOCKPULSE_REDIS_URL"
	EnvCacheStaleTime     = "STOCKPULSE_CACHE_STALE_TIME"
	EnvRefreshInterval    = "STOCKPULSE_REFRESH_INTERVAL"
	EnvCacheMaxIdle       = "STOCKPULSE_CACHE_MAX_IDLE_LISTINGS"
	EnvDBDSN              = "STOCKPULSE_DB_DSN"
	EnvCORSOrigins        = "STOCKPULSE_CORS_ORIGINS"
)

const (
	FailurePolicyEmpty = "empty"
	FailurePolicyLoud  = "loud"

	ForecastSourceOrders = "orders"
	ForecastSourceStatic = "static"

	RankingSales = "sales"
	RankingStock = "stock"
)
