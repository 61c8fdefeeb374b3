package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/stockpulse-backend/api/controllers"
	"github.com/angelmondragon/stockpulse-backend/api/routes"
	"github.com/angelmondragon/stockpulse-backend/internal/dashboard"
	"github.com/angelmondragon/stockpulse-backend/internal/forecast"
	"github.com/angelmondragon/stockpulse-backend/internal/query"
	"github.com/angelmondragon/stockpulse-backend/internal/refresh"
	"github.com/angelmondragon/stockpulse-backend/pkg/config"
	"github.com/angelmondragon/stockpulse-backend/pkg/db"
	"github.com/angelmondragon/stockpulse-backend/pkg/logger"
	"github.com/angelmondragon/stockpulse-backend/pkg/metrics"
	"github.com/angelmondragon/stockpulse-backend/pkg/migrate"
	"github.com/angelmondragon/stockpulse-backend/pkg/redis"
	"github.com/angelmondragon/stockpulse-backend/pkg/woocommerce"
)

const (
	serviceName     = "api"
	shutdownTimeout = 15 * time.Second
	refreshLockName = "refresh"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Store.UsesPlaceholderURL() {
		msg := "store url not configured, using placeholder store"
		if cfg.App.IsProd() {
			msg = "store url not configured in production, every request will fail"
		}
		logg.Warn(ctx, msg)
	}

	registerer := prometheus.DefaultRegisterer

	client := woocommerce.NewClient(woocommerce.Config{
		BaseURL:        cfg.Store.URL,
		ConsumerKey:    cfg.Store.ConsumerKey,
		ConsumerSecret: cfg.Store.ConsumerSecret,
		APIVersion:     cfg.Store.Version,
	}, logg,
		woocommerce.WithTimeout(cfg.Store.Timeout),
		woocommerce.WithFailurePolicy(woocommerce.ParseFailurePolicy(cfg.Store.FailurePolicy)),
		woocommerce.WithObserver(metrics.NewClientMetrics(registerer)),
		woocommerce.WithUserAgent(cfg.Store.UserAgent),
	)

	var (
		baselines   forecast.BaselineStore = forecast.NewMemoryBaselineStore()
		refreshLock refresh.Lock           = &refresh.LocalLock{}
		readyChecks []controllers.ReadyCheck
	)
	if cfg.Redis.Enabled() {
		redisClient, redisErr := redis.New(ctx, cfg.Redis, logg)
		if redisErr != nil {
			return redisErr
		}
		defer func() {
			err = multierr.Append(err, redisClient.Close())
		}()
		baselines = forecast.NewRedisBaselineStore(redisClient, 2*cfg.Forecast.BaselineTTL, redis.IsNotFound)
		lock, lockErr := refresh.NewRedisLock(redisClient, redisClient.LockKey(refreshLockName), cfg.Cache.RefreshInterval)
		if lockErr != nil {
			return lockErr
		}
		refreshLock = lock
		readyChecks = append(readyChecks, controllers.ReadyCheck{Name: "redis", Pinger: redisClient})
	}

	if cfg.DB.Enabled() {
		dbClient, dbErr := db.New(ctx, cfg.DB, logg)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			err = multierr.Append(err, dbClient.Close())
		}()
		if migrateErr := migrate.MaybeAutoRun(ctx, cfg.DB, logg, dbClient); migrateErr != nil {
			return migrateErr
		}
		baselines = forecast.NewSQLBaselineStore(dbClient, cfg.DB.BaselineHistory)
		readyChecks = append(readyChecks, controllers.ReadyCheck{Name: "database", Pinger: dbClient})
	}

	forecastSvc, err := forecast.NewService(forecast.ServiceParams{
		Source:              client,
		Logger:              logg,
		Model:               forecast.ParseModel(cfg.Forecast.Source),
		Baselines:           baselines,
		Ranking:             forecast.ParseRankingMetric(cfg.Forecast.Ranking),
		CurrencySymbol:      cfg.Store.CurrencySymbol,
		DefaultReorderPoint: cfg.Forecast.DefaultReorderPoint,
		OrderLookback:       cfg.Forecast.OrderLookback,
		BaselineWindow:      cfg.Forecast.BaselineTTL,
	})
	if err != nil {
		return err
	}

	cache := query.New(query.Options{
		Logger:       logg,
		Metrics:      metrics.NewQueryMetrics(registerer),
		StaleTime:    cfg.Cache.StaleTime,
		FetchTimeout: cfg.Cache.FetchTimeout,
		BaseContext:  ctx,
		Retain:       dashboard.Retained,
		MaxIdle:      cfg.Cache.MaxIdleListings,
	})
	defer cache.Close()

	dash, err := dashboard.NewService(dashboard.ServiceParams{
		Datasets: forecastSvc,
		Cache:    cache,
		Logger:   logg,
		ReadWait: cfg.Cache.ReadWait,
	})
	if err != nil {
		return err
	}

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:      cfg,
			Logger:      logg,
			Dashboard:   dash,
			ReadyChecks: readyChecks,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":            cfg.App.Env,
		"addr":           addr,
		"forecast_model": forecastSvc.Model().Name(),
		"ranking":        string(forecastSvc.Ranking()),
		"failure_policy": client.Policy().String(),
		"store":          client.Config().Redacted().BaseURL,
		"baseline_store": fmt.Sprintf("%T", baselines),
	})
	logg.Info(ctx, "starting api server")

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logg.Info(ctx, "api server shutting down gracefully")
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Cache.RefreshInterval > 0 {
		registry := &refresh.Registry{}
		for _, job := range dash.RefreshJobs(forecast.DefaultPopularLimit) {
			if regErr := registry.Register(job); regErr != nil {
				return regErr
			}
		}
		refresher, err := refresh.NewService(refresh.ServiceParams{
			Logger:   logg,
			Registry: registry,
			Lock:     refreshLock,
			Metrics:  metrics.NewJobMetrics(registerer),
			Interval: cfg.Cache.RefreshInterval,
		})
		if err != nil {
			return err
		}
		group.Go(func() error {
			return refresher.Run(groupCtx)
		})
	}

	return group.Wait()
}
