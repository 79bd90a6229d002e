package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/Clark-Hu/moviestore/internal/checkout"
	"github.com/Clark-Hu/moviestore/internal/config"
	httpserver "github.com/Clark-Hu/moviestore/internal/http"
	"github.com/Clark-Hu/moviestore/internal/logger"
	"github.com/Clark-Hu/moviestore/internal/metrics"
	"github.com/Clark-Hu/moviestore/internal/migrate"
	"github.com/Clark-Hu/moviestore/internal/popularity"
	"github.com/Clark-Hu/moviestore/internal/ratings"
	"github.com/Clark-Hu/moviestore/internal/redis"
	"github.com/Clark-Hu/moviestore/internal/repository"
	"github.com/Clark-Hu/moviestore/internal/store"
)

const serviceName = "moviestore-api"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Info(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
		WarnStack:   cfg.LogWarnStack,
	})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "server exited with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logg *logger.Logger) (err error) {
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st, err := store.New(dbCtx, cfg.DBURL, store.OptionsFromConfig(cfg, logg))
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.AutoMigrate {
		if err := migrate.Up(dbCtx, st.Pool()); err != nil {
			return err
		}
		logg.Info(ctx, "migrations applied")
	}

	var (
		carts   checkout.CartStore
		cache   httpserver.Pinger
		limiter httpserver.RateLimiter
	)
	if cfg.RedisURL != "" {
		redisClient, redisErr := redis.New(dbCtx, cfg.RedisURL)
		if redisErr != nil {
			return redisErr
		}
		defer func() {
			err = multierr.Append(err, redisClient.Close())
		}()
		carts = checkout.NewRedisCartStore(redisClient, cfg.CartTTL)
		cache = redisClient
		if cfg.RateLimitEnabled() {
			limiter = redisClient
		}
	} else {
		logg.Warn(ctx, "REDIS_URL not set: carts are kept in memory and write rate limiting is off")
		carts = checkout.NewMemoryCartStore()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.RegisterPoolStats(reg, func() metrics.PoolStat { return st.Stats() })

	repo := repository.New(st)
	server := httpserver.New(cfg, httpserver.Deps{
		Health:      st,
		Cache:       cache,
		Repo:        repo,
		Ratings:     ratings.NewService(repo.Ratings),
		Popularity:  popularity.NewService(repo.Orders, repo.Profiles, metrics.NewAggregationMetrics(reg)),
		Checkout:    checkout.NewService(repo.Movies, checkout.RepositoryRunner{Repo: repo}, carts, logg),
		Carts:       carts,
		Limiter:     limiter,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		Gatherer:    reg,
		Logger:      logg,
	})

	serveErr := server.Start(ctx)
	if errors.Is(serveErr, context.Canceled) || errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	shutdownErr := server.Shutdown(shutdownCtx)
	if errors.Is(shutdownErr, http.ErrServerClosed) {
		shutdownErr = nil
	}

	logg.Info(context.Background(), "server stopped")
	return multierr.Combine(serveErr, shutdownErr)
}
