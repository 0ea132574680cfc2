package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"paintstore/backend/internal/cache"
	"paintstore/backend/internal/config"
	"paintstore/backend/internal/httpapi"
	"paintstore/backend/internal/lock"
	"paintstore/backend/internal/logging"
	"paintstore/backend/internal/observability"
	"paintstore/backend/internal/phone"
	"paintstore/backend/internal/service"
	"paintstore/backend/internal/store"
	"paintstore/backend/internal/store/memory"
	pgstore "paintstore/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load configuration: %v", err)
	}
	if err := validateConfig(cfg); err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	storeOpts := store.Options{AllowNegativeStock: cfg.AllowNegativeStock}
	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.UsePostgres() {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, storeOpts)
		if err != nil {
			logger.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with the data file", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		mem, err := memory.Open(cfg.DataFile, storeOpts)
		if err != nil {
			logger.Fatalf("open data file %s: %v", cfg.DataFile, err)
		}
		if cfg.SeedDemo {
			if err := mem.SeedDemo(ctx); err != nil {
				logger.Fatalf("seed demo catalog: %v", err)
			}
		}
		repo = mem
		logger.WithField("path", cfg.DataFile).Info("repository: data file")
	}

	svcOpts := service.Options{
		Logger:            logger,
		PhoneRegion:       cfg.PhoneRegion,
		LowStockThreshold: cfg.LowStockThreshold,
	}
	if cfg.UseRedis() {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisCache(client, "paintstore", cfg.StatsCacheTTL).WithLogger(logger)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warnf("redis unavailable (%v), using in-process cache and locks", err)
			_ = client.Close()
		} else {
			svcOpts.Cache = redisCache
			svcOpts.Locker = lock.NewRedis(client, "paintstore:lock")
			closers = append(closers, client.Close)
			logger.Info("cache: redis")
		}
	} else {
		logger.Info("cache: none")
	}

	metrics := observability.NewMetrics()
	svcOpts.Metrics = metrics
	svc := service.New(repo, svcOpts)
	api := httpapi.New(svc, httpapi.Options{
		AllowedOrigin:      cfg.AllowedOrigin,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CSRFEnabled:        cfg.CSRFEnabled,
		Logger:             logger,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("paint store backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Errorf("close error: %v", err)
		}
	}

	logger.Info("server stopped")
}

func validateConfig(cfg config.Config) error {
	if !phone.SupportedRegion(cfg.PhoneRegion) {
		return fmt.Errorf("PHONE_REGION %q is not a known region code", cfg.PhoneRegion)
	}
	if port, err := strconv.Atoi(cfg.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535")
	}
	if cfg.LowStockThreshold <= 0 {
		return fmt.Errorf("LOW_STOCK_THRESHOLD must be positive")
	}
	if cfg.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if cfg.StatsCacheTTL <= 0 {
		return fmt.Errorf("STATS_CACHE_TTL must be positive")
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}
	if !cfg.UsePostgres() && cfg.DataFile == "" {
		return fmt.Errorf("DATA_FILE must be set when DATABASE_URL is empty")
	}
	return nil
}
