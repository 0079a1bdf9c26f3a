package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paycrypt/internal/cache"
	"paycrypt/internal/config"
	"paycrypt/internal/httpserver"
	"paycrypt/internal/logging"
	"paycrypt/internal/metrics"
	"paycrypt/internal/purchase"
	"paycrypt/internal/repo"
	"paycrypt/internal/vtpass"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting paycrypt gateway", "env", cfg.AppEnv, "vtpass_base_url", cfg.VTpassBaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	store, err := repo.Open(ctx, repo.OpenConfig{
		DatabaseURL: cfg.DatabaseURL,
		Schema:      cfg.DatabaseSchema,
		SQLitePath:  cfg.SQLitePath,
	}, logger)
	if err != nil {
		return fmt.Errorf("init order store: %w", err)
	}
	defer store.Close()
	if !cfg.UsePostgres() {
		logger.Warn("DATABASE_URL not set, orders are stored in SQLite", "path", cfg.SQLitePath)
	}

	if cfg.RunMigrations {
		if err := repo.Migrate(ctx, store); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrated")
	}

	var catalogCache vtpass.Cache
	if cfg.RedisAddr != "" {
		redisClient := cache.New(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
		}, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed closing redis", "error", err)
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed", "error", err)
		}
		catalogCache = redisClient
	} else {
		logger.Info("REDIS_ADDR not set, vtpass catalog is not cached")
	}

	vtpassClient := vtpass.New(vtpass.Config{
		BaseURL:    cfg.VTpassBaseURL,
		APIKey:     cfg.VTpassAPIKey,
		PublicKey:  cfg.VTpassPublicKey,
		SecretKey:  cfg.VTpassSecretKey,
		Timeout:    cfg.VTpassTimeout,
		CatalogTTL: cfg.VTpassCatalogTTL,
	}, logger, metricRegistry, catalogCache)
	if cfg.VTpassAPIKey == "" || cfg.VTpassSecretKey == "" {
		logger.Warn("vtpass credentials missing, purchases will fail")
	}

	engine := purchase.NewEngine(store, vtpassClient, purchase.Config{
		Policy: purchase.Policy{
			MinAmount:       cfg.PurchaseMinAmount,
			MaxAmount:       cfg.PurchaseMaxAmount,
			SupportedChains: cfg.SupportedChainIDs,
		},
		FulfillmentTimeout: cfg.FulfillmentTimeout,
	}, logger, metricRegistry)

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, httpserver.Dependencies{
		Purchases: engine,
		Orders:    store,
		Catalog:   vtpassClient,
	}, httpserver.Options{
		BasePath:           cfg.PublicBasePath,
		AllowedOrigins:     cfg.CORSAllowedOrigins,
		AdminJWTSecret:     cfg.AdminJWTSecret,
		ExposeErrorDetails: !cfg.IsProduction(),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	// In-flight purchases must get to record their outcome.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.FulfillmentTimeout+15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
