package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/makkenzo/vector-gateway-api/internal/config"
	"github.com/makkenzo/vector-gateway-api/internal/handler"
	"github.com/makkenzo/vector-gateway-api/internal/metrics"
	"github.com/makkenzo/vector-gateway-api/internal/service"
	"github.com/makkenzo/vector-gateway-api/internal/storage/duckdb"
	"github.com/makkenzo/vector-gateway-api/internal/storage/memstorage"
	"github.com/makkenzo/vector-gateway-api/internal/storage/redis"
	"github.com/makkenzo/vector-gateway-api/internal/storage/registry"
	"github.com/makkenzo/vector-gateway-api/internal/worker"
	"github.com/makkenzo/vector-gateway-api/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	sugarLogger := appLogger.Sugar()

	sugarLogger.Info("Starting application...")
	sugarLogger.Infof("Log level set to: %s", cfg.Log.Level)

	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := registry.Open(appCtx, &cfg.Database, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to open %s registry: %v", cfg.Database.Driver, err)
	}
	defer backend.Close()
	sugarLogger.Infof("Registry backend: %s", backend.Driver)

	checks := map[string]handler.Checker{
		"registry": backend.Ping,
		"redis":    nil,
	}

	var cache service.DatabaseCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewRedisClient(appCtx, &cfg.Redis, appLogger)
		if err != nil {
			sugarLogger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()

		cache = redis.NewDatabaseCache(redisClient, cfg.Cache.TTL, appLogger)
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	engine := duckdb.NewEngine(appLogger)
	defer func() {
		if err := engine.Close(); err != nil {
			sugarLogger.Errorf("Failed to close vector engine: %v", err)
		}
	}()

	accountRepo, err := memstorage.NewAccountRepository(cfg.Auth.Admins)
	if err != nil {
		sugarLogger.Fatalf("Invalid auth.admins configuration: %v", err)
	}

	appMetrics := metrics.New(prometheus.DefaultRegisterer)

	registryService := service.NewRegistryService(backend.Databases, engine, cache, cfg.Storage.DataDir, appMetrics, appLogger)
	tableService := service.NewTableService(registryService, appMetrics, appLogger)
	apiKeyService := service.NewAPIKeyService(backend.APIKeys, appLogger)
	tokenService, err := service.NewTokenService(&cfg.Auth, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to initialize token service: %v", err)
	}
	authService := service.NewAuthService(cfg.Auth.Enabled, tokenService, apiKeyService, accountRepo, appLogger)
	if !cfg.Auth.Enabled {
		sugarLogger.Warn("Authentication is DISABLED: every request runs with full permissions")
	}

	checks["engine"] = registryService.Ping

	router := handler.NewRouter(appCtx, handler.RouterDeps{
		Server:         &cfg.Server,
		Auth:           authService,
		Metrics:        appMetrics,
		MetricsHandler: promhttp.Handler(),
		Health:         handler.NewHealthHandler(checks, appLogger),
		Databases:      handler.NewDatabaseHandler(registryService, appLogger),
		Tables:         handler.NewTableHandler(tableService, appLogger),
		APIKeys:        handler.NewAPIKeyHandler(apiKeyService, appLogger),
		Tokens:         handler.NewAuthHandler(authService, appLogger),
	}, appLogger)

	g, groupCtx := errgroup.WithContext(appCtx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		sugarLogger.Infof("HTTP server listening on port %s", cfg.Server.Port)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugarLogger.Errorf("HTTP server ListenAndServe error: %v", err)
			return fmt.Errorf("http server failed: %w", err)
		}
		sugarLogger.Info("HTTP server stopped listening.")
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		sugarLogger.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugarLogger.Errorf("HTTP server graceful shutdown failed: %v", err)
			return fmt.Errorf("http server shutdown error: %w", err)
		}
		sugarLogger.Info("HTTP server shutdown complete.")
		return nil
	})

	g.Go(func() error {
		registryService.WatchStats(groupCtx, cfg.Metrics.RefreshInterval)
		return nil
	})

	if cfg.Worker.Enabled {
		g.Go(func() error {
			if err := worker.Run(groupCtx, cfg, registryService, appLogger); err != nil {
				sugarLogger.Errorf("Asynq worker failed: %v", err)
				return fmt.Errorf("asynq worker error: %w", err)
			}
			sugarLogger.Info("Asynq workers finished gracefully.")
			return nil
		})
	}

	sugarLogger.Info("Application started. Waiting for interrupt signal (Ctrl+C) or component error...")

	waitErr := g.Wait()

	sugarLogger.Info("Shutdown sequence finished.")

	if waitErr != nil {
		if errors.Is(waitErr, context.Canceled) {
			sugarLogger.Info("Shutdown reason: Context canceled (likely due to OS signal).")
		} else {
			sugarLogger.Errorf("Application shutdown finished with unexpected error: %v", waitErr)
		}
	} else {
		sugarLogger.Info("Application shutdown successfully (all components finished without errors).")
	}

	sugarLogger.Info("Application exiting now.")
}
