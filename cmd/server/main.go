/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the inventory costing server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file, COSTING_* environment, defaults)
  2. Initialize zap logger
  3. Open the SQLite audit trail
  4. Connect the Redis summary cache, if enabled
  5. Wire the reporting service, HTTP router and cache warmer
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a TOML config file (default: ./config.toml if present)
  -port    Overrides app.port
  -db      Overrides database.path. Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the cache warmer
  2. Stop accepting new connections
  3. Wait for active requests to complete (http.shutdown_timeout)
  4. Close Redis and database connections

EXAMPLES:
  # Run with file database
  ./server -db="./data/costing.db"

  # Run with Redis caching summaries
  COSTING_CACHE_ENABLED=true COSTING_CACHE_ADDR=localhost:6379 ./server

  # Count write-offs as cost of goods sold
  COSTING_ENGINE_WRITEOFFS_IN_COGS=true ./server

SEE ALSO:
  - config/config.go: Every setting and its default
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Audit trail storage
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/costing-engine/api"
	"github.com/warp/costing-engine/cache"
	"github.com/warp/costing-engine/config"
	"github.com/warp/costing-engine/logger"
	"github.com/warp/costing-engine/metrics"
	"github.com/warp/costing-engine/reporting"
	"github.com/warp/costing-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "Path to a TOML config file")
	port := flag.String("port", "", "HTTP server port (overrides app.port)")
	dbPath := flag.String("db", "", "SQLite database path (overrides database.path)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.App.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logCfg := logger.DefaultConfig()
	if cfg.IsProduction() {
		logCfg = logger.ProductionConfig()
	}
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logCfg.Output = cfg.Log.Output
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	// Initialize store
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()
	log.Info("Audit trail opened", zap.String("path", cfg.Database.Path))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	opts := reporting.Options{
		Policy:            cfg.Policy(),
		DefaultWindowDays: cfg.Engine.DefaultWindowDays,
		CheckEvery:        cfg.Engine.CancelCheckEvery,
		Audit:             cfg.Engine.Audit,
		Metrics:           m,
		Logger:            log.Named("reporting"),
	}

	var redisCache *cache.RedisCache
	if cfg.Cache.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		defer client.Close()
		redisCache = cache.NewRedisCache(client, cfg.Cache.TTL, cfg.Cache.Prefix)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		if err := redisCache.Ping(ctx); err != nil {
			// summaries are still computed without a cache
			log.Warn("Redis unreachable at startup", zap.String("addr", cfg.Cache.Addr), zap.Error(err))
		}
		cancel()
		opts.Cache = redisCache
		log.Info("Summary cache enabled", zap.String("addr", cfg.Cache.Addr), zap.Duration("ttl", cfg.Cache.TTL))
	}

	svc := reporting.NewService(store, opts)

	handler := api.NewHandler(svc)
	handler.AddHealthCheck("database", store)
	if redisCache != nil {
		handler.AddHealthCheck("cache", redisCache)
	}

	router := api.NewRouter(handler, api.RouterOptions{
		Logger:         log.Named("http"),
		Metrics:        m,
		Gatherer:       reg,
		AllowedOrigins: cfg.HTTP.CORSAllowOrigins,
	})

	warmer := api.NewCacheWarmer(svc, cfg.WarmerScopes(), m, log)
	warmer.CheckInterval = cfg.Warmer.Interval
	warmer.Enabled = cfg.Warmer.Enabled && redisCache != nil
	warmer.Start()
	defer warmer.Stop()

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting",
			zap.String("addr", server.Addr),
			zap.String("env", cfg.App.Env),
			zap.Int("default_window_days", cfg.Engine.DefaultWindowDays),
			zap.Bool("writeoffs_in_cogs", cfg.Engine.WriteOffsInCOGS))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("Shutting down server", zap.Stringer("signal", sig))
	case err := <-serveErr:
		return err
	}

	warmer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
