/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the site ledger HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the logger
  3. Open the SQLite store (migrates on open)
  4. Pick the project locker (Redis when REDIS_ADDR is set)
  5. Wire ledgers, alert scheduler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -addr    Listen address (overrides SITE_ADDR, default :8080)
  -db      SQLite database path (overrides SITE_DB_PATH)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the alert scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close Redis and the database

EXAMPLES:
  ./server -db="./data/obra.db"
  REDIS_ADDR=localhost:6379 LOG_FORMAT=json ./server

SEE ALSO:
  - config/config.go: environment keys
  - api/server.go: Router configuration
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
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/site-ledger/api"
	"github.com/warp/site-ledger/config"
	"github.com/warp/site-ledger/generic"
	"github.com/warp/site-ledger/lock"
	"github.com/warp/site-ledger/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags
	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	cfg.Addr = *addr
	cfg.DBPath = *dbPath

	logger, err := config.NewLogger(cfg)
	if err != nil {
		return err
	}

	// Initialize store
	storeCfg := sqlite.DefaultConfig(cfg.DBPath)
	storeCfg.Driver = cfg.DBDriver
	storeCfg.BusyTimeout = cfg.BusyTimeout
	store, err := sqlite.NewWithConfig(storeCfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	// Project locker
	var locker generic.Locker = lock.NewLocalLocker()
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := lock.Dial(ctx, cfg.RedisAddr)
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, logger)
		logger.WithField("redis", cfg.RedisAddr).Info("using redis project locks")
	}
	locker = lock.WithTTL(locker, cfg.LockTTL)

	// Ledgers, scheduler, router
	svc := api.NewServices(store, locker, logger)
	alerts := api.NewAlertScheduler(svc.Site, svc.Stock, cfg.AlertInterval, logger)
	handler := api.NewHandler(svc, alerts, logger)
	router := api.NewRouter(handler, logger)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	alerts.Start()
	defer alerts.Stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":   cfg.Addr,
			"db":     cfg.DBPath,
			"driver": cfg.DBDriver,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-quit:
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
