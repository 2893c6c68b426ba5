// Package main runs the funded-challenge engine: broker sync monitor,
// evaluation scheduler and the read-only dashboard HTTP API in one process.
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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"syntax-engine/internal/api"
	"syntax-engine/internal/broker"
	"syntax-engine/internal/config"
	"syntax-engine/internal/evaluation"
	"syntax-engine/internal/logging"
	"syntax-engine/internal/storage"
	chstore "syntax-engine/internal/storage/clickhouse"
	"syntax-engine/internal/storage/memory"
	"syntax-engine/internal/storage/migrations"
	pgstore "syntax-engine/internal/storage/postgres"
)

// allStores holds the storage implementations for every component.
type allStores struct {
	accounts  storage.AccountStore
	states    storage.TradingStateStore
	snapshots storage.EquitySnapshotStore
}

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	if !*useMemory && (cfg.Database.PostgresDSN == "" || cfg.Database.ClickhouseDSN == "") {
		fmt.Fprintln(os.Stderr, "postgres_dsn and clickhouse_dsn are required (use --use-memory for in-memory storage)")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, cfg, *useMemory, logger)
	if err != nil {
		logger.Fatalw("store setup failed", "error", err)
	}
	defer cleanup()

	engine := evaluation.NewEngine(evaluation.Options{
		Accounts:      stores.accounts,
		TradingStates: stores.states,
		Logger:        logger,
	})
	scheduler := evaluation.NewScheduler(evaluation.SchedulerOptions{
		Engine:       engine,
		Interval:     cfg.EvalInterval(),
		InitialDelay: cfg.EvalInitialDelay(),
		Logger:       logger,
	})

	monitor := broker.NewMonitor(broker.MonitorOptions{
		Accounts:  stores.accounts,
		States:    stores.states,
		Snapshots: stores.snapshots,
		Dialer:    broker.NewWSDialer(cfg.BrokerURL(), nil),
		Interval:  cfg.SyncInterval(),
		Logger:    logger,
	})

	apiServer := api.NewServer(api.Options{
		Accounts:  stores.accounts,
		States:    stores.states,
		Snapshots: stores.snapshots,
		Logger:    logger,
	})
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: apiServer.Router,
	}

	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Infow("shutdown signal received", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)

		select {
		case <-sigCh:
			logger.Warn("second signal received, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	errCh := make(chan error, 3)

	go func() {
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("evaluation scheduler: %w", err)
		}
	}()

	go func() {
		if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("broker monitor: %w", err)
		}
	}()

	go func() {
		logger.Infow("http server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancel()
	}
	done <- runErr

	if runErr != nil {
		logger.Fatalw("engine stopped with error", "error", runErr)
	}
	logger.Info("shutdown complete")
}

// createStores builds the storage layer, running migrations for the database
// backends.
func createStores(ctx context.Context, cfg *config.Config, useMemory bool, logger *zap.SugaredLogger) (*allStores, func(), error) {
	if useMemory {
		logger.Info("using in-memory storage")
		return &allStores{
			accounts:  memory.NewAccountStore(),
			states:    memory.NewTradingStateStore(),
			snapshots: memory.NewEquitySnapshotStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Database.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	chConn, err := chstore.NewConn(ctx, cfg.Database.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	if err := migrations.RunClickhouseMigrations(ctx, chConn); err != nil {
		chConn.Close()
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	stores := &allStores{
		accounts:  pgstore.NewAccountStore(pool),
		states:    pgstore.NewTradingStateStore(pool),
		snapshots: chstore.NewEquitySnapshotStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}
