package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/regime-engine/internal/adapters/config"
	"github.com/selivandex/regime-engine/internal/adapters/database"
	"github.com/selivandex/regime-engine/internal/adapters/market"
	redisAdapter "github.com/selivandex/regime-engine/internal/adapters/redis"
	"github.com/selivandex/regime-engine/internal/adapters/regimestore"
	"github.com/selivandex/regime-engine/internal/adapters/telegram"
	"github.com/selivandex/regime-engine/internal/workers"
	"github.com/selivandex/regime-engine/pkg/logger"
	"github.com/selivandex/regime-engine/pkg/worker"
)

func main() {
	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Regime engine starting...",
		zap.Strings("symbols", cfg.Regime.Symbols),
		zap.Strings("timeframes", cfg.Regime.Timeframes),
	)

	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	chDB, err := database.NewClickHouse(&cfg.ClickHouse)
	if err != nil {
		return fmt.Errorf("failed to connect to candle store: %w", err)
	}
	defer chDB.Close()

	lockFactory, closeLocks, err := initLocks(cfg)
	if err != nil {
		return err
	}
	defer closeLocks()

	notifier := initNotifier(cfg)

	regimeWorker := workers.NewRegimeWorker(
		market.NewRepository(chDB.DB()),
		regimestore.NewRepository(db.DB()),
		notifier,
		lockFactory,
		cfg.Regime.Symbols,
		cfg.Regime.Timeframes,
		cfg.Regime.CandleLimit,
	)

	group := worker.NewWorkerGroup(ctx)
	group.Add(regimeWorker, cfg.Regime.RebuildInterval)
	group.Start()

	<-ctx.Done()
	logger.Info("shutting down gracefully...")
	group.Stop(30 * time.Second)

	return nil
}

// initDatabase initializes the regime store connection and runs migrations
func initDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(db.Conn(), "./migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// initLocks returns the rebuild lock factory: Redis-backed when enabled,
// no-op for single-instance deployments
func initLocks(cfg *config.Config) (redisAdapter.LockFactory, func(), error) {
	if !cfg.Redis.Enabled {
		return redisAdapter.NewNoopLockFactory(), func() {}, nil
	}

	client, err := redisAdapter.New(&cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if err := client.Health(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis health check failed: %w", err)
	}

	return client.GetLockFactory(), func() { client.Close() }, nil
}

// initNotifier returns the telegram notifier, or nil when not configured
func initNotifier(cfg *config.Config) workers.Notifier {
	if cfg.Telegram.BotToken == "" {
		return nil
	}

	notifier, err := telegram.NewNotifier(&cfg.Telegram)
	if err != nil {
		logger.Error("failed to create telegram notifier", zap.Error(err))
		return nil
	}

	logger.Info("📱 Telegram regime alerts enabled")
	return notifier
}
