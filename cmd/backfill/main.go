package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/selivandex/regime-engine/internal/adapters/config"
	"github.com/selivandex/regime-engine/internal/adapters/database"
	"github.com/selivandex/regime-engine/internal/adapters/market"
	redisAdapter "github.com/selivandex/regime-engine/internal/adapters/redis"
	"github.com/selivandex/regime-engine/internal/adapters/regimestore"
	"github.com/selivandex/regime-engine/internal/workers"
	"github.com/selivandex/regime-engine/pkg/logger"
)

func main() {
	symbols := flag.String("symbols", "", "comma-separated symbols (overrides REGIME_SYMBOLS)")
	timeframes := flag.String("timeframes", "", "comma-separated timeframes (overrides REGIME_TIMEFRAMES)")
	flag.Parse()

	if err := run(context.Background(), *symbols, *timeframes); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run performs a single rebuild sweep and exits
func run(ctx context.Context, symbolsFlag, timeframesFlag string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if symbolsFlag != "" {
		cfg.Regime.Symbols = strings.Split(symbolsFlag, ",")
	}
	if timeframesFlag != "" {
		cfg.Regime.Timeframes = strings.Split(timeframesFlag, ",")
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("one-shot regime backfill starting",
		zap.Strings("symbols", cfg.Regime.Symbols),
		zap.Strings("timeframes", cfg.Regime.Timeframes),
		zap.Int("candle_limit", cfg.Regime.CandleLimit),
	)

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db.Conn(), "./migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	chDB, err := database.NewClickHouse(&cfg.ClickHouse)
	if err != nil {
		return fmt.Errorf("failed to connect to candle store: %w", err)
	}
	defer chDB.Close()

	regimeWorker := workers.NewRegimeWorker(
		market.NewRepository(chDB.DB()),
		regimestore.NewRepository(db.DB()),
		nil, // no alerts for batch runs
		redisAdapter.NewNoopLockFactory(),
		cfg.Regime.Symbols,
		cfg.Regime.Timeframes,
		cfg.Regime.CandleLimit,
	)

	return regimeWorker.Run(ctx)
}
