package workers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/regime-engine/internal/adapters/redis"
	"github.com/selivandex/regime-engine/internal/indicators"
	"github.com/selivandex/regime-engine/internal/regime"
	"github.com/selivandex/regime-engine/pkg/logger"
	"github.com/selivandex/regime-engine/pkg/models"
)

// CandleSource reads candles from the external candle store
type CandleSource interface {
	GetCandlesAscending(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)
}

// RegimeStore persists and reads back regime rebuild output
type RegimeStore interface {
	ReplaceRun(ctx context.Context, symbol, timeframe string, version int,
		history []models.RegimeHistoryEntry, transitions []models.RegimeTransitionEvent,
		matrix *models.TransitionMatrix) error
	LatestEntry(ctx context.Context, symbol, timeframe string, version int) (*models.RegimeHistoryEntry, error)
}

// Notifier reports regime flips; nil disables alerts
type Notifier interface {
	SendRegimeAlert(symbol, timeframe string, from, to models.RegimeState, score float64) error
}

// RegimeWorker periodically rebuilds regime history and transition matrices
// for every configured (symbol, timeframe) pair
type RegimeWorker struct {
	candles     CandleSource
	store       RegimeStore
	notifier    Notifier
	lockFactory redis.LockFactory
	calculator  *indicators.Calculator
	engine      *regime.BackfillEngine
	builder     *regime.MatrixBuilder
	symbols     []string
	timeframes  []string
	candleLimit int
}

// NewRegimeWorker creates new regime rebuild worker
func NewRegimeWorker(
	candles CandleSource,
	store RegimeStore,
	notifier Notifier,
	lockFactory redis.LockFactory,
	symbols []string,
	timeframes []string,
	candleLimit int,
) *RegimeWorker {
	return &RegimeWorker{
		candles:     candles,
		store:       store,
		notifier:    notifier,
		lockFactory: lockFactory,
		calculator:  indicators.NewCalculator(),
		engine:      regime.NewBackfillEngine(regime.NewClassifier()),
		builder:     regime.NewMatrixBuilder(),
		symbols:     symbols,
		timeframes:  timeframes,
		candleLimit: candleLimit,
	}
}

// Name returns worker name
func (w *RegimeWorker) Name() string {
	return "regime_rebuild"
}

// Run executes one full rebuild sweep across all configured pairs.
// Called periodically by pkg/worker.PeriodicWorker. A failed pair is logged
// and skipped; rebuilds are idempotent, so the next sweep retries it.
func (w *RegimeWorker) Run(ctx context.Context) error {
	startTime := time.Now()
	rebuilt := 0

	for _, symbol := range w.symbols {
		for _, timeframe := range w.timeframes {
			if err := w.rebuildPair(ctx, symbol, timeframe); err != nil {
				logger.Warn("regime rebuild failed",
					zap.String("symbol", symbol),
					zap.String("timeframe", timeframe),
					zap.Error(err),
				)
				continue
			}
			rebuilt++
		}
	}

	logger.Info("regime rebuild sweep complete",
		zap.Int("pairs", rebuilt),
		zap.Duration("latency", time.Since(startTime)),
	)

	return nil
}

// rebuildPair performs the full bulk-read -> classify -> build -> atomic
// replace cycle for one (symbol, timeframe) pair under a distributed lock
func (w *RegimeWorker) rebuildPair(ctx context.Context, symbol, timeframe string) error {
	lock := w.lockFactory.CreateRebuildLock(symbol, timeframe)
	acquired, err := lock.TryAcquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire rebuild lock: %w", err)
	}
	if !acquired {
		logger.Debug("skipping pair, rebuild in progress elsewhere",
			zap.String("key", lock.Key()),
		)
		return nil
	}
	defer lock.Release(ctx)

	previous, err := w.store.LatestEntry(ctx, symbol, timeframe, regime.ClassificationVersion)
	if err != nil {
		return fmt.Errorf("failed to read previous regime: %w", err)
	}

	candles, err := w.candles.GetCandlesAscending(ctx, symbol, timeframe, w.candleLimit)
	if err != nil {
		return fmt.Errorf("failed to read candles: %w", err)
	}

	snapshots := w.calculator.SnapshotSeries(candles)
	points := make([]regime.CandlePoint, len(candles))
	for i, candle := range candles {
		close, _ := candle.Close.Float64()
		points[i] = regime.CandlePoint{
			Timestamp: candle.Timestamp,
			Close:     close,
			Snapshot:  snapshots[i],
		}
	}

	history, transitions := w.engine.Backfill(symbol, timeframe, points)
	matrix := w.builder.Build(history, transitions)

	if err := w.store.ReplaceRun(ctx, symbol, timeframe, regime.ClassificationVersion, history, transitions, matrix); err != nil {
		return fmt.Errorf("failed to persist rebuild: %w", err)
	}

	w.alertOnFlip(symbol, timeframe, previous, history)

	return nil
}

// alertOnFlip notifies when the latest classified state differs from the one
// persisted before this rebuild
func (w *RegimeWorker) alertOnFlip(symbol, timeframe string, previous *models.RegimeHistoryEntry, history []models.RegimeHistoryEntry) {
	if w.notifier == nil || previous == nil || len(history) == 0 {
		return
	}

	latest := history[len(history)-1]
	if latest.State == previous.State {
		return
	}

	if err := w.notifier.SendRegimeAlert(symbol, timeframe, previous.State, latest.State, latest.Score); err != nil {
		logger.Warn("failed to send regime alert",
			zap.String("symbol", symbol),
			zap.String("timeframe", timeframe),
			zap.Error(err),
		)
	}
}
