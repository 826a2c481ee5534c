package workers

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	redisAdapter "github.com/selivandex/regime-engine/internal/adapters/redis"
	"github.com/selivandex/regime-engine/pkg/models"
)

type fakeCandleSource struct {
	candles map[string][]models.Candle
	err     error
}

func (f *fakeCandleSource) GetCandlesAscending(_ context.Context, symbol, timeframe string, _ int) ([]models.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.candles[symbol+"/"+timeframe], nil
}

type replacedRun struct {
	symbol      string
	timeframe   string
	version     int
	history     []models.RegimeHistoryEntry
	transitions []models.RegimeTransitionEvent
	matrix      *models.TransitionMatrix
}

type fakeRegimeStore struct {
	latest   *models.RegimeHistoryEntry
	replaced []replacedRun
	err      error
}

func (f *fakeRegimeStore) ReplaceRun(_ context.Context, symbol, timeframe string, version int,
	history []models.RegimeHistoryEntry, transitions []models.RegimeTransitionEvent,
	matrix *models.TransitionMatrix) error {
	if f.err != nil {
		return f.err
	}
	f.replaced = append(f.replaced, replacedRun{symbol, timeframe, version, history, transitions, matrix})
	return nil
}

func (f *fakeRegimeStore) LatestEntry(_ context.Context, _, _ string, _ int) (*models.RegimeHistoryEntry, error) {
	return f.latest, nil
}

type sentAlert struct {
	symbol    string
	timeframe string
	from, to  models.RegimeState
}

type fakeNotifier struct {
	alerts []sentAlert
}

func (f *fakeNotifier) SendRegimeAlert(symbol, timeframe string, from, to models.RegimeState, _ float64) error {
	f.alerts = append(f.alerts, sentAlert{symbol, timeframe, from, to})
	return nil
}

func TestRegimeWorker_RebuildSweep(t *testing.T) {
	candles := &fakeCandleSource{candles: map[string][]models.Candle{
		"BTC/USDT/1h": trendCandles(120, 100, 0.8),
		"BTC/USDT/4h": trendCandles(120, 100, -0.8),
	}}
	store := &fakeRegimeStore{}

	worker := NewRegimeWorker(candles, store, nil, redisAdapter.NewNoopLockFactory(),
		[]string{"BTC/USDT"}, []string{"1h", "4h"}, 5000)

	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.replaced) != 2 {
		t.Fatalf("expected 2 persisted rebuilds, got %d", len(store.replaced))
	}

	for _, run := range store.replaced {
		if len(run.history) != 120 {
			t.Errorf("%s/%s: expected 120 history entries, got %d",
				run.symbol, run.timeframe, len(run.history))
		}
		if run.matrix == nil {
			t.Errorf("%s/%s: expected a matrix", run.symbol, run.timeframe)
			continue
		}
		if run.matrix.SampleCount != 120 {
			t.Errorf("%s/%s: matrix sample_count = %d, want 120",
				run.symbol, run.timeframe, run.matrix.SampleCount)
		}
	}
}

func TestRegimeWorker_FailedPairSkipped(t *testing.T) {
	candles := &fakeCandleSource{err: errors.New("clickhouse unavailable")}
	store := &fakeRegimeStore{}

	worker := NewRegimeWorker(candles, store, nil, redisAdapter.NewNoopLockFactory(),
		[]string{"BTC/USDT"}, []string{"1h"}, 5000)

	// Run swallows per-pair failures so the sweep covers remaining pairs
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("sweep should not fail on a bad pair: %v", err)
	}
	if len(store.replaced) != 0 {
		t.Errorf("expected no persisted rebuilds, got %d", len(store.replaced))
	}
}

func TestRegimeWorker_AlertsOnFlip(t *testing.T) {
	candles := &fakeCandleSource{candles: map[string][]models.Candle{
		"BTC/USDT/1h": trendCandles(150, 100, 1.0),
	}}
	store := &fakeRegimeStore{latest: &models.RegimeHistoryEntry{State: models.RegimeStrongBear}}
	notifier := &fakeNotifier{}

	worker := NewRegimeWorker(candles, store, notifier, redisAdapter.NewNoopLockFactory(),
		[]string{"BTC/USDT"}, []string{"1h"}, 5000)

	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(notifier.alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(notifier.alerts))
	}
	alert := notifier.alerts[0]
	if alert.from != models.RegimeStrongBear {
		t.Errorf("alert from = %s, want STRONG_BEAR", alert.from)
	}
	if alert.to == models.RegimeStrongBear {
		t.Error("alert should report a different latest state")
	}
}

func TestRegimeWorker_NoAlertWithoutPreviousState(t *testing.T) {
	candles := &fakeCandleSource{candles: map[string][]models.Candle{
		"BTC/USDT/1h": trendCandles(150, 100, 1.0),
	}}
	store := &fakeRegimeStore{}
	notifier := &fakeNotifier{}

	worker := NewRegimeWorker(candles, store, notifier, redisAdapter.NewNoopLockFactory(),
		[]string{"BTC/USDT"}, []string{"1h"}, 5000)

	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.alerts) != 0 {
		t.Errorf("first rebuild should not alert, got %d alerts", len(notifier.alerts))
	}
}

func TestRegimeWorker_Name(t *testing.T) {
	worker := NewRegimeWorker(nil, nil, nil, redisAdapter.NewNoopLockFactory(), nil, nil, 0)
	if worker.Name() != "regime_rebuild" {
		t.Errorf("name = %q", worker.Name())
	}
}

// trendCandles builds a drifting OHLCV series with a small alternating wiggle
func trendCandles(count int, start, drift float64) []models.Candle {
	candles := make([]models.Candle, count)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	price := start
	for i := 0; i < count; i++ {
		wiggle := 0.3
		if i%2 == 0 {
			wiggle = -0.3
		}

		open := price
		price += drift + wiggle
		close := price

		high := math.Max(open, close) + 0.5
		low := math.Min(open, close) - 0.5

		candles[i] = models.Candle{
			Symbol:    "BTC/USDT",
			Timeframe: "1h",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(high),
			Low:       decimal.NewFromFloat(low),
			Close:     decimal.NewFromFloat(close),
			Volume:    decimal.NewFromFloat(1000),
		}
	}

	return candles
}
