package indicators

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/selivandex/regime-engine/pkg/models"
)

func TestCalculator_SeriesLength(t *testing.T) {
	calculator := NewCalculator()

	for _, n := range []int{0, 1, 30, 120} {
		snapshots := calculator.SnapshotSeries(generateTestCandles(n, 100, 0.5))
		if len(snapshots) != n {
			t.Errorf("n=%d: got %d snapshots", n, len(snapshots))
		}
	}
}

func TestCalculator_WarmupFieldsAreNaN(t *testing.T) {
	calculator := NewCalculator()

	snapshots := calculator.SnapshotSeries(generateTestCandles(120, 100, 0.5))

	first := snapshots[0]
	if !math.IsNaN(first.RSI) || !math.IsNaN(first.ATR) || !math.IsNaN(first.ADX) {
		t.Error("first candle should have NaN for all warming-up fields")
	}
	if !math.IsNaN(snapshots[30].EMAMedium) {
		t.Error("EMA-50 should still be warming up at candle 30")
	}
}

func TestCalculator_WarmedUpFieldsAreFinite(t *testing.T) {
	calculator := NewCalculator()

	snapshots := calculator.SnapshotSeries(generateTestCandles(120, 100, 0.5))

	last := snapshots[len(snapshots)-1]
	fields := map[string]float64{
		"rsi":        last.RSI,
		"macd_hist":  last.MACDHist,
		"stoch_k":    last.StochK,
		"cci":        last.CCI,
		"bb_width":   last.BBWidth,
		"atr":        last.ATR,
		"ema_short":  last.EMAShort,
		"ema_medium": last.EMAMedium,
		"adx":        last.ADX,
		"close":      last.Close,
	}
	for name, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("%s should be finite after warmup, got %v", name, v)
		}
	}
}

func TestCalculator_UptrendOrdering(t *testing.T) {
	calculator := NewCalculator()

	// Steady uptrend: short EMA leads medium EMA, RSI reads bullish
	snapshots := calculator.SnapshotSeries(generateTestCandles(150, 100, 0.8))
	last := snapshots[len(snapshots)-1]

	if last.EMAShort <= last.EMAMedium {
		t.Errorf("uptrend should put EMA-20 above EMA-50: %.4f <= %.4f",
			last.EMAShort, last.EMAMedium)
	}
	if last.RSI <= 50 {
		t.Errorf("uptrend RSI should exceed 50, got %.2f", last.RSI)
	}
	if last.MACDHist <= 0 {
		t.Errorf("uptrend MACD histogram should be positive, got %.4f", last.MACDHist)
	}
}

func TestCalculator_ADXRange(t *testing.T) {
	calculator := NewCalculator()

	for name, drift := range map[string]float64{"uptrend": 0.8, "downtrend": -0.8, "flat": 0} {
		t.Run(name, func(t *testing.T) {
			snapshots := calculator.SnapshotSeries(generateTestCandles(150, 100, drift))
			last := snapshots[len(snapshots)-1]
			if math.IsNaN(last.ADX) {
				t.Fatal("ADX should be warmed up at candle 150")
			}
			if last.ADX < 0 || last.ADX > 100 {
				t.Errorf("ADX out of [0, 100]: %.4f", last.ADX)
			}
		})
	}
}

func TestCalculator_TrendingADXExceedsFlat(t *testing.T) {
	calculator := NewCalculator()

	trending := calculator.SnapshotSeries(generateTestCandles(150, 100, 1.0))
	flat := calculator.SnapshotSeries(generateTestCandles(150, 100, 0))

	trendADX := trending[len(trending)-1].ADX
	flatADX := flat[len(flat)-1].ADX

	if trendADX <= flatADX {
		t.Errorf("trending ADX %.2f should exceed flat ADX %.2f", trendADX, flatADX)
	}
}

func TestCalculator_MinCandles(t *testing.T) {
	calculator := NewCalculator()

	if got := calculator.MinCandles(); got != 50 {
		t.Errorf("min candles = %d, want 50", got)
	}
}

// generateTestCandles builds a deterministic series: price drifts by drift per
// candle with a small alternating wiggle so ranges stay non-degenerate
func generateTestCandles(count int, start, drift float64) []models.Candle {
	candles := make([]models.Candle, count)

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
			Open:   decimal.NewFromFloat(open),
			High:   decimal.NewFromFloat(high),
			Low:    decimal.NewFromFloat(low),
			Close:  decimal.NewFromFloat(close),
			Volume: decimal.NewFromFloat(1000 + float64(i)),
		}
	}

	return candles
}
