package indicators

import (
	"math"

	"github.com/cinar/indicator"

	"github.com/selivandex/regime-engine/pkg/models"
)

// Indicator periods feeding the regime classifier
const (
	rsiPeriod       = 14
	atrPeriod       = 14
	cciPeriod       = 20
	adxPeriod       = 14
	emaShortPeriod  = 20
	emaMediumPeriod = 50
	macdWarmup      = 26 + 9 // slow EMA + signal line
)

// Calculator derives per-candle indicator snapshots from OHLCV data
type Calculator struct{}

// NewCalculator creates new indicator calculator
func NewCalculator() *Calculator {
	return &Calculator{}
}

// MinCandles returns the number of candles needed before every snapshot field
// is past its warmup period
func (c *Calculator) MinCandles() int {
	return emaMediumPeriod
}

// SnapshotSeries computes one IndicatorSnapshot per input candle. Fields still
// inside their warmup window are NaN; the classifier substitutes neutral
// defaults for those, so early candles degrade rather than fail.
func (c *Calculator) SnapshotSeries(candles []models.Candle) []models.IndicatorSnapshot {
	n := len(candles)
	snapshots := make([]models.IndicatorSnapshot, n)
	if n == 0 {
		return snapshots
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)

	for i, candle := range candles {
		closes[i], _ = candle.Close.Float64()
		highs[i], _ = candle.High.Float64()
		lows[i], _ = candle.Low.Float64()
	}

	_, rsi := indicator.Rsi(closes)
	macdLine, signalLine := indicator.Macd(closes)
	bbMiddle, bbUpper, bbLower := indicator.BollingerBands(closes)
	_, atr := indicator.Atr(atrPeriod, highs, lows, closes)
	stochK, _ := indicator.StochasticOscillator(highs, lows, closes)
	cci := indicator.CommunityChannelIndex(cciPeriod, highs, lows, closes)
	emaShort := indicator.Ema(emaShortPeriod, closes)
	emaMedium := indicator.Ema(emaMediumPeriod, closes)
	adx := averageDirectionalIndex(adxPeriod, highs, lows, closes)

	for i := 0; i < n; i++ {
		snapshot := models.EmptyIndicatorSnapshot()
		snapshot.Close = closes[i]

		snapshot.RSI = warmedUp(rsi, i, rsiPeriod)
		snapshot.StochK = warmedUp(stochK, i, rsiPeriod)
		snapshot.CCI = warmedUp(cci, i, cciPeriod)
		snapshot.ATR = warmedUp(atr, i, atrPeriod)
		snapshot.EMAShort = warmedUp(emaShort, i, emaShortPeriod)
		snapshot.EMAMedium = warmedUp(emaMedium, i, emaMediumPeriod)
		snapshot.ADX = warmedUp(adx, i, 2*adxPeriod)

		if i >= macdWarmup {
			snapshot.MACDHist = macdLine[i] - signalLine[i]
		}

		if i >= emaShortPeriod && bbMiddle[i] > 0 {
			snapshot.BBWidth = (bbUpper[i] - bbLower[i]) / bbMiddle[i]
		}

		snapshots[i] = snapshot
	}

	return snapshots
}

// warmedUp returns the series value at i, or NaN while still in warmup
func warmedUp(series []float64, i, warmup int) float64 {
	if i < warmup || i >= len(series) {
		return math.NaN()
	}
	return series[i]
}

// averageDirectionalIndex computes Wilder's ADX. The cinar library covers the
// rest of the snapshot but has no ADX, so it is computed here with the
// standard smoothing.
func averageDirectionalIndex(period int, highs, lows, closes []float64) []float64 {
	n := len(closes)
	result := make([]float64, n)
	if n < 2*period+1 {
		return result
	}

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	trueRange := make([]float64, n)

	for i := 1; i < n; i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]

		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}

		trueRange[i] = math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
	}

	dx := make([]float64, n)
	var smoothedTR, smoothedPlus, smoothedMinus float64

	for i := 1; i < n; i++ {
		if i <= period {
			smoothedTR += trueRange[i]
			smoothedPlus += plusDM[i]
			smoothedMinus += minusDM[i]
			if i < period {
				continue
			}
		} else {
			smoothedTR += trueRange[i] - smoothedTR/float64(period)
			smoothedPlus += plusDM[i] - smoothedPlus/float64(period)
			smoothedMinus += minusDM[i] - smoothedMinus/float64(period)
		}

		if smoothedTR == 0 {
			continue
		}
		plusDI := 100 * smoothedPlus / smoothedTR
		minusDI := 100 * smoothedMinus / smoothedTR
		if plusDI+minusDI > 0 {
			dx[i] = 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
		}
	}

	var adx float64
	var dxSum float64
	for i := period; i < n; i++ {
		if i < 2*period {
			dxSum += dx[i]
			if i == 2*period-1 {
				adx = dxSum / float64(period)
				result[i] = adx
			}
			continue
		}
		adx = (adx*float64(period-1) + dx[i]) / float64(period)
		result[i] = adx
	}

	return result
}
