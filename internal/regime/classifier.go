package regime

import (
	"math"

	"github.com/selivandex/regime-engine/pkg/models"
)

// ClassificationVersion tags every persisted regime row. Bump it whenever the
// signal weights, ADX gating or discretization thresholds below change, so
// matrices built under the old algorithm stay addressable instead of mixing.
const ClassificationVersion = 1

// Signal weights for the composite directional score (sum to 1.0)
const (
	weightRSI   = 0.20
	weightMACD  = 0.25
	weightStoch = 0.15
	weightCCI   = 0.15
	weightEMA   = 0.25
)

// Discretization thresholds. BULL/BEAR bands sit strictly between the
// NEUTRAL and STRONG bands; Classify checks them as an ordered chain.
const (
	thresholdStrongBull = 0.45
	thresholdBull       = 0.15
	thresholdBear       = -0.15
	thresholdStrongBear = -0.45
)

// Classifier maps one candle's indicator snapshot to a regime label.
// Stateless and deterministic: the same snapshot always yields the same state.
type Classifier struct{}

// NewClassifier creates new regime classifier
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Score computes the continuous directional score in [-1, 1] for a snapshot.
// Missing (NaN/Inf) fields are substituted with neutral defaults first, so the
// function is total over any float inputs.
func (c *Classifier) Score(snapshot models.IndicatorSnapshot) float64 {
	s := snapshot.Sanitized()

	// Directional sub-signals, each roughly in [-1, +1]
	rsiSignal := (s.RSI - 50) / 50
	macdSignal := math.Tanh(3 * s.MACDHist / math.Max(s.ATR, 0.001))
	stochSignal := (s.StochK - 50) / 50
	cciSignal := math.Tanh(s.CCI / 150)

	emaSignal := 0.0
	if s.EMAMedium > 0 {
		emaSignal = math.Tanh(3 * (s.EMAShort - s.EMAMedium) / s.EMAMedium)
	}

	score := weightRSI*rsiSignal +
		weightMACD*macdSignal +
		weightStoch*stochSignal +
		weightCCI*cciSignal +
		weightEMA*emaSignal

	// Trend-strength gating: without a trend (low ADX) the oscillators mostly
	// emit noise, so the score is damped toward neutral; a strong trend
	// amplifies it (boost range ~0.7x-1.3x).
	switch {
	case s.ADX < 20:
		score *= 0.4
	case s.ADX < 25:
		score *= 0.7
	default:
		score *= 1.0 + (math.Min(s.ADX/40, 1.0)-0.5)*0.6
	}

	return clamp(score, -1, 1)
}

// Classify maps a snapshot to its regime state and returns the underlying score
func (c *Classifier) Classify(snapshot models.IndicatorSnapshot) (models.RegimeState, float64) {
	score := c.Score(snapshot)
	return stateForScore(score), score
}

// stateForScore discretizes a [-1, 1] score with the ordered threshold chain
func stateForScore(score float64) models.RegimeState {
	switch {
	case score >= thresholdStrongBull:
		return models.RegimeStrongBull
	case score >= thresholdBull:
		return models.RegimeBull
	case score <= thresholdStrongBear:
		return models.RegimeStrongBear
	case score <= thresholdBear:
		return models.RegimeBear
	default:
		return models.RegimeNeutral
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
