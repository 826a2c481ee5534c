package regime

import (
	"fmt"
	"math"

	"github.com/selivandex/regime-engine/pkg/models"
)

// Strategy classifies a candle from a generic indicator map. Implementations
// are stateless apart from their tunable parameters, so one instance may be
// shared across concurrent backfills.
type Strategy interface {
	Name() string
	Classify(indicators map[string]float64) StrategyResult
}

// StrategyResult is the output of a single strategy vote
type StrategyResult struct {
	State      models.RegimeState
	Confidence float64            // 0..1
	Components map[string]float64 // per-signal contributions for diagnostics
}

// StrategyConfig holds the tunable parameters shared across strategy kinds
type StrategyConfig struct {
	RSIPeriodKey    string
	OverboughtLevel float64
	OversoldLevel   float64
	BBWidthQuiet    float64 // band width below which the market counts as quiet
	VolumeSurge     float64 // volume ratio above which volume confirms direction
}

// DefaultStrategyConfig returns the tunables used when callers pass the zero value
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		RSIPeriodKey:    "rsi",
		OverboughtLevel: 70,
		OversoldLevel:   30,
		BBWidthQuiet:    0.02,
		VolumeSurge:     1.5,
	}
}

// NewStrategy builds a strategy by kind name. Kinds: momentum, volatility,
// oscillator, multiperiod, volume, composite. The composite kind is an
// equal-weight ensemble of the five concrete strategies; use NewComposite for
// custom weighting.
func NewStrategy(kind string, cfg StrategyConfig) (Strategy, error) {
	if cfg == (StrategyConfig{}) {
		cfg = DefaultStrategyConfig()
	}

	switch kind {
	case "momentum":
		return &MomentumStrategy{cfg: cfg}, nil
	case "volatility":
		return &VolatilityStrategy{cfg: cfg}, nil
	case "oscillator":
		return &OscillatorStrategy{cfg: cfg}, nil
	case "multiperiod":
		return &MultiPeriodStrategy{cfg: cfg}, nil
	case "volume":
		return &VolumeStrategy{cfg: cfg}, nil
	case "composite":
		members := []WeightedStrategy{
			{Strategy: &MomentumStrategy{cfg: cfg}, Weight: 1},
			{Strategy: &VolatilityStrategy{cfg: cfg}, Weight: 1},
			{Strategy: &OscillatorStrategy{cfg: cfg}, Weight: 1},
			{Strategy: &MultiPeriodStrategy{cfg: cfg}, Weight: 1},
			{Strategy: &VolumeStrategy{cfg: cfg}, Weight: 1},
		}
		return NewComposite(members), nil
	}
	return nil, fmt.Errorf("unknown strategy kind: %q", kind)
}

// MomentumStrategy votes on trend continuation from MACD and the EMA spread
type MomentumStrategy struct {
	cfg StrategyConfig
}

func (s *MomentumStrategy) Name() string { return "momentum" }

func (s *MomentumStrategy) Classify(indicators map[string]float64) StrategyResult {
	atr := math.Max(indicatorOr(indicators, "atr", 1.0), 0.001)
	macdSignal := math.Tanh(3 * indicatorOr(indicators, "macd_hist", 0) / atr)

	emaSignal := 0.0
	emaMedium := indicatorOr(indicators, "ema_medium", 0)
	if emaMedium > 0 {
		emaSignal = math.Tanh(3 * (indicatorOr(indicators, "ema_short", emaMedium) - emaMedium) / emaMedium)
	}

	score := 0.6*macdSignal + 0.4*emaSignal
	return StrategyResult{
		State:      stateForScore(score),
		Confidence: math.Abs(score),
		Components: map[string]float64{"macd": macdSignal, "ema": emaSignal},
	}
}

// VolatilityStrategy votes with the trend only when volatility is expanding;
// a quiet band squeeze reads as NEUTRAL regardless of direction
type VolatilityStrategy struct {
	cfg StrategyConfig
}

func (s *VolatilityStrategy) Name() string { return "volatility" }

func (s *VolatilityStrategy) Classify(indicators map[string]float64) StrategyResult {
	bbWidth := indicatorOr(indicators, "bb_width", 0)
	atr := math.Max(indicatorOr(indicators, "atr", 1.0), 0.001)
	direction := math.Tanh(3 * indicatorOr(indicators, "macd_hist", 0) / atr)

	expansion := clamp(bbWidth/math.Max(s.cfg.BBWidthQuiet, 1e-9)-1, 0, 1)
	score := direction * expansion

	return StrategyResult{
		State:      stateForScore(score),
		Confidence: expansion,
		Components: map[string]float64{"direction": direction, "expansion": expansion},
	}
}

// OscillatorStrategy reads RSI, stochastic and CCI as mean-reversion gauges
type OscillatorStrategy struct {
	cfg StrategyConfig
}

func (s *OscillatorStrategy) Name() string { return "oscillator" }

func (s *OscillatorStrategy) Classify(indicators map[string]float64) StrategyResult {
	rsi := indicatorOr(indicators, s.cfg.RSIPeriodKey, 50)
	stoch := indicatorOr(indicators, "stoch_k", 50)
	cci := indicatorOr(indicators, "cci", 0)

	rsiSignal := (rsi - 50) / 50
	stochSignal := (stoch - 50) / 50
	cciSignal := math.Tanh(cci / 150)

	score := (rsiSignal + stochSignal + cciSignal) / 3

	confidence := math.Abs(score)
	if rsi >= s.cfg.OverboughtLevel || rsi <= s.cfg.OversoldLevel {
		confidence = math.Min(confidence*1.5, 1)
	}

	return StrategyResult{
		State:      stateForScore(score),
		Confidence: confidence,
		Components: map[string]float64{"rsi": rsiSignal, "stoch": stochSignal, "cci": cciSignal},
	}
}

// MultiPeriodStrategy compares the close against short and medium EMAs for
// alignment across lookback horizons
type MultiPeriodStrategy struct {
	cfg StrategyConfig
}

func (s *MultiPeriodStrategy) Name() string { return "multiperiod" }

func (s *MultiPeriodStrategy) Classify(indicators map[string]float64) StrategyResult {
	close := indicatorOr(indicators, "close", 0)
	emaShort := indicatorOr(indicators, "ema_short", close)
	emaMedium := indicatorOr(indicators, "ema_medium", close)

	votes := 0.0
	if close > emaShort {
		votes++
	} else if close < emaShort {
		votes--
	}
	if close > emaMedium {
		votes++
	} else if close < emaMedium {
		votes--
	}
	if emaShort > emaMedium {
		votes++
	} else if emaShort < emaMedium {
		votes--
	}

	score := votes / 3
	return StrategyResult{
		State:      stateForScore(score),
		Confidence: math.Abs(score),
		Components: map[string]float64{"alignment": votes},
	}
}

// VolumeStrategy only confirms a direction when volume runs above average
type VolumeStrategy struct {
	cfg StrategyConfig
}

func (s *VolumeStrategy) Name() string { return "volume" }

func (s *VolumeStrategy) Classify(indicators map[string]float64) StrategyResult {
	ratio := indicatorOr(indicators, "volume_ratio", 1)
	atr := math.Max(indicatorOr(indicators, "atr", 1.0), 0.001)
	direction := math.Tanh(3 * indicatorOr(indicators, "macd_hist", 0) / atr)

	confirmation := clamp(ratio/math.Max(s.cfg.VolumeSurge, 1e-9), 0, 1)
	score := direction * confirmation

	return StrategyResult{
		State:      stateForScore(score),
		Confidence: confirmation,
		Components: map[string]float64{"direction": direction, "volume_ratio": ratio},
	}
}

// WeightedStrategy pairs a strategy with its ensemble weight
type WeightedStrategy struct {
	Strategy Strategy
	Weight   float64
}

// CompositeStrategy is a weighted ensemble over member strategies. Each member
// votes with its state's legacy bias (-2..+2) scaled by confidence; the
// weighted average is mapped back through the score thresholds.
type CompositeStrategy struct {
	members []WeightedStrategy
}

// NewComposite creates a composite strategy from weighted members
func NewComposite(members []WeightedStrategy) *CompositeStrategy {
	return &CompositeStrategy{members: members}
}

func (s *CompositeStrategy) Name() string { return "composite" }

func (s *CompositeStrategy) Classify(indicators map[string]float64) StrategyResult {
	components := make(map[string]float64, len(s.members))

	weighted := 0.0
	totalWeight := 0.0
	totalConfidence := 0.0

	for _, member := range s.members {
		if member.Weight <= 0 {
			continue
		}
		result := member.Strategy.Classify(indicators)

		// Bias is -2..+2; halve it into the score range.
		vote := float64(result.State.Bias()) / 2 * result.Confidence
		weighted += vote * member.Weight
		totalWeight += member.Weight
		totalConfidence += result.Confidence * member.Weight

		components[member.Strategy.Name()] = vote
	}

	if totalWeight == 0 {
		return StrategyResult{State: models.RegimeNeutral, Components: components}
	}

	score := weighted / totalWeight
	return StrategyResult{
		State:      stateForScore(score),
		Confidence: totalConfidence / totalWeight,
		Components: components,
	}
}

func indicatorOr(indicators map[string]float64, key string, fallback float64) float64 {
	v, ok := indicators[key]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
