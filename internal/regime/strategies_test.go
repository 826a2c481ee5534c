package regime

import (
	"testing"

	"github.com/selivandex/regime-engine/pkg/models"
)

func TestNewStrategy_Kinds(t *testing.T) {
	kinds := []string{"momentum", "volatility", "oscillator", "multiperiod", "volume", "composite"}

	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			strategy, err := NewStrategy(kind, StrategyConfig{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strategy.Name() != kind {
				t.Errorf("name = %q, want %q", strategy.Name(), kind)
			}
		})
	}
}

func TestNewStrategy_UnknownKind(t *testing.T) {
	if _, err := NewStrategy("astrology", StrategyConfig{}); err == nil {
		t.Error("expected error for unknown strategy kind")
	}
}

func TestMomentumStrategy_Direction(t *testing.T) {
	strategy, err := NewStrategy("momentum", StrategyConfig{})
	if err != nil {
		t.Fatal(err)
	}

	bull := strategy.Classify(map[string]float64{
		"macd_hist":  1.5,
		"atr":        1.0,
		"ema_short":  110,
		"ema_medium": 100,
	})
	if bull.State.Bias() <= 0 {
		t.Errorf("rising MACD and EMA spread should vote bullish, got %s", bull.State)
	}

	bear := strategy.Classify(map[string]float64{
		"macd_hist":  -1.5,
		"atr":        1.0,
		"ema_short":  90,
		"ema_medium": 100,
	})
	if bear.State.Bias() >= 0 {
		t.Errorf("falling MACD and EMA spread should vote bearish, got %s", bear.State)
	}
}

func TestVolatilityStrategy_SqueezeIsNeutral(t *testing.T) {
	strategy, err := NewStrategy("volatility", StrategyConfig{})
	if err != nil {
		t.Fatal(err)
	}

	result := strategy.Classify(map[string]float64{
		"macd_hist": 2.0, // strong direction
		"atr":       1.0,
		"bb_width":  0.005, // well inside the quiet band
	})
	if result.State != models.RegimeNeutral {
		t.Errorf("band squeeze should read NEUTRAL regardless of direction, got %s", result.State)
	}
}

func TestOscillatorStrategy_OverboughtBoostsConfidence(t *testing.T) {
	strategy, err := NewStrategy("oscillator", StrategyConfig{})
	if err != nil {
		t.Fatal(err)
	}

	moderate := strategy.Classify(map[string]float64{"rsi": 62, "stoch_k": 62, "cci": 40})
	overbought := strategy.Classify(map[string]float64{"rsi": 80, "stoch_k": 62, "cci": 40})

	if overbought.Confidence <= moderate.Confidence {
		t.Errorf("overbought RSI should boost confidence: %v <= %v",
			overbought.Confidence, moderate.Confidence)
	}
}

func TestMultiPeriodStrategy_FullAlignment(t *testing.T) {
	strategy, err := NewStrategy("multiperiod", StrategyConfig{})
	if err != nil {
		t.Fatal(err)
	}

	result := strategy.Classify(map[string]float64{
		"close":      120,
		"ema_short":  110,
		"ema_medium": 100,
	})
	if result.State != models.RegimeStrongBull {
		t.Errorf("full bullish alignment should vote STRONG_BULL, got %s", result.State)
	}
	if result.Confidence != 1 {
		t.Errorf("full alignment confidence = %v, want 1", result.Confidence)
	}
}

func TestVolumeStrategy_NoSurgeNoVote(t *testing.T) {
	strategy, err := NewStrategy("volume", StrategyConfig{})
	if err != nil {
		t.Fatal(err)
	}

	quiet := strategy.Classify(map[string]float64{
		"macd_hist":    2.0,
		"atr":          1.0,
		"volume_ratio": 0.1,
	})
	surging := strategy.Classify(map[string]float64{
		"macd_hist":    2.0,
		"atr":          1.0,
		"volume_ratio": 2.0,
	})

	if quiet.Confidence >= surging.Confidence {
		t.Errorf("surging volume should confirm harder: %v >= %v",
			quiet.Confidence, surging.Confidence)
	}
	if surging.State.Bias() <= 0 {
		t.Errorf("confirmed bullish direction should vote bullish, got %s", surging.State)
	}
}

func TestCompositeStrategy_Ensemble(t *testing.T) {
	strategy, err := NewStrategy("composite", StrategyConfig{})
	if err != nil {
		t.Fatal(err)
	}

	bullish := map[string]float64{
		"rsi":          75,
		"stoch_k":      85,
		"cci":          180,
		"macd_hist":    2.0,
		"atr":          1.0,
		"bb_width":     0.06,
		"close":        108,
		"ema_short":    105,
		"ema_medium":   100,
		"volume_ratio": 2.0,
	}

	result := strategy.Classify(bullish)
	if result.State.Bias() <= 0 {
		t.Errorf("all-bullish inputs should yield a bullish ensemble vote, got %s", result.State)
	}
	if len(result.Components) != 5 {
		t.Errorf("expected one component per member, got %d", len(result.Components))
	}
}

func TestCompositeStrategy_ZeroWeightsNeutral(t *testing.T) {
	composite := NewComposite([]WeightedStrategy{
		{Strategy: &MomentumStrategy{cfg: DefaultStrategyConfig()}, Weight: 0},
	})

	result := composite.Classify(map[string]float64{"macd_hist": 2.0, "atr": 1.0})
	if result.State != models.RegimeNeutral {
		t.Errorf("no effective members should vote NEUTRAL, got %s", result.State)
	}
}
