package regime

import (
	"testing"
	"time"

	"github.com/selivandex/regime-engine/pkg/models"
)

func TestBackfillEngine_EmptyStream(t *testing.T) {
	engine := NewBackfillEngine(NewClassifier())

	history, transitions := engine.Backfill("BTC/USDT", "1h", nil)
	if len(history) != 0 {
		t.Errorf("expected empty history, got %d entries", len(history))
	}
	if len(transitions) != 0 {
		t.Errorf("expected no transitions, got %d", len(transitions))
	}
}

func TestBackfillEngine_SingleCandle(t *testing.T) {
	engine := NewBackfillEngine(NewClassifier())

	history, transitions := engine.Backfill("BTC/USDT", "1h", regimePoints(strongBullSnapshot(), 1))
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	if history[0].CandlesInState != 1 {
		t.Errorf("first candle should have candles_in_state=1, got %d", history[0].CandlesInState)
	}
	// No prior state, so the very first candle never emits a transition
	if len(transitions) != 0 {
		t.Errorf("expected no transitions for single candle, got %d", len(transitions))
	}
}

func TestBackfillEngine_DurationInvariant(t *testing.T) {
	engine := NewBackfillEngine(NewClassifier())

	points := append(regimePoints(strongBullSnapshot(), 4), regimePoints(bearSnapshot(), 6)...)
	renumber(points)

	history, _ := engine.Backfill("BTC/USDT", "1h", points)
	if len(history) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(history))
	}

	for i := 1; i < len(history); i++ {
		prev, curr := history[i-1], history[i]
		if curr.State == prev.State {
			if curr.CandlesInState != prev.CandlesInState+1 {
				t.Errorf("entry %d: same state but candles_in_state %d after %d",
					i, curr.CandlesInState, prev.CandlesInState)
			}
		} else if curr.CandlesInState != 1 {
			t.Errorf("entry %d: state changed but candles_in_state=%d, want 1",
				i, curr.CandlesInState)
		}
	}
}

func TestBackfillEngine_TransitionCompleteness(t *testing.T) {
	engine := NewBackfillEngine(NewClassifier())

	points := []CandlePoint{}
	points = append(points, regimePoints(strongBullSnapshot(), 3)...)
	points = append(points, regimePoints(bearSnapshot(), 2)...)
	points = append(points, regimePoints(strongBullSnapshot(), 4)...)
	points = append(points, regimePoints(bearSnapshot(), 1)...)
	renumber(points)

	history, transitions := engine.Backfill("BTC/USDT", "1h", points)

	changes := 0
	for i := 1; i < len(history); i++ {
		if history[i].State != history[i-1].State {
			changes++
		}
	}

	if len(transitions) != changes {
		t.Errorf("transition count %d does not match adjacent state changes %d",
			len(transitions), changes)
	}
}

func TestBackfillEngine_TransitionEvent(t *testing.T) {
	engine := NewBackfillEngine(NewClassifier())

	// STRONG_BULL for candles 1-4, then BEAR for candles 5-10
	points := append(regimePoints(strongBullSnapshot(), 4), regimePoints(bearSnapshot(), 6)...)
	renumber(points)
	for i := range points {
		points[i].Close = 100 + float64(i) // entry price 100, transition at 104
	}

	history, transitions := engine.Backfill("BTC/USDT", "1h", points)

	if len(transitions) != 1 {
		t.Fatalf("expected exactly 1 transition, got %d", len(transitions))
	}

	event := transitions[0]
	if event.FromState != models.RegimeStrongBull || event.ToState != models.RegimeBear {
		t.Errorf("unexpected transition %s -> %s", event.FromState, event.ToState)
	}
	if event.DurationCandles != 4 {
		t.Errorf("expected duration_candles=4, got %d", event.DurationCandles)
	}
	if event.PriceAtEntry != 100 {
		t.Errorf("expected price_at_entry=100, got %.2f", event.PriceAtEntry)
	}
	if event.PriceAtExit != 104 {
		t.Errorf("expected price_at_exit=104, got %.2f", event.PriceAtExit)
	}
	expectedPct := (104.0 - 100.0) / 100.0 * 100
	if diff := event.PriceChangePct - expectedPct; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected price_change_pct=%.4f, got %.4f", expectedPct, event.PriceChangePct)
	}

	// History keeps growing through the transition candle
	if history[3].CandlesInState != 4 || history[4].CandlesInState != 1 {
		t.Errorf("expected candles_in_state 4 then 1 around the transition, got %d then %d",
			history[3].CandlesInState, history[4].CandlesInState)
	}
}

func TestBackfillEngine_MalformedCandleDegrades(t *testing.T) {
	engine := NewBackfillEngine(NewClassifier())

	points := regimePoints(strongBullSnapshot(), 3)
	points[1].Snapshot = models.EmptyIndicatorSnapshot() // all fields missing
	renumber(points)

	history, _ := engine.Backfill("BTC/USDT", "1h", points)

	if len(history) != 3 {
		t.Fatalf("malformed candle should not drop entries, got %d", len(history))
	}
	if history[1].State != models.RegimeNeutral {
		t.Errorf("fully defaulted candle should classify NEUTRAL, got %s", history[1].State)
	}
}

// regimePoints builds count consecutive candle points sharing one snapshot
func regimePoints(snapshot models.IndicatorSnapshot, count int) []CandlePoint {
	points := make([]CandlePoint, count)
	for i := range points {
		points[i] = CandlePoint{
			Close:    snapshot.EMAMedium,
			Snapshot: snapshot,
		}
	}
	return points
}

// renumber assigns ascending hourly timestamps across the whole slice
func renumber(points []CandlePoint) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range points {
		points[i].Timestamp = base.Add(time.Duration(i) * time.Hour)
	}
}

// bearSnapshot classifies as plain BEAR (moderate downtrend)
func bearSnapshot() models.IndicatorSnapshot {
	return models.IndicatorSnapshot{
		ADX:       22,
		RSI:       30,
		MACDHist:  -0.2,
		StochK:    30,
		CCI:       -75,
		ATR:       1.0,
		EMAShort:  100,
		EMAMedium: 100,
	}
}
