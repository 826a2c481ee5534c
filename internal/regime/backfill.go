package regime

import (
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/regime-engine/pkg/logger"
	"github.com/selivandex/regime-engine/pkg/models"
)

// CandlePoint is one input candle for a backfill pass: its timestamp, close
// price and the indicator snapshot computed as of that candle
type CandlePoint struct {
	Timestamp time.Time
	Close     float64
	Snapshot  models.IndicatorSnapshot
}

// BackfillEngine classifies an entire candle history and materializes the
// per-candle regime history plus the list of regime transition events.
//
// A pass has full-rebuild semantics: callers replace any prior history and
// transitions for the same (symbol, timeframe, version) with the result; the
// engine performs no incremental merge.
type BackfillEngine struct {
	classifier *Classifier
}

// NewBackfillEngine creates new backfill engine
func NewBackfillEngine(classifier *Classifier) *BackfillEngine {
	return &BackfillEngine{classifier: classifier}
}

// Backfill walks candles in ascending timestamp order, classifying each one
// and tracking how long the current regime has persisted. A transition event
// is emitted whenever the classified state changes, carrying the duration and
// prices of the state just left. An empty stream yields empty results.
func (e *BackfillEngine) Backfill(symbol, timeframe string, candles []CandlePoint) ([]models.RegimeHistoryEntry, []models.RegimeTransitionEvent) {
	history := make([]models.RegimeHistoryEntry, 0, len(candles))
	transitions := []models.RegimeTransitionEvent{}

	if len(candles) == 0 {
		return history, transitions
	}

	var (
		prevState        models.RegimeState
		candlesInState   int
		regimeEntryPrice float64
	)

	for i, candle := range candles {
		// Malformed candles degrade to defaulted (neutral-biased) inputs
		// inside Classify rather than failing the whole pass.
		state, score := e.classifier.Classify(candle.Snapshot)

		switch {
		case i == 0:
			// No prior state, so no transition for the very first candle
			candlesInState = 1
			regimeEntryPrice = candle.Close

		case state == prevState:
			candlesInState++

		default:
			transitions = append(transitions, models.RegimeTransitionEvent{
				Symbol:          symbol,
				Timeframe:       timeframe,
				Version:         ClassificationVersion,
				Timestamp:       candle.Timestamp,
				FromState:       prevState,
				ToState:         state,
				DurationCandles: candlesInState,
				PriceAtEntry:    regimeEntryPrice,
				PriceAtExit:     candle.Close,
				PriceChangePct:  priceChangePct(regimeEntryPrice, candle.Close),
				Indicators:      candle.Snapshot.Sanitized(),
			})
			candlesInState = 1
			regimeEntryPrice = candle.Close
		}

		history = append(history, models.RegimeHistoryEntry{
			Symbol:         symbol,
			Timeframe:      timeframe,
			Version:        ClassificationVersion,
			Timestamp:      candle.Timestamp,
			ClosePrice:     candle.Close,
			State:          state,
			Score:          score,
			CandlesInState: candlesInState,
			Indicators:     candle.Snapshot.Sanitized(),
		})

		prevState = state
	}

	logger.Debug("backfill pass complete",
		zap.String("symbol", symbol),
		zap.String("timeframe", timeframe),
		zap.Int("candles", len(history)),
		zap.Int("transitions", len(transitions)),
	)

	return history, transitions
}

func priceChangePct(entry, exit float64) float64 {
	if entry == 0 {
		return 0
	}
	return (exit - entry) / entry * 100
}
