package models

import (
	"math"
	"time"
)

// RegimeState represents a discretized market condition label
type RegimeState string

const (
	RegimeStrongBear RegimeState = "STRONG_BEAR"
	RegimeBear       RegimeState = "BEAR"
	RegimeNeutral    RegimeState = "NEUTRAL"
	RegimeBull       RegimeState = "BULL"
	RegimeStrongBull RegimeState = "STRONG_BULL"
)

// NumRegimeStates is the size of the regime state space
const NumRegimeStates = 5

// RegimeStates lists all states in index order (0..4)
var RegimeStates = [NumRegimeStates]RegimeState{
	RegimeStrongBear,
	RegimeBear,
	RegimeNeutral,
	RegimeBull,
	RegimeStrongBull,
}

// Index returns the matrix index of the state (0..4), or -1 for unknown states
func (s RegimeState) Index() int {
	switch s {
	case RegimeStrongBear:
		return 0
	case RegimeBear:
		return 1
	case RegimeNeutral:
		return 2
	case RegimeBull:
		return 3
	case RegimeStrongBull:
		return 4
	}
	return -1
}

// RegimeStateAt returns the state for a matrix index, or RegimeNeutral if out of range
func RegimeStateAt(index int) RegimeState {
	if index < 0 || index >= NumRegimeStates {
		return RegimeNeutral
	}
	return RegimeStates[index]
}

// Bias returns the legacy scalar encoding (-2..+2).
// This numbering is distinct from Index (0..4) and must not be used for matrix lookups.
func (s RegimeState) Bias() int {
	return s.Index() - 2
}

// Valid reports whether the state is one of the five known labels
func (s RegimeState) Valid() bool {
	return s.Index() >= 0
}

// IndicatorSnapshot holds the indicator inputs for classifying one candle.
// Missing values are represented as NaN and substituted by Sanitized.
type IndicatorSnapshot struct {
	ADX       float64 `json:"adx"`
	RSI       float64 `json:"rsi"`
	MACDHist  float64 `json:"macd_hist"`
	StochK    float64 `json:"stoch_k"`
	CCI       float64 `json:"cci"`
	BBWidth   float64 `json:"bb_width"`
	ATR       float64 `json:"atr"`
	EMAShort  float64 `json:"ema_short"`
	EMAMedium float64 `json:"ema_medium"`
	Close     float64 `json:"close"`
}

// EmptyIndicatorSnapshot returns a snapshot with every field missing (NaN)
func EmptyIndicatorSnapshot() IndicatorSnapshot {
	nan := math.NaN()
	return IndicatorSnapshot{
		ADX:       nan,
		RSI:       nan,
		MACDHist:  nan,
		StochK:    nan,
		CCI:       nan,
		BBWidth:   nan,
		ATR:       nan,
		EMAShort:  nan,
		EMAMedium: nan,
		Close:     nan,
	}
}

// Sanitized returns a copy with missing or non-finite fields replaced by
// neutral defaults: ADX 20, RSI 50, StochK 50, ATR 1.0, everything else 0.
// A fully defaulted snapshot classifies as NEUTRAL.
func (s IndicatorSnapshot) Sanitized() IndicatorSnapshot {
	s.ADX = finiteOr(s.ADX, 20)
	s.RSI = finiteOr(s.RSI, 50)
	s.MACDHist = finiteOr(s.MACDHist, 0)
	s.StochK = finiteOr(s.StochK, 50)
	s.CCI = finiteOr(s.CCI, 0)
	s.BBWidth = finiteOr(s.BBWidth, 0)
	s.ATR = finiteOr(s.ATR, 1.0)
	s.EMAShort = finiteOr(s.EMAShort, 0)
	s.EMAMedium = finiteOr(s.EMAMedium, 0)
	s.Close = finiteOr(s.Close, 0)
	return s
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// RegimeHistoryEntry is one classified candle in the per-timeframe regime history
type RegimeHistoryEntry struct {
	Symbol         string            `json:"symbol"`
	Timeframe      string            `json:"timeframe"`
	Version        int               `json:"version"`
	Timestamp      time.Time         `json:"timestamp"`
	ClosePrice     float64           `json:"close_price"`
	State          RegimeState       `json:"regime_state"`
	Score          float64           `json:"regime_score"`
	CandlesInState int               `json:"candles_in_state"`
	Indicators     IndicatorSnapshot `json:"indicators"`
}

// RegimeTransitionEvent records a single regime change between consecutive candles
type RegimeTransitionEvent struct {
	Symbol          string            `json:"symbol"`
	Timeframe       string            `json:"timeframe"`
	Version         int               `json:"version"`
	Timestamp       time.Time         `json:"timestamp"`
	FromState       RegimeState       `json:"from_state"`
	ToState         RegimeState       `json:"to_state"`
	DurationCandles int               `json:"duration_candles"`
	PriceAtEntry    float64           `json:"price_at_entry"`
	PriceAtExit     float64           `json:"price_at_exit"`
	PriceChangePct  float64           `json:"price_change_pct"`
	Indicators      IndicatorSnapshot `json:"indicators"`
}

// DurationBucket classifies how long a regime has already persisted
type DurationBucket string

const (
	BucketEarly    DurationBucket = "early"    // 1-5 candles
	BucketMature   DurationBucket = "mature"   // 6-20 candles
	BucketExtended DurationBucket = "extended" // 21+ candles
)

// DurationBuckets lists all buckets
var DurationBuckets = [3]DurationBucket{BucketEarly, BucketMature, BucketExtended}

// BucketForDuration maps a candles-in-state count to its duration bucket
func BucketForDuration(candles int) DurationBucket {
	switch {
	case candles <= 5:
		return BucketEarly
	case candles <= 20:
		return BucketMature
	default:
		return BucketExtended
	}
}

// DurationStats summarizes how long a state historically persists before transitioning
type DurationStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    int     `json:"min"`
	Max    int     `json:"max"`
	P25    int     `json:"p25"`
	P75    int     `json:"p75"`
}

// TransitionMatrix holds the Markov transition model for one (symbol, timeframe, version)
type TransitionMatrix struct {
	Symbol           string                       `json:"symbol"`
	Timeframe        string                       `json:"timeframe"`
	Version          int                          `json:"version"`
	Matrix           [][]float64                  `json:"matrix"`
	Frequency        [][]int                      `json:"frequency"`
	DurationMatrices map[DurationBucket][][]float64 `json:"duration_matrices"`
	DurationStats    map[RegimeState]DurationStats  `json:"duration_stats"`
	StationaryDist   map[RegimeState]float64        `json:"stationary_dist"`
	SampleCount      int                          `json:"sample_count"`
	TransitionCount  int                          `json:"transition_count"`
	DateFrom         time.Time                    `json:"date_from"`
	DateTo           time.Time                    `json:"date_to"`
	CreatedAt        time.Time                    `json:"created_at"`
}

// Row returns the base transition probabilities out of the given state
func (m *TransitionMatrix) Row(from RegimeState) []float64 {
	idx := from.Index()
	if idx < 0 || idx >= len(m.Matrix) {
		return nil
	}
	return m.Matrix[idx]
}

// DurationRow returns the duration-conditional probabilities out of the given state,
// or nil if the bucket matrix is absent
func (m *TransitionMatrix) DurationRow(bucket DurationBucket, from RegimeState) []float64 {
	bm, ok := m.DurationMatrices[bucket]
	if !ok {
		return nil
	}
	idx := from.Index()
	if idx < 0 || idx >= len(bm) {
		return nil
	}
	return bm[idx]
}

// RegimePrediction is the next-state probability report produced by the query API
type RegimePrediction struct {
	Symbol               string                  `json:"symbol"`
	Timeframe            string                  `json:"timeframe"`
	CurrentState         RegimeState             `json:"current_state"`
	CandlesInState       int                     `json:"candles_in_state"`
	DurationBucket       DurationBucket          `json:"duration_bucket"`
	BaseProbabilities    map[RegimeState]float64 `json:"base_probabilities"`
	BucketProbabilities  map[RegimeState]float64 `json:"bucket_probabilities,omitempty"`
	Probabilities        map[RegimeState]float64 `json:"probabilities"`
	Persistence          float64                 `json:"persistence"`
	MostLikelyTransition RegimeState             `json:"most_likely_transition"`
	DurationPercentile   float64                 `json:"duration_percentile"`
}
