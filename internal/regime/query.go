package regime

import (
	"context"

	"github.com/selivandex/regime-engine/pkg/models"
)

// HistoryReader provides read access to the persisted regime history
type HistoryReader interface {
	// LatestEntry returns the most recent history entry, or nil if none exists
	LatestEntry(ctx context.Context, symbol, timeframe string, version int) (*models.RegimeHistoryEntry, error)
}

// MatrixReader provides read access to persisted transition matrices
type MatrixReader interface {
	// LatestMatrix returns the most recent matrix for the key, or nil if none exists
	LatestMatrix(ctx context.Context, symbol, timeframe string, version int) (*models.TransitionMatrix, error)
}

// QueryService is the read-only access layer over backfilled regime data.
// Absence of data is reported as nil results, not errors.
type QueryService struct {
	history  HistoryReader
	matrices MatrixReader
}

// NewQueryService creates new regime query service
func NewQueryService(history HistoryReader, matrices MatrixReader) *QueryService {
	return &QueryService{
		history:  history,
		matrices: matrices,
	}
}

// CurrentRegime returns the most recent classified candle for the pair,
// or nil when no history has been backfilled yet
func (s *QueryService) CurrentRegime(ctx context.Context, symbol, timeframe string) (*models.RegimeHistoryEntry, error) {
	return s.history.LatestEntry(ctx, symbol, timeframe, ClassificationVersion)
}

// Matrix returns the most recent transition matrix for the pair, or nil
func (s *QueryService) Matrix(ctx context.Context, symbol, timeframe string) (*models.TransitionMatrix, error) {
	return s.matrices.LatestMatrix(ctx, symbol, timeframe, ClassificationVersion)
}

// NextStateProbabilities predicts the next-candle state distribution for the
// pair by blending the matrix's base row with the duration-conditional row for
// the regime's current age bucket, when that row is available.
//
// DurationPercentile is a linear interpolation between the state's historical
// min and max duration, not a true empirical-CDF percentile. Downstream
// consumers depend on this scale, so it is kept as an approximation.
func (s *QueryService) NextStateProbabilities(ctx context.Context, symbol, timeframe string) (*models.RegimePrediction, error) {
	current, err := s.CurrentRegime(ctx, symbol, timeframe)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	matrix, err := s.Matrix(ctx, symbol, timeframe)
	if err != nil {
		return nil, err
	}
	if matrix == nil {
		return nil, nil
	}

	baseRow := matrix.Row(current.State)
	if baseRow == nil {
		return nil, nil
	}

	bucket := models.BucketForDuration(current.CandlesInState)
	bucketRow := matrix.DurationRow(bucket, current.State)

	combined := make([]float64, models.NumRegimeStates)
	copy(combined, baseRow)
	if bucketRow != nil {
		for j := range combined {
			combined[j] = (baseRow[j] + bucketRow[j]) / 2
		}
	}

	selfIdx := current.State.Index()
	mostLikely := selfIdx
	best := -1.0
	for j, p := range combined {
		if j == selfIdx {
			continue
		}
		if p > best {
			best = p
			mostLikely = j
		}
	}

	prediction := &models.RegimePrediction{
		Symbol:               symbol,
		Timeframe:            timeframe,
		CurrentState:         current.State,
		CandlesInState:       current.CandlesInState,
		DurationBucket:       bucket,
		BaseProbabilities:    rowToMap(baseRow),
		Probabilities:        rowToMap(combined),
		Persistence:          combined[selfIdx],
		MostLikelyTransition: models.RegimeStateAt(mostLikely),
		DurationPercentile:   durationPercentile(matrix.DurationStats, current.State, current.CandlesInState),
	}
	if bucketRow != nil {
		prediction.BucketProbabilities = rowToMap(bucketRow)
	}

	return prediction, nil
}

// durationPercentile estimates where the current duration sits between the
// state's historical min and max. Min==max (or no stats) reports 50.
func durationPercentile(stats map[models.RegimeState]models.DurationStats, state models.RegimeState, duration int) float64 {
	st, ok := stats[state]
	if !ok || st.Count == 0 || st.Max == st.Min {
		return 50
	}
	pct := float64(duration-st.Min) / float64(st.Max-st.Min) * 100
	return clamp(pct, 0, 100)
}

func rowToMap(row []float64) map[models.RegimeState]float64 {
	m := make(map[models.RegimeState]float64, len(row))
	for j, p := range row {
		m[models.RegimeStateAt(j)] = p
	}
	return m
}
