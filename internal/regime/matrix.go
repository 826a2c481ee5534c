package regime

import (
	"math"
	"sort"
	"time"

	"github.com/selivandex/regime-engine/pkg/models"
)

const (
	stationaryMaxIterations = 200
	stationaryTolerance     = 1e-10
)

// MatrixBuilder aggregates a backfilled regime history into a transition
// probability model: the base row-stochastic matrix, duration-bucketed
// conditional matrices, per-state duration statistics and the stationary
// distribution of the resulting Markov chain.
type MatrixBuilder struct{}

// NewMatrixBuilder creates new matrix builder
func NewMatrixBuilder() *MatrixBuilder {
	return &MatrixBuilder{}
}

// Build computes the transition matrix for one (symbol, timeframe) history.
//
// Frequencies come from candle-to-candle adjacency in the history, which
// counts self-persistence; the transition-event list only records state
// changes and is used solely for duration statistics.
func (b *MatrixBuilder) Build(history []models.RegimeHistoryEntry, transitions []models.RegimeTransitionEvent) *models.TransitionMatrix {
	matrix := &models.TransitionMatrix{
		Version:          ClassificationVersion,
		Frequency:        newIntMatrix(),
		DurationMatrices: make(map[models.DurationBucket][][]float64, len(models.DurationBuckets)),
		DurationStats:    durationStats(transitions),
		SampleCount:      len(history),
		TransitionCount:  len(transitions),
		CreatedAt:        time.Now().UTC(),
	}

	if len(history) > 0 {
		matrix.Symbol = history[0].Symbol
		matrix.Timeframe = history[0].Timeframe
		matrix.DateFrom = history[0].Timestamp
		matrix.DateTo = history[len(history)-1].Timestamp
	}

	bucketFreq := map[models.DurationBucket][][]int{}
	for _, bucket := range models.DurationBuckets {
		bucketFreq[bucket] = newIntMatrix()
	}

	for i := 1; i < len(history); i++ {
		from := history[i-1]
		to := history[i]

		fromIdx := from.State.Index()
		toIdx := to.State.Index()
		if fromIdx < 0 || toIdx < 0 {
			continue
		}

		matrix.Frequency[fromIdx][toIdx]++

		// Bucketed on how long the FROM state had already persisted at the
		// moment of this step.
		bucket := models.BucketForDuration(from.CandlesInState)
		bucketFreq[bucket][fromIdx][toIdx]++
	}

	matrix.Matrix = normalizeRows(matrix.Frequency)
	for _, bucket := range models.DurationBuckets {
		matrix.DurationMatrices[bucket] = normalizeRows(bucketFreq[bucket])
	}

	matrix.StationaryDist = stationaryDistribution(matrix.Matrix)

	return matrix
}

// normalizeRows converts a frequency matrix into a row-stochastic probability
// matrix. Rows with zero observations become exactly uniform so the result is
// always usable for prediction, even with sparse data.
func normalizeRows(freq [][]int) [][]float64 {
	probs := newFloatMatrix()
	for i, row := range freq {
		total := 0
		for _, n := range row {
			total += n
		}
		if total == 0 {
			for j := range probs[i] {
				probs[i][j] = 1.0 / models.NumRegimeStates
			}
			continue
		}
		for j, n := range row {
			probs[i][j] = float64(n) / float64(total)
		}
	}
	return probs
}

// durationStats groups transition durations by from_state. Percentiles are
// simple index lookups (n/4, 3n/4) into the sorted durations, not
// interpolated.
func durationStats(transitions []models.RegimeTransitionEvent) map[models.RegimeState]models.DurationStats {
	byState := map[models.RegimeState][]int{}
	for _, t := range transitions {
		byState[t.FromState] = append(byState[t.FromState], t.DurationCandles)
	}

	stats := make(map[models.RegimeState]models.DurationStats, len(byState))
	for state, durations := range byState {
		sort.Ints(durations)
		n := len(durations)

		sum := 0
		for _, d := range durations {
			sum += d
		}

		stats[state] = models.DurationStats{
			Count:  n,
			Mean:   float64(sum) / float64(n),
			Median: median(durations),
			Min:    durations[0],
			Max:    durations[n-1],
			P25:    durations[n/4],
			P75:    durations[3*n/4],
		}
	}
	return stats
}

func median(sorted []int) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return float64(sorted[n/2-1]+sorted[n/2]) / 2
}

// stationaryDistribution runs power iteration (dist = dist * P) from a uniform
// start until the L1 change drops below tolerance or the iteration cap is hit,
// then renormalizes to sum exactly 1.0 to guard against floating drift.
func stationaryDistribution(probs [][]float64) map[models.RegimeState]float64 {
	dist := make([]float64, models.NumRegimeStates)
	for i := range dist {
		dist[i] = 1.0 / models.NumRegimeStates
	}

	for iter := 0; iter < stationaryMaxIterations; iter++ {
		next := make([]float64, models.NumRegimeStates)
		for j := 0; j < models.NumRegimeStates; j++ {
			for i := 0; i < models.NumRegimeStates; i++ {
				next[j] += dist[i] * probs[i][j]
			}
		}

		delta := 0.0
		for i := range dist {
			delta += math.Abs(next[i] - dist[i])
		}
		dist = next

		if delta < stationaryTolerance {
			break
		}
	}

	total := 0.0
	for _, v := range dist {
		total += v
	}
	result := make(map[models.RegimeState]float64, models.NumRegimeStates)
	for i, v := range dist {
		if total > 0 {
			v /= total
		}
		result[models.RegimeStateAt(i)] = v
	}
	return result
}

func newFloatMatrix() [][]float64 {
	m := make([][]float64, models.NumRegimeStates)
	for i := range m {
		m[i] = make([]float64, models.NumRegimeStates)
	}
	return m
}

func newIntMatrix() [][]int {
	m := make([][]int, models.NumRegimeStates)
	for i := range m {
		m[i] = make([]int, models.NumRegimeStates)
	}
	return m
}
