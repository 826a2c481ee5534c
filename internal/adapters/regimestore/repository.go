package regimestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/selivandex/regime-engine/pkg/logger"
	"github.com/selivandex/regime-engine/pkg/models"
)

// Repository persists regime history, transition events and transition
// matrices in Postgres, keyed by (symbol, timeframe, classification version)
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new regime store repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// ReplaceRun atomically replaces the history, transitions and matrix for one
// (symbol, timeframe, version) with the output of a fresh backfill pass.
// Everything happens in a single transaction so readers never observe a
// partially rebuilt state.
func (r *Repository) ReplaceRun(
	ctx context.Context,
	symbol, timeframe string,
	version int,
	history []models.RegimeHistoryEntry,
	transitions []models.RegimeTransitionEvent,
	matrix *models.TransitionMatrix,
) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	for _, table := range []string{"regime_history", "regime_transitions", "regime_matrices"} {
		query := fmt.Sprintf("DELETE FROM %s WHERE symbol = $1 AND timeframe = $2 AND version = $3", table)
		if _, err := tx.ExecContext(ctx, query, symbol, timeframe, version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := insertHistory(ctx, tx, history); err != nil {
		tx.Rollback()
		return err
	}
	if err := insertTransitions(ctx, tx, transitions); err != nil {
		tx.Rollback()
		return err
	}
	if matrix != nil {
		if err := insertMatrix(ctx, tx, matrix); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("regime rebuild persisted",
		zap.String("symbol", symbol),
		zap.String("timeframe", timeframe),
		zap.Int("version", version),
		zap.Int("history", len(history)),
		zap.Int("transitions", len(transitions)),
	)

	return nil
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, history []models.RegimeHistoryEntry) error {
	if len(history) == 0 {
		return nil
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO regime_history
		(symbol, timeframe, version, timestamp, close_price, regime_state, regime_score,
		 candles_in_state, adx, rsi, macd_hist, stoch_k, cci, bb_width, atr, ema_short, ema_medium)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare history insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range history {
		ind := entry.Indicators
		_, err = stmt.ExecContext(ctx,
			entry.Symbol,
			entry.Timeframe,
			entry.Version,
			entry.Timestamp,
			entry.ClosePrice,
			string(entry.State),
			entry.Score,
			entry.CandlesInState,
			ind.ADX,
			ind.RSI,
			ind.MACDHist,
			ind.StochK,
			ind.CCI,
			ind.BBWidth,
			ind.ATR,
			ind.EMAShort,
			ind.EMAMedium,
		)
		if err != nil {
			return fmt.Errorf("failed to insert history entry: %w", err)
		}
	}

	return nil
}

func insertTransitions(ctx context.Context, tx *sqlx.Tx, transitions []models.RegimeTransitionEvent) error {
	if len(transitions) == 0 {
		return nil
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO regime_transitions
		(symbol, timeframe, version, timestamp, from_state, to_state, duration_candles,
		 price_at_entry, price_at_exit, price_change_pct, adx, rsi, macd_hist, stoch_k, cci, atr)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare transition insert: %w", err)
	}
	defer stmt.Close()

	for _, event := range transitions {
		ind := event.Indicators
		_, err = stmt.ExecContext(ctx,
			event.Symbol,
			event.Timeframe,
			event.Version,
			event.Timestamp,
			string(event.FromState),
			string(event.ToState),
			event.DurationCandles,
			event.PriceAtEntry,
			event.PriceAtExit,
			event.PriceChangePct,
			ind.ADX,
			ind.RSI,
			ind.MACDHist,
			ind.StochK,
			ind.CCI,
			ind.ATR,
		)
		if err != nil {
			return fmt.Errorf("failed to insert transition event: %w", err)
		}
	}

	return nil
}

func insertMatrix(ctx context.Context, tx *sqlx.Tx, matrix *models.TransitionMatrix) error {
	matrixJSON, err := json.Marshal(matrix.Matrix)
	if err != nil {
		return fmt.Errorf("failed to marshal matrix: %w", err)
	}
	freqJSON, err := json.Marshal(matrix.Frequency)
	if err != nil {
		return fmt.Errorf("failed to marshal frequency matrix: %w", err)
	}
	durationJSON, err := json.Marshal(matrix.DurationMatrices)
	if err != nil {
		return fmt.Errorf("failed to marshal duration matrices: %w", err)
	}
	statsJSON, err := json.Marshal(matrix.DurationStats)
	if err != nil {
		return fmt.Errorf("failed to marshal duration stats: %w", err)
	}
	stationaryJSON, err := json.Marshal(matrix.StationaryDist)
	if err != nil {
		return fmt.Errorf("failed to marshal stationary distribution: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO regime_matrices
		(symbol, timeframe, version, matrix, frequency, duration_matrices, duration_stats,
		 stationary_dist, sample_count, transition_count, date_from, date_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		matrix.Symbol,
		matrix.Timeframe,
		matrix.Version,
		matrixJSON,
		freqJSON,
		durationJSON,
		statsJSON,
		stationaryJSON,
		matrix.SampleCount,
		matrix.TransitionCount,
		matrix.DateFrom,
		matrix.DateTo,
		matrix.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert matrix: %w", err)
	}

	return nil
}

// LatestEntry returns the most recent history entry for the key, or nil when
// no history exists (absence of data is not an error)
func (r *Repository) LatestEntry(ctx context.Context, symbol, timeframe string, version int) (*models.RegimeHistoryEntry, error) {
	query := `
		SELECT symbol, timeframe, version, timestamp, close_price, regime_state, regime_score,
		       candles_in_state, adx, rsi, macd_hist, stoch_k, cci, bb_width, atr, ema_short, ema_medium
		FROM regime_history
		WHERE symbol = $1 AND timeframe = $2 AND version = $3
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var entry models.RegimeHistoryEntry
	var state string
	err := r.db.QueryRowxContext(ctx, query, symbol, timeframe, version).Scan(
		&entry.Symbol,
		&entry.Timeframe,
		&entry.Version,
		&entry.Timestamp,
		&entry.ClosePrice,
		&state,
		&entry.Score,
		&entry.CandlesInState,
		&entry.Indicators.ADX,
		&entry.Indicators.RSI,
		&entry.Indicators.MACDHist,
		&entry.Indicators.StochK,
		&entry.Indicators.CCI,
		&entry.Indicators.BBWidth,
		&entry.Indicators.ATR,
		&entry.Indicators.EMAShort,
		&entry.Indicators.EMAMedium,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest history entry: %w", err)
	}

	entry.State = models.RegimeState(state)
	entry.Indicators.Close = entry.ClosePrice

	return &entry, nil
}

// LatestMatrix returns the most recent transition matrix for the key, or nil
func (r *Repository) LatestMatrix(ctx context.Context, symbol, timeframe string, version int) (*models.TransitionMatrix, error) {
	query := `
		SELECT symbol, timeframe, version, matrix, frequency, duration_matrices, duration_stats,
		       stationary_dist, sample_count, transition_count, date_from, date_to, created_at
		FROM regime_matrices
		WHERE symbol = $1 AND timeframe = $2 AND version = $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	var matrix models.TransitionMatrix
	var matrixJSON, freqJSON, durationJSON, statsJSON, stationaryJSON []byte

	err := r.db.QueryRowxContext(ctx, query, symbol, timeframe, version).Scan(
		&matrix.Symbol,
		&matrix.Timeframe,
		&matrix.Version,
		&matrixJSON,
		&freqJSON,
		&durationJSON,
		&statsJSON,
		&stationaryJSON,
		&matrix.SampleCount,
		&matrix.TransitionCount,
		&matrix.DateFrom,
		&matrix.DateTo,
		&matrix.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest matrix: %w", err)
	}

	if err := json.Unmarshal(matrixJSON, &matrix.Matrix); err != nil {
		return nil, fmt.Errorf("failed to unmarshal matrix: %w", err)
	}
	if err := json.Unmarshal(freqJSON, &matrix.Frequency); err != nil {
		return nil, fmt.Errorf("failed to unmarshal frequency matrix: %w", err)
	}
	if err := json.Unmarshal(durationJSON, &matrix.DurationMatrices); err != nil {
		return nil, fmt.Errorf("failed to unmarshal duration matrices: %w", err)
	}
	if err := json.Unmarshal(statsJSON, &matrix.DurationStats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal duration stats: %w", err)
	}
	if err := json.Unmarshal(stationaryJSON, &matrix.StationaryDist); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stationary distribution: %w", err)
	}

	return &matrix, nil
}
