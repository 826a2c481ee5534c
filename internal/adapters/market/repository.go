package market

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/selivandex/regime-engine/pkg/models"
)

// Repository reads OHLCV candles from the ClickHouse candle store.
// The regime engine is a pure consumer of this store; how candles get there
// is an ingestion concern outside this repository.
type Repository struct {
	ch *sqlx.DB
}

// NewRepository creates new market repository
func NewRepository(ch *sqlx.DB) *Repository {
	return &Repository{ch: ch}
}

// GetCandlesAscending retrieves up to limit of the most recent candles in
// ascending timestamp order, which is the order the backfill walk requires
func (r *Repository) GetCandlesAscending(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	query := `
		SELECT timestamp, symbol, timeframe, open, high, low, close, volume, quote_volume, trades
		FROM market_ohlcv
		WHERE symbol = ? AND timeframe = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.ch.QueryxContext(ctx, query, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles from ClickHouse: %w", err)
	}
	defer rows.Close()

	candles := []models.Candle{}
	for rows.Next() {
		var candle models.Candle
		var open, high, low, close, volume, quoteVol float64
		var trades int

		err := rows.Scan(
			&candle.Timestamp,
			&candle.Symbol,
			&candle.Timeframe,
			&open,
			&high,
			&low,
			&close,
			&volume,
			&quoteVol,
			&trades,
		)
		if err != nil {
			continue
		}

		candle.Open = models.NewDecimal(open)
		candle.High = models.NewDecimal(high)
		candle.Low = models.NewDecimal(low)
		candle.Close = models.NewDecimal(close)
		candle.Volume = models.NewDecimal(volume)
		candle.QuoteVolume = models.NewDecimal(quoteVol)
		candle.Trades = trades

		candles = append(candles, candle)
	}

	// Query is DESC so LIMIT keeps the newest candles; flip to chronological
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}

// GetCandleCount returns number of stored candles for symbol/timeframe
func (r *Repository) GetCandleCount(ctx context.Context, symbol, timeframe string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM market_ohlcv
		WHERE symbol = ? AND timeframe = ?
	`

	var count int
	err := r.ch.GetContext(ctx, &count, query, symbol, timeframe)
	return count, err
}
