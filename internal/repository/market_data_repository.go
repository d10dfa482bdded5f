package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/model"
)

// MarketDataRepository handles database operations for market data
type MarketDataRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewMarketDataRepository creates a new market data repository
func NewMarketDataRepository(db *sqlx.DB, logger *zap.Logger) *MarketDataRepository {
	return &MarketDataRepository{
		db:     db,
		logger: logger,
	}
}

// GetCandles retrieves candles for one instrument inside a window,
// ordered by time ascending.
func (r *MarketDataRepository) GetCandles(
	ctx context.Context,
	symbol string,
	market string,
	start time.Time,
	end time.Time,
) ([]model.Candle, error) {
	query := `
		SELECT symbol, market, candle_time, open, high, low, close, volume
		FROM market_data
		WHERE symbol = $1 AND market = $2 AND candle_time >= $3 AND candle_time <= $4
		ORDER BY candle_time
	`

	var candles []model.Candle
	err := r.db.SelectContext(ctx, &candles, query, symbol, market, start, end)
	if err != nil {
		r.logger.Error("Failed to get candles",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("market", market))
		return nil, err
	}

	return candles, nil
}

// GetCandlesForUniverse loads the window for every instrument in the
// universe. Instruments with no rows simply come back empty.
func (r *MarketDataRepository) GetCandlesForUniverse(
	ctx context.Context,
	universe []model.Instrument,
	start time.Time,
	end time.Time,
) (map[model.Instrument][]model.Candle, error) {
	out := make(map[model.Instrument][]model.Candle, len(universe))
	for _, inst := range universe {
		candles, err := r.GetCandles(ctx, inst.Symbol, inst.Market, start, end)
		if err != nil {
			return nil, err
		}
		out[inst] = candles
	}
	return out, nil
}

// HasData checks if there is market data for an instrument
func (r *MarketDataRepository) HasData(
	ctx context.Context,
	symbol string,
	market string,
) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM market_data
			WHERE symbol = $1 AND market = $2
			LIMIT 1
		)
	`

	var exists bool
	err := r.db.GetContext(ctx, &exists, query, symbol, market)
	if err != nil {
		r.logger.Error("Failed to check data existence",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("market", market))
		return false, err
	}

	return exists, nil
}

// GetDataRange returns the span of available data for an instrument
func (r *MarketDataRepository) GetDataRange(
	ctx context.Context,
	symbol string,
	market string,
) (*model.DateRange, error) {
	query := `
		SELECT MIN(candle_time) AS start, MAX(candle_time) AS end
		FROM market_data
		WHERE symbol = $1 AND market = $2
	`

	var dr model.DateRange
	row := r.db.QueryRowxContext(ctx, query, symbol, market)
	if err := row.Scan(&dr.Start, &dr.End); err != nil {
		r.logger.Error("Failed to get data range",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("market", market))
		return nil, err
	}

	return &dr, nil
}

// InsertCandles inserts a batch of candles inside one transaction,
// upserting on the instrument/time key.
func (r *MarketDataRepository) InsertCandles(
	ctx context.Context,
	candles []model.Candle,
) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO market_data (symbol, market, candle_time, open, high, low, close, volume, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, market, candle_time)
		DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		r.logger.Error("Failed to prepare statement", zap.Error(err))
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, c := range candles {
		_, err = stmt.ExecContext(
			ctx,
			c.Symbol,
			c.Market,
			c.Time,
			c.Open,
			c.High,
			c.Low,
			c.Close,
			c.Volume,
			now,
		)
		if err != nil {
			r.logger.Error("Failed to insert candle",
				zap.Error(err),
				zap.Time("candle_time", c.Time))
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit transaction", zap.Error(err))
		return err
	}

	return nil
}
