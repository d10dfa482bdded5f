package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/model"
)

// BacktestRepository handles database operations for backtest results
type BacktestRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewBacktestRepository creates a new backtest repository
func NewBacktestRepository(db *sqlx.DB, logger *zap.Logger) *BacktestRepository {
	return &BacktestRepository{
		db:     db,
		logger: logger,
	}
}

// resultRow is the flattened persistence shape of a backtest result.
// Curves and metrics are stored as JSONB, the instrument list as a
// text array.
type resultRow struct {
	ID             string    `db:"id"`
	Symbols        []string  `db:"symbols"`
	InitialCapital float64   `db:"initial_capital"`
	FinalEquity    float64   `db:"final_equity"`
	TotalPnL       float64   `db:"total_pnl"`
	TotalReturn    float64   `db:"total_return"`
	Config         []byte    `db:"config"`
	Metrics        []byte    `db:"metrics"`
	EquityCurve    []byte    `db:"equity_curve"`
	DrawdownCurve  []byte    `db:"drawdown_curve"`
	StartedAt      time.Time `db:"started_at"`
	CompletedAt    time.Time `db:"completed_at"`
}

// SaveResult persists the summary row for a completed run
func (r *BacktestRepository) SaveResult(
	ctx context.Context,
	id string,
	result *model.BacktestResult,
) error {
	configJSON, err := json.Marshal(result.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	equityJSON, err := json.Marshal(result.EquityCurve)
	if err != nil {
		return fmt.Errorf("failed to marshal equity curve: %w", err)
	}
	drawdownJSON, err := json.Marshal(result.DrawdownCurve)
	if err != nil {
		return fmt.Errorf("failed to marshal drawdown curve: %w", err)
	}

	symbols := make([]string, len(result.Config.Universe))
	for i, inst := range result.Config.Universe {
		symbols[i] = inst.Key()
	}

	query := `
		INSERT INTO backtest_results (
			id, symbols, initial_capital, final_equity, total_pnl, total_return,
			config, metrics, equity_curve, drawdown_curve, started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id)
		DO UPDATE SET
			final_equity = EXCLUDED.final_equity,
			total_pnl = EXCLUDED.total_pnl,
			total_return = EXCLUDED.total_return,
			metrics = EXCLUDED.metrics,
			equity_curve = EXCLUDED.equity_curve,
			drawdown_curve = EXCLUDED.drawdown_curve,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		id,
		pq.Array(symbols),
		result.InitialCapital,
		result.FinalEquity,
		result.TotalPnL,
		result.TotalReturn,
		configJSON,
		metricsJSON,
		equityJSON,
		drawdownJSON,
		result.StartedAt,
		result.CompletedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save backtest result",
			zap.Error(err),
			zap.String("id", id))
		return err
	}

	return nil
}

// SaveTrades inserts the closed-trade ledger of a run inside one
// transaction.
func (r *BacktestRepository) SaveTrades(
	ctx context.Context,
	id string,
	trades []model.ClosedTrade,
) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO backtest_trades (
			backtest_id, position_id, symbol, market, direction,
			entry_time, entry_price, exit_time, exit_price, quantity,
			gross_pnl, net_pnl, commission, exit_reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`)
	if err != nil {
		r.logger.Error("Failed to prepare statement", zap.Error(err))
		return err
	}
	defer stmt.Close()

	for _, t := range trades {
		_, err = stmt.ExecContext(
			ctx,
			id,
			t.PositionID,
			t.Symbol,
			t.Market,
			t.Direction,
			t.EntryTime,
			t.EntryPrice,
			t.ExitTime,
			t.ExitPrice,
			t.Quantity,
			t.GrossPnL,
			t.NetPnL,
			t.Commission,
			t.ExitReason,
		)
		if err != nil {
			r.logger.Error("Failed to insert trade",
				zap.Error(err),
				zap.String("backtest_id", id),
				zap.String("position_id", t.PositionID))
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit transaction", zap.Error(err))
		return err
	}

	return nil
}

// GetResult loads a persisted result by run id; nil when not found
func (r *BacktestRepository) GetResult(
	ctx context.Context,
	id string,
) (*model.BacktestResult, error) {
	query := `
		SELECT id, symbols, initial_capital, final_equity, total_pnl, total_return,
		       config, metrics, equity_curve, drawdown_curve, started_at, completed_at
		FROM backtest_results
		WHERE id = $1
	`

	var row resultRow
	err := r.db.QueryRowxContext(ctx, query, id).Scan(
		&row.ID,
		pq.Array(&row.Symbols),
		&row.InitialCapital,
		&row.FinalEquity,
		&row.TotalPnL,
		&row.TotalReturn,
		&row.Config,
		&row.Metrics,
		&row.EquityCurve,
		&row.DrawdownCurve,
		&row.StartedAt,
		&row.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get backtest result",
			zap.Error(err),
			zap.String("id", id))
		return nil, err
	}

	result := &model.BacktestResult{
		InitialCapital: row.InitialCapital,
		FinalEquity:    row.FinalEquity,
		TotalPnL:       row.TotalPnL,
		TotalReturn:    row.TotalReturn,
		StartedAt:      row.StartedAt,
		CompletedAt:    row.CompletedAt,
	}
	if err := json.Unmarshal(row.Config, &result.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := json.Unmarshal(row.Metrics, &result.Metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	if err := json.Unmarshal(row.EquityCurve, &result.EquityCurve); err != nil {
		return nil, fmt.Errorf("failed to unmarshal equity curve: %w", err)
	}
	if err := json.Unmarshal(row.DrawdownCurve, &result.DrawdownCurve); err != nil {
		return nil, fmt.Errorf("failed to unmarshal drawdown curve: %w", err)
	}

	return result, nil
}

// GetTrades loads the persisted trade ledger of a run, ordered by exit
// time, with pagination.
func (r *BacktestRepository) GetTrades(
	ctx context.Context,
	id string,
	limit int,
	offset int,
) ([]model.ClosedTrade, error) {
	query := `
		SELECT position_id, symbol, market, direction,
		       entry_time, entry_price, exit_time, exit_price, quantity,
		       gross_pnl, net_pnl, commission, exit_reason
		FROM backtest_trades
		WHERE backtest_id = $1
		ORDER BY exit_time
		LIMIT $2 OFFSET $3
	`

	var trades []model.ClosedTrade
	err := r.db.SelectContext(ctx, &trades, query, id, limit, offset)
	if err != nil {
		r.logger.Error("Failed to get trades",
			zap.Error(err),
			zap.String("backtest_id", id))
		return nil, err
	}

	return trades, nil
}

// CountTrades returns the ledger size of a run
func (r *BacktestRepository) CountTrades(ctx context.Context, id string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM backtest_trades WHERE backtest_id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to count trades",
			zap.Error(err),
			zap.String("backtest_id", id))
		return 0, err
	}
	return count, nil
}

// DeleteResult removes a persisted result and its trades
func (r *BacktestRepository) DeleteResult(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM backtest_trades WHERE backtest_id = $1`, id); err != nil {
		r.logger.Error("Failed to delete trades", zap.Error(err), zap.String("id", id))
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM backtest_results WHERE id = $1`, id); err != nil {
		r.logger.Error("Failed to delete result", zap.Error(err), zap.String("id", id))
		return err
	}

	return tx.Commit()
}
