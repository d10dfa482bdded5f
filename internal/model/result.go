package model

import (
	"time"
)

// EquityPoint records total equity (cash plus unrealized P&L) at a tick.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// DrawdownPoint records the percentage decline from the running equity
// peak at a tick. Always in [0, 100].
type DrawdownPoint struct {
	Time     time.Time `json:"time"`
	Drawdown float64   `json:"drawdown"`
}

// PerformanceMetrics are derived once per completed run from the closed
// trade ledger and the equity/drawdown curves.
type PerformanceMetrics struct {
	TotalTrades       int     `json:"total_trades"`
	WinningTrades     int     `json:"winning_trades"`
	LosingTrades      int     `json:"losing_trades"`
	WinRate           float64 `json:"win_rate"`
	ProfitFactor      float64 `json:"profit_factor"`
	SharpeRatio       float64 `json:"sharpe_ratio"`
	CalmarRatio       float64 `json:"calmar_ratio"`
	MaxDrawdown       float64 `json:"max_drawdown"`
	ConsecutiveWins   int     `json:"consecutive_wins"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	GrossProfit       float64 `json:"gross_profit"`
	GrossLoss         float64 `json:"gross_loss"`
	AverageWin        float64 `json:"average_win"`
	AverageLoss       float64 `json:"average_loss"`
	LargestWin        float64 `json:"largest_win"`
	LargestLoss       float64 `json:"largest_loss"`
	FinalCapital      float64 `json:"final_capital"`
	TotalPnL          float64 `json:"total_pnl"`
	TotalReturn       float64 `json:"total_return"`
}

// BacktestResult is the complete outcome of one run.
type BacktestResult struct {
	Config         BacktestConfig     `json:"config"`
	Trades         []ClosedTrade      `json:"trades"`
	EquityCurve    []EquityPoint      `json:"equity_curve"`
	DrawdownCurve  []DrawdownPoint    `json:"drawdown_curve"`
	Metrics        PerformanceMetrics `json:"metrics"`
	InitialCapital float64            `json:"initial_capital"`
	FinalEquity    float64            `json:"final_equity"`
	TotalPnL       float64            `json:"total_pnl"`
	TotalReturn    float64            `json:"total_return"`
	StartedAt      time.Time          `json:"started_at"`
	CompletedAt    time.Time          `json:"completed_at"`
}
