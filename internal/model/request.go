package model

import (
	"time"
)

// StrategyConfig tunes the built-in crossover strategy for a run.
// Zero-valued fields fall back to the strategy defaults.
type StrategyConfig struct {
	FastPeriod    int     `json:"fast_period"`
	SlowPeriod    int     `json:"slow_period"`
	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`
	Confidence    float64 `json:"confidence"`
}

// BacktestRequest is the HTTP payload that starts a run. Rate fields
// left at zero are filled from the service-level defaults.
type BacktestRequest struct {
	Name            string         `json:"name"`
	StartDate       time.Time      `json:"start_date" binding:"required"`
	EndDate         time.Time      `json:"end_date" binding:"required"`
	InitialCapital  float64        `json:"initial_capital" binding:"required,gt=0"`
	CommissionRate  float64        `json:"commission_rate"`
	SlippageRate    float64        `json:"slippage_rate"`
	MaxPositionSize float64        `json:"max_position_size"`
	RiskPerTrade    float64        `json:"risk_per_trade"`
	Universe        []Instrument   `json:"universe" binding:"required,min=1,dive"`
	MinConfidence   float64        `json:"min_confidence"`
	Strategy        StrategyConfig `json:"strategy"`
}

// OptimizationRequest is the HTTP payload that starts a grid search
// over the strategy parameters of a base run.
type OptimizationRequest struct {
	Backtest          BacktestRequest          `json:"backtest" binding:"required"`
	Parameters        []OptimizationParameter  `json:"parameters" binding:"required,min=1,dive"`
	Objective         string                   `json:"objective"`
	Constraints       *OptimizationConstraints `json:"constraints"`
	Workers           int                      `json:"workers"`
	TimeBudgetSeconds int                      `json:"time_budget_seconds"`
}
