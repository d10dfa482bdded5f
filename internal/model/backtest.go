package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is the base error for configuration validation failures.
// No run state is created once validation fails.
var ErrInvalidConfig = errors.New("invalid backtest configuration")

// Instrument identifies a tradable symbol on a market.
type Instrument struct {
	Symbol string `json:"symbol" binding:"required"`
	Market string `json:"market" binding:"required"`
}

// Key returns the map key used for positions and series lookups.
func (i Instrument) Key() string {
	return i.Symbol + ":" + i.Market
}

// Optimization objective metrics accepted by BacktestConfig.OptimizationMetric.
const (
	MetricTotalReturn  = "totalReturn"
	MetricSharpeRatio  = "sharpeRatio"
	MetricWinRate      = "winRate"
	MetricProfitFactor = "profitFactor"
	MetricMaxDrawdown  = "maxDrawdown"
	MetricComposite    = "composite"
)

// BacktestConfig holds the immutable parameters of a single run.
// Rates are expressed in percent (0.1 means 0.1%).
type BacktestConfig struct {
	StartDate          time.Time    `json:"start_date"`
	EndDate            time.Time    `json:"end_date"`
	InitialCapital     float64      `json:"initial_capital"`
	CommissionRate     float64      `json:"commission_rate"`
	SlippageRate       float64      `json:"slippage_rate"`
	MaxPositionSize    float64      `json:"max_position_size"`
	RiskPerTrade       float64      `json:"risk_per_trade"`
	Universe           []Instrument `json:"universe"`
	OptimizationMetric string       `json:"optimization_metric"`
	MinConfidence      float64      `json:"min_confidence"`
	ProgressInterval   int          `json:"progress_interval"`
}

// Validate fails fast on configuration errors before any run starts.
func (c *BacktestConfig) Validate() error {
	if !c.EndDate.After(c.StartDate) {
		return fmt.Errorf("%w: end date must be after start date", ErrInvalidConfig)
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("%w: initial capital must be positive", ErrInvalidConfig)
	}
	if len(c.Universe) == 0 {
		return fmt.Errorf("%w: universe is empty", ErrInvalidConfig)
	}
	rates := map[string]float64{
		"commission rate":   c.CommissionRate,
		"slippage rate":     c.SlippageRate,
		"max position size": c.MaxPositionSize,
		"risk per trade":    c.RiskPerTrade,
	}
	for name, rate := range rates {
		if rate < 0 || rate > 100 {
			return fmt.Errorf("%w: %s must be between 0 and 100", ErrInvalidConfig, name)
		}
	}
	return nil
}

// WithDefaults returns a copy with unset tuning fields filled in.
func (c BacktestConfig) WithDefaults() BacktestConfig {
	if c.MinConfidence <= 0 {
		c.MinConfidence = 0.6
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = 100
	}
	if c.OptimizationMetric == "" {
		c.OptimizationMetric = MetricComposite
	}
	return c
}

// RunStatus tracks the lifecycle of a backtest run.
type RunStatus string

const (
	StatusInitialized RunStatus = "initialized"
	StatusRunning     RunStatus = "running"
	StatusCompleted   RunStatus = "completed"
	StatusFailed      RunStatus = "failed"
	StatusCancelled   RunStatus = "cancelled"
)
