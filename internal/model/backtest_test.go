package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() BacktestConfig {
	return BacktestConfig{
		StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		InitialCapital: 10000,
		CommissionRate: 0.1,
		RiskPerTrade:   2,
		Universe:       []Instrument{{Symbol: "BTC", Market: "crypto"}},
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())

	bad := validConfig()
	bad.EndDate = bad.StartDate
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = validConfig()
	bad.InitialCapital = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = validConfig()
	bad.Universe = nil
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = validConfig()
	bad.RiskPerTrade = 101
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = validConfig()
	bad.SlippageRate = -1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := validConfig().WithDefaults()
	assert.Equal(t, 0.6, cfg.MinConfidence)
	assert.Equal(t, 100, cfg.ProgressInterval)
	assert.Equal(t, MetricComposite, cfg.OptimizationMetric)

	cfg = validConfig()
	cfg.MinConfidence = 0.8
	cfg.OptimizationMetric = MetricSharpeRatio
	cfg = cfg.WithDefaults()
	assert.Equal(t, 0.8, cfg.MinConfidence)
	assert.Equal(t, MetricSharpeRatio, cfg.OptimizationMetric)
}

func TestParameterCount(t *testing.T) {
	assert.Equal(t, 3, OptimizationParameter{Min: 0, Max: 10, Step: 5}.Count())
	assert.Equal(t, 1, OptimizationParameter{Min: 5, Max: 5, Step: 1}.Count())
	assert.Equal(t, 1, OptimizationParameter{Min: 0, Max: 10, Step: 0}.Count())
	assert.Equal(t, 1, OptimizationParameter{Min: 10, Max: 0, Step: 1}.Count())
	// Step not dividing the range evenly truncates to in-range values.
	assert.Equal(t, 3, OptimizationParameter{Min: 0, Max: 10, Step: 4}.Count())
}

func TestConstraintsConforms(t *testing.T) {
	metrics := PerformanceMetrics{
		WinRate:      55,
		MaxDrawdown:  12,
		ProfitFactor: 1.8,
		TotalTrades:  20,
	}

	var nilConstraints *OptimizationConstraints
	assert.True(t, nilConstraints.Conforms(metrics))
	assert.True(t, (&OptimizationConstraints{}).Conforms(metrics))

	assert.True(t, (&OptimizationConstraints{MinWinRate: 50, MaxDrawdown: 15}).Conforms(metrics))
	assert.False(t, (&OptimizationConstraints{MinWinRate: 60}).Conforms(metrics))
	assert.False(t, (&OptimizationConstraints{MaxDrawdown: 10}).Conforms(metrics))
	assert.False(t, (&OptimizationConstraints{MinProfitFactor: 2}).Conforms(metrics))
	assert.False(t, (&OptimizationConstraints{MinTrades: 30}).Conforms(metrics))
}
