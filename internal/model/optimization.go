package model

// OptimizationParameter defines one axis of the search grid. Values run
// from Min to Max inclusive in increments of Step.
type OptimizationParameter struct {
	Name string  `json:"name" binding:"required"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step" binding:"required"`
}

// Count returns the number of grid values on this axis.
func (p OptimizationParameter) Count() int {
	if p.Step <= 0 || p.Max < p.Min {
		return 1
	}
	return int((p.Max-p.Min)/p.Step) + 1
}

// OptimizationConstraints filter combinations before ranking. Zero-valued
// fields are not applied.
type OptimizationConstraints struct {
	MinWinRate      float64 `json:"min_win_rate"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	MinProfitFactor float64 `json:"min_profit_factor"`
	MinTrades       int     `json:"min_trades"`
}

// Conforms reports whether a run's metrics pass every active constraint.
func (c *OptimizationConstraints) Conforms(m PerformanceMetrics) bool {
	if c == nil {
		return true
	}
	if c.MinWinRate > 0 && m.WinRate < c.MinWinRate {
		return false
	}
	if c.MaxDrawdown > 0 && m.MaxDrawdown > c.MaxDrawdown {
		return false
	}
	if c.MinProfitFactor > 0 && m.ProfitFactor < c.MinProfitFactor {
		return false
	}
	if c.MinTrades > 0 && m.TotalTrades < c.MinTrades {
		return false
	}
	return true
}

// OptimizationResult is one scored grid combination. Rank is assigned
// only after the full result set is sorted.
type OptimizationResult struct {
	Parameters map[string]float64 `json:"parameters"`
	Metrics    PerformanceMetrics `json:"metrics"`
	Score      float64            `json:"score"`
	Rank       int                `json:"rank"`
	Best       bool               `json:"best"`
}
