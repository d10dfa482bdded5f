package engine

import (
	"github.com/yourorg/backtest-service/internal/model"
)

// RunListener receives domain events from a single backtest run. The
// engine does not depend on consumption; callbacks must not block.
type RunListener interface {
	OnProgress(processed, total int)
	OnPositionOpened(pos model.Position)
	OnPositionClosed(trade model.ClosedTrade)
	OnCompleted(result *model.BacktestResult)
}

// OptimizationListener receives events from an optimization job.
type OptimizationListener interface {
	OnOptimizationProgress(completed, total int)
	OnOptimizationCompleted(results []model.OptimizationResult)
}

// NopListener is the default RunListener.
type NopListener struct{}

func (NopListener) OnProgress(int, int) {}

func (NopListener) OnPositionOpened(model.Position) {}

func (NopListener) OnPositionClosed(model.ClosedTrade) {}

func (NopListener) OnCompleted(*model.BacktestResult) {}

// NopOptimizationListener is the default OptimizationListener.
type NopOptimizationListener struct{}

func (NopOptimizationListener) OnOptimizationProgress(int, int) {}

func (NopOptimizationListener) OnOptimizationCompleted([]model.OptimizationResult) {}
