package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourorg/backtest-service/internal/model"
)

func trade(net float64) model.ClosedTrade {
	return model.ClosedTrade{NetPnL: net, GrossPnL: net}
}

func TestMetricsNoTrades(t *testing.T) {
	m := ComputeMetrics(nil, nil, nil, 10000)

	assert.Equal(t, 0, m.TotalTrades)
	assert.Equal(t, 0.0, m.WinRate)
	assert.Equal(t, 0.0, m.ProfitFactor)
	assert.Equal(t, 0.0, m.SharpeRatio)
	assert.Equal(t, 0.0, m.CalmarRatio)
	assert.Equal(t, 10000.0, m.FinalCapital)
}

func TestWinRateBounds(t *testing.T) {
	trades := []model.ClosedTrade{trade(100), trade(-50), trade(30), trade(-10)}
	m := ComputeMetrics(trades, nil, nil, 10000)

	assert.Equal(t, 50.0, m.WinRate)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 2, m.LosingTrades)

	all := []model.ClosedTrade{trade(1), trade(2)}
	assert.Equal(t, 100.0, ComputeMetrics(all, nil, nil, 10000).WinRate)
}

func TestProfitFactorGuards(t *testing.T) {
	// No losses with profits: +Inf.
	m := ComputeMetrics([]model.ClosedTrade{trade(100)}, nil, nil, 10000)
	assert.True(t, math.IsInf(m.ProfitFactor, 1))

	// No trades at all: 0.
	m = ComputeMetrics(nil, nil, nil, 10000)
	assert.Equal(t, 0.0, m.ProfitFactor)

	// Mixed: gross profit over gross loss.
	m = ComputeMetrics([]model.ClosedTrade{trade(100), trade(-40)}, nil, nil, 10000)
	assert.InDelta(t, 2.5, m.ProfitFactor, 1e-9)
}

func TestSharpeZeroWhenFlat(t *testing.T) {
	curve := []model.EquityPoint{
		{Time: day(0), Equity: 10000},
		{Time: day(1), Equity: 10000},
		{Time: day(2), Equity: 10000},
	}
	m := ComputeMetrics(nil, curve, nil, 10000)
	assert.Equal(t, 0.0, m.SharpeRatio)

	// Fewer than two period returns is also zero.
	m = ComputeMetrics(nil, curve[:2], nil, 10000)
	assert.Equal(t, 0.0, m.SharpeRatio)
}

func TestSharpeDeterministic(t *testing.T) {
	curve := []model.EquityPoint{
		{Time: day(0), Equity: 10000},
		{Time: day(1), Equity: 10100},
		{Time: day(2), Equity: 10050},
		{Time: day(3), Equity: 10200},
	}
	a := ComputeMetrics(nil, curve, nil, 10000)
	b := ComputeMetrics(nil, curve, nil, 10000)
	assert.Equal(t, a.SharpeRatio, b.SharpeRatio)
	assert.NotEqual(t, 0.0, a.SharpeRatio)
}

func TestMaxDrawdownFromCurve(t *testing.T) {
	dd := []model.DrawdownPoint{
		{Time: day(0), Drawdown: 0},
		{Time: day(1), Drawdown: 12.5},
		{Time: day(2), Drawdown: 3},
	}
	m := ComputeMetrics(nil, nil, dd, 10000)
	assert.Equal(t, 12.5, m.MaxDrawdown)
}

func TestCalmarPercentOfCapital(t *testing.T) {
	dd := []model.DrawdownPoint{{Time: day(0), Drawdown: 10}}
	trades := []model.ClosedTrade{trade(500)}

	m := ComputeMetrics(trades, nil, dd, 10000)
	// Total return 5% over max drawdown 10%.
	assert.InDelta(t, 0.5, m.CalmarRatio, 1e-9)

	// Zero drawdown guards to zero, not a division error.
	m = ComputeMetrics(trades, nil, nil, 10000)
	assert.Equal(t, 0.0, m.CalmarRatio)
}

func TestConsecutiveStreaks(t *testing.T) {
	trades := []model.ClosedTrade{
		trade(10), trade(20), trade(30), // 3 wins
		trade(-5), trade(-5), // 2 losses
		trade(15),
		trade(-1), trade(-1), trade(-1), trade(-1), // 4 losses
	}
	m := ComputeMetrics(trades, nil, nil, 10000)
	assert.Equal(t, 3, m.ConsecutiveWins)
	assert.Equal(t, 4, m.ConsecutiveLosses)
}

func TestAverageAndLargestTrades(t *testing.T) {
	trades := []model.ClosedTrade{trade(100), trade(300), trade(-50), trade(-150)}
	m := ComputeMetrics(trades, nil, nil, 10000)

	assert.InDelta(t, 200.0, m.AverageWin, 1e-9)
	assert.InDelta(t, -100.0, m.AverageLoss, 1e-9)
	assert.Equal(t, 300.0, m.LargestWin)
	assert.Equal(t, -150.0, m.LargestLoss)
	assert.InDelta(t, 2.0, m.TotalReturn, 1e-9) // 200 on 10000
}
