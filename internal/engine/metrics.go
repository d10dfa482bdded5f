package engine

import (
	"math"

	"github.com/yourorg/backtest-service/internal/model"
)

// annualizationFactor assumes daily periods (252 trading days).
const annualizationFactor = 252

// ComputeMetrics derives performance metrics from the closed-trade
// ledger and the equity/drawdown curves. It is a pure function: the same
// inputs always reproduce the same metrics.
//
// Degenerate inputs use guarded formulas instead of failing: win rate is
// 0 with no trades, profit factor is +Inf when there are profits but no
// losses, Sharpe is 0 with fewer than two period returns or zero
// deviation, and Calmar is 0 when max drawdown is 0. Calmar uses the
// percent-of-capital convention: total return percent over max drawdown
// percent.
func ComputeMetrics(trades []model.ClosedTrade, equityCurve []model.EquityPoint, drawdownCurve []model.DrawdownPoint, initialCapital float64) model.PerformanceMetrics {
	m := model.PerformanceMetrics{
		TotalTrades:  len(trades),
		FinalCapital: initialCapital,
	}

	var totalPnL float64
	var winStreak, lossStreak int
	for _, t := range trades {
		totalPnL += t.NetPnL
		if t.NetPnL > 0 {
			m.WinningTrades++
			m.GrossProfit += t.NetPnL
			if t.NetPnL > m.LargestWin {
				m.LargestWin = t.NetPnL
			}
			winStreak++
			lossStreak = 0
			if winStreak > m.ConsecutiveWins {
				m.ConsecutiveWins = winStreak
			}
		} else {
			m.LosingTrades++
			m.GrossLoss += -t.NetPnL
			if t.NetPnL < m.LargestLoss {
				m.LargestLoss = t.NetPnL
			}
			lossStreak++
			winStreak = 0
			if lossStreak > m.ConsecutiveLosses {
				m.ConsecutiveLosses = lossStreak
			}
		}
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	}
	if m.WinningTrades > 0 {
		m.AverageWin = m.GrossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = -m.GrossLoss / float64(m.LosingTrades)
	}

	if m.GrossLoss == 0 {
		if m.GrossProfit > 0 {
			m.ProfitFactor = math.Inf(1)
		}
	} else {
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	}

	for _, p := range drawdownCurve {
		if p.Drawdown > m.MaxDrawdown {
			m.MaxDrawdown = p.Drawdown
		}
	}

	m.SharpeRatio = sharpeRatio(equityCurve)

	m.TotalPnL = totalPnL
	m.FinalCapital = initialCapital + totalPnL
	if initialCapital > 0 {
		m.TotalReturn = totalPnL / initialCapital * 100
	}
	if m.MaxDrawdown != 0 {
		m.CalmarRatio = m.TotalReturn / m.MaxDrawdown
	}

	return m
}

// sharpeRatio computes mean/stddev of period-over-period equity returns,
// annualized by sqrt(252). Zero when fewer than two returns exist or the
// returns have no variance.
func sharpeRatio(curve []model.EquityPoint) float64 {
	if len(curve) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	if variance <= 0 {
		return 0
	}

	return mean / math.Sqrt(variance) * math.Sqrt(annualizationFactor)
}
