package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/backtest-service/internal/model"
)

// Risk-based sizing round trip: 10,000 capital, BUY at 100 with stop 95
// and target 110, 2% risk per trade, 0.1% commission, no slippage.
// Expected size (10000 x 0.02) / 5 = 40 units; hitting the target yields
// gross (110-100) x 40 = 400 and net 400 minus entry and exit
// commission.
func TestRiskBasedSizingRoundTrip(t *testing.T) {
	data := NewSeriesSource(map[model.Instrument][]model.Candle{
		btc: priceSeries(btc, 100, 110, 110),
	})
	bt, err := NewBacktester(testConfig(), data, buyOnceAt(day(0), 100, 95, 110))
	require.NoError(t, err)

	result, err := bt.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, 40.0, trade.Quantity)
	assert.Equal(t, model.ExitTakeProfit, trade.ExitReason)
	assert.InDelta(t, 400.0, trade.GrossPnL, 1e-9)

	entryCommission := 100.0 * 40 * 0.001
	exitCommission := 110.0 * 40 * 0.001
	wantNet := 400.0 - entryCommission - exitCommission
	assert.InDelta(t, wantNet, trade.NetPnL, 1e-9)
	assert.InDelta(t, 10000+wantNet, result.FinalEquity, 1e-9)
}

// Commission-free losing trade: entry 100, stop triggers at 95, qty 10,
// net P&L is exactly (95-100) x 10 = -50.
func TestLosingTradeNetPnL(t *testing.T) {
	cfg := testConfig()
	cfg.CommissionRate = 0
	cfg.RiskPerTrade = 0.5 // (10000 x 0.005) / 5 = 10 units
	cfg.MaxPositionSize = 20

	data := NewSeriesSource(map[model.Instrument][]model.Candle{
		btc: priceSeries(btc, 100, 95, 95),
	})
	bt, err := NewBacktester(cfg, data, buyOnceAt(day(0), 100, 95, 110))
	require.NoError(t, err)

	result, err := bt.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, 10.0, trade.Quantity)
	assert.Equal(t, model.ExitStopLoss, trade.ExitReason)
	assert.InDelta(t, -50.0, trade.NetPnL, 1e-9)
	assert.InDelta(t, 9950.0, result.FinalEquity, 1e-9)
}

// A zero stop distance would divide by zero in sizing; the signal is
// rejected instead.
func TestZeroStopDistanceRejected(t *testing.T) {
	data := NewSeriesSource(map[model.Instrument][]model.Candle{
		btc: priceSeries(btc, 100, 110),
	})
	bt, err := NewBacktester(testConfig(), data, buyOnceAt(day(0), 100, 100, 110))
	require.NoError(t, err)

	result, err := bt.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.Equal(t, 10000.0, result.FinalEquity)
}

// An entry whose notional plus commission exceeds available cash is
// silently skipped, not an error.
func TestInsufficientCashRejected(t *testing.T) {
	cfg := testConfig()
	cfg.RiskPerTrade = 100
	cfg.MaxPositionSize = 100

	data := NewSeriesSource(map[model.Instrument][]model.Candle{
		btc: priceSeries(btc, 100, 110),
	})
	// Stop distance 1 sizes at 10,000 units, capped to 100 units by max
	// position size; 100 x 100 notional + commission > 10,000 cash.
	bt, err := NewBacktester(cfg, data, buyOnceAt(day(0), 100, 99, 110))
	require.NoError(t, err)

	result, err := bt.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.Equal(t, 10000.0, result.FinalEquity)
}

// Slippage moves both fills against the trader: buys fill above the
// signal price and the closing sell fills below the market price.
func TestSlippageAppliedAgainstTrader(t *testing.T) {
	cfg := testConfig()
	cfg.CommissionRate = 0
	cfg.SlippageRate = 1

	data := NewSeriesSource(map[model.Instrument][]model.Candle{
		btc: priceSeries(btc, 100, 120, 120),
	})
	bt, err := NewBacktester(cfg, data, buyOnceAt(day(0), 100, 95, 110))
	require.NoError(t, err)

	result, err := bt.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.InDelta(t, 101.0, trade.EntryPrice, 1e-9)  // 100 x 1.01
	assert.InDelta(t, 118.8, trade.ExitPrice, 1e-9)   // 120 x 0.99
	assert.InDelta(t, (118.8-101.0)*trade.Quantity, trade.GrossPnL, 1e-9)
}

// A second signal for an instrument with an open position is ignored:
// at most one open position per instrument key.
func TestAtMostOnePositionPerInstrument(t *testing.T) {
	data := NewSeriesSource(map[model.Instrument][]model.Candle{
		btc: priceSeries(btc, 100, 101, 102, 103),
	})
	signals := signalFunc(func(inst model.Instrument, c model.Candle) *model.TradingSignal {
		return &model.TradingSignal{
			Symbol:     inst.Symbol,
			Market:     inst.Market,
			Direction:  model.DirectionBuy,
			EntryPrice: c.Close,
			StopLoss:   c.Close * 0.5,  // never triggers
			TakeProfit: c.Close * 10,   // never triggers
			Confidence: 0.9,
			Time:       c.Time,
		}
	})
	bt, err := NewBacktester(testConfig(), data, signals)
	require.NoError(t, err)

	result, err := bt.Run(context.Background())
	require.NoError(t, err)

	// Only the first entry is taken; it is force-closed at end of run.
	require.Len(t, result.Trades, 1)
	assert.Equal(t, model.ExitEndOfRun, result.Trades[0].ExitReason)
	assert.Equal(t, day(0), result.Trades[0].EntryTime)
}

// Short positions mirror the long exit logic.
func TestShortPositionStopAndTarget(t *testing.T) {
	cfg := testConfig()
	cfg.CommissionRate = 0

	data := NewSeriesSource(map[model.Instrument][]model.Candle{
		btc: priceSeries(btc, 100, 92, 92),
	})
	signals := signalFunc(func(inst model.Instrument, c model.Candle) *model.TradingSignal {
		if !c.Time.Equal(day(0)) {
			return nil
		}
		return &model.TradingSignal{
			Symbol:     inst.Symbol,
			Market:     inst.Market,
			Direction:  model.DirectionSell,
			EntryPrice: 100,
			StopLoss:   105,
			TakeProfit: 92,
			Confidence: 0.9,
			Time:       c.Time,
		}
	})
	bt, err := NewBacktester(cfg, data, signals)
	require.NoError(t, err)

	result, err := bt.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, model.DirectionSell, trade.Direction)
	assert.Equal(t, model.ExitTakeProfit, trade.ExitReason)
	assert.InDelta(t, (100.0-92.0)*trade.Quantity, trade.GrossPnL, 1e-9)
	assert.Greater(t, trade.GrossPnL, 0.0)
}
