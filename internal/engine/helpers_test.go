package engine

import (
	"time"

	"github.com/yourorg/backtest-service/internal/model"
)

var (
	testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	testEnd   = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	btc       = model.Instrument{Symbol: "BTC", Market: "crypto"}
	eth       = model.Instrument{Symbol: "ETH", Market: "crypto"}
)

func day(n int) time.Time {
	return testStart.AddDate(0, 0, n)
}

func candle(inst model.Instrument, ts time.Time, price float64) model.Candle {
	return model.Candle{
		Symbol: inst.Symbol,
		Market: inst.Market,
		Time:   ts,
		Open:   price,
		High:   price,
		Low:    price,
		Close:  price,
		Volume: 1000,
	}
}

func priceSeries(inst model.Instrument, prices ...float64) []model.Candle {
	out := make([]model.Candle, len(prices))
	for i, p := range prices {
		out[i] = candle(inst, day(i), p)
	}
	return out
}

func testConfig() model.BacktestConfig {
	return model.BacktestConfig{
		StartDate:       testStart,
		EndDate:         testEnd,
		InitialCapital:  10000,
		CommissionRate:  0.1,
		SlippageRate:    0,
		MaxPositionSize: 50,
		RiskPerTrade:    2,
		Universe:        []model.Instrument{btc},
	}
}

// signalFunc adapts a closure into a SignalSource.
type signalFunc func(model.Instrument, model.Candle) *model.TradingSignal

func (f signalFunc) GenerateSignal(inst model.Instrument, c model.Candle) *model.TradingSignal {
	return f(inst, c)
}

// noSignals never proposes an entry.
var noSignals = signalFunc(func(model.Instrument, model.Candle) *model.TradingSignal {
	return nil
})

// buyOnceAt emits a single BUY signal at the given timestamp.
func buyOnceAt(ts time.Time, entry, stop, target float64) SignalSource {
	return signalFunc(func(inst model.Instrument, c model.Candle) *model.TradingSignal {
		if !c.Time.Equal(ts) {
			return nil
		}
		return &model.TradingSignal{
			Symbol:     inst.Symbol,
			Market:     inst.Market,
			Direction:  model.DirectionBuy,
			EntryPrice: entry,
			StopLoss:   stop,
			TakeProfit: target,
			Confidence: 0.9,
			Time:       c.Time,
		}
	})
}
