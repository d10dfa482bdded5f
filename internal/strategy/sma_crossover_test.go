package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/backtest-service/internal/model"
)

var (
	btc = model.Instrument{Symbol: "BTC", Market: "crypto"}
	eth = model.Instrument{Symbol: "ETH", Market: "crypto"}
)

func closeAt(n int, price float64) model.Candle {
	return model.Candle{
		Symbol: btc.Symbol,
		Market: btc.Market,
		Time:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n),
		Close:  price,
	}
}

func feed(s *SMACrossover, inst model.Instrument, prices ...float64) []*model.TradingSignal {
	var out []*model.TradingSignal
	for i, p := range prices {
		c := closeAt(i, p)
		c.Symbol, c.Market = inst.Symbol, inst.Market
		if sig := s.GenerateSignal(inst, c); sig != nil {
			out = append(out, sig)
		}
	}
	return out
}

func testParams() CrossoverParams {
	return CrossoverParams{
		FastPeriod:    2,
		SlowPeriod:    3,
		StopLossPct:   2,
		TakeProfitPct: 4,
		Confidence:    0.8,
	}
}

func TestCrossoverBuySignal(t *testing.T) {
	s := NewSMACrossover(testParams())

	// Flat at 10 fills the window, then a jump to 12 pushes the fast
	// average above the slow one.
	signals := feed(s, btc, 10, 10, 10, 12)

	require.Len(t, signals, 1)
	sig := signals[0]
	assert.Equal(t, model.DirectionBuy, sig.Direction)
	assert.Equal(t, 12.0, sig.EntryPrice)
	assert.InDelta(t, 12*0.98, sig.StopLoss, 1e-9)
	assert.InDelta(t, 12*1.04, sig.TakeProfit, 1e-9)
	assert.Equal(t, 0.8, sig.Confidence)
	assert.Equal(t, "BTC", sig.Symbol)
}

func TestCrossoverSellSignal(t *testing.T) {
	s := NewSMACrossover(testParams())

	// The rally at 12 crosses up, the drop to 7 crosses back down.
	signals := feed(s, btc, 10, 10, 10, 12, 7)

	require.Len(t, signals, 2)
	sell := signals[1]
	assert.Equal(t, model.DirectionSell, sell.Direction)
	assert.Equal(t, 7.0, sell.EntryPrice)
	// Short exits mirror the long ones: stop above, target below.
	assert.InDelta(t, 7*1.02, sell.StopLoss, 1e-9)
	assert.InDelta(t, 7*0.96, sell.TakeProfit, 1e-9)
}

func TestCrossoverNoSignalWithoutCross(t *testing.T) {
	s := NewSMACrossover(testParams())

	// A continued uptrend after the cross must not re-signal.
	signals := feed(s, btc, 10, 10, 10, 12, 13, 14)

	require.Len(t, signals, 1)
	assert.Equal(t, model.DirectionBuy, signals[0].Direction)
}

func TestCrossoverRequiresFullWindow(t *testing.T) {
	s := NewSMACrossover(testParams())

	// Only two candles: slow average never forms.
	assert.Empty(t, feed(s, btc, 10, 12))
}

func TestCrossoverPerInstrumentState(t *testing.T) {
	s := NewSMACrossover(testParams())

	// BTC crosses, ETH stays flat; windows must not bleed.
	btcSignals := feed(s, btc, 10, 10, 10, 12)
	ethSignals := feed(s, eth, 20, 20, 20, 20)

	assert.Len(t, btcSignals, 1)
	assert.Empty(t, ethSignals)
}

func TestCrossoverDeterministic(t *testing.T) {
	prices := []float64{10, 10, 10, 12, 7, 8, 11, 9}

	a := feed(NewSMACrossover(testParams()), btc, prices...)
	b := feed(NewSMACrossover(testParams()), btc, prices...)

	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, *a[i], *b[i])
	}
}

func TestParamsWithDefaults(t *testing.T) {
	p := CrossoverParams{}.WithDefaults()
	assert.Equal(t, 9, p.FastPeriod)
	assert.Equal(t, 18, p.SlowPeriod)
	assert.Equal(t, 2.0, p.StopLossPct)
	assert.Equal(t, 4.0, p.TakeProfitPct)
	assert.Equal(t, 0.7, p.Confidence)

	// A slow period at or below the fast one is widened.
	p = CrossoverParams{FastPeriod: 10, SlowPeriod: 5}.WithDefaults()
	assert.Equal(t, 20, p.SlowPeriod)
}

func TestParamsFromGrid(t *testing.T) {
	base := testParams()
	p := base.FromGrid(map[string]float64{
		"fastPeriod":  5,
		"slowPeriod":  15,
		"stopLossPct": 1.5,
	})

	assert.Equal(t, 5, p.FastPeriod)
	assert.Equal(t, 15, p.SlowPeriod)
	assert.Equal(t, 1.5, p.StopLossPct)
	// Axes the grid does not sweep keep their configured values.
	assert.Equal(t, base.TakeProfitPct, p.TakeProfitPct)
	assert.Equal(t, base.Confidence, p.Confidence)
}
