// Package strategy provides the built-in signal sources used by the
// HTTP surface and the optimizer. Strategies implement
// engine.SignalSource and are deterministic: fed the same candle
// sequence they emit the same signals.
package strategy

import (
	"github.com/yourorg/backtest-service/internal/model"
)

// CrossoverParams tunes an SMACrossover. These are the axes an
// optimization grid typically sweeps.
type CrossoverParams struct {
	FastPeriod    int     `json:"fast_period"`
	SlowPeriod    int     `json:"slow_period"`
	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`
	Confidence    float64 `json:"confidence"`
}

// WithDefaults fills unset parameters.
func (p CrossoverParams) WithDefaults() CrossoverParams {
	if p.FastPeriod <= 0 {
		p.FastPeriod = 9
	}
	if p.SlowPeriod <= p.FastPeriod {
		p.SlowPeriod = p.FastPeriod * 2
	}
	if p.StopLossPct <= 0 {
		p.StopLossPct = 2
	}
	if p.TakeProfitPct <= 0 {
		p.TakeProfitPct = 4
	}
	if p.Confidence <= 0 {
		p.Confidence = 0.7
	}
	return p
}

// FromGrid builds params from an optimization combination, falling back
// to the receiver's values for axes the grid does not sweep.
func (p CrossoverParams) FromGrid(grid map[string]float64) CrossoverParams {
	if v, ok := grid["fastPeriod"]; ok {
		p.FastPeriod = int(v)
	}
	if v, ok := grid["slowPeriod"]; ok {
		p.SlowPeriod = int(v)
	}
	if v, ok := grid["stopLossPct"]; ok {
		p.StopLossPct = v
	}
	if v, ok := grid["takeProfitPct"]; ok {
		p.TakeProfitPct = v
	}
	return p
}

// SMACrossover emits a BUY signal when the fast moving average crosses
// above the slow one, and a SELL signal on the opposite cross. Stop and
// target are placed at fixed percentage distances from the close.
type SMACrossover struct {
	params  CrossoverParams
	windows map[string]*rollingWindow
}

// NewSMACrossover creates a crossover signal source.
func NewSMACrossover(params CrossoverParams) *SMACrossover {
	return &SMACrossover{
		params:  params.WithDefaults(),
		windows: make(map[string]*rollingWindow),
	}
}

// GenerateSignal consumes one candle and returns an entry candidate when
// a cross occurs, nil otherwise.
func (s *SMACrossover) GenerateSignal(inst model.Instrument, candle model.Candle) *model.TradingSignal {
	w, ok := s.windows[inst.Key()]
	if !ok {
		w = newRollingWindow(s.params.SlowPeriod)
		s.windows[inst.Key()] = w
	}

	prevFast := w.mean(s.params.FastPeriod)
	prevSlow := w.mean(s.params.SlowPeriod)
	w.push(candle.Close)
	fast := w.mean(s.params.FastPeriod)
	slow := w.mean(s.params.SlowPeriod)

	if !w.full() || prevFast == 0 || prevSlow == 0 {
		return nil
	}

	var direction model.SignalDirection
	switch {
	case prevFast <= prevSlow && fast > slow:
		direction = model.DirectionBuy
	case prevFast >= prevSlow && fast < slow:
		direction = model.DirectionSell
	default:
		return nil
	}

	price := candle.Close
	stop := price * (1 - s.params.StopLossPct/100)
	target := price * (1 + s.params.TakeProfitPct/100)
	if direction == model.DirectionSell {
		stop = price * (1 + s.params.StopLossPct/100)
		target = price * (1 - s.params.TakeProfitPct/100)
	}

	return &model.TradingSignal{
		Symbol:     inst.Symbol,
		Market:     inst.Market,
		Direction:  direction,
		EntryPrice: price,
		StopLoss:   stop,
		TakeProfit: target,
		Confidence: s.params.Confidence,
		Time:       candle.Time,
	}
}

// rollingWindow keeps the most recent n closes per instrument.
type rollingWindow struct {
	values []float64
	size   int
}

func newRollingWindow(n int) *rollingWindow {
	return &rollingWindow{size: n}
}

func (w *rollingWindow) push(v float64) {
	w.values = append(w.values, v)
	if len(w.values) > w.size {
		w.values = w.values[1:]
	}
}

func (w *rollingWindow) full() bool {
	return len(w.values) >= w.size
}

// mean averages the last n values; 0 until n values exist.
func (w *rollingWindow) mean(n int) float64 {
	if len(w.values) < n {
		return 0
	}
	sum := 0.0
	for _, v := range w.values[len(w.values)-n:] {
		sum += v
	}
	return sum / float64(n)
}
