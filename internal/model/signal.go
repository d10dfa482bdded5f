package model

import (
	"time"
)

// SignalDirection indicates the side of a trading signal.
type SignalDirection string

const (
	DirectionBuy  SignalDirection = "BUY"
	DirectionSell SignalDirection = "SELL"
)

// Multiplier returns +1 for long exposure and -1 for short.
func (d SignalDirection) Multiplier() float64 {
	if d == DirectionSell {
		return -1
	}
	return 1
}

// TradingSignal is an entry candidate produced by a signal source.
// The engine only reads the fields below; strategies keep any extra
// context to themselves.
type TradingSignal struct {
	Symbol     string          `json:"symbol"`
	Market     string          `json:"market"`
	Direction  SignalDirection `json:"direction"`
	EntryPrice float64         `json:"entry_price"`
	StopLoss   float64         `json:"stop_loss"`
	TakeProfit float64         `json:"take_profit"`
	Confidence float64         `json:"confidence"`
	Time       time.Time       `json:"time"`
}

// Instrument returns the instrument the signal targets.
func (s TradingSignal) Instrument() Instrument {
	return Instrument{Symbol: s.Symbol, Market: s.Market}
}
