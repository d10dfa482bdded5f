package model

import (
	"time"
)

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitEndOfRun   ExitReason = "END_OF_RUN"
)

// Position is an open exposure created from an accepted entry signal.
// It is mutated every tick with the latest carried-forward price until
// it moves to the closed-trade ledger.
type Position struct {
	ID            string          `json:"id"`
	Symbol        string          `json:"symbol"`
	Market        string          `json:"market"`
	Direction     SignalDirection `json:"direction"`
	EntryTime     time.Time       `json:"entry_time"`
	EntryPrice    float64         `json:"entry_price"`
	Quantity      float64         `json:"quantity"`
	StopLoss      float64         `json:"stop_loss"`
	TakeProfit    float64         `json:"take_profit"`
	CurrentPrice  float64         `json:"current_price"`
	UnrealizedPnL float64         `json:"unrealized_pnl"`
	Status        PositionStatus  `json:"status"`
	Signal        TradingSignal   `json:"signal"`
}

// Key returns the instrument key the position occupies. At most one open
// position exists per key.
func (p *Position) Key() string {
	return p.Symbol + ":" + p.Market
}

// ClosedTrade is an immutable ledger record of a completed round trip.
// GrossPnL is computed from fill prices (slippage included); NetPnL
// additionally subtracts entry and exit commission.
type ClosedTrade struct {
	PositionID string          `json:"position_id" db:"position_id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Market     string          `json:"market" db:"market"`
	Direction  SignalDirection `json:"direction" db:"direction"`
	EntryTime  time.Time       `json:"entry_time" db:"entry_time"`
	EntryPrice float64         `json:"entry_price" db:"entry_price"`
	ExitTime   time.Time       `json:"exit_time" db:"exit_time"`
	ExitPrice  float64         `json:"exit_price" db:"exit_price"`
	Quantity   float64         `json:"quantity" db:"quantity"`
	GrossPnL   float64         `json:"gross_pnl" db:"gross_pnl"`
	NetPnL     float64         `json:"net_pnl" db:"net_pnl"`
	Commission float64         `json:"commission" db:"commission"`
	ExitReason ExitReason      `json:"exit_reason" db:"exit_reason"`
	Signal     TradingSignal   `json:"signal" db:"-"`
}
