package engine

import (
	"fmt"
	"time"

	"github.com/yourorg/backtest-service/internal/model"
)

// runState is the mutable state of one run, owned exclusively by the
// Backtester for the run's duration. Optimization iterations each get a
// fresh runState and never observe another's.
type runState struct {
	cash          float64
	equity        float64
	peak          float64
	seq           int
	book          *positionBook
	trades        []model.ClosedTrade
	equityCurve   []model.EquityPoint
	drawdownCurve []model.DrawdownPoint
}

func newRunState(initialCapital float64) *runState {
	return &runState{
		cash:          initialCapital,
		equity:        initialCapital,
		peak:          initialCapital,
		book:          newPositionBook(),
		trades:        []model.ClosedTrade{},
		equityCurve:   []model.EquityPoint{},
		drawdownCurve: []model.DrawdownPoint{},
	}
}

// simulator converts signals into sized, costed fills and mutates run
// state. Slippage is always applied against the trader; commission is
// charged on notional at entry and again at exit.
type simulator struct {
	commissionRate  float64 // percent
	slippageRate    float64 // percent
	maxPositionSize float64 // percent of equity
	riskPerTrade    float64 // percent of equity
	listener        RunListener
}

func newSimulator(cfg model.BacktestConfig, listener RunListener) *simulator {
	return &simulator{
		commissionRate:  cfg.CommissionRate,
		slippageRate:    cfg.SlippageRate,
		maxPositionSize: cfg.MaxPositionSize,
		riskPerTrade:    cfg.RiskPerTrade,
		listener:        listener,
	}
}

// entryFill applies slippage against the trader at entry: buys fill
// above the signal price, sells below it.
func (s *simulator) entryFill(price float64, dir model.SignalDirection) float64 {
	if dir == model.DirectionBuy {
		return price * (1 + s.slippageRate/100)
	}
	return price * (1 - s.slippageRate/100)
}

// exitFill applies slippage against the trader at exit: closing a long
// sells below the market price, closing a short buys above it.
func (s *simulator) exitFill(price float64, dir model.SignalDirection) float64 {
	if dir == model.DirectionBuy {
		return price * (1 - s.slippageRate/100)
	}
	return price * (1 + s.slippageRate/100)
}

func (s *simulator) commission(notional float64) float64 {
	return notional * s.commissionRate / 100
}

// size computes the risk-based position size: equity at risk divided by
// the stop distance, capped by the max position notional. Returns 0 when
// the stop distance is zero, which rejects the signal.
func (s *simulator) size(equity, entryPrice, stopLoss float64) float64 {
	stopDistance := entryPrice - stopLoss
	if stopDistance < 0 {
		stopDistance = -stopDistance
	}
	if stopDistance == 0 || entryPrice <= 0 {
		return 0
	}
	qty := equity * (s.riskPerTrade / 100) / stopDistance
	maxQty := equity * (s.maxPositionSize / 100) / entryPrice
	if qty > maxQty {
		qty = maxQty
	}
	return qty
}

// openPosition attempts to enter on an accepted signal. Sizing failures
// and insufficient cash are expected business outcomes: the signal is
// silently skipped and no state changes.
//
// Cash accounting: equity is tracked as cash plus unrealized P&L, so
// entry only debits the commission; the full cost (notional plus
// commission) is an affordability check against available cash.
func (s *simulator) openPosition(state *runState, signal model.TradingSignal, ts time.Time) *model.Position {
	qty := s.size(state.equity, signal.EntryPrice, signal.StopLoss)
	if qty <= 0 {
		return nil
	}

	fill := s.entryFill(signal.EntryPrice, signal.Direction)
	notional := fill * qty
	commission := s.commission(notional)
	if notional+commission > state.cash {
		return nil
	}

	state.cash -= commission
	state.seq++
	// Sequential ids keep identical runs byte-identical.
	pos := &model.Position{
		ID:            fmt.Sprintf("pos-%d", state.seq),
		Symbol:        signal.Symbol,
		Market:        signal.Market,
		Direction:     signal.Direction,
		EntryTime:     ts,
		EntryPrice:    fill,
		Quantity:      qty,
		StopLoss:      signal.StopLoss,
		TakeProfit:    signal.TakeProfit,
		CurrentPrice:  fill,
		UnrealizedPnL: 0,
		Status:        model.PositionOpen,
		Signal:        signal,
	}
	state.book.add(pos)
	s.listener.OnPositionOpened(*pos)
	return pos
}

// closePosition exits at the given market price, credits cash with the
// gross P&L minus exit commission, and moves the position to the
// closed-trade ledger. Entry commission was already debited at entry,
// so cash after all closes equals initial capital plus the summed net
// P&L of the ledger.
func (s *simulator) closePosition(state *runState, pos *model.Position, price float64, reason model.ExitReason, ts time.Time) model.ClosedTrade {
	fill := s.exitFill(price, pos.Direction)
	entryNotional := pos.EntryPrice * pos.Quantity
	exitNotional := fill * pos.Quantity
	entryCommission := s.commission(entryNotional)
	exitCommission := s.commission(exitNotional)

	gross := (fill - pos.EntryPrice) * pos.Quantity * pos.Direction.Multiplier()
	net := gross - entryCommission - exitCommission

	state.cash += gross - exitCommission
	state.book.remove(pos.Key())
	pos.Status = model.PositionClosed

	trade := model.ClosedTrade{
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Market:     pos.Market,
		Direction:  pos.Direction,
		EntryTime:  pos.EntryTime,
		EntryPrice: pos.EntryPrice,
		ExitTime:   ts,
		ExitPrice:  fill,
		Quantity:   pos.Quantity,
		GrossPnL:   gross,
		NetPnL:     net,
		Commission: entryCommission + exitCommission,
		ExitReason: reason,
		Signal:     pos.Signal,
	}
	state.trades = append(state.trades, trade)
	s.listener.OnPositionClosed(trade)
	return trade
}
