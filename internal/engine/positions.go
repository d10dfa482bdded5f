package engine

import (
	"sort"
	"time"

	"github.com/yourorg/backtest-service/internal/model"
)

// positionBook owns the set of open positions for one run, keyed by
// instrument. At most one open position exists per instrument; entry
// signals for an occupied key are ignored upstream.
type positionBook struct {
	open map[string]*model.Position
}

func newPositionBook() *positionBook {
	return &positionBook{open: make(map[string]*model.Position)}
}

func (b *positionBook) has(key string) bool {
	_, ok := b.open[key]
	return ok
}

func (b *positionBook) add(pos *model.Position) {
	b.open[pos.Key()] = pos
}

func (b *positionBook) remove(key string) {
	delete(b.open, key)
}

func (b *positionBook) size() int {
	return len(b.open)
}

// all returns the open positions in stable instrument-key order so a run
// replays identically.
func (b *positionBook) all() []*model.Position {
	keys := make([]string, 0, len(b.open))
	for k := range b.open {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*model.Position, 0, len(keys))
	for _, k := range keys {
		out = append(out, b.open[k])
	}
	return out
}

// markToMarket refreshes a position with the latest carried-forward
// observation at or before ts. Returns false when no observation exists
// yet, in which case the position is left untouched this tick.
func (b *positionBook) markToMarket(pos *model.Position, data MarketDataSource, ts time.Time) bool {
	candle, ok := data.ObservationAt(model.Instrument{Symbol: pos.Symbol, Market: pos.Market}, ts)
	if !ok {
		return false
	}
	pos.CurrentPrice = candle.Close
	pos.UnrealizedPnL = (pos.CurrentPrice - pos.EntryPrice) * pos.Quantity * pos.Direction.Multiplier()
	return true
}

// exitReason evaluates stop-loss and take-profit triggers against the
// position's current price. Long positions close at price <= stop or
// price >= target; shorts are mirrored. Returns "" when no exit fires.
func exitReason(pos *model.Position) model.ExitReason {
	price := pos.CurrentPrice
	if pos.Direction == model.DirectionBuy {
		if pos.StopLoss > 0 && price <= pos.StopLoss {
			return model.ExitStopLoss
		}
		if pos.TakeProfit > 0 && price >= pos.TakeProfit {
			return model.ExitTakeProfit
		}
		return ""
	}
	if pos.StopLoss > 0 && price >= pos.StopLoss {
		return model.ExitStopLoss
	}
	if pos.TakeProfit > 0 && price <= pos.TakeProfit {
		return model.ExitTakeProfit
	}
	return ""
}

// unrealizedTotal sums the unrealized P&L across all open positions.
func (b *positionBook) unrealizedTotal() float64 {
	total := 0.0
	for _, pos := range b.open {
		total += pos.UnrealizedPnL
	}
	return total
}
