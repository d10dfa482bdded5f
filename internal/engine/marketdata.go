package engine

import (
	"sort"
	"time"

	"github.com/yourorg/backtest-service/internal/model"
)

// MarketDataSource supplies historical observations to a run. Lookups use
// last-observation-carried-forward semantics: ObservationAt returns the
// most recent candle at or before the timestamp, never a later one.
// Implementations must be read-only once a run starts; optimization
// iterations share a single source.
type MarketDataSource interface {
	Instruments() []model.Instrument
	Timeline(start, end time.Time) []time.Time
	ObservationAt(inst model.Instrument, ts time.Time) (model.Candle, bool)
	ExactAt(inst model.Instrument, ts time.Time) (model.Candle, bool)
}

// SignalSource generates entry candidates from market observations. The
// engine treats it as a pure function: identical observation sequences
// must yield identical signals.
type SignalSource interface {
	GenerateSignal(inst model.Instrument, candle model.Candle) *model.TradingSignal
}

// SeriesSource is the in-memory MarketDataSource backed by sorted
// per-instrument candle slices.
type SeriesSource struct {
	series      model.Series
	instruments []model.Instrument
}

// NewSeriesSource builds a source from raw series. Candles are copied and
// sorted ascending per instrument so callers may reuse their slices.
func NewSeriesSource(candles map[model.Instrument][]model.Candle) *SeriesSource {
	series := make(model.Series, len(candles))
	instruments := make([]model.Instrument, 0, len(candles))
	for inst, list := range candles {
		sorted := make([]model.Candle, len(list))
		copy(sorted, list)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
		series[inst.Key()] = sorted
		instruments = append(instruments, inst)
	}
	sort.Slice(instruments, func(i, j int) bool { return instruments[i].Key() < instruments[j].Key() })
	return &SeriesSource{series: series, instruments: instruments}
}

// Instruments lists the instruments with data, in stable key order.
func (s *SeriesSource) Instruments() []model.Instrument {
	return s.instruments
}

// Timeline returns the merged timestamp sequence for the window.
func (s *SeriesSource) Timeline(start, end time.Time) []time.Time {
	return BuildTimeline(s.series, start, end)
}

// ObservationAt returns the latest candle at or before ts for the
// instrument, carrying the last observation forward across gaps.
func (s *SeriesSource) ObservationAt(inst model.Instrument, ts time.Time) (model.Candle, bool) {
	candles := s.series[inst.Key()]
	// first index with Time > ts; the candle before it is the answer
	idx := sort.Search(len(candles), func(i int) bool { return candles[i].Time.After(ts) })
	if idx == 0 {
		return model.Candle{}, false
	}
	return candles[idx-1], true
}

// ExactAt returns the candle observed exactly at ts, if any.
func (s *SeriesSource) ExactAt(inst model.Instrument, ts time.Time) (model.Candle, bool) {
	candles := s.series[inst.Key()]
	idx := sort.Search(len(candles), func(i int) bool { return !candles[i].Time.Before(ts) })
	if idx < len(candles) && candles[idx].Time.Equal(ts) {
		return candles[idx], true
	}
	return model.Candle{}, false
}
