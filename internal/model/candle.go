package model

import (
	"time"
)

// Candle represents a single market observation for an instrument.
type Candle struct {
	Symbol string    `json:"symbol" db:"symbol"`
	Market string    `json:"market" db:"market"`
	Time   time.Time `json:"time" db:"candle_time"`
	Open   float64   `json:"open" db:"open"`
	High   float64   `json:"high" db:"high"`
	Low    float64   `json:"low" db:"low"`
	Close  float64   `json:"close" db:"close"`
	Volume float64   `json:"volume" db:"volume"`
}

// Instrument returns the instrument this candle belongs to.
func (c Candle) Instrument() Instrument {
	return Instrument{Symbol: c.Symbol, Market: c.Market}
}

// Series maps an instrument key to its chronological candle list.
type Series map[string][]Candle

// DateRange represents the span of available data for an instrument.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
