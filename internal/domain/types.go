// Package domain defines the core value types shared across the quantbt
// engine: OHLCV bars, close-price series, signal and price panels, and
// trade ledger entries.
package domain

import "time"

// Bar is a single OHLCV bar for one symbol.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Series is a close-price time series for one symbol. Dates and Values
// have equal length and Dates is strictly ascending.
type Series struct {
	Dates  []time.Time
	Values []float64
}

// Len returns the number of observations in the series.
func (s Series) Len() int { return len(s.Dates) }

// Empty reports whether the series carries no observations.
func (s Series) Empty() bool { return len(s.Dates) == 0 }

// TradeSide distinguishes long and short round trips in the ledger.
type TradeSide string

const (
	TradeSideLong  TradeSide = "long"
	TradeSideShort TradeSide = "short"
)

// Trade is one completed round trip in the simulated portfolio.
type Trade struct {
	Symbol     string        `json:"symbol"`
	Side       TradeSide     `json:"side"`
	EntryTime  time.Time     `json:"entry_time"`
	ExitTime   time.Time     `json:"exit_time"`
	EntryPrice float64       `json:"entry_price"`
	ExitPrice  float64       `json:"exit_price"`
	Quantity   float64       `json:"quantity"`
	PnL        float64       `json:"pnl"`
	Duration   time.Duration `json:"duration"`
}
