// Package domain holds the core value types and sentinel errors shared by the
// backtesting packages.
package domain

import (
	"errors"
	"time"
)

// Market identifies the exchange family a set of instruments belongs to. It is
// used as a path segment by the bar store.
type Market string

const (
	MarketBR Market = "br"
	MarketUS Market = "us"
)

// Bar is one trading day of aggregated price and volume data for a symbol.
// Bars are immutable once loaded.
type Bar struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// TradeSide is the direction of a single operation inside a round-trip trade.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitLiquidated ExitReason = "liquidated"
)

var (
	// ErrInvalidState is returned when a position is opened while another is
	// open for the same instrument, or closed when none is open. It signals a
	// bug in the simulation loop and aborts the run.
	ErrInvalidState = errors.New("invalid position state")

	// ErrInsufficientData is returned by rolling-window queries made before
	// enough history exists.
	ErrInsufficientData = errors.New("insufficient history for window")

	// ErrUndefinedSizing is returned when the stop price is at or above the
	// current price, which leaves the position size undefined.
	ErrUndefinedSizing = errors.New("position size undefined")

	// ErrMalformedData is returned when a price series fails load-time
	// validation.
	ErrMalformedData = errors.New("malformed market data")

	// ErrNoData is returned by date lookups that precede the first bar.
	ErrNoData = errors.New("no data at or before date")
)

// Day truncates t to midnight UTC, the canonical key for daily bars.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
