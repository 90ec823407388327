package engine

import (
	"errors"
	"fmt"
	"time"

	"turtle/internal/domain"
	"turtle/internal/series"
)

// Position is one long trade in a single instrument. It is open while
// ExitDate is zero. Positions carry only the instrument code; prices are
// looked up in the PriceSeries passed to each method.
type Position struct {
	Symbol     string
	Size       int64
	StopPrice  float64
	EntryDate  time.Time
	ExitDate   time.Time
	ExitReason domain.ExitReason
}

// IsOpen reports whether the position has not been closed yet.
func (p Position) IsOpen() bool { return p.ExitDate.IsZero() }

// EntryPrice is the close on the entry date.
func (p Position) EntryPrice(s *series.PriceSeries) (float64, error) {
	if p.EntryDate.IsZero() {
		return 0, errors.New("position has no entry date")
	}
	return s.Close(p.EntryDate)
}

// ExitPrice is the close on the exit date.
func (p Position) ExitPrice(s *series.PriceSeries) (float64, error) {
	if p.IsOpen() {
		return 0, fmt.Errorf("%s: no exit price for open position: %w", p.Symbol, domain.ErrInvalidState)
	}
	return s.Close(p.ExitDate)
}

// Profit is the per-unit price change from entry to asOf, or to the exit
// date when asOf is zero.
func (p Position) Profit(s *series.PriceSeries, asOf time.Time) (float64, error) {
	entry, err := p.EntryPrice(s)
	if err != nil {
		return 0, err
	}
	if asOf.IsZero() {
		if p.IsOpen() {
			return 0, fmt.Errorf("%s: open position needs a date to price profit: %w", p.Symbol, domain.ErrInvalidState)
		}
		asOf = p.ExitDate
	}
	last, err := s.Close(asOf)
	if err != nil {
		return 0, err
	}
	return last - entry, nil
}

// Profitable reports whether Profit at date is strictly positive.
func (p Position) Profitable(s *series.PriceSeries, date time.Time) (bool, error) {
	profit, err := p.Profit(s, date)
	if err != nil {
		return false, err
	}
	return profit > 0, nil
}

// HasReachedStop reports whether the close at date is at or below the stop.
// The position must be open.
func (p Position) HasReachedStop(s *series.PriceSeries, date time.Time) (bool, error) {
	if !p.IsOpen() {
		return false, fmt.Errorf("%s: stop check on closed position: %w", p.Symbol, domain.ErrInvalidState)
	}
	closePrice, err := s.Close(date)
	if err != nil {
		return false, err
	}
	return closePrice <= p.StopPrice, nil
}

func (p Position) String() string {
	if p.IsOpen() {
		return fmt.Sprintf("%s size=%d stop=%v entry=%s", p.Symbol, p.Size, p.StopPrice, p.EntryDate.Format(time.DateOnly))
	}
	return fmt.Sprintf("%s size=%d stop=%v entry=%s exit=%s (%s)", p.Symbol, p.Size, p.StopPrice,
		p.EntryDate.Format(time.DateOnly), p.ExitDate.Format(time.DateOnly), p.ExitReason)
}

// TradeLog is the append-only trade history of one instrument. At most the
// last position is open.
type TradeLog struct {
	symbol    string
	positions []Position
}

// NewTradeLog creates an empty TradeLog for symbol.
func NewTradeLog(symbol string) *TradeLog {
	return &TradeLog{symbol: symbol}
}

// Symbol returns the instrument code.
func (l *TradeLog) Symbol() string { return l.symbol }

// Len returns the number of positions ever opened.
func (l *TradeLog) Len() int { return len(l.positions) }

// Last returns the most recent position.
func (l *TradeLog) Last() (Position, bool) {
	if len(l.positions) == 0 {
		return Position{}, false
	}
	return l.positions[len(l.positions)-1], true
}

// InPosition reports whether the last position is open.
func (l *TradeLog) InPosition() bool {
	p, ok := l.Last()
	return ok && p.IsOpen()
}

// Open appends a new open position.
func (l *TradeLog) Open(size int64, date time.Time, stop float64) (Position, error) {
	if l.InPosition() {
		return Position{}, fmt.Errorf("opening %s on %s: position already open: %w",
			l.symbol, date.Format(time.DateOnly), domain.ErrInvalidState)
	}
	if size < 1 {
		return Position{}, fmt.Errorf("opening %s with size %d: %w", l.symbol, size, domain.ErrInvalidState)
	}
	p := Position{
		Symbol:    l.symbol,
		Size:      size,
		StopPrice: stop,
		EntryDate: domain.Day(date),
	}
	l.positions = append(l.positions, p)
	return p, nil
}

// Close sets the exit date of the open position.
func (l *TradeLog) Close(date time.Time, reason domain.ExitReason) (Position, error) {
	if !l.InPosition() {
		return Position{}, fmt.Errorf("closing %s on %s: no open position: %w",
			l.symbol, date.Format(time.DateOnly), domain.ErrInvalidState)
	}
	last := &l.positions[len(l.positions)-1]
	last.ExitDate = domain.Day(date)
	last.ExitReason = reason
	return *last, nil
}

// Positions returns a copy of every position in opening order.
func (l *TradeLog) Positions() []Position {
	out := make([]Position, len(l.positions))
	copy(out, l.positions)
	return out
}

// OpenedAt returns the position entered on date, if any.
func (l *TradeLog) OpenedAt(date time.Time) (Position, bool) {
	date = domain.Day(date)
	for _, p := range l.positions {
		if p.EntryDate.Equal(date) {
			return p, true
		}
	}
	return Position{}, false
}

// ClosedAt returns the position exited on date, if any.
func (l *TradeLog) ClosedAt(date time.Time) (Position, bool) {
	date = domain.Day(date)
	for _, p := range l.positions {
		if !p.IsOpen() && p.ExitDate.Equal(date) {
			return p, true
		}
	}
	return Position{}, false
}
