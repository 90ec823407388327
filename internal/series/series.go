// Package series holds per-instrument daily price history and the rolling
// window queries the breakout strategy is built on.
package series

import (
	"fmt"
	"math"
	"sort"
	"time"

	"turtle/internal/domain"
)

// PriceSeries is the ordered daily bar history of one instrument. It is built
// once at load time and never mutated afterwards, so it is safe to share
// between goroutines.
type PriceSeries struct {
	symbol string
	bars   []domain.Bar
}

// New validates bars and returns a PriceSeries. Bars are sorted by date
// first; duplicate dates, non-finite prices and negative volumes are rejected
// with domain.ErrMalformedData. Dates are normalized to UTC midnight.
func New(symbol string, bars []domain.Bar) (*PriceSeries, error) {
	sorted := make([]domain.Bar, len(bars))
	for i, b := range bars {
		b.Date = domain.Day(b.Date)
		if b.Symbol == "" {
			b.Symbol = symbol
		}
		sorted[i] = b
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	for i, b := range sorted {
		if b.Symbol != symbol {
			return nil, fmt.Errorf("%s: bar %s belongs to %s: %w", symbol, b.Date.Format(time.DateOnly), b.Symbol, domain.ErrMalformedData)
		}
		for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%s: non-finite value on %s: %w", symbol, b.Date.Format(time.DateOnly), domain.ErrMalformedData)
			}
		}
		if b.Volume < 0 {
			return nil, fmt.Errorf("%s: negative volume on %s: %w", symbol, b.Date.Format(time.DateOnly), domain.ErrMalformedData)
		}
		if i > 0 && !sorted[i-1].Date.Before(b.Date) {
			return nil, fmt.Errorf("%s: duplicate date %s: %w", symbol, b.Date.Format(time.DateOnly), domain.ErrMalformedData)
		}
	}

	return &PriceSeries{symbol: symbol, bars: sorted}, nil
}

// Symbol returns the instrument code.
func (s *PriceSeries) Symbol() string { return s.symbol }

// Len returns the number of bars.
func (s *PriceSeries) Len() int { return len(s.bars) }

// Bars returns a copy of the full bar history in date order.
func (s *PriceSeries) Bars() []domain.Bar {
	out := make([]domain.Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// Dates returns every bar date in ascending order.
func (s *PriceSeries) Dates() []time.Time {
	out := make([]time.Time, len(s.bars))
	for i := range s.bars {
		out[i] = s.bars[i].Date
	}
	return out
}

// CountBefore returns the number of bars dated strictly before date.
func (s *PriceSeries) CountBefore(date time.Time) int {
	date = domain.Day(date)
	return sort.Search(len(s.bars), func(i int) bool {
		return !s.bars[i].Date.Before(date)
	})
}

// floorIndex is the index of the latest bar dated on or before date, or -1.
func (s *PriceSeries) floorIndex(date time.Time) int {
	date = domain.Day(date)
	n := sort.Search(len(s.bars), func(i int) bool {
		return s.bars[i].Date.After(date)
	})
	return n - 1
}

// Has reports whether a bar exists exactly on date.
func (s *PriceSeries) Has(date time.Time) bool {
	i := s.floorIndex(date)
	return i >= 0 && s.bars[i].Date.Equal(domain.Day(date))
}

// Floor returns the latest bar dated on or before date. Querying before the
// first bar returns domain.ErrNoData.
func (s *PriceSeries) Floor(date time.Time) (domain.Bar, error) {
	i := s.floorIndex(date)
	if i < 0 {
		return domain.Bar{}, fmt.Errorf("%s at %s: %w", s.symbol, date.Format(time.DateOnly), domain.ErrNoData)
	}
	return s.bars[i], nil
}

// Close returns the closing price of the floor bar for date.
func (s *PriceSeries) Close(date time.Time) (float64, error) {
	b, err := s.Floor(date)
	if err != nil {
		return 0, err
	}
	return b.Close, nil
}

// Volume returns the volume of the floor bar for date.
func (s *PriceSeries) Volume(date time.Time) (float64, error) {
	b, err := s.Floor(date)
	if err != nil {
		return 0, err
	}
	return b.Volume, nil
}

// Between returns the bars dated within [start, end]. A zero start or end
// leaves that side unbounded.
func (s *PriceSeries) Between(start, end time.Time) []domain.Bar {
	lo := 0
	if !start.IsZero() {
		lo = s.CountBefore(start)
	}
	hi := len(s.bars)
	if !end.IsZero() {
		hi = s.floorIndex(end) + 1
	}
	if lo >= hi {
		return nil
	}
	out := make([]domain.Bar, hi-lo)
	copy(out, s.bars[lo:hi])
	return out
}
