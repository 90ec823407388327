package series

import (
	"fmt"
	"time"

	"turtle/internal/domain"
)

// Highest returns the maximum close over the window bars immediately
// preceding date's bar. It requires CountBefore(date) > window and returns
// domain.ErrInsufficientData otherwise.
func Highest(s *PriceSeries, window int, date time.Time) (float64, error) {
	closes, err := s.trailing(window, date)
	if err != nil {
		return 0, err
	}
	hi := closes[0].Close
	for _, b := range closes[1:] {
		if b.Close > hi {
			hi = b.Close
		}
	}
	return hi, nil
}

// Lowest returns the minimum close over the window bars immediately preceding
// date's bar, under the same precondition as Highest.
func Lowest(s *PriceSeries, window int, date time.Time) (float64, error) {
	closes, err := s.trailing(window, date)
	if err != nil {
		return 0, err
	}
	lo := closes[0].Close
	for _, b := range closes[1:] {
		if b.Close < lo {
			lo = b.Close
		}
	}
	return lo, nil
}

// trailing returns the window bars ending strictly before date.
func (s *PriceSeries) trailing(window int, date time.Time) ([]domain.Bar, error) {
	if window < 1 {
		return nil, fmt.Errorf("window %d: %w", window, domain.ErrInsufficientData)
	}
	n := s.CountBefore(date)
	if n <= window {
		return nil, fmt.Errorf("%s at %s: %d bars before date, window %d: %w",
			s.symbol, date.Format(time.DateOnly), n, window, domain.ErrInsufficientData)
	}
	return s.bars[n-window : n], nil
}
