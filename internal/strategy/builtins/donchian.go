// Package builtins provides the strategy implementations that ship with
// turtle.
package builtins

import (
	"errors"
	"fmt"
	"math"
	"time"

	"turtle/internal/domain"
	"turtle/internal/series"
	"turtle/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Donchian)(nil)

// Donchian is a channel breakout strategy. It enters when the close breaks
// above the highest close of the entry window on sufficient volume, and exits
// when the close falls to the lowest close of the exit window, which also
// serves as the stop.
type Donchian struct {
	series *series.PriceSeries
	params strategy.Params
	rules  strategy.Rules
}

// NewDonchian creates a Donchian strategy over s.
func NewDonchian(s *series.PriceSeries, p strategy.Params, rules strategy.Rules) (*Donchian, error) {
	if s == nil {
		return nil, errors.New("nil price series")
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", s.Symbol(), err)
	}
	return &Donchian{series: s, params: p, rules: rules}, nil
}

// DonchianFactory returns a strategy.Factory producing Donchian strategies
// that share rules.
func DonchianFactory(rules strategy.Rules) strategy.Factory {
	return func(s *series.PriceSeries, p strategy.Params) (strategy.Strategy, error) {
		return NewDonchian(s, p, rules)
	}
}

// Name returns "donchian".
func (d *Donchian) Name() string { return "donchian" }

// Params returns the parameter set.
func (d *Donchian) Params() strategy.Params { return d.params }

// EnterPosition reports a breakout above the entry channel.
func (d *Donchian) EnterPosition(date time.Time) bool {
	if !d.params.CanEnter() {
		return false
	}
	if d.series.CountBefore(date) <= d.params.EntryWindow {
		return false
	}

	bar, err := d.series.Floor(date)
	if err != nil {
		return false
	}
	if bar.Volume < d.rules.MinVolume {
		return false
	}
	highest, err := series.Highest(d.series, d.params.EntryWindow, date)
	if err != nil {
		return false
	}
	return bar.Close > highest
}

// ExitPosition reports a close at or below the exit channel.
func (d *Donchian) ExitPosition(date time.Time) bool {
	if d.series.CountBefore(date) <= d.params.ExitWindow {
		return false
	}
	closePrice, err := d.series.Close(date)
	if err != nil {
		return false
	}
	lowest, err := series.Lowest(d.series, d.params.ExitWindow, date)
	if err != nil {
		return false
	}
	return closePrice <= lowest
}

// StopLossPrice returns the lowest close of the exit window before date.
func (d *Donchian) StopLossPrice(date time.Time) (float64, error) {
	return series.Lowest(d.series, d.params.ExitWindow, date)
}

// PositionSize risks RiskFactor of the initial capital on the distance
// between the close and the stop.
func (d *Donchian) PositionSize(date time.Time) (int64, error) {
	stop, err := d.StopLossPrice(date)
	if err != nil {
		return 0, err
	}
	closePrice, err := d.series.Close(date)
	if err != nil {
		return 0, err
	}
	risk := closePrice - stop
	if risk <= 0 {
		return 0, fmt.Errorf("%s at %s: close %v, stop %v: %w",
			d.series.Symbol(), date.Format(time.DateOnly), closePrice, stop, domain.ErrUndefinedSizing)
	}
	return int64(math.Floor(d.params.InitialCapital * d.rules.RiskFactor / risk)), nil
}
