// Package strategy defines the Strategy interface for entry/exit decision
// rules, the parameter set a strategy is built from, and a Registry holding
// the strategy assigned to each instrument.
package strategy

import (
	"fmt"
	"sort"
	"time"

	"turtle/internal/series"
)

// Strategy decides entries, exits, stops and sizes for one instrument.
type Strategy interface {
	// Name returns the identifier of the strategy implementation.
	Name() string

	// Params returns the parameter set the strategy was built with.
	Params() Params

	// EnterPosition reports whether a new position should be opened at date.
	EnterPosition(date time.Time) bool

	// ExitPosition reports whether an open position should be closed at date.
	ExitPosition(date time.Time) bool

	// StopLossPrice returns the stop for a position opened at date.
	StopLossPrice(date time.Time) (float64, error)

	// PositionSize returns the number of units to buy at date.
	PositionSize(date time.Time) (int64, error)
}

// Factory builds a Strategy for a price series from a parameter set.
type Factory func(s *series.PriceSeries, p Params) (Strategy, error)

// Params is the tunable parameter set of a breakout strategy.
type Params struct {
	EntryWindow    int     `json:"entry_window"`
	ExitWindow     int     `json:"exit_window"`
	InitialCapital float64 `json:"initial_capital"`

	// EntriesDisabled marks a strategy carried forward without a fresh
	// optimization: exits keep running, entries never fire.
	EntriesDisabled bool `json:"entries_disabled"`
}

// Validate checks the parameter ranges.
func (p Params) Validate() error {
	if p.EntryWindow < 0 {
		return fmt.Errorf("entry window %d must not be negative", p.EntryWindow)
	}
	if p.ExitWindow < 1 {
		return fmt.Errorf("exit window %d must be positive", p.ExitWindow)
	}
	if p.InitialCapital <= 0 {
		return fmt.Errorf("initial capital %v must be positive", p.InitialCapital)
	}
	return nil
}

// CanEnter reports whether the parameters allow new entries at all.
func (p Params) CanEnter() bool {
	return !p.EntriesDisabled && p.EntryWindow > 0
}

// Disable returns the carried-forward form of p: same exit window and
// capital, entries switched off.
func (p Params) Disable() Params {
	return Params{
		EntryWindow:     0,
		ExitWindow:      p.ExitWindow,
		InitialCapital:  p.InitialCapital,
		EntriesDisabled: true,
	}
}

func (p Params) String() string {
	if p.EntriesDisabled {
		return fmt.Sprintf("entry=off exit=%d", p.ExitWindow)
	}
	return fmt.Sprintf("entry=%d exit=%d", p.EntryWindow, p.ExitWindow)
}

// Rules are the fixed filters applied on top of Params.
type Rules struct {
	// MinVolume is the minimum traded volume on the entry day.
	MinVolume float64 `json:"min_volume"`
	// RiskFactor is the fraction of initial capital risked per trade.
	RiskFactor float64 `json:"risk_factor"`
}

// DefaultRules returns the 1,000,000 volume filter and 2% risk factor.
func DefaultRules() Rules {
	return Rules{MinVolume: 1_000_000, RiskFactor: 0.02}
}

// Registry holds the strategy assigned to each instrument, keyed by symbol.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register assigns s to symbol, replacing any previous assignment.
func (r *Registry) Register(symbol string, s Strategy) {
	r.strategies[symbol] = s
}

// Get retrieves the strategy for symbol. The second return value indicates
// whether one is assigned.
func (r *Registry) Get(symbol string) (Strategy, bool) {
	s, ok := r.strategies[symbol]
	return s, ok
}

// Len returns the number of assigned instruments.
func (r *Registry) Len() int { return len(r.strategies) }

// List returns a sorted slice of all assigned symbols.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Params returns the parameter set of every assigned strategy.
func (r *Registry) Params() map[string]Params {
	out := make(map[string]Params, len(r.strategies))
	for sym, s := range r.strategies {
		out[sym] = s.Params()
	}
	return out
}
