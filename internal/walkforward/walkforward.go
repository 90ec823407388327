// Package walkforward re-optimizes strategy parameters month by month: each
// instrument is grid-searched on the previous month, and the winners drive
// the live portfolio through the following month.
package walkforward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"turtle/internal/engine"
	"turtle/internal/series"
	"turtle/internal/strategy"
	"turtle/internal/util"
)

// Grid is the inclusive range of entry and exit windows searched.
type Grid struct {
	EntryMin int `json:"entry_min"`
	EntryMax int `json:"entry_max"`
	ExitMin  int `json:"exit_min"`
	ExitMax  int `json:"exit_max"`
}

// DefaultGrid searches entry windows 10..20 and exit windows 2..10.
func DefaultGrid() Grid {
	return Grid{EntryMin: 10, EntryMax: 20, ExitMin: 2, ExitMax: 10}
}

// Validate checks that the grid is non-empty and produces valid parameters.
func (g Grid) Validate() error {
	if g.EntryMin < 1 || g.EntryMax < g.EntryMin {
		return fmt.Errorf("bad entry window range [%d,%d]", g.EntryMin, g.EntryMax)
	}
	if g.ExitMin < 1 || g.ExitMax < g.ExitMin {
		return fmt.Errorf("bad exit window range [%d,%d]", g.ExitMin, g.ExitMax)
	}
	return nil
}

// Params returns every grid point for capital, entry window ascending then
// exit window ascending. This order is the tie-break order.
func (g Grid) Params(capital float64) []strategy.Params {
	var out []strategy.Params
	for entry := g.EntryMin; entry <= g.EntryMax; entry++ {
		for exit := g.ExitMin; exit <= g.ExitMax; exit++ {
			out = append(out, strategy.Params{EntryWindow: entry, ExitWindow: exit, InitialCapital: capital})
		}
	}
	return out
}

// Selection is the winning parameter set of one instrument for one month.
type Selection struct {
	Symbol string          `json:"symbol"`
	Params strategy.Params `json:"params"`
	Gain   decimal.Decimal `json:"gain"`
	Trades int             `json:"trades"`
}

// Month records what happened in one walk-forward step.
type Month struct {
	Window util.MonthWindow
	// Selections holds the fresh winners in ascending symbol order.
	Selections []Selection
	// Carried lists instruments kept from the previous month with entries
	// disabled.
	Carried []string
	// Active is the merged parameter set applied to the test month.
	Active map[string]strategy.Params
	// Balance is the cash balance after the test month.
	Balance decimal.Decimal
}

// Result summarizes a walk-forward run.
type Result struct {
	Months         []Month
	InitialBalance decimal.Decimal
	FinalBalance   decimal.Decimal
}

// Optimizer drives the monthly optimize-merge-simulate loop.
type Optimizer struct {
	backtester *Backtester
	grid       Grid
	capital    float64
	workers    int
	log        *slog.Logger
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithGrid overrides the default parameter grid.
func WithGrid(g Grid) Option { return func(o *Optimizer) { o.grid = g } }

// WithWorkers bounds the number of concurrent grid trials. Values below 1
// fall back to GOMAXPROCS.
func WithWorkers(n int) Option { return func(o *Optimizer) { o.workers = n } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *Optimizer) { o.log = l } }

// NewOptimizer creates an Optimizer whose trials start with capital and whose
// strategies are built by factory.
func NewOptimizer(factory strategy.Factory, capital float64, opts ...Option) (*Optimizer, error) {
	if factory == nil {
		return nil, errors.New("nil strategy factory")
	}
	if capital <= 0 {
		return nil, fmt.Errorf("initial capital %v must be positive", capital)
	}
	o := &Optimizer{
		grid:    DefaultGrid(),
		capital: capital,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.grid.Validate(); err != nil {
		return nil, err
	}
	if o.workers < 1 {
		o.workers = runtime.GOMAXPROCS(0)
	}
	o.backtester = NewBacktester(factory, decimal.NewFromFloat(capital))
	return o, nil
}

// Optimize grid-searches s over [start, end]. It returns the parameter set
// with the strictly greatest positive gain; ties keep the earliest grid
// point. ok is false when no parameter set made money.
func (o *Optimizer) Optimize(ctx context.Context, s *series.PriceSeries, start, end time.Time) (sel Selection, ok bool, err error) {
	grid := o.grid.Params(o.capital)
	results := make([]BacktestResult, len(grid))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, p := range grid {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := o.backtester.Run(s, p, start, end)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Selection{}, false, err
	}

	// Reduce in grid order so parallel runs pick what a sequential scan would.
	best := decimal.Zero
	for _, r := range results {
		if r.Gain.GreaterThan(best) {
			best = r.Gain
			sel = Selection{Symbol: s.Symbol(), Params: r.Params, Gain: r.Gain, Trades: r.TotalTrades}
			ok = true
		}
	}
	return sel, ok, nil
}

// Merge combines last month's active parameters with this month's fresh
// selections. Fresh selections win; instruments without one keep their
// previous exit window with entries disabled.
func Merge(previous, fresh map[string]strategy.Params) map[string]strategy.Params {
	merged := make(map[string]strategy.Params, len(previous)+len(fresh))
	for sym, p := range fresh {
		merged[sym] = p
	}
	for sym, p := range previous {
		if _, ok := fresh[sym]; !ok {
			merged[sym] = p.Disable()
		}
	}
	return merged
}

// Run walks p forward over [start, end] one month at a time and liquidates
// every open position at end. p keeps its positions, trade logs and balance
// across months.
func (o *Optimizer) Run(ctx context.Context, p *engine.Portfolio, start, end time.Time) (*Result, error) {
	windows := util.MonthWindows(start, end)
	if len(windows) == 0 {
		o.log.Warn("date range shorter than two months, nothing to walk", "start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly))
	}

	res := &Result{InitialBalance: p.InitialBalance()}
	active := make(map[string]strategy.Params)

	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		month := Month{Window: w}
		fresh := make(map[string]strategy.Params)
		for _, sym := range p.Symbols() {
			s, _ := p.Series(sym)
			sel, ok, err := o.Optimize(ctx, s, w.TrainStart, w.TrainEnd)
			if err != nil {
				return nil, fmt.Errorf("optimizing %s for %s: %w", sym, w.TestStart.Format("2006-01"), err)
			}
			if !ok {
				continue
			}
			fresh[sym] = sel.Params
			month.Selections = append(month.Selections, sel)
		}

		merged := Merge(active, fresh)
		for _, sym := range p.Symbols() {
			if prm, ok := merged[sym]; ok && prm.EntriesDisabled {
				if _, isFresh := fresh[sym]; !isFresh {
					month.Carried = append(month.Carried, sym)
				}
			}
		}

		o.log.Info("analyzing month",
			"test_start", w.TestStart.Format(time.DateOnly),
			"test_end", w.TestEnd.Format(time.DateOnly),
			"train_start", w.TrainStart.Format(time.DateOnly),
			"train_end", w.TrainEnd.Format(time.DateOnly),
			"selected", len(month.Selections),
			"carried", len(month.Carried),
		)

		if err := p.SetStrategies(merged); err != nil {
			return nil, err
		}
		if err := p.Simulate(w.TestStart, w.TestEnd); err != nil {
			return nil, fmt.Errorf("simulating %s: %w", w.TestStart.Format("2006-01"), err)
		}

		month.Active = merged
		month.Balance = p.Balance()
		res.Months = append(res.Months, month)
		active = merged
	}

	if err := p.CloseAllOpenTrades(end); err != nil {
		return nil, fmt.Errorf("closing open trades: %w", err)
	}
	res.FinalBalance = p.Balance()
	o.log.Info("walk-forward finished",
		"months", len(res.Months),
		"initial", res.InitialBalance.String(),
		"final", res.FinalBalance.String(),
	)
	return res, nil
}
