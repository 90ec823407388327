package walkforward

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"turtle/internal/engine"
	"turtle/internal/series"
	"turtle/internal/strategy"
)

// BacktestResult holds the summary of one isolated backtest.
type BacktestResult struct {
	Params       strategy.Params
	FinalBalance decimal.Decimal
	Gain         decimal.Decimal
	TotalTrades  int
	Winners      int
}

// Backtester runs a single parameter set against one instrument with a fresh
// account and trade log. It only reads the shared price series, so many
// backtests may run concurrently.
type Backtester struct {
	factory strategy.Factory
	capital decimal.Decimal
	log     *slog.Logger
}

// NewBacktester creates a Backtester whose accounts start with capital.
func NewBacktester(factory strategy.Factory, capital decimal.Decimal) *Backtester {
	return &Backtester{
		factory: factory,
		capital: capital,
		log:     slog.New(slog.DiscardHandler),
	}
}

// Run simulates p over [start, end], liquidates whatever is still open at end
// and reports the resulting gain.
func (bt *Backtester) Run(s *series.PriceSeries, p strategy.Params, start, end time.Time) (BacktestResult, error) {
	pf, err := engine.NewPortfolio([]*series.PriceSeries{s}, bt.capital, bt.factory, bt.log)
	if err != nil {
		return BacktestResult{}, err
	}
	if err := pf.AssignStrategy(s.Symbol(), p); err != nil {
		return BacktestResult{}, err
	}
	if err := pf.Simulate(start, end); err != nil {
		return BacktestResult{}, fmt.Errorf("backtesting %s %s: %w", s.Symbol(), p, err)
	}
	if err := pf.CloseAllOpenTrades(end); err != nil {
		return BacktestResult{}, fmt.Errorf("liquidating %s %s: %w", s.Symbol(), p, err)
	}

	res := BacktestResult{
		Params:       p,
		FinalBalance: pf.Balance(),
		Gain:         pf.Gain(),
	}
	for _, pos := range pf.Trades(s.Symbol()) {
		res.TotalTrades++
		if ok, err := pos.Profitable(s, time.Time{}); err == nil && ok {
			res.Winners++
		}
	}
	return res, nil
}
