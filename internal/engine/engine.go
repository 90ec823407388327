// Package engine runs the chronological multi-instrument simulation: one
// shared cash account, one trade log per instrument, and the strategy
// assigned to each instrument.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"turtle/internal/domain"
	"turtle/internal/series"
	"turtle/internal/strategy"
)

// Portfolio owns the account and trade logs of a set of instruments and
// applies each instrument's strategy day by day. A Portfolio has a single
// mutator and is not safe for concurrent use.
type Portfolio struct {
	symbols    []string // ascending; fixes the per-date processing order
	series     map[string]*series.PriceSeries
	logs       map[string]*TradeLog
	account    *Account
	strategies *strategy.Registry
	factory    strategy.Factory
	risk       *RiskManager
	log        *slog.Logger
}

// NewPortfolio creates a Portfolio over the given series with an account
// seeded with initialCapital. factory builds strategies from parameter sets.
func NewPortfolio(
	list []*series.PriceSeries,
	initialCapital decimal.Decimal,
	factory strategy.Factory,
	log *slog.Logger,
) (*Portfolio, error) {
	if len(list) == 0 {
		return nil, errors.New("no instruments to simulate")
	}
	if factory == nil {
		return nil, errors.New("nil strategy factory")
	}
	if log == nil {
		log = slog.Default()
	}

	p := &Portfolio{
		series:     make(map[string]*series.PriceSeries, len(list)),
		logs:       make(map[string]*TradeLog, len(list)),
		account:    NewAccount(initialCapital),
		strategies: strategy.NewRegistry(),
		factory:    factory,
		risk:       NewRiskManager(),
		log:        log,
	}
	for _, s := range list {
		if _, dup := p.series[s.Symbol()]; dup {
			return nil, fmt.Errorf("duplicate instrument %s", s.Symbol())
		}
		p.series[s.Symbol()] = s
		p.logs[s.Symbol()] = NewTradeLog(s.Symbol())
		p.symbols = append(p.symbols, s.Symbol())
	}
	sort.Strings(p.symbols)
	return p, nil
}

// ---------------------------------------------------------------------------
// Strategy assignment
// ---------------------------------------------------------------------------

// SetStrategies replaces every strategy assignment with strategies built from
// params. Instruments missing from params are left without a strategy.
func (p *Portfolio) SetStrategies(params map[string]strategy.Params) error {
	reg := strategy.NewRegistry()
	for sym, prm := range params {
		s, ok := p.series[sym]
		if !ok {
			return fmt.Errorf("strategy for unknown instrument %s", sym)
		}
		st, err := p.factory(s, prm)
		if err != nil {
			return fmt.Errorf("building strategy for %s: %w", sym, err)
		}
		reg.Register(sym, st)
	}
	p.strategies = reg
	return nil
}

// AssignStrategy sets the strategy of a single instrument.
func (p *Portfolio) AssignStrategy(symbol string, prm strategy.Params) error {
	s, ok := p.series[symbol]
	if !ok {
		return fmt.Errorf("strategy for unknown instrument %s", symbol)
	}
	st, err := p.factory(s, prm)
	if err != nil {
		return fmt.Errorf("building strategy for %s: %w", symbol, err)
	}
	p.strategies.Register(symbol, st)
	return nil
}

// Strategies returns the active parameter set of every assigned instrument.
func (p *Portfolio) Strategies() map[string]strategy.Params {
	return p.strategies.Params()
}

// ---------------------------------------------------------------------------
// Simulation
// ---------------------------------------------------------------------------

// Simulate processes every date in [start, end] on which at least one
// instrument has a bar. A zero start or end leaves that side unbounded.
// Within a date instruments are processed in ascending symbol order, and the
// balance is recorded once all of them are done.
func (p *Portfolio) Simulate(start, end time.Time) error {
	for _, date := range p.dates(start, end) {
		for _, sym := range p.symbols {
			s := p.series[sym]
			if !s.Has(date) {
				continue
			}
			st, ok := p.strategies.Get(sym)
			if !ok {
				continue
			}

			var err error
			if p.logs[sym].InPosition() {
				err = p.manage(sym, st, date)
			} else if st.EnterPosition(date) {
				err = p.enter(sym, st, date)
			}
			if err != nil {
				return err
			}
		}
		p.account.Record(date)
	}
	return nil
}

// dates returns the distinct bar dates of all instruments within [start, end].
func (p *Portfolio) dates(start, end time.Time) []time.Time {
	seen := make(map[int64]time.Time)
	for _, sym := range p.symbols {
		for _, b := range p.series[sym].Between(start, end) {
			seen[b.Date.Unix()] = b.Date
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// manage closes the open position of sym on a take-profit exit signal or a
// stop-loss hit.
func (p *Portfolio) manage(sym string, st strategy.Strategy, date time.Time) error {
	s := p.series[sym]
	pos, _ := p.logs[sym].Last()

	profitable, err := pos.Profitable(s, date)
	if err != nil {
		return fmt.Errorf("pricing %s: %w", sym, err)
	}
	if profitable {
		if st.ExitPosition(date) {
			return p.closePosition(sym, date, domain.ExitTakeProfit)
		}
		return nil
	}

	stopped, err := pos.HasReachedStop(s, date)
	if err != nil {
		return fmt.Errorf("checking stop for %s: %w", sym, err)
	}
	if stopped {
		return p.closePosition(sym, date, domain.ExitStopLoss)
	}
	return nil
}

// enter sizes and opens a position for sym. Sizing problems skip the trade.
func (p *Portfolio) enter(sym string, st strategy.Strategy, date time.Time) error {
	s := p.series[sym]
	day := date.Format(time.DateOnly)

	size, err := st.PositionSize(date)
	if err != nil {
		p.log.Info("skipping entry", "symbol", sym, "date", day, "error", err)
		return nil
	}
	if size < 1 {
		p.log.Info("position size < 1, skipping entry", "symbol", sym, "date", day, "size", size)
		return nil
	}
	stop, err := st.StopLossPrice(date)
	if err != nil {
		p.log.Info("skipping entry", "symbol", sym, "date", day, "error", err)
		return nil
	}
	price, err := s.Close(date)
	if err != nil {
		return fmt.Errorf("pricing %s: %w", sym, err)
	}

	fitted := p.risk.FitSize(size, price, p.account.Balance())
	if fitted < 1 {
		p.log.Info("not enough balance to enter position",
			"symbol", sym, "date", day, "price", price, "balance", p.account.Balance().String())
		return nil
	}

	pos, err := p.logs[sym].Open(fitted, date, stop)
	if err != nil {
		return err
	}
	p.account.Debit(notional(fitted, price))
	p.log.Debug("opened position",
		"symbol", sym, "date", day, "size", pos.Size, "wanted", size,
		"price", price, "stop", stop, "balance", p.account.Balance().String())
	return nil
}

// closePosition closes the open position of sym at the close of date.
func (p *Portfolio) closePosition(sym string, date time.Time, reason domain.ExitReason) error {
	price, err := p.series[sym].Close(date)
	if err != nil {
		return fmt.Errorf("pricing %s: %w", sym, err)
	}
	pos, err := p.logs[sym].Close(date, reason)
	if err != nil {
		return err
	}
	p.account.Credit(notional(pos.Size, price))
	p.log.Debug("closed position",
		"symbol", sym, "date", date.Format(time.DateOnly), "size", pos.Size,
		"price", price, "reason", reason, "balance", p.account.Balance().String())
	return nil
}

// CloseAllOpenTrades liquidates every open position at the close of the
// latest bar on or before date.
func (p *Portfolio) CloseAllOpenTrades(date time.Time) error {
	for _, sym := range p.symbols {
		if !p.logs[sym].InPosition() {
			continue
		}
		if err := p.closePosition(sym, date, domain.ExitLiquidated); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Read-only views
// ---------------------------------------------------------------------------

// Symbols returns the instrument codes in processing order.
func (p *Portfolio) Symbols() []string {
	out := make([]string, len(p.symbols))
	copy(out, p.symbols)
	return out
}

// Series returns the price series of symbol.
func (p *Portfolio) Series(symbol string) (*series.PriceSeries, bool) {
	s, ok := p.series[symbol]
	return s, ok
}

// Trades returns a copy of the trade log of symbol.
func (p *Portfolio) Trades(symbol string) []Position {
	l, ok := p.logs[symbol]
	if !ok {
		return nil
	}
	return l.Positions()
}

// TradeLog returns the trade log of symbol. Callers must not mutate it.
func (p *Portfolio) TradeLog(symbol string) (*TradeLog, bool) {
	l, ok := p.logs[symbol]
	return l, ok
}

// InPosition reports whether symbol has an open position.
func (p *Portfolio) InPosition(symbol string) bool {
	l, ok := p.logs[symbol]
	return ok && l.InPosition()
}

// Balance returns the current cash balance.
func (p *Portfolio) Balance() decimal.Decimal { return p.account.Balance() }

// InitialBalance returns the starting cash balance.
func (p *Portfolio) InitialBalance() decimal.Decimal { return p.account.Initial() }

// Gain returns the cash balance change since the start.
func (p *Portfolio) Gain() decimal.Decimal { return p.account.Gain() }

// BalanceHistory returns the end-of-day balances in date order.
func (p *Portfolio) BalanceHistory() []BalancePoint { return p.account.History() }

// OpenValue returns the market value of all open positions at the close of
// the latest bar on or before date.
func (p *Portfolio) OpenValue(date time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, sym := range p.symbols {
		pos, ok := p.logs[sym].Last()
		if !ok || !pos.IsOpen() {
			continue
		}
		price, err := p.series[sym].Close(date)
		if err != nil {
			return decimal.Zero, fmt.Errorf("pricing %s: %w", sym, err)
		}
		total = total.Add(notional(pos.Size, price))
	}
	return total, nil
}
