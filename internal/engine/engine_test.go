package engine

import (
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turtle/internal/domain"
	"turtle/internal/series"
	"turtle/internal/strategy"
	"turtle/internal/strategy/builtins"
)

var day0 = time.Date(2014, 1, 2, 0, 0, 0, 0, time.UTC)

func at(i int) time.Time { return day0.AddDate(0, 0, i) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildSeries(t *testing.T, symbol string, offset int, closes ...float64) *series.PriceSeries {
	t.Helper()
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Date: at(offset + i), High: c, Low: c, Close: c, Volume: 2_000_000}
	}
	s, err := series.New(symbol, bars)
	require.NoError(t, err)
	return s
}

func newPortfolio(t *testing.T, capital int64, list ...*series.PriceSeries) *Portfolio {
	t.Helper()
	p, err := NewPortfolio(list, decimal.NewFromInt(capital), builtins.DonchianFactory(strategy.DefaultRules()), quietLogger())
	require.NoError(t, err)
	return p
}

func params(entry, exit int) strategy.Params {
	return strategy.Params{EntryWindow: entry, ExitWindow: exit, InitialCapital: 10000}
}

func TestNewPortfolioValidation(t *testing.T) {
	t.Parallel()
	_, err := NewPortfolio(nil, decimal.NewFromInt(1), builtins.DonchianFactory(strategy.DefaultRules()), nil)
	assert.Error(t, err)

	s := buildSeries(t, "PETR4", 0, 1, 2)
	_, err = NewPortfolio([]*series.PriceSeries{s, s}, decimal.NewFromInt(1), builtins.DonchianFactory(strategy.DefaultRules()), nil)
	assert.Error(t, err, "duplicate instrument")

	_, err = NewPortfolio([]*series.PriceSeries{s}, decimal.NewFromInt(1), nil, nil)
	assert.Error(t, err, "nil factory")
}

func TestSimulateStopLossExample(t *testing.T) {
	t.Parallel()
	s := buildSeries(t, "PETR4", 0, 10, 10, 10, 15, 5)
	p := newPortfolio(t, 10000, s)
	require.NoError(t, p.SetStrategies(map[string]strategy.Params{"PETR4": params(2, 2)}))

	require.NoError(t, p.Simulate(time.Time{}, time.Time{}))

	trades := p.Trades("PETR4")
	require.Len(t, trades, 1)
	assert.Equal(t, int64(40), trades[0].Size)
	assert.Equal(t, 10.0, trades[0].StopPrice)
	assert.True(t, trades[0].EntryDate.Equal(at(3)))
	assert.True(t, trades[0].ExitDate.Equal(at(4)))
	assert.Equal(t, domain.ExitStopLoss, trades[0].ExitReason)

	history := p.BalanceHistory()
	require.Len(t, history, 5)
	assert.True(t, history[3].Balance.Equal(decimal.NewFromInt(9400)), "balance after entry = %s", history[3].Balance)
	assert.True(t, p.Balance().Equal(decimal.NewFromInt(9600)), "final balance = %s", p.Balance())
	assert.True(t, p.Gain().Equal(decimal.NewFromInt(-400)))
	assert.False(t, p.InPosition("PETR4"))
}

func TestSimulateTakeProfit(t *testing.T) {
	t.Parallel()
	s := buildSeries(t, "VALE5", 0, 10, 10, 10, 15, 20, 21, 16)
	p := newPortfolio(t, 10000, s)
	require.NoError(t, p.AssignStrategy("VALE5", params(2, 2)))

	require.NoError(t, p.Simulate(time.Time{}, time.Time{}))

	trades := p.Trades("VALE5")
	require.Len(t, trades, 1)
	assert.Equal(t, domain.ExitTakeProfit, trades[0].ExitReason)
	assert.True(t, trades[0].ExitDate.Equal(at(6)))
	assert.True(t, p.Balance().Equal(decimal.NewFromInt(10040)), "final balance = %s", p.Balance())
}

func TestSimulateCapitalConstraint(t *testing.T) {
	t.Parallel()
	s := buildSeries(t, "PETR4", 0, 10, 10, 10, 15, 15)
	p := newPortfolio(t, 300, s)
	require.NoError(t, p.SetStrategies(map[string]strategy.Params{"PETR4": params(2, 2)}))

	require.NoError(t, p.Simulate(time.Time{}, time.Time{}))

	trades := p.Trades("PETR4")
	require.Len(t, trades, 1)
	assert.Equal(t, int64(20), trades[0].Size, "40 units shrink to the 20 that 300 buys at 15")
	assert.True(t, p.Balance().IsZero())
}

func TestSimulateUnaffordableSkips(t *testing.T) {
	t.Parallel()
	s := buildSeries(t, "PETR4", 0, 10, 10, 10, 15, 15)
	p := newPortfolio(t, 14, s)
	require.NoError(t, p.SetStrategies(map[string]strategy.Params{"PETR4": params(2, 2)}))

	require.NoError(t, p.Simulate(time.Time{}, time.Time{}))

	assert.Empty(t, p.Trades("PETR4"))
	assert.True(t, p.Balance().Equal(decimal.NewFromInt(14)))
	assert.Len(t, p.BalanceHistory(), 5)
}

func TestSimulateWithoutStrategy(t *testing.T) {
	t.Parallel()
	s := buildSeries(t, "PETR4", 0, 10, 10, 10, 15, 5)
	p := newPortfolio(t, 10000, s)

	require.NoError(t, p.Simulate(time.Time{}, time.Time{}))

	assert.Empty(t, p.Trades("PETR4"))
	assert.Len(t, p.BalanceHistory(), 5, "balance is recorded even when nothing trades")
}

func TestSimulateBalanceHistoryLength(t *testing.T) {
	t.Parallel()
	a := buildSeries(t, "ABEV3", 0, 1, 2, 3, 4, 5, 6)
	b := buildSeries(t, "BBDC4", 3, 1, 2, 3, 4, 5, 6)
	p := newPortfolio(t, 10000, a, b)
	require.NoError(t, p.SetStrategies(map[string]strategy.Params{"ABEV3": params(2, 2), "BBDC4": params(2, 2)}))

	require.NoError(t, p.Simulate(at(2), at(7)))

	// ABEV3 covers days 0..5 and BBDC4 days 3..8; [2,7] holds days 2..7.
	history := p.BalanceHistory()
	require.Len(t, history, 6)
	for i, h := range history {
		assert.True(t, h.Date.Equal(at(2+i)), "history[%d] = %s", i, h.Date)
	}
}

func TestCloseAllOpenTrades(t *testing.T) {
	t.Parallel()
	a := buildSeries(t, "ABEV3", 0, 10, 10, 10, 15, 16)
	b := buildSeries(t, "BBDC4", 0, 20, 20, 20, 30, 31)
	p := newPortfolio(t, 10000, a, b)
	require.NoError(t, p.SetStrategies(map[string]strategy.Params{"ABEV3": params(2, 2), "BBDC4": params(2, 2)}))
	require.NoError(t, p.Simulate(time.Time{}, time.Time{}))
	require.True(t, p.InPosition("ABEV3"))
	require.True(t, p.InPosition("BBDC4"))

	open, err := p.OpenValue(at(4))
	require.NoError(t, err)
	// ABEV3: 40 units, BBDC4: floor(200/10) = 20 units.
	assert.True(t, open.Equal(decimal.NewFromInt(40*16+20*31)), "open value = %s", open)

	before := p.Balance()
	require.NoError(t, p.CloseAllOpenTrades(at(10)))

	assert.False(t, p.InPosition("ABEV3"))
	assert.False(t, p.InPosition("BBDC4"))
	assert.True(t, p.Balance().Equal(before.Add(open)))
	trades := p.Trades("BBDC4")
	require.Len(t, trades, 1)
	assert.Equal(t, domain.ExitLiquidated, trades[0].ExitReason)
	assert.True(t, trades[0].ExitDate.Equal(at(10)))
}

func TestSimulateNoOverlappingPositions(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(42))
	var list []*series.PriceSeries
	for _, sym := range []string{"ABEV3", "BBAS3", "CSNA3", "ITUB4"} {
		closes := make([]float64, 250)
		px := 20.0
		for i := range closes {
			px += rng.NormFloat64()
			if px < 1 {
				px = 1
			}
			closes[i] = px
		}
		list = append(list, buildSeries(t, sym, 0, closes...))
	}
	p := newPortfolio(t, 10000, list...)
	prm := make(map[string]strategy.Params)
	for _, s := range list {
		prm[s.Symbol()] = params(10, 3)
	}
	require.NoError(t, p.SetStrategies(prm))
	require.NoError(t, p.Simulate(time.Time{}, time.Time{}))
	require.NoError(t, p.CloseAllOpenTrades(at(250)))

	for _, sym := range p.Symbols() {
		trades := p.Trades(sym)
		for i, tr := range trades {
			require.False(t, tr.IsOpen(), "%s trade %d still open", sym, i)
			if i > 0 {
				assert.True(t, tr.EntryDate.After(trades[i-1].ExitDate),
					"%s trade %d opens %s before previous close %s", sym, i, tr.EntryDate, trades[i-1].ExitDate)
			}
		}
	}
	assert.False(t, p.Balance().IsNegative())
}

func TestSetStrategiesUnknownInstrument(t *testing.T) {
	t.Parallel()
	p := newPortfolio(t, 10000, buildSeries(t, "PETR4", 0, 1, 2))
	assert.Error(t, p.SetStrategies(map[string]strategy.Params{"XXXX3": params(10, 2)}))
	assert.Error(t, p.AssignStrategy("XXXX3", params(10, 2)))
	assert.Error(t, p.SetStrategies(map[string]strategy.Params{"PETR4": {EntryWindow: 10}}))

	require.NoError(t, p.SetStrategies(map[string]strategy.Params{"PETR4": params(10, 2)}))
	assert.Equal(t, params(10, 2), p.Strategies()["PETR4"])
}
